//go:build windows

package overlay

import (
	"errors"
	"fmt"
	"image"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"github.com/lxn/win"

	"context-capture/src/region"
	"context-capture/src/screenshot"
)

const (
	className     = "ContextCaptureOverlay"
	removeTimeout = time.Second
)

var (
	gdi32         = syscall.NewLazyDLL("gdi32.dll")
	procCreatePen = gdi32.NewProc("CreatePen")
	procRectangle = gdi32.NewProc("Rectangle")

	user32                       = syscall.NewLazyDLL("user32.dll")
	procAllowSetForegroundWindow = user32.NewProc("AllowSetForegroundWindow")

	registerOnce sync.Once
	registerErr  error
	crossCursor  win.HCURSOR

	// active is the surface whose window is on screen. Only one selection
	// runs at a time.
	active atomic.Pointer[Surface]
)

// Surface is a topmost popup covering the virtual screen. Pointer input is
// observed by the global hook, so the window swallows mouse messages and only
// paints.
type Surface struct {
	fallback region.Surface

	mu         sync.Mutex
	hwnd       win.HWND
	width      int
	height     int
	pixels     []byte
	sel        *region.Region
	confirming bool
	done       chan struct{}
	degraded   bool
}

// New returns the Windows overlay, which uses fallback when the popup cannot
// be created.
func New(fallback region.Surface) region.Surface {
	return &Surface{fallback: fallback}
}

func (s *Surface) Install() error {
	frame, err := screenshot.Capture()
	if err == nil {
		err = s.open(frame)
	}
	if err == nil {
		return nil
	}

	log.Printf("Overlay: %v; using fallback surface", err)
	s.mu.Lock()
	s.degraded = true
	s.mu.Unlock()
	if s.fallback == nil {
		return err
	}
	return s.fallback.Install()
}

func (s *Surface) open(frame *image.RGBA) error {
	registerOnce.Do(registerClass)
	if registerErr != nil {
		return registerErr
	}

	s.mu.Lock()
	s.width, s.height = frame.Bounds().Dx(), frame.Bounds().Dy()
	s.pixels = toBGRA(frame)
	s.sel = nil
	s.confirming = false
	s.degraded = false
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	ready := make(chan error, 1)
	go s.loop(ready, done)
	return <-ready
}

func registerClass() {
	crossCursor = win.LoadCursor(0, win.MAKEINTRESOURCE(win.IDC_CROSS))
	wc := win.WNDCLASSEX{
		CbSize:        uint32(unsafe.Sizeof(win.WNDCLASSEX{})),
		Style:         win.CS_HREDRAW | win.CS_VREDRAW,
		LpfnWndProc:   syscall.NewCallback(wndProc),
		HInstance:     win.GetModuleHandle(nil),
		HCursor:       crossCursor,
		LpszClassName: syscall.StringToUTF16Ptr(className),
	}
	if win.RegisterClassEx(&wc) == 0 {
		registerErr = errors.New("failed to register overlay window class")
	}
}

// loop owns the window. It runs on a locked OS thread because a window's
// messages are delivered to the thread that created it.
func (s *Surface) loop(ready chan<- error, done chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)

	vx := win.GetSystemMetrics(win.SM_XVIRTUALSCREEN)
	vy := win.GetSystemMetrics(win.SM_YVIRTUALSCREEN)
	vw := win.GetSystemMetrics(win.SM_CXVIRTUALSCREEN)
	vh := win.GetSystemMetrics(win.SM_CYVIRTUALSCREEN)

	active.Store(s)
	hwnd := win.CreateWindowEx(
		win.WS_EX_TOPMOST|win.WS_EX_TOOLWINDOW,
		syscall.StringToUTF16Ptr(className),
		syscall.StringToUTF16Ptr("Context Capture"),
		win.WS_POPUP|win.WS_VISIBLE,
		vx, vy, vw, vh,
		0, 0, win.GetModuleHandle(nil), nil,
	)
	if hwnd == 0 {
		active.CompareAndSwap(s, nil)
		ready <- fmt.Errorf("failed to create overlay window")
		return
	}
	s.mu.Lock()
	s.hwnd = hwnd
	s.mu.Unlock()
	log.Printf("Overlay: window at (%d,%d) %dx%d", vx, vy, vw, vh)

	procAllowSetForegroundWindow.Call(uintptr(syscall.Getpid()))
	win.SetForegroundWindow(hwnd)
	win.UpdateWindow(hwnd)
	ready <- nil

	var msg win.MSG
	for {
		if r := win.GetMessage(&msg, 0, 0, 0); r == 0 || r == -1 {
			break
		}
		win.TranslateMessage(&msg)
		win.DispatchMessage(&msg)
	}

	s.mu.Lock()
	s.hwnd = 0
	s.mu.Unlock()
	active.CompareAndSwap(s, nil)
}

func (s *Surface) Remove() {
	s.mu.Lock()
	hwnd, done, degraded := s.hwnd, s.done, s.degraded
	s.mu.Unlock()

	if degraded {
		if s.fallback != nil {
			s.fallback.Remove()
		}
		return
	}
	if hwnd == 0 {
		return
	}
	win.PostMessage(hwnd, win.WM_CLOSE, 0, 0)
	select {
	case <-done:
	case <-time.After(removeTimeout):
		log.Printf("Overlay: window did not close within %v", removeTimeout)
	}
}

func (s *Surface) DrawSelection(r region.Region) {
	s.update(func() {
		s.sel = &r
		s.confirming = false
	}, func(f region.Surface) { f.DrawSelection(r) })
}

func (s *Surface) HideSelection() {
	s.update(func() {
		s.sel = nil
		s.confirming = false
	}, func(f region.Surface) { f.HideSelection() })
}

func (s *Surface) ShowConfirm(r region.Region) {
	s.update(func() {
		s.sel = &r
		s.confirming = true
	}, func(f region.Surface) { f.ShowConfirm(r) })
}

func (s *Surface) update(apply func(), fallback func(region.Surface)) {
	s.mu.Lock()
	if s.degraded {
		s.mu.Unlock()
		if s.fallback != nil {
			fallback(s.fallback)
		}
		return
	}
	apply()
	hwnd := s.hwnd
	s.mu.Unlock()
	if hwnd != 0 {
		win.InvalidateRect(hwnd, nil, false)
	}
}

func wndProc(hwnd win.HWND, msg uint32, wParam, lParam uintptr) uintptr {
	switch msg {
	case win.WM_PAINT:
		var ps win.PAINTSTRUCT
		hdc := win.BeginPaint(hwnd, &ps)
		if s := active.Load(); s != nil {
			s.paint(hdc)
		}
		win.EndPaint(hwnd, &ps)
		return 0
	case win.WM_ERASEBKGND:
		return 1
	case win.WM_SETCURSOR:
		win.SetCursor(crossCursor)
		return 1
	case win.WM_NCHITTEST:
		return uintptr(win.HTCLIENT)
	case win.WM_LBUTTONDOWN, win.WM_LBUTTONUP, win.WM_MOUSEMOVE, win.WM_RBUTTONDOWN, win.WM_RBUTTONUP:
		return 0
	case win.WM_DESTROY:
		// Each window has its own thread, so the quit message never leaks
		// into a later session.
		win.PostQuitMessage(0)
		return 0
	}
	return win.DefWindowProc(hwnd, msg, wParam, lParam)
}

func (s *Surface) paint(hdc win.HDC) {
	s.mu.Lock()
	w, h, pixels := s.width, s.height, s.pixels
	var sel *region.Region
	if s.sel != nil {
		r := *s.sel
		sel = &r
	}
	confirming := s.confirming
	s.mu.Unlock()

	drawFrame(hdc, w, h, pixels)
	drawHint(hdc, hintText(confirming))
	if sel != nil {
		drawRect(hdc, *sel, penColour(confirming))
	}
}

func drawFrame(hdc win.HDC, w, h int, pixels []byte) {
	if w == 0 || h == 0 || len(pixels) < w*h*4 {
		return
	}
	memDC := win.CreateCompatibleDC(hdc)
	defer win.DeleteDC(memDC)

	info := win.BITMAPINFO{
		BmiHeader: win.BITMAPINFOHEADER{
			BiSize:        uint32(unsafe.Sizeof(win.BITMAPINFOHEADER{})),
			BiWidth:       int32(w),
			BiHeight:      -int32(h),
			BiPlanes:      1,
			BiBitCount:    32,
			BiCompression: win.BI_RGB,
		},
	}
	var bits unsafe.Pointer
	bmp := win.CreateDIBSection(memDC, &info.BmiHeader, win.DIB_RGB_COLORS, &bits, 0, 0)
	if bmp == 0 {
		return
	}
	defer win.DeleteObject(win.HGDIOBJ(bmp))
	old := win.SelectObject(memDC, win.HGDIOBJ(bmp))
	defer win.SelectObject(memDC, old)

	copy(unsafe.Slice((*byte)(bits), w*h*4), pixels)
	win.BitBlt(hdc, 0, 0, int32(w), int32(h), memDC, 0, 0, win.SRCCOPY)
}

func drawHint(hdc win.HDC, text string) {
	win.SetBkMode(hdc, win.TRANSPARENT)
	win.SetTextColor(hdc, win.COLORREF(hintColour))
	win.TextOut(hdc, 16, 16, syscall.StringToUTF16Ptr(text), int32(len(text)))
}

func drawRect(hdc win.HDC, r region.Region, colour uint32) {
	pen, _, _ := procCreatePen.Call(0, 3, uintptr(colour))
	oldPen := win.SelectObject(hdc, win.HGDIOBJ(pen))
	oldBrush := win.SelectObject(hdc, win.GetStockObject(win.NULL_BRUSH))
	defer func() {
		win.SelectObject(hdc, oldPen)
		win.SelectObject(hdc, oldBrush)
		win.DeleteObject(win.HGDIOBJ(pen))
	}()

	left, top, right, bottom := rectCoords(r)
	procRectangle.Call(uintptr(hdc), uintptr(left), uintptr(top), uintptr(right), uintptr(bottom))
}
