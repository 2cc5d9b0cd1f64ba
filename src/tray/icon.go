package tray

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"runtime"
)

const iconSize = 16

var (
	iconBlue = color.RGBA{0x00, 0x78, 0xd4, 0xff}
	iconGrey = color.RGBA{0x33, 0x33, 0x33, 0xff}
)

// iconPNG draws the tray icon: a dashed selection rectangle with a text
// line inside it.
func iconPNG() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, iconSize, iconSize))
	for i := 1; i < iconSize-1; i++ {
		if i%3 == 2 {
			continue
		}
		img.Set(i, 1, iconBlue)
		img.Set(i, iconSize-2, iconBlue)
		img.Set(1, i, iconBlue)
		img.Set(iconSize-2, i, iconBlue)
	}
	for _, y := range []int{6, 9} {
		for x := 4; x < iconSize-4; x++ {
			img.Set(x, y, iconGrey)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// icoFromPNG wraps a PNG in a single-entry ICO container.
func icoFromPNG(p []byte, size int) []byte {
	var buf bytes.Buffer
	le := binary.LittleEndian
	_ = binary.Write(&buf, le, [3]uint16{0, 1, 1})
	buf.WriteByte(byte(size))
	buf.WriteByte(byte(size))
	buf.WriteByte(0) // palette
	buf.WriteByte(0) // reserved
	_ = binary.Write(&buf, le, uint16(1))  // planes
	_ = binary.Write(&buf, le, uint16(32)) // bpp
	_ = binary.Write(&buf, le, uint32(len(p)))
	_ = binary.Write(&buf, le, uint32(6+16))
	buf.Write(p)
	return buf.Bytes()
}

// Icon returns the icon in the format systray expects on this platform.
func Icon() []byte {
	p, err := iconPNG()
	if err != nil {
		return nil
	}
	if runtime.GOOS == "windows" {
		return icoFromPNG(p, iconSize)
	}
	return p
}
