//go:build windows

package main

import (
	"log"
	"syscall"
)

// enableDPIAwareness makes hook coordinates and captured pixels agree on
// scaled displays.
func enableDPIAwareness() {
	const processPerMonitorDPIAware = 2
	setProcessDpiAwareness := syscall.NewLazyDLL("Shcore.dll").NewProc("SetProcessDpiAwareness")
	if err := setProcessDpiAwareness.Find(); err == nil {
		if ret, _, _ := setProcessDpiAwareness.Call(uintptr(processPerMonitorDPIAware)); ret != 0 {
			log.Printf("DPI: SetProcessDpiAwareness failed, error code: %d", ret)
		}
		return
	}

	setProcessDPIAware := syscall.NewLazyDLL("user32.dll").NewProc("SetProcessDPIAware")
	if err := setProcessDPIAware.Find(); err != nil {
		log.Printf("DPI: no DPI awareness API available")
		return
	}
	if ret, _, _ := setProcessDPIAware.Call(); ret == 0 {
		log.Printf("DPI: SetProcessDPIAware failed")
	}
}
