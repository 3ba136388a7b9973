//go:build windows

package input

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"
)

var (
	user32DLL = syscall.NewLazyDLL("user32.dll")
	kernelDLL = syscall.NewLazyDLL("kernel32.dll")

	procSetWindowsHookExW   = user32DLL.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32DLL.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32DLL.NewProc("CallNextHookEx")
	procGetMessageW         = user32DLL.NewProc("GetMessageW")
	procPostThreadMessageW  = user32DLL.NewProc("PostThreadMessageW")
	procGetCurrentThreadID  = kernelDLL.NewProc("GetCurrentThreadId")
)

const (
	whKeyboardLL = 13
	whMouseLL    = 14

	wmQuit       = 0x0012
	wmKeyDown    = 0x0100
	wmSysKeyDown = 0x0104
)

// point mirrors the Win32 POINT struct.
type point struct {
	x int32
	y int32
}

// winMsg mirrors the Win32 MSG struct (tagMSG from winuser.h). Field order
// and types must match the Win32 binary layout.
type winMsg struct {
	hWnd     uintptr
	message  uint32
	wParam   uintptr
	lParam   uintptr
	time     uint32
	pt       point
	lPrivate uint32
}

// Hook callbacks are created once per process: syscall.NewCallback slots are
// a finite process-wide resource and must not be allocated per subscription.
var (
	hookCallbackInit sync.Once
	keyboardProcPtr  uintptr
	mouseProcPtr     uintptr
	activeDispatch   atomic.Pointer[func(Kind)]
)

func keyboardHookProc(nCode, wParam, lParam uintptr) uintptr {
	if int32(nCode) >= 0 && (wParam == wmKeyDown || wParam == wmSysKeyDown) {
		if dispatch := activeDispatch.Load(); dispatch != nil {
			(*dispatch)(KindKeyboard)
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
	return ret
}

func mouseHookProc(nCode, wParam, lParam uintptr) uintptr {
	// Any mouse message (movement, button, wheel) counts as activity.
	if int32(nCode) >= 0 {
		if dispatch := activeDispatch.Load(); dispatch != nil {
			(*dispatch)(KindMouse)
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
	return ret
}

// startRawListener installs low-level keyboard and mouse hooks on a locked
// OS thread running a Win32 message loop. The returned stop function posts
// WM_QUIT to that thread and waits for teardown.
func startRawListener(dispatch func(Kind)) (func(), error) {
	hookCallbackInit.Do(func() {
		keyboardProcPtr = syscall.NewCallback(keyboardHookProc)
		mouseProcPtr = syscall.NewCallback(mouseHookProc)
	})
	activeDispatch.Store(&dispatch)

	ready := make(chan error, 1)
	done := make(chan struct{})
	var threadID uint32

	go func() {
		// Low-level hooks require the installing thread to pump messages.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(done)

		tid, _, _ := procGetCurrentThreadID.Call()
		threadID = uint32(tid)

		kbHook, _, kbErr := procSetWindowsHookExW.Call(whKeyboardLL, keyboardProcPtr, 0, 0)
		if kbHook == 0 {
			ready <- fmt.Errorf("SetWindowsHookExW(WH_KEYBOARD_LL): %v", kbErr)
			return
		}
		mouseHook, _, mouseErr := procSetWindowsHookExW.Call(whMouseLL, mouseProcPtr, 0, 0)
		if mouseHook == 0 {
			procUnhookWindowsHookEx.Call(kbHook)
			ready <- fmt.Errorf("SetWindowsHookExW(WH_MOUSE_LL): %v", mouseErr)
			return
		}
		ready <- nil

		var msg winMsg
		for {
			ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
			// 0 = WM_QUIT, ^0 = error; either way the loop ends.
			if ret == 0 || int32(ret) == -1 {
				break
			}
		}

		procUnhookWindowsHookEx.Call(kbHook)
		procUnhookWindowsHookEx.Call(mouseHook)
	}()

	if err := <-ready; err != nil {
		activeDispatch.Store(nil)
		return nil, err
	}

	stop := func() {
		activeDispatch.Store(nil)
		procPostThreadMessageW.Call(uintptr(threadID), wmQuit, 0, 0)
		<-done
	}
	return stop, nil
}
