package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"vtcode/cmd/vtcode/ui"
	"vtcode/internal/obslog"

	"github.com/muesli/cancelreader"
	"golang.org/x/term"
)

func hitlDebugEnabled() bool {
	v := os.Getenv("HITL_DEBUG")
	return v != "" && v != "0" && v != "false"
}

// monitorCancellation puts the terminal in raw mode and listens for a
// double ESC press during a streaming turn, calling cancel() on the
// second press within 3s of the first.
func monitorCancellation(ctx context.Context, cancel func()) func() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Printf("Warning: failed to enable raw mode for cancellation: %v\r\n", err)
		return func() {}
	}
	ui.IsRawMode = true
	if hitlDebugEnabled() {
		obslog.Info("hitl", "monitorCancellation enabled", obslog.Fields{"fd": fd})
	}

	cr, err := cancelreader.NewReader(os.Stdin)
	if err != nil {
		_ = term.Restore(fd, oldState)
		ui.IsRawMode = false
		if hitlDebugEnabled() {
			obslog.Info("hitl", "monitorCancellation failed to create cancelreader", obslog.Fields{"err": err.Error()})
		}
		return func() {}
	}

	stopCh := make(chan struct{})
	cleanup := func() {
		close(stopCh)
		cr.Cancel()
		_ = term.Restore(fd, oldState)
		ui.IsRawMode = false
		if hitlDebugEnabled() {
			obslog.Info("hitl", "monitorCancellation cleanup called")
		}
	}

	go func() {
		buf := make([]byte, 1)
		escCount := 0
		lastEsc := time.Time{}

		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			default:
			}

			n, err := cr.Read(buf)
			if err != nil || n == 0 {
				return
			}
			select {
			case <-stopCh:
				return
			default:
			}

			if buf[0] != 27 {
				escCount = 0
				continue
			}

			now := time.Now()
			if now.Sub(lastEsc) > 3*time.Second {
				escCount = 0
			}
			escCount++
			lastEsc = now

			if escCount == 1 {
				fmt.Print("\r\n⚠️  Press ESC again to stop...\r\n")
			} else {
				fmt.Print("\r\n🛑 Cancelling...\r\n")
				cancel()
				return
			}
		}
	}()

	return cleanup
}
