package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/muesli/cancelreader"
	"golang.org/x/term"

	"ClusterDesk/cmd/ui"
)

// monitorInterrupt puts the terminal in raw mode and listens for the ESC
// key while a turn is streaming. Pressing ESC twice within three seconds
// invokes interrupt. The returned cleanup restores the terminal and must
// always be called.
func monitorInterrupt(ctx context.Context, interrupt func()) func() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Printf("Warning: failed to enable raw mode: %v\r\n", err)
		return func() {}
	}
	ui.IsRawMode = true

	cr, err := cancelreader.NewReader(os.Stdin)
	if err != nil {
		_ = term.Restore(fd, oldState)
		ui.IsRawMode = false
		return func() {}
	}

	stopCh := make(chan struct{})
	cleanup := func() {
		close(stopCh)
		cr.Cancel()
		_ = term.Restore(fd, oldState)
		ui.IsRawMode = false
	}

	go func() {
		buf := make([]byte, 1)
		escCount := 0
		lastEscTime := time.Time{}

		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			default:
				n, err := cr.Read(buf)
				if err != nil || n == 0 {
					return
				}

				select {
				case <-stopCh:
					return
				default:
				}

				if buf[0] != 27 { // ESC
					escCount = 0
					continue
				}

				now := time.Now()
				if now.Sub(lastEscTime) > 3*time.Second {
					escCount = 0
				}
				escCount++
				lastEscTime = now

				if escCount == 1 {
					fmt.Print("\r\n⚠️  Press ESC again to interrupt...\r\n")
				} else {
					fmt.Print("\r\n🛑 Interrupting...\r\n")
					interrupt()
					return
				}
			}
		}
	}()

	return cleanup
}
