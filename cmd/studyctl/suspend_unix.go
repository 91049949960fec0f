//go:build unix

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgallion1/studykit/internal/pomodoro"
)

// watchSuspend treats job-control suspension as the timer being hidden.
// SIGTSTP is intercepted to record the hide, then re-raised with the default
// action so the process actually stops; SIGCONT records the show.
func watchSuspend(ctx context.Context, c *pomodoro.Controller) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTSTP, syscall.SIGCONT)
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-ch:
				switch sig {
				case syscall.SIGTSTP:
					c.Hide()
					signal.Reset(syscall.SIGTSTP)
					_ = syscall.Kill(os.Getpid(), syscall.SIGTSTP)
				case syscall.SIGCONT:
					signal.Notify(ch, syscall.SIGTSTP)
					c.Show()
				}
			}
		}
	}()
}
