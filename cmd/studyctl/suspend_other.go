//go:build !unix

package main

import (
	"context"

	"github.com/dgallion1/studykit/internal/pomodoro"
)

// watchSuspend is a no-op where there is no job control.
func watchSuspend(context.Context, *pomodoro.Controller) {}
