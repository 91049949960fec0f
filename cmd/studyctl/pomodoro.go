package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/dgallion1/studykit/internal/pomodoro"
)

var (
	pomoWork       time.Duration
	pomoShort      time.Duration
	pomoLong       time.Duration
	pomoSessions   int
	pomoAutoBreaks bool
	pomoAutoWork   bool
)

var pomodoroCmd = &cobra.Command{
	Use:   "pomodoro",
	Short: "Run a pomodoro timer in the terminal",
	Long: `Counts down work and break phases. Type a command and press Enter:
  p  pause or resume     s  skip to the next phase
  r  reset the cycle     +  add a minute    -  remove a minute
  q  quit
Suspending the process (Ctrl-Z) counts as hiding the timer; the time spent
suspended is charged to the phase when it resumes.`,
	Args: cobra.NoArgs,
	RunE: runPomodoro,
}

func init() {
	d := pomodoro.DefaultSettings()
	pomodoroCmd.Flags().DurationVar(&pomoWork, "work", d.Work, "work phase length")
	pomodoroCmd.Flags().DurationVar(&pomoShort, "short-break", d.ShortBreak, "short break length")
	pomodoroCmd.Flags().DurationVar(&pomoLong, "long-break", d.LongBreak, "long break length")
	pomodoroCmd.Flags().IntVar(&pomoSessions, "sessions", d.SessionsBeforeLongBreak, "work phases before a long break")
	pomodoroCmd.Flags().BoolVar(&pomoAutoBreaks, "auto-breaks", true, "start breaks automatically")
	pomodoroCmd.Flags().BoolVar(&pomoAutoWork, "auto-work", d.AutoStartPomodoros, "start work phases automatically")
	rootCmd.AddCommand(pomodoroCmd)
}

var phaseStyles = map[pomodoro.Phase]lipgloss.Style{
	pomodoro.Work:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f38ba8")),
	pomodoro.ShortBreak: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#a6e3a1")),
	pomodoro.LongBreak:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#89dceb")),
}

var phaseLabels = map[pomodoro.Phase]string{
	pomodoro.Work:       "Focus",
	pomodoro.ShortBreak: "Short break",
	pomodoro.LongBreak:  "Long break",
}

const barWidth = 20

// renderStatus draws one status line for a snapshot.
func renderStatus(s pomodoro.Snapshot) string {
	filled := int(s.Progress / 100 * barWidth)
	filled = max(0, min(barWidth, filled))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	state := ""
	switch {
	case s.Hidden:
		state = " (suspended)"
	case !s.Running:
		state = " (paused)"
	}
	return fmt.Sprintf("%s %s %s %s",
		phaseStyles[s.Phase].Render(fmt.Sprintf("%-11s", phaseLabels[s.Phase])),
		headingStyle.Render(pomodoro.FormatClock(s.RemainingSeconds)),
		bar,
		mutedStyle.Render(fmt.Sprintf("done %d%s", s.CompletedWork, state)),
	)
}

// statusLine redraws the status in place, skipping identical frames.
type statusLine struct {
	mu   sync.Mutex
	out  io.Writer
	last string
}

func (l *statusLine) draw(s pomodoro.Snapshot) {
	line := renderStatus(s)
	l.mu.Lock()
	defer l.mu.Unlock()
	if line == l.last {
		return
	}
	l.last = line
	fmt.Fprintf(l.out, "\r\033[K%s", line)
}

func runPomodoro(cmd *cobra.Command, _ []string) error {
	settings := pomodoro.Settings{
		Work:                    pomoWork,
		ShortBreak:              pomoShort,
		LongBreak:               pomoLong,
		SessionsBeforeLongBreak: pomoSessions,
		AutoStartBreaks:         pomoAutoBreaks,
		AutoStartPomodoros:      pomoAutoWork,
	}
	line := &statusLine{out: cmd.OutOrStdout()}
	c, err := pomodoro.New(settings, pomodoro.WithLogger(log), pomodoro.OnChange(line.draw))
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	watchSuspend(ctx, c)

	if err := c.Start(); err != nil {
		return err
	}
	err = readCommands(ctx, cmd.InOrStdin(), c, func(err error) {
		line.mu.Lock()
		defer line.mu.Unlock()
		line.last = ""
		fmt.Fprintf(line.out, "\r\033[K%s\n", errorStyle.Render(err.Error()))
	})
	fmt.Fprintln(cmd.OutOrStdout())
	return err
}

// readCommands applies one-letter commands from in until q, EOF or ctx ends.
// Errors from individual commands are reported and do not stop the loop.
func readCommands(ctx context.Context, in io.Reader, c *pomodoro.Controller, report func(error)) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- strings.TrimSpace(sc.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-lines:
			if !ok {
				<-ctx.Done()
				return nil
			}
			var err error
			switch cmd {
			case "":
				continue
			case "q":
				return nil
			case "p":
				err = c.Toggle()
			case "s":
				err = c.Skip()
			case "r":
				err = c.Reset()
			case "+":
				err = c.Adjust(time.Minute)
			case "-":
				err = c.Adjust(-time.Minute)
			default:
				err = fmt.Errorf("unknown command %q", cmd)
			}
			if err != nil {
				report(err)
			}
		}
	}
}
