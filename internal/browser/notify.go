package browser

import (
	"context"
	"os/exec"

	"github.com/tabwarden/tabwarden/internal/logger"
)

// LogNotifier writes notifications to the log. Used as the fallback
// when no desktop notification command is available.
type LogNotifier struct{}

// Notify logs the alert.
func (LogNotifier) Notify(_ context.Context, title, message string) error {
	logger.Info().
		Str("title", title).
		Str("message", message).
		Msg("Notification")
	return nil
}

// DesktopNotifier shells out to a desktop notification command
// (notify-send on Linux, osascript wrappers elsewhere).
type DesktopNotifier struct {
	Command string
}

// NewDesktopNotifier picks notify-send when present, otherwise returns
// nil so callers can fall back to logging.
func NewDesktopNotifier() *DesktopNotifier {
	path, err := exec.LookPath("notify-send")
	if err != nil {
		return nil
	}
	return &DesktopNotifier{Command: path}
}

// Notify runs the notification command.
func (n *DesktopNotifier) Notify(ctx context.Context, title, message string) error {
	return exec.CommandContext(ctx, n.Command, title, message).Run()
}
