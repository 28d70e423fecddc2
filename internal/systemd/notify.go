// Package systemd reports service state to the systemd manager.
package systemd

import (
	"log/slog"

	"github.com/coreos/go-systemd/v22/daemon"
)

type notifyFunc func(unsetEnvironment bool, state string) (bool, error)

// Notifier sends sd_notify messages. Outside systemd every call is a no-op.
type Notifier struct {
	notify notifyFunc
	logger *slog.Logger
}

// NewNotifier creates a notifier backed by daemon.SdNotify.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{notify: daemon.SdNotify, logger: logger}
}

// Ready tells systemd the listeners are up.
func (n *Notifier) Ready() {
	n.send(daemon.SdNotifyReady)
}

// Stopping tells systemd shutdown has begun.
func (n *Notifier) Stopping() {
	n.send(daemon.SdNotifyStopping)
}

// Status sets the free-form unit status line.
func (n *Notifier) Status(msg string) {
	n.send("STATUS=" + msg)
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(false, state)
	switch {
	case err != nil:
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
	case sent:
		n.logger.Debug("sd_notify sent", "state", state)
	}
}
