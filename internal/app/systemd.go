package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "taskloop/pkg/logx"
)

// sdNotify sends a state to systemd. Outside systemd it is a no-op.
func sdNotify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Trace("sd_notify", logx.String("state", state))
	}
}

// watchdogInterval returns how often to ping the systemd watchdog, or 0 when
// it is not enabled for this process.
func watchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}

// runWatchdog pings systemd until ctx ends. alive reports whether the
// scheduler loop is still running; a dead loop stops the pings so systemd
// restarts the unit.
func runWatchdog(ctx context.Context, log logx.Logger, every time.Duration, alive func() bool) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if alive() {
				sdNotify(log, daemon.SdNotifyWatchdog)
			}
		}
	}
}
