package systemd

import (
	"fmt"
	"net"
	"os"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/coreos/go-systemd/v22/daemon"
)

// MetricsListener returns the socket-activated metrics listener, or nil when
// the process was not started through socket activation. A socket named
// "metrics" (FileDescriptorName=metrics) is preferred; otherwise the first
// passed listener is used.
func MetricsListener() (net.Listener, error) {
	if os.Getenv("LISTEN_FDS") == "" {
		return nil, nil
	}

	named, err := activation.ListenersWithNames()
	if err != nil {
		return nil, fmt.Errorf("failed to get systemd listeners: %w", err)
	}

	if lns, ok := named["metrics"]; ok && len(lns) > 0 {
		return lns[0], nil
	}
	for _, lns := range named {
		for _, ln := range lns {
			if ln != nil {
				return ln, nil
			}
		}
	}

	return nil, nil
}

// NotifyReady sends READY=1 notification to systemd
func NotifyReady() error {
	return notify(daemon.SdNotifyReady)
}

// NotifyStopping sends STOPPING=1 notification to systemd
func NotifyStopping() error {
	return notify(daemon.SdNotifyStopping)
}

// NotifyStatus publishes a free-form status line shown by systemctl status.
func NotifyStatus(status string) error {
	return notify("STATUS=" + status)
}

// notify is a no-op outside systemd.
func notify(state string) error {
	if _, err := daemon.SdNotify(false, state); err != nil {
		return fmt.Errorf("failed to send sd_notify %q: %w", state, err)
	}
	return nil
}
