package mcu

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/mculink/pkg/link"
)

// WatchdogFeeder keeps the peer watchdog fed while it runs.
type WatchdogFeeder struct {
	Client   *Client
	Timeout  time.Duration
	Interval time.Duration
}

// Run arms the watchdog and feeds it every Interval until ctx is done, then
// disarms it. Failed arms and feeds are logged and retried on the next tick,
// so Run may start before the link is up.
func (f *WatchdogFeeder) Run(ctx context.Context) error {
	interval := f.Interval
	if interval <= 0 {
		interval = f.Timeout / 3
	}
	if f.Timeout <= 0 || interval <= 0 {
		return link.ErrInvalidParameter
	}
	armed := f.arm(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if armed {
				stopCtx, cancel := context.WithTimeout(context.Background(), f.Client.CallTimeout())
				defer cancel()
				if err := f.Client.DisableWatchdog(stopCtx); err != nil {
					glog.Warningf("disable watchdog: %v", err)
				}
			}
			return ctx.Err()
		case <-ticker.C:
			if !armed {
				armed = f.arm(ctx)
				continue
			}
			if err := f.Client.FeedWatchdog(ctx); err != nil {
				glog.Warningf("feed watchdog: %v", err)
			}
		}
	}
}

func (f *WatchdogFeeder) arm(ctx context.Context) bool {
	if err := f.Client.EnableWatchdog(ctx, f.Timeout); err != nil {
		glog.Warningf("enable watchdog: %v", err)
		return false
	}
	glog.Infof("watchdog armed, timeout %s", f.Timeout)
	return true
}
