package mcu

import (
	"context"
	"math"
	"time"
)

// WatchdogStatus is the state of the peer's host watchdog.
type WatchdogStatus struct {
	Enabled   bool
	Timeout   time.Duration
	Remaining time.Duration
	// Resets counts resets caused by the watchdog.
	Resets uint16
}

// SetLED sets the color of LED id.
func (c *Client) SetLED(ctx context.Context, id, r, g, b byte) error {
	return c.exec(ctx, CmdSetLED, payload(nil).u8(id).u8(r).u8(g).u8(b))
}

// SetFan sets fan id duty in percent.
func (c *Client) SetFan(ctx context.Context, id, percent byte) error {
	if percent > 100 {
		percent = 100
	}
	return c.exec(ctx, CmdSetFan, payload(nil).u8(id).u8(percent))
}

// SetPowerRail switches power rail id.
func (c *Client) SetPowerRail(ctx context.Context, id byte, on bool) error {
	return c.exec(ctx, CmdSetPowerRail, payload(nil).u8(id).bool(on))
}

// SetBuzzer beeps at freq Hz for d.
func (c *Client) SetBuzzer(ctx context.Context, freq uint16, d time.Duration) error {
	ms, err := millis(d, math.MaxUint16)
	if err != nil {
		return err
	}
	return c.exec(ctx, CmdSetBuzzer, payload(nil).u16(freq).u16(uint16(ms)))
}

// EnableWatchdog arms the watchdog. The peer power cycles the host if it's
// not fed within timeout.
func (c *Client) EnableWatchdog(ctx context.Context, timeout time.Duration) error {
	ms, err := millis(timeout, math.MaxUint32)
	if err != nil {
		return err
	}
	return c.exec(ctx, CmdEnableWatchdog, payload(nil).u32(uint32(ms)))
}

// DisableWatchdog disarms the watchdog.
func (c *Client) DisableWatchdog(ctx context.Context) error {
	return c.exec(ctx, CmdDisableWatchdog, nil)
}

// FeedWatchdog resets the watchdog countdown.
func (c *Client) FeedWatchdog(ctx context.Context) error {
	return c.exec(ctx, CmdFeedWatchdog, nil)
}

// GetWatchdogStatus queries the watchdog.
func (c *Client) GetWatchdogStatus(ctx context.Context) (s WatchdogStatus, err error) {
	err = c.query(ctx, CmdGetWatchdogStatus, nil, func(r *reader) {
		s.Enabled = r.bool()
		s.Timeout = time.Duration(r.u32()) * time.Millisecond
		s.Remaining = time.Duration(r.u32()) * time.Millisecond
		s.Resets = r.u16()
	})
	return
}
