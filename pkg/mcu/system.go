package mcu

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Version is the firmware version.
type Version struct {
	Major, Minor, Patch byte
	Build               string
}

// String implements fmt.Stringer.
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Build != "" {
		s += "+" + v.Build
	}
	return s
}

// Ping checks the peer is alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.exec(ctx, CmdPing, nil)
}

// GetVersion queries the firmware version. The payload is major, minor,
// patch followed by the build string in the remaining bytes.
func (c *Client) GetVersion(ctx context.Context) (v Version, err error) {
	err = c.query(ctx, CmdGetVersion, nil, func(r *reader) {
		v.Major, v.Minor, v.Patch = r.u8(), r.u8(), r.u8()
		v.Build = string(r.rest())
	})
	return
}

// GetUptime queries the time since the peer booted.
func (c *Client) GetUptime(ctx context.Context) (d time.Duration, err error) {
	err = c.query(ctx, CmdGetUptime, nil, func(r *reader) {
		d = time.Duration(r.u32()) * time.Millisecond
	})
	return
}

// Reboot restarts the peer after delay.
func (c *Client) Reboot(ctx context.Context, delay time.Duration) error {
	ms, err := millis(delay, math.MaxUint16)
	if err != nil {
		return err
	}
	return c.exec(ctx, CmdReboot, payload(nil).u16(uint16(ms)))
}

// SyncTime sets the peer clock.
func (c *Client) SyncTime(ctx context.Context, t time.Time) error {
	return c.exec(ctx, CmdSyncTime, payload(nil).u64(uint64(t.UnixMilli())))
}

// EnterBootloader restarts the peer into its bootloader.
func (c *Client) EnterBootloader(ctx context.Context) error {
	return c.exec(ctx, CmdEnterBootloader, nil)
}
