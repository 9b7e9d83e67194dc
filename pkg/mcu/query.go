package mcu

import (
	"context"
	"net"
)

// NetworkStatus is the peer's network link state.
type NetworkStatus struct {
	Connected bool
	RSSI      int8
	IP        net.IP
	SSID      string
}

// PowerStatus reports power rail voltages.
type PowerStatus struct {
	InputVoltage float32
	Rails        []float32
	// RailsOn is a bit mask of enabled rails.
	RailsOn byte
}

// DeviceInfo identifies the board.
type DeviceInfo struct {
	Model      string
	Serial     string
	HWRevision byte
}

// BatteryStatus reports the battery gauge.
type BatteryStatus struct {
	Percent  byte
	Voltage  float32
	Current  float32
	Charging bool
}

// GetNetworkStatus queries the network state.
func (c *Client) GetNetworkStatus(ctx context.Context) (s NetworkStatus, err error) {
	err = c.query(ctx, CmdGetNetworkStatus, nil, func(r *reader) {
		s.Connected = r.bool()
		s.RSSI = r.i8()
		if ip := r.take(4); ip != nil {
			s.IP = net.IPv4(ip[0], ip[1], ip[2], ip[3])
		}
		s.SSID = r.str()
	})
	return
}

// GetPowerStatus queries rail voltages.
func (c *Client) GetPowerStatus(ctx context.Context) (s PowerStatus, err error) {
	err = c.query(ctx, CmdGetPowerStatus, nil, func(r *reader) {
		s.InputVoltage = r.f32()
		s.RailsOn = r.u8()
		n := int(r.u8())
		for i := 0; i < n && r.err == nil; i++ {
			s.Rails = append(s.Rails, r.f32())
		}
	})
	return
}

// GetDeviceInfo queries the board identity.
func (c *Client) GetDeviceInfo(ctx context.Context) (info DeviceInfo, err error) {
	err = c.query(ctx, CmdGetDeviceInfo, nil, func(r *reader) {
		info.HWRevision = r.u8()
		info.Model = r.str()
		info.Serial = r.str()
	})
	return
}

// GetBatteryStatus queries the battery gauge.
func (c *Client) GetBatteryStatus(ctx context.Context) (s BatteryStatus, err error) {
	err = c.query(ctx, CmdGetBatteryStatus, nil, func(r *reader) {
		s.Percent = r.u8()
		s.Voltage = r.f32()
		s.Current = r.f32()
		s.Charging = r.bool()
	})
	return
}
