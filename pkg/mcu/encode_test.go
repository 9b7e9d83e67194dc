package mcu

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/mculink/pkg/link"
)

func TestEncodeParsedByClient(t *testing.T) {
	ctx := context.Background()

	states := []MotorState{
		{ID: 1, Enabled: true, Moving: true, Angle: 90, Velocity: 30, Current: 0.5},
		{ID: 2, Fault: 4},
	}
	c := NewClient(&fakeCaller{reply: respondWith(EncodeMotorStates(states))})
	got, err := c.GetMotorStates(ctx)
	require.NoError(t, err)
	require.Equal(t, states, got)

	netStatus := NetworkStatus{Connected: true, RSSI: -60, IP: net.IPv4(192, 168, 1, 20), SSID: "lab"}
	c = NewClient(&fakeCaller{reply: respondWith(netStatus.Encode())})
	gotNet, err := c.GetNetworkStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, netStatus, gotNet)

	sensors := Sensors{IMU: IMU{Accel: Vector3{Z: 9.8}}, Temperature: 30, Distance: 120, AmbientLight: 50}
	c = NewClient(&fakeCaller{reply: respondWith(sensors.Encode())})
	gotSensors, err := c.GetSensors(ctx)
	require.NoError(t, err)
	require.Equal(t, sensors, gotSensors)

	wdt := WatchdogStatus{Enabled: true, Timeout: 3 * time.Second, Remaining: time.Second, Resets: 1}
	c = NewClient(&fakeCaller{reply: respondWith(wdt.Encode())})
	gotWdt, err := c.GetWatchdogStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, wdt, gotWdt)
}

func TestDecodeArgs(t *testing.T) {
	var (
		id    byte
		on    bool
		angle float32
		ms    uint16
	)
	data := payload(nil).u8(3).bool(true).f32(45.5).u16(500)
	require.NoError(t, DecodeArgs(data, &id, &on, &angle, &ms))
	require.Equal(t, byte(3), id)
	require.True(t, on)
	require.Equal(t, float32(45.5), angle)
	require.Equal(t, uint16(500), ms)

	require.ErrorIs(t, DecodeArgs([]byte{1}, &id, &ms), link.ErrProtocol)
	require.ErrorIs(t, DecodeArgs(data, new(int)), link.ErrInvalidParameter)
}
