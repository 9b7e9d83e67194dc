package mcu

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/mculink/pkg/frame"
	"github.com/robotalks/mculink/pkg/link"
	"github.com/robotalks/mculink/pkg/link/linktest"
)

// fakeCaller answers requests synchronously.
type fakeCaller struct {
	seq      byte
	reply    func(*frame.Frame) (*frame.Frame, error)
	requests []*frame.Frame
	lock     sync.Mutex
}

func (c *fakeCaller) NextSeq() byte {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.seq++
	return c.seq
}

func (c *fakeCaller) SendAndWait(ctx context.Context, req *frame.Frame, timeout time.Duration) (*frame.Frame, error) {
	c.lock.Lock()
	c.requests = append(c.requests, req)
	c.lock.Unlock()
	return c.reply(req)
}

func respondWith(data []byte) func(*frame.Frame) (*frame.Frame, error) {
	return func(req *frame.Frame) (*frame.Frame, error) {
		return req.Reply(frame.TypeResponse, data), nil
	}
}

func f32(v float32) []byte {
	b := math.Float32bits(v)
	return []byte{byte(b >> 24), byte(b >> 16), byte(b >> 8), byte(b)}
}

func concat(parts ...[]byte) (b []byte) {
	for _, p := range parts {
		b = append(b, p...)
	}
	return
}

func TestGetVersionEndToEnd(t *testing.T) {
	host, dev := linktest.Pipe()
	peer := linktest.NewPeer(dev, linktest.Respond(CmdGetVersion, []byte{1, 4, 2, 'b', 'u', 'i', 'l', 'd'}))
	peer.Delay = 50 * time.Millisecond
	defer peer.Start()()
	e := link.NewEngine(linktest.NewDialer(host), "test")
	e.Start()
	defer e.Close()

	c := NewClient(e)
	v, err := c.GetVersion(context.Background())
	require.NoError(t, err)
	require.Equal(t, Version{Major: 1, Minor: 4, Patch: 2, Build: "build"}, v)
	require.Equal(t, "1.4.2+build", v.String())

	start := time.Now()
	c.Timeout = 2 * time.Second
	require.NoError(t, c.Ping(context.Background()))
	require.True(t, time.Since(start) < time.Second)
}

func TestNackIsCommandError(t *testing.T) {
	c := NewClient(&fakeCaller{reply: func(req *frame.Frame) (*frame.Frame, error) {
		return req.Reply(frame.TypeNack, []byte{2}), nil
	}})
	err := c.StopMotor(context.Background(), 1)
	var cmdErr *link.CommandError
	require.True(t, errors.As(err, &cmdErr))
	require.Equal(t, CmdStopMotor, cmdErr.Cmd)
	require.Equal(t, byte(2), cmdErr.Code())
}

func TestCallError(t *testing.T) {
	c := NewClient(&fakeCaller{reply: func(req *frame.Frame) (*frame.Frame, error) {
		return nil, link.ErrTimeout
	}})
	err := c.Ping(context.Background())
	require.True(t, errors.Is(err, link.ErrTimeout))

	require.Equal(t, link.ErrInvalidParameter, (&Client{}).Ping(context.Background()))
}

func TestShortPayload(t *testing.T) {
	c := NewClient(&fakeCaller{reply: respondWith([]byte{1, 2})})
	_, err := c.GetVersion(context.Background())
	require.True(t, errors.Is(err, link.ErrProtocol))
	_, err = c.GetIMU(context.Background())
	require.True(t, errors.Is(err, link.ErrProtocol))
}

func TestRequestPayloads(t *testing.T) {
	caller := &fakeCaller{reply: respondWith(nil)}
	c := NewClient(caller)
	ctx := context.Background()
	testCases := []struct {
		name string
		call func() error
		cmd  uint16
		data []byte
	}{
		{"ping", func() error { return c.Ping(ctx) }, CmdPing, nil},
		{"angle", func() error { return c.SetMotorAngle(ctx, 2, 90, 1.5) }, CmdSetMotorAngle,
			concat([]byte{2}, f32(90), f32(1.5))},
		{"speed", func() error { return c.SetMotorSpeed(ctx, 1, -10) }, CmdSetMotorSpeed,
			concat([]byte{1}, f32(-10))},
		{"pid", func() error { return c.SetMotorPID(ctx, 3, 1, 0.5, 0.25) }, CmdSetMotorPID,
			concat([]byte{3}, f32(1), f32(0.5), f32(0.25))},
		{"led", func() error { return c.SetLED(ctx, 0, 255, 128, 1) }, CmdSetLED, []byte{0, 255, 128, 1}},
		{"fan", func() error { return c.SetFan(ctx, 1, 150) }, CmdSetFan, []byte{1, 100}},
		{"rail", func() error { return c.SetPowerRail(ctx, 2, true) }, CmdSetPowerRail, []byte{2, 1}},
		{"buzzer", func() error { return c.SetBuzzer(ctx, 0x0FA0, 300*time.Millisecond) }, CmdSetBuzzer,
			[]byte{0x0F, 0xA0, 0x01, 0x2C}},
		{"watchdog", func() error { return c.EnableWatchdog(ctx, 5*time.Second) }, CmdEnableWatchdog,
			[]byte{0, 0, 0x13, 0x88}},
		{"reboot", func() error { return c.Reboot(ctx, time.Second) }, CmdReboot, []byte{0x03, 0xE8}},
		{"sync", func() error { return c.SyncTime(ctx, time.UnixMilli(0x0102030405)) }, CmdSyncTime,
			[]byte{0, 0, 0, 1, 2, 3, 4, 5}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, tc.call())
			req := caller.requests[len(caller.requests)-1]
			require.Equal(t, frame.TypeRequest, req.Type)
			require.Equal(t, tc.cmd, req.Cmd)
			require.Equal(t, tc.data, req.Data)
		})
	}
	seqs := make(map[byte]bool)
	for _, req := range caller.requests {
		require.False(t, seqs[req.Seq], "sequence reused")
		seqs[req.Seq] = true
	}
}

func TestParseResults(t *testing.T) {
	ctx := context.Background()

	t.Run("motor states", func(t *testing.T) {
		rec := func(id, flags byte, angle float32) []byte {
			return concat([]byte{id, flags}, f32(angle), f32(2), f32(0.5), []byte{0})
		}
		c := NewClient(&fakeCaller{reply: respondWith(concat([]byte{2}, rec(1, 3, 45), rec(2, 1, -30)))})
		states, err := c.GetMotorStates(ctx)
		require.NoError(t, err)
		require.Equal(t, []MotorState{
			{ID: 1, Enabled: true, Moving: true, Angle: 45, Velocity: 2, Current: 0.5},
			{ID: 2, Enabled: true, Angle: -30, Velocity: 2, Current: 0.5},
		}, states)
	})

	t.Run("network", func(t *testing.T) {
		c := NewClient(&fakeCaller{reply: respondWith([]byte{1, 0xC4, 192, 168, 1, 20, 3, 'l', 'a', 'b'})})
		s, err := c.GetNetworkStatus(ctx)
		require.NoError(t, err)
		require.True(t, s.Connected)
		require.Equal(t, int8(-60), s.RSSI)
		require.Equal(t, "192.168.1.20", s.IP.String())
		require.Equal(t, "lab", s.SSID)
	})

	t.Run("power", func(t *testing.T) {
		c := NewClient(&fakeCaller{reply: respondWith(concat(f32(12), []byte{0x03, 2}, f32(5), f32(3.3)))})
		s, err := c.GetPowerStatus(ctx)
		require.NoError(t, err)
		require.Equal(t, PowerStatus{InputVoltage: 12, RailsOn: 3, Rails: []float32{5, 3.3}}, s)
	})

	t.Run("sensors", func(t *testing.T) {
		c := NewClient(&fakeCaller{reply: respondWith(concat(
			f32(0), f32(0), f32(9.8), f32(0.1), f32(0.2), f32(0.3),
			f32(36.5), []byte{0x01, 0xF4}, f32(300)))})
		s, err := c.GetSensors(ctx)
		require.NoError(t, err)
		require.Equal(t, Vector3{Z: 9.8}, s.IMU.Accel)
		require.Equal(t, Vector3{X: 0.1, Y: 0.2, Z: 0.3}, s.IMU.Gyro)
		require.Equal(t, float32(36.5), s.Temperature)
		require.Equal(t, uint16(500), s.Distance)
		require.Equal(t, float32(300), s.AmbientLight)
	})

	t.Run("watchdog", func(t *testing.T) {
		c := NewClient(&fakeCaller{reply: respondWith([]byte{1, 0, 0, 0x27, 0x10, 0, 0, 0x03, 0xE8, 0, 2})})
		s, err := c.GetWatchdogStatus(ctx)
		require.NoError(t, err)
		require.Equal(t, WatchdogStatus{Enabled: true, Timeout: 10 * time.Second, Remaining: time.Second, Resets: 2}, s)
	})

	t.Run("uptime", func(t *testing.T) {
		c := NewClient(&fakeCaller{reply: respondWith([]byte{0, 0, 0xEA, 0x60})})
		d, err := c.GetUptime(ctx)
		require.NoError(t, err)
		require.Equal(t, time.Minute, d)
	})
}

func TestCommandNames(t *testing.T) {
	for cmd, name := range cmdNames {
		got, ok := CommandByName(name)
		require.Truef(t, ok, "%s", name)
		require.Equalf(t, cmd, got, "%s", name)
	}
	_, ok := CommandByName("nope")
	require.False(t, ok)
}

func TestDurationOutOfRange(t *testing.T) {
	caller := &fakeCaller{reply: func(req *frame.Frame) (*frame.Frame, error) {
		return req.Reply(frame.TypeAck, nil), nil
	}}
	c := NewClient(caller)
	ctx := context.Background()

	require.ErrorIs(t, c.Reboot(ctx, 70*time.Second), link.ErrInvalidParameter)
	require.ErrorIs(t, c.SetBuzzer(ctx, 440, -time.Second), link.ErrInvalidParameter)
	require.ErrorIs(t, c.EnableWatchdog(ctx, 50*24*time.Hour), link.ErrInvalidParameter)
	require.Empty(t, caller.requests)

	require.NoError(t, c.Reboot(ctx, 65535*time.Millisecond))
	require.Equal(t, []byte{0xFF, 0xFF}, caller.requests[0].Data)
}
