package sim

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/mculink/pkg/filexfer"
	"github.com/robotalks/mculink/pkg/frame"
	"github.com/robotalks/mculink/pkg/link"
	"github.com/robotalks/mculink/pkg/link/linktest"
	"github.com/robotalks/mculink/pkg/mcu"
)

func TestMotorMoveTo(t *testing.T) {
	m := NewMotor(1)
	m.MaxAccel = 0
	m.MoveTo(90, 45)
	for n := 0; n < 10; n++ {
		m.Step(200 * time.Millisecond)
	}
	require.True(t, m.Moving())
	require.InDelta(t, 90, m.Angle, 1e-6)
	m.Step(200 * time.Millisecond)
	require.False(t, m.Moving())
	require.Equal(t, float64(90), m.Angle)

	m.MoveTo(-10, 0)
	m.Step(2 * time.Second)
	require.InDelta(t, -10, m.Angle, 1e-6)
}

func TestMotorAcceleration(t *testing.T) {
	m := NewMotor(1)
	m.MaxAccel = 100
	m.RunAt(50)
	m.Step(100 * time.Millisecond)
	require.InDelta(t, 10, m.Velocity, 1e-9)
	m.Step(time.Second)
	require.InDelta(t, 50, m.Velocity, 1e-9)
	m.Stop()
	m.Step(time.Second)
	require.False(t, m.Moving())

	m.Enabled = false
	m.RunAt(10)
	m.Step(time.Second)
	require.False(t, m.Moving())
}

func TestHandle(t *testing.T) {
	d := NewDevice(t.TempDir(), 2)

	typ, data := d.Handle(mcu.CmdGetVersion, nil)
	require.Equal(t, frame.TypeResponse, typ)
	require.Equal(t, append([]byte{1, 0, 0}, "sim"...), data)

	typ, data = d.Handle(0x7777, nil)
	require.Equal(t, frame.TypeNack, typ)
	require.Equal(t, []byte{NackUnknown}, data)

	typ, data = d.Handle(mcu.CmdStopMotor, []byte{9})
	require.Equal(t, frame.TypeNack, typ)
	require.Equal(t, []byte{NackInvalid}, data)

	typ, _ = d.Handle(mcu.CmdSetFan, []byte{0, 101})
	require.Equal(t, frame.TypeNack, typ)

	typ, _ = d.Handle(mcu.CmdSetPowerRail, []byte{1, 1})
	require.Equal(t, frame.TypeAck, typ)
	require.Equal(t, byte(3), d.rails)
}

func TestWatchdogExpiry(t *testing.T) {
	d := NewDevice(t.TempDir(), 1)
	now := time.Now()
	typ, _ := d.Handle(mcu.CmdEnableWatchdog, []byte{0, 0, 0, 100})
	require.Equal(t, frame.TypeAck, typ)
	require.False(t, d.Tick(now.Add(50*time.Millisecond)))
	require.True(t, d.Tick(now.Add(time.Second)))
	require.False(t, d.wdt.enabled)
	require.Equal(t, uint16(1), d.wdt.resets)

	typ, _ = d.Handle(mcu.CmdFeedWatchdog, nil)
	require.Equal(t, frame.TypeNack, typ, "feeding a disarmed watchdog")
}

type simTestEnv struct {
	dev    *Device
	engine *link.Engine
	client *mcu.Client
}

func newSimTestEnv(t *testing.T) *simTestEnv {
	hostConn, devConn := linktest.Pipe()
	env := &simTestEnv{
		dev:    NewDevice(t.TempDir(), 2),
		engine: link.NewEngine(linktest.NewDialer(hostConn), "sim"),
	}
	env.dev.TickInterval = 5 * time.Millisecond
	env.dev.NotifyInterval = 10 * time.Millisecond
	env.engine.PollTimeout = 2 * time.Millisecond
	env.client = mcu.NewClient(env.engine)

	ready := make(chan struct{})
	env.dev.OnConnect = func() { close(ready) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.dev.Serve(ctx, devConn) }()
	t.Cleanup(func() {
		env.engine.Close()
		cancel()
		<-done
	})
	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("device link not connected")
	}
	env.engine.Start()
	return env
}

func TestServeCommands(t *testing.T) {
	env := newSimTestEnv(t)
	ctx := context.Background()

	v, err := env.client.GetVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, "1.0.0+sim", v.String())

	require.NoError(t, env.client.SetMotorAngle(ctx, 2, 30, 300))
	require.Eventually(t, func() bool {
		s, err := env.client.GetMotorState(ctx, 2)
		return err == nil && !s.Moving && s.Angle == 30
	}, 2*time.Second, 10*time.Millisecond)

	states, err := env.client.GetMotorStates(ctx)
	require.NoError(t, err)
	require.Len(t, states, 2)

	err = env.client.HomeMotor(ctx, 5)
	var cmdErr *link.CommandError
	require.True(t, errors.As(err, &cmdErr))
	require.Equal(t, NackInvalid, cmdErr.Code())

	power, err := env.client.GetPowerStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, []float32{5, 0}, power.Rails)
}

func TestServeNotifies(t *testing.T) {
	env := newSimTestEnv(t)
	ch := env.engine.Subscribe(4)
	defer env.engine.Unsubscribe(ch)
	select {
	case f := <-ch:
		require.Equal(t, mcu.CmdGetSensors, f.Cmd)
		require.Len(t, f.Data, 34)
	case <-time.After(time.Second):
		t.Fatal("no sensor notification")
	}
}

func TestServeFileUpload(t *testing.T) {
	env := newSimTestEnv(t)
	src := filepath.Join(t.TempDir(), "notes.txt")
	content := []byte("hello device")
	require.NoError(t, os.WriteFile(src, content, 0644))

	require.NoError(t, filexfer.NewSender(env.client).Send(context.Background(), src, ""))
	got, err := os.ReadFile(filepath.Join(env.dev.Dir, "notes.txt"))
	require.NoError(t, err)
	require.Equal(t, content, got)
}
