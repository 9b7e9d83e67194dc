// Package sim simulates a microcontroller on the far end of the link.
package sim

import (
	"context"
	"math"
	"net"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/mculink/pkg/frame"
	"github.com/robotalks/mculink/pkg/link"
	"github.com/robotalks/mculink/pkg/mcu"
)

// Nack codes of the simulated firmware.
const (
	NackInvalid byte = 1
	NackUnknown byte = 2
)

// Defaults of Device.
const (
	DefaultTickInterval = 20 * time.Millisecond
	railCount           = 2
)

type watchdog struct {
	enabled  bool
	timeout  time.Duration
	deadline time.Time
	resets   uint16
}

// Device is the simulated firmware state.
type Device struct {
	Version mcu.Version
	Info    mcu.DeviceInfo
	Motors  []*Motor
	// Dir stores files and firmware pushed by the host.
	Dir string
	// NotifyInterval sends sensor readings as Notify frames. Zero disables.
	NotifyInterval time.Duration
	TickInterval   time.Duration
	// OnConnect is called by Serve once the link is up. Bytes received
	// before that are discarded.
	OnConnect func()

	boot     time.Time
	clockOff time.Duration
	leds     map[byte][3]byte
	fans     map[byte]byte
	rails    byte
	wdt      watchdog
	lastTick time.Time
	lock     sync.Mutex
}

// NewDevice creates a Device with motors 1..motors.
func NewDevice(dir string, motors int) *Device {
	d := &Device{
		Version:      mcu.Version{Major: 1, Minor: 0, Patch: 0, Build: "sim"},
		Info:         mcu.DeviceInfo{Model: "mculink-sim", Serial: "SIM0001", HWRevision: 1},
		Dir:          dir,
		TickInterval: DefaultTickInterval,
		boot:         time.Now(),
		leds:         make(map[byte][3]byte),
		fans:         make(map[byte]byte),
		rails:        1,
	}
	for n := 1; n <= motors; n++ {
		d.Motors = append(d.Motors, NewMotor(byte(n)))
	}
	return d
}

// Handler returns a link.Handler answering through r.
func (d *Device) Handler(r link.Replier) link.Handler {
	return link.HandleRequestFunc(func(ctx context.Context, req *frame.Frame) {
		typ, data := d.Handle(req.Cmd, req.Data)
		if err := r.Reply(req, typ, data); err != nil {
			glog.Warningf("sim reply %s: %v", req, err)
		}
	})
}

func nack(code byte) (frame.Type, []byte) {
	return frame.TypeNack, []byte{code}
}

func ack() (frame.Type, []byte) {
	return frame.TypeAck, nil
}

func respond(data []byte) (frame.Type, []byte) {
	return frame.TypeResponse, data
}

func (d *Device) motor(id byte) *Motor {
	for _, m := range d.Motors {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// Handle executes a command and returns the reply.
func (d *Device) Handle(cmd uint16, data []byte) (frame.Type, []byte) {
	d.lock.Lock()
	defer d.lock.Unlock()
	now := time.Now()

	switch cmd {
	case mcu.CmdPing, mcu.CmdEnterBootloader:
		return ack()
	case mcu.CmdGetVersion:
		return respond(d.Version.Encode())
	case mcu.CmdGetUptime:
		return respond(mcu.EncodeUptime(now.Sub(d.boot)))
	case mcu.CmdReboot:
		d.reboot(now)
		return ack()
	case mcu.CmdSyncTime:
		var ms uint64
		if mcu.DecodeArgs(data, &ms) != nil {
			return nack(NackInvalid)
		}
		d.clockOff = time.UnixMilli(int64(ms)).Sub(now)
		return ack()

	case mcu.CmdGetNetworkStatus:
		return respond(mcu.NetworkStatus{Connected: true, RSSI: -55, IP: net.IPv4(127, 0, 0, 1), SSID: "sim"}.Encode())
	case mcu.CmdGetPowerStatus:
		s := mcu.PowerStatus{InputVoltage: 12, RailsOn: d.rails}
		for n := 0; n < railCount; n++ {
			var v float32
			if d.rails&(1<<n) != 0 {
				v = []float32{5, 3.3}[n]
			}
			s.Rails = append(s.Rails, v)
		}
		return respond(s.Encode())
	case mcu.CmdGetDeviceInfo:
		return respond(d.Info.Encode())
	case mcu.CmdGetBatteryStatus:
		return respond(d.battery(now).Encode())

	case mcu.CmdSetMotorAngle, mcu.CmdSetMotorSpeed, mcu.CmdStopMotor, mcu.CmdEnableMotor,
		mcu.CmdDisableMotor, mcu.CmdHomeMotor, mcu.CmdGetMotorState, mcu.CmdSetMotorPID:
		return d.handleMotor(cmd, data)
	case mcu.CmdStopAllMotors:
		for _, m := range d.Motors {
			m.Stop()
		}
		return ack()
	case mcu.CmdGetMotorStates:
		states := make([]mcu.MotorState, len(d.Motors))
		for n, m := range d.Motors {
			states[n] = m.State()
		}
		return respond(mcu.EncodeMotorStates(states))

	case mcu.CmdGetIMU:
		return respond(d.sensors(now).IMU.Encode())
	case mcu.CmdGetSensors:
		return respond(d.sensors(now).Encode())
	case mcu.CmdGetTemperature, mcu.CmdGetDistance, mcu.CmdGetAmbientLight:
		s := d.sensors(now)
		enc := s.Encode()
		// the single readings are the tail fields of the Sensors payload.
		switch cmd {
		case mcu.CmdGetTemperature:
			return respond(enc[24:28])
		case mcu.CmdGetDistance:
			return respond(enc[28:30])
		}
		return respond(enc[30:34])

	case mcu.CmdSetLED:
		var id, r, g, b byte
		if mcu.DecodeArgs(data, &id, &r, &g, &b) != nil {
			return nack(NackInvalid)
		}
		d.leds[id] = [3]byte{r, g, b}
		return ack()
	case mcu.CmdSetFan:
		var id, pct byte
		if mcu.DecodeArgs(data, &id, &pct) != nil || pct > 100 {
			return nack(NackInvalid)
		}
		d.fans[id] = pct
		return ack()
	case mcu.CmdSetPowerRail:
		var id byte
		var on bool
		if mcu.DecodeArgs(data, &id, &on) != nil || id >= railCount {
			return nack(NackInvalid)
		}
		if on {
			d.rails |= 1 << id
		} else {
			d.rails &^= 1 << id
		}
		return ack()
	case mcu.CmdSetBuzzer:
		var freq, ms uint16
		if mcu.DecodeArgs(data, &freq, &ms) != nil {
			return nack(NackInvalid)
		}
		glog.V(1).Infof("sim beep %dHz %dms", freq, ms)
		return ack()

	case mcu.CmdEnableWatchdog:
		var ms uint32
		if mcu.DecodeArgs(data, &ms) != nil || ms == 0 {
			return nack(NackInvalid)
		}
		d.wdt.enabled, d.wdt.timeout = true, time.Duration(ms)*time.Millisecond
		d.wdt.deadline = now.Add(d.wdt.timeout)
		return ack()
	case mcu.CmdDisableWatchdog:
		d.wdt.enabled = false
		return ack()
	case mcu.CmdFeedWatchdog:
		if !d.wdt.enabled {
			return nack(NackInvalid)
		}
		d.wdt.deadline = now.Add(d.wdt.timeout)
		return ack()
	case mcu.CmdGetWatchdogStatus:
		s := mcu.WatchdogStatus{Enabled: d.wdt.enabled, Timeout: d.wdt.timeout, Resets: d.wdt.resets}
		if d.wdt.enabled && now.Before(d.wdt.deadline) {
			s.Remaining = d.wdt.deadline.Sub(now)
		}
		return respond(s.Encode())
	}
	return nack(NackUnknown)
}

func (d *Device) handleMotor(cmd uint16, data []byte) (frame.Type, []byte) {
	if len(data) < 1 {
		return nack(NackInvalid)
	}
	m := d.motor(data[0])
	if m == nil {
		return nack(NackInvalid)
	}
	var id byte
	switch cmd {
	case mcu.CmdSetMotorAngle:
		var angle, vel float32
		if mcu.DecodeArgs(data, &id, &angle, &vel) != nil {
			return nack(NackInvalid)
		}
		m.MoveTo(float64(angle), float64(vel))
	case mcu.CmdSetMotorSpeed:
		var vel float32
		if mcu.DecodeArgs(data, &id, &vel) != nil {
			return nack(NackInvalid)
		}
		m.RunAt(float64(vel))
	case mcu.CmdSetMotorPID:
		var kp, ki, kd float32
		if mcu.DecodeArgs(data, &id, &kp, &ki, &kd) != nil {
			return nack(NackInvalid)
		}
		m.PID = [3]float32{kp, ki, kd}
	case mcu.CmdStopMotor:
		m.Stop()
	case mcu.CmdEnableMotor:
		m.Enabled = true
	case mcu.CmdDisableMotor:
		m.Enabled = false
	case mcu.CmdHomeMotor:
		m.MoveTo(0, DefaultHomeSpeed)
	case mcu.CmdGetMotorState:
		return respond(m.State().Encode())
	}
	return ack()
}

func (d *Device) reboot(now time.Time) {
	d.boot = now
	d.wdt.enabled = false
	for _, m := range d.Motors {
		*m = *NewMotor(m.ID)
	}
}

func (d *Device) battery(now time.Time) mcu.BatteryStatus {
	// one percent per minute since boot.
	used := now.Sub(d.boot).Minutes()
	pct := 100 - math.Min(used, 95)
	return mcu.BatteryStatus{
		Percent: byte(pct),
		Voltage: float32(10.5 + 2.1*pct/100),
		Current: 0.8,
	}
}

func (d *Device) sensors(now time.Time) mcu.Sensors {
	secs := now.Sub(d.boot).Seconds()
	var gyroZ float32
	for _, m := range d.Motors {
		gyroZ += float32(m.Velocity * math.Pi / 180)
	}
	return mcu.Sensors{
		IMU: mcu.IMU{
			Accel: mcu.Vector3{Z: 9.81},
			Gyro:  mcu.Vector3{Z: gyroZ},
		},
		Temperature:  float32(35 + 2*math.Sin(secs/60)),
		Distance:     uint16(500 + 200*math.Sin(secs/5)),
		AmbientLight: 300,
	}
}

// Tick advances the simulation to now. A watchdog expiry reboots the
// device and returns true.
func (d *Device) Tick(now time.Time) (expired bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if !d.lastTick.IsZero() {
		dt := now.Sub(d.lastTick)
		for _, m := range d.Motors {
			m.Step(dt)
		}
	}
	d.lastTick = now
	if d.wdt.enabled && now.After(d.wdt.deadline) {
		resets := d.wdt.resets + 1
		d.reboot(now)
		d.wdt.resets = resets
		return true
	}
	return false
}

// Sensors returns the current readings.
func (d *Device) Sensors() mcu.Sensors {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.sensors(time.Now())
}

// Run advances the simulation every TickInterval and sends sensor
// notifications through s until ctx is done.
func (d *Device) Run(ctx context.Context, s link.Sender) error {
	interval := d.TickInterval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var lastNotify time.Time
	var seq byte
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if d.Tick(now) {
				glog.Warning("sim watchdog expired, rebooted")
			}
			if d.NotifyInterval <= 0 || now.Sub(lastNotify) < d.NotifyInterval {
				continue
			}
			lastNotify = now
			seq++
			f := &frame.Frame{Type: frame.TypeNotify, Seq: seq, Cmd: mcu.CmdGetSensors, Data: d.Sensors().Encode()}
			if err := s.Send(f); err != nil {
				glog.V(1).Infof("sim notify: %v", err)
			}
		}
	}
}
