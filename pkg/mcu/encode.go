package mcu

import "time"

// Encoders of query results as the peer sends them.

// Encode returns the GetVersion payload.
func (v Version) Encode() []byte {
	return append(payload(nil).u8(v.Major).u8(v.Minor).u8(v.Patch), v.Build...)
}

// EncodeUptime returns the GetUptime payload.
func EncodeUptime(d time.Duration) []byte {
	return payload(nil).u32(uint32(d / time.Millisecond))
}

func (s *MotorState) appendTo(p payload) payload {
	var flags byte
	if s.Enabled {
		flags |= 1
	}
	if s.Moving {
		flags |= 2
	}
	return p.u8(s.ID).u8(flags).f32(s.Angle).f32(s.Velocity).f32(s.Current).u8(s.Fault)
}

// Encode returns the GetMotorState payload.
func (s MotorState) Encode() []byte {
	return s.appendTo(nil)
}

// EncodeMotorStates returns the GetMotorStates payload.
func EncodeMotorStates(states []MotorState) []byte {
	p := payload(nil).u8(byte(len(states)))
	for n := range states {
		p = states[n].appendTo(p)
	}
	return p
}

func (v Vector3) appendTo(p payload) payload {
	return p.f32(v.X).f32(v.Y).f32(v.Z)
}

// Encode returns the GetIMU payload.
func (m IMU) Encode() []byte {
	return m.Gyro.appendTo(m.Accel.appendTo(nil))
}

// Encode returns the GetSensors payload.
func (s Sensors) Encode() []byte {
	return payload(s.IMU.Encode()).f32(s.Temperature).u16(s.Distance).f32(s.AmbientLight)
}

// Encode returns the GetNetworkStatus payload.
func (s NetworkStatus) Encode() []byte {
	p := payload(nil).bool(s.Connected).u8(byte(s.RSSI))
	ip := s.IP.To4()
	if ip == nil {
		ip = make([]byte, 4)
	}
	return append(p, ip...).str(s.SSID)
}

// Encode returns the GetPowerStatus payload.
func (s PowerStatus) Encode() []byte {
	p := payload(nil).f32(s.InputVoltage).u8(s.RailsOn).u8(byte(len(s.Rails)))
	for _, v := range s.Rails {
		p = p.f32(v)
	}
	return p
}

// Encode returns the GetDeviceInfo payload.
func (info DeviceInfo) Encode() []byte {
	return payload(nil).u8(info.HWRevision).str(info.Model).str(info.Serial)
}

// Encode returns the GetBatteryStatus payload.
func (s BatteryStatus) Encode() []byte {
	return payload(nil).u8(s.Percent).f32(s.Voltage).f32(s.Current).bool(s.Charging)
}

// Encode returns the GetWatchdogStatus payload.
func (s WatchdogStatus) Encode() []byte {
	return payload(nil).bool(s.Enabled).
		u32(uint32(s.Timeout / time.Millisecond)).
		u32(uint32(s.Remaining / time.Millisecond)).
		u16(s.Resets)
}
