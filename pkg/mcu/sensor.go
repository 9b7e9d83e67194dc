package mcu

import "context"

// Vector3 is a 3-axis reading.
type Vector3 struct {
	X, Y, Z float32
}

func (v *Vector3) parse(r *reader) {
	v.X, v.Y, v.Z = r.f32(), r.f32(), r.f32()
}

// IMU is an inertial measurement.
type IMU struct {
	// Accel in m/s².
	Accel Vector3
	// Gyro in rad/s.
	Gyro Vector3
}

func (m *IMU) parse(r *reader) {
	m.Accel.parse(r)
	m.Gyro.parse(r)
}

// Sensors aggregates all sensor readings.
type Sensors struct {
	IMU          IMU
	Temperature  float32
	Distance     uint16
	AmbientLight float32
}

// GetIMU reads the IMU.
func (c *Client) GetIMU(ctx context.Context) (m IMU, err error) {
	err = c.query(ctx, CmdGetIMU, nil, m.parse)
	return
}

// GetTemperature reads the board temperature in °C.
func (c *Client) GetTemperature(ctx context.Context) (t float32, err error) {
	err = c.query(ctx, CmdGetTemperature, nil, func(r *reader) { t = r.f32() })
	return
}

// GetDistance reads the range sensor in mm.
func (c *Client) GetDistance(ctx context.Context) (mm uint16, err error) {
	err = c.query(ctx, CmdGetDistance, nil, func(r *reader) { mm = r.u16() })
	return
}

// GetAmbientLight reads the light sensor in lux.
func (c *Client) GetAmbientLight(ctx context.Context) (lux float32, err error) {
	err = c.query(ctx, CmdGetAmbientLight, nil, func(r *reader) { lux = r.f32() })
	return
}

// GetSensors reads all sensors in one call.
func (c *Client) GetSensors(ctx context.Context) (s Sensors, err error) {
	err = c.query(ctx, CmdGetSensors, nil, func(r *reader) {
		s.IMU.parse(r)
		s.Temperature = r.f32()
		s.Distance = r.u16()
		s.AmbientLight = r.f32()
	})
	return
}
