package mcu

import "context"

// MotorState is the state of one motor.
type MotorState struct {
	ID       byte
	Enabled  bool
	Moving   bool
	Angle    float32
	Velocity float32
	Current  float32
	Fault    byte
}

func (s *MotorState) parse(r *reader) {
	s.ID = r.u8()
	flags := r.u8()
	s.Enabled, s.Moving = flags&1 != 0, flags&2 != 0
	s.Angle = r.f32()
	s.Velocity = r.f32()
	s.Current = r.f32()
	s.Fault = r.u8()
}

// SetMotorAngle moves motor id to angle (degrees) at velocity (degrees/s).
func (c *Client) SetMotorAngle(ctx context.Context, id byte, angle, velocity float32) error {
	return c.exec(ctx, CmdSetMotorAngle, payload(nil).u8(id).f32(angle).f32(velocity))
}

// SetMotorSpeed spins motor id at velocity (degrees/s).
func (c *Client) SetMotorSpeed(ctx context.Context, id byte, velocity float32) error {
	return c.exec(ctx, CmdSetMotorSpeed, payload(nil).u8(id).f32(velocity))
}

// StopMotor stops motor id.
func (c *Client) StopMotor(ctx context.Context, id byte) error {
	return c.exec(ctx, CmdStopMotor, payload(nil).u8(id))
}

// StopAllMotors stops every motor.
func (c *Client) StopAllMotors(ctx context.Context) error {
	return c.exec(ctx, CmdStopAllMotors, nil)
}

// EnableMotor energizes motor id.
func (c *Client) EnableMotor(ctx context.Context, id byte) error {
	return c.exec(ctx, CmdEnableMotor, payload(nil).u8(id))
}

// DisableMotor releases motor id.
func (c *Client) DisableMotor(ctx context.Context, id byte) error {
	return c.exec(ctx, CmdDisableMotor, payload(nil).u8(id))
}

// HomeMotor runs the homing sequence of motor id.
func (c *Client) HomeMotor(ctx context.Context, id byte) error {
	return c.exec(ctx, CmdHomeMotor, payload(nil).u8(id))
}

// GetMotorState queries motor id.
func (c *Client) GetMotorState(ctx context.Context, id byte) (s MotorState, err error) {
	err = c.query(ctx, CmdGetMotorState, payload(nil).u8(id), s.parse)
	return
}

// GetMotorStates queries all motors.
func (c *Client) GetMotorStates(ctx context.Context) (states []MotorState, err error) {
	err = c.query(ctx, CmdGetMotorStates, nil, func(r *reader) {
		n := int(r.u8())
		for i := 0; i < n && r.err == nil; i++ {
			var s MotorState
			s.parse(r)
			states = append(states, s)
		}
	})
	return
}

// SetMotorPID tunes the position loop of motor id.
func (c *Client) SetMotorPID(ctx context.Context, id byte, kp, ki, kd float32) error {
	return c.exec(ctx, CmdSetMotorPID, payload(nil).u8(id).f32(kp).f32(ki).f32(kd))
}
