package sim

import (
	"math"
	"time"

	"github.com/robotalks/mculink/pkg/mcu"
)

type motorMode int

const (
	motorIdle motorMode = iota
	motorSpeed
	motorPosition
)

// Default motion limits.
const (
	DefaultMaxAccel  = 360.0
	DefaultHomeSpeed = 90.0
)

// Motor simulates a motor with position and velocity control. Angles are
// in degrees.
type Motor struct {
	ID      byte
	Enabled bool
	Angle   float64
	// Velocity is the current velocity in degrees/s.
	Velocity float64
	// MaxAccel limits the change of velocity, in degrees/s². Zero changes
	// velocity instantly.
	MaxAccel float64
	Fault    byte
	PID      [3]float32

	mode   motorMode
	speed  float64
	target float64
}

// NewMotor creates an enabled Motor.
func NewMotor(id byte) *Motor {
	return &Motor{ID: id, Enabled: true, MaxAccel: DefaultMaxAccel}
}

// RunAt spins at velocity until stopped.
func (m *Motor) RunAt(velocity float64) {
	m.mode, m.speed = motorSpeed, velocity
}

// MoveTo moves to angle at velocity. A zero velocity moves at
// DefaultHomeSpeed.
func (m *Motor) MoveTo(angle, velocity float64) {
	velocity = math.Abs(velocity)
	if velocity == 0 {
		velocity = DefaultHomeSpeed
	}
	m.mode, m.speed, m.target = motorPosition, velocity, angle
}

// Stop decelerates to standstill.
func (m *Motor) Stop() {
	m.mode, m.speed = motorSpeed, 0
}

// Moving returns true until the motor stands still.
func (m *Motor) Moving() bool {
	return m.Velocity != 0
}

// Step advances the motor by dt.
func (m *Motor) Step(dt time.Duration) {
	secs := dt.Seconds()
	if secs <= 0 {
		return
	}
	if !m.Enabled {
		m.Velocity, m.mode = 0, motorIdle
		return
	}
	var desired float64
	switch m.mode {
	case motorSpeed:
		desired = m.speed
	case motorPosition:
		diff := m.target - m.Angle
		if math.Abs(diff) < 1e-3 {
			m.Angle, m.Velocity, m.mode = m.target, 0, motorIdle
			return
		}
		desired = math.Copysign(m.speed, diff)
		// don't overshoot in the last step.
		if math.Abs(desired*secs) > math.Abs(diff) {
			desired = diff / secs
		}
		// start braking when the stopping distance is reached.
		if m.MaxAccel > 0 {
			brake := math.Sqrt(2 * m.MaxAccel * math.Abs(diff))
			if math.Abs(desired) > brake {
				desired = math.Copysign(brake, diff)
			}
		}
	}
	m.Velocity = approach(m.Velocity, desired, m.MaxAccel*secs)
	m.Angle += m.Velocity * secs
	if m.mode == motorSpeed && m.speed == 0 && m.Velocity == 0 {
		m.mode = motorIdle
	}
}

func approach(from, to, maxDelta float64) float64 {
	if maxDelta <= 0 {
		return to
	}
	switch {
	case to > from+maxDelta:
		return from + maxDelta
	case to < from-maxDelta:
		return from - maxDelta
	}
	return to
}

// State reports the motor in wire format.
func (m *Motor) State() mcu.MotorState {
	s := mcu.MotorState{
		ID:       m.ID,
		Enabled:  m.Enabled,
		Moving:   m.Moving(),
		Angle:    float32(m.Angle),
		Velocity: float32(m.Velocity),
		Fault:    m.Fault,
	}
	if m.Enabled {
		s.Current = float32(0.1 + math.Abs(m.Velocity)*0.002)
	}
	return s
}
