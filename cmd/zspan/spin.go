package main

import (
	"math/rand/v2"
	"sync"

	"github.com/charmbracelet/harmonica"

	"github.com/taigrr/zspan/pkg/math3d"
)

const (
	torqueStrength = 3.0
	torqueDecay    = 0.9 // key release events are unreliable, so held torque fades
	maxStep        = 0.1 // seconds
)

// Axis tracks the angle and angular velocity around one axis. A spring
// brings the velocity back to rest.
type Axis struct {
	Position float64
	Velocity float64

	spring harmonica.Spring
	accel  float64 // spring state for Velocity
}

// NewAxis creates an axis whose spring is stepped fps times a second.
func NewAxis(fps int) Axis {
	// Critically damped: the spin slows without reversing.
	return Axis{spring: harmonica.NewSpring(harmonica.FPS(fps), 4.0, 1.0)}
}

// Step advances the angle by one frame and damps the velocity.
func (a *Axis) Step() {
	a.Position += a.Velocity
	a.Velocity, a.accel = a.spring.Update(a.Velocity, a.accel, 0)
}

// Spin is the model orientation in the interactive viewer. The input
// goroutine pushes torque and impulses while the render goroutine steps
// it, so every method locks.
type Spin struct {
	mu               sync.Mutex
	pitch, yaw, roll Axis
	torque           math3d.Vec3 // pitch, yaw, roll
	fps              int
}

// NewSpin returns a spin at rest.
func NewSpin(fps int) *Spin {
	s := &Spin{fps: fps}
	s.reset()
	return s
}

func (s *Spin) reset() {
	s.pitch = NewAxis(s.fps)
	s.yaw = NewAxis(s.fps)
	s.roll = NewAxis(s.fps)
	s.torque = math3d.Vec3{}
}

// Reset stops the model and returns it to its initial orientation.
func (s *Spin) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// Push holds torque on the axes with a nonzero sign. Signs are -1, 0 or 1.
func (s *Spin) Push(pitch, yaw, roll float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pitch != 0 {
		s.torque.X = pitch * torqueStrength
	}
	if yaw != 0 {
		s.torque.Y = yaw * torqueStrength
	}
	if roll != 0 {
		s.torque.Z = roll * torqueStrength
	}
}

// Release drops the torque on the selected axes.
func (s *Spin) Release(pitch, yaw, roll bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pitch {
		s.torque.X = 0
	}
	if yaw {
		s.torque.Y = 0
	}
	if roll {
		s.torque.Z = 0
	}
}

// Impulse adds velocity directly.
func (s *Spin) Impulse(pitch, yaw, roll float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.impulse(pitch, yaw, roll)
}

func (s *Spin) impulse(pitch, yaw, roll float64) {
	s.pitch.Velocity += pitch
	s.yaw.Velocity += yaw
	s.roll.Velocity += roll
}

// Kick applies a random impulse on every axis.
func (s *Spin) Kick() {
	s.Impulse(
		(rand.Float64()-0.5)*1.5,
		(rand.Float64()-0.5)*1.5,
		(rand.Float64()-0.5)*1.5,
	)
}

// Step applies dt seconds of held torque, advances every axis by one
// frame and returns the resulting rotation.
func (s *Spin) Step(dt float64) math3d.Mat4 {
	s.mu.Lock()
	defer s.mu.Unlock()

	dt = min(dt, maxStep)
	s.impulse(s.torque.X*dt, s.torque.Y*dt, s.torque.Z*dt)
	s.torque = s.torque.Scale(torqueDecay)

	s.pitch.Step()
	s.yaw.Step()
	s.roll.Step()

	return math3d.RotateX(s.pitch.Position).
		Mul(math3d.RotateY(s.yaw.Position)).
		Mul(math3d.RotateZ(s.roll.Position))
}

// Angles returns the current pitch, yaw and roll.
func (s *Spin) Angles() (pitch, yaw, roll float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pitch.Position, s.yaw.Position, s.roll.Position
}
