package camera

import "math"

// epsilon is the float32 machine epsilon.
const epsilon = 0x1p-23

// Model is the controller's own camera. It is authoritative while the camera
// patches are applied and follows the foreign camera otherwise.
type Model struct {
	Pose     Axes
	Velocity Axes

	// zDiff is the height above ground remembered while the camera moved
	// vertically.
	zDiff    float32
	anchored bool
	// minimalZ is the last ground level seen by the clip check.
	minimalZ float32
}

// Sync copies the foreign camera into the pose and forgets every height
// reference taken from the previous pose.
func (m *Model) Sync(cam, target Point) {
	m.Pose.Pitch, m.Pose.Yaw = PitchYaw(cam, target)
	m.Pose.X, m.Pose.Y, m.Pose.Z = cam.X, cam.Y, cam.Z
	m.zDiff, m.anchored, m.minimalZ = 0, false, 0
}

// Diverged reports whether the foreign camera no longer holds the position
// last written from the pose.
func (m *Model) Diverged(cam Point) bool {
	return abs(m.Pose.X-cam.X) > epsilon ||
		abs(m.Pose.Y-cam.Y) > epsilon ||
		abs(m.Pose.Z-cam.Z) > epsilon
}

// Step integrates one tick: acceleration into velocity, velocity into the
// pose, then decay.
func (m *Model) Step(acc Axes, horizontal, vertical float32, t Tuning) {
	v := NextVelocity(m.Velocity, acc, horizontal, vertical, t)
	m.Pose.X += v.X
	m.Pose.Y += v.Y
	m.Pose.Z += v.Z
	m.Pose.Pitch += v.Pitch
	m.Pose.Yaw += v.Yaw
	m.Velocity = Decay(v, t)
}

// Restrict keeps the pose inside the map and relative to the ground level.
func (m *Model) Restrict(ground float32, t Tuning) {
	m.Pose.X = max(-Bound, min(Bound, m.Pose.X))
	m.Pose.Y = max(-Bound, min(Bound, m.Pose.Y))

	if t.MaintainRelativeHeight {
		diff := m.Pose.Z - ground
		if !m.anchored || abs(m.Velocity.Z) > epsilon {
			m.zDiff = diff
			m.anchored = true
		} else if diff != m.zDiff {
			m.Pose.Z += m.zDiff - diff
		}
	}

	if t.PreventGroundClipping {
		if abs(m.minimalZ-ground) > epsilon {
			m.minimalZ = ground
		}
		g := float64(ground)
		if m.minimalZ != 0 && !math.IsNaN(g) && !math.IsInf(g, 0) {
			m.Pose.Z = max(m.Pose.Z, GroundFloor(m.minimalZ, t.GroundClipMargin))
		}
	}
}

// Camera returns the pose position in foreign layout.
func (m *Model) Camera() Point {
	return Point{X: m.Pose.X, Z: m.Pose.Z, Y: m.Pose.Y}
}

// Target returns the look-at point for the pose, with pitch clamped.
func (m *Model) Target() Point {
	return LookAt(m.Camera(), m.Pose.Pitch, m.Pose.Yaw)
}

// Turn rotates the foreign camera in place and returns its new target. Only
// the angular velocity is used.
func (m *Model) Turn(cam, target Point, acc Axes, t Tuning) Point {
	pitch, yaw := PitchYaw(cam, target)
	m.Velocity.Pitch += acc.Pitch
	m.Velocity.Yaw += acc.Yaw
	pitch += m.Velocity.Pitch
	yaw += m.Velocity.Yaw
	m.Velocity.Pitch *= t.PanSmoothing
	m.Velocity.Yaw *= t.PanSmoothing
	return LookAt(cam, pitch, yaw)
}

func abs(f float32) float32 {
	return float32(math.Abs(float64(f)))
}
