package camera

import "math"

func ClampPitch(pitch float32) float32 {
	return max(-PitchLimit, min(PitchLimit, pitch))
}

// LookAt returns the target Reach units from cam in the direction given by
// the clamped pitch and yaw.
func LookAt(cam Point, pitch, yaw float32) Point {
	pitch = ClampPitch(pitch)
	sp, cp := math.Sincos(float64(pitch))
	sy, cy := math.Sincos(float64(yaw))
	return Point{
		X: float32(cy*cp*Reach) + cam.X,
		Y: float32(sy*cp*Reach) + cam.Y,
		Z: float32(sp*Reach) + cam.Z,
	}
}

// PitchYaw recovers the angles of the direction from cam to target.
// Degenerate input yields zero angles.
func PitchYaw(cam, target Point) (pitch, yaw float32) {
	dx := float64(target.X - cam.X)
	dy := float64(target.Y - cam.Y)
	dz := float64(target.Z - cam.Z)
	length := math.Sqrt(dx*dx + dy*dy + dz*dz)

	p := math.Asin(dz / length)
	y := math.Atan2(dy/length, dx/length)
	if math.IsNaN(p) {
		p = 0
	}
	if math.IsNaN(y) {
		y = 0
	}
	return float32(p), float32(y)
}
