package camera

import "math"

const (
	// Bound limits the horizontal position on both axes.
	Bound = 900
	// Reach is the distance of the look-at target from the camera.
	Reach = 1000
	// PitchLimit keeps the camera from looking straight up or down.
	PitchLimit = 0.9 * math.Pi / 2

	rotateStep  = 0.03
	lookDivisor = 500
	scrollScale = 10
)

// NextVelocity adds one tick of acceleration. The translational part is
// normalized so diagonal movement is not faster; a zero vector keeps the
// velocity as is.
func NextVelocity(v, acc Axes, horizontal, vertical float32, t Tuning) Axes {
	length := float32(math.Sqrt(float64(acc.X*acc.X + acc.Y*acc.Y + acc.Z*acc.Z)))
	if length == 0 {
		length = 1
	}
	h := horizontal * (1 - t.HorizontalSmoothing)
	vs := vertical * (1 - t.VerticalSmoothing)
	return Axes{
		X:     v.X + acc.X/length*h/2,
		Y:     v.Y + acc.Y/length*h/2,
		Z:     v.Z + acc.Z/length*vs/2,
		Pitch: v.Pitch + acc.Pitch,
		Yaw:   v.Yaw + acc.Yaw,
	}
}

// Decay applies one tick of exponential decay, independent of wall time.
func Decay(v Axes, t Tuning) Axes {
	return Axes{
		X:     v.X * t.HorizontalSmoothing,
		Y:     v.Y * t.HorizontalSmoothing,
		Z:     v.Z * t.VerticalSmoothing,
		Pitch: v.Pitch * t.PanSmoothing,
		Yaw:   v.Yaw * t.PanSmoothing,
	}
}

// SpeedMultipliers returns the horizontal and vertical speed for this tick.
// Fast wins over slow.
func SpeedMultipliers(t Tuning, fast, slow bool) (float32, float32) {
	m := float32(1)
	if fast {
		m = t.FastMultiplier
	} else if slow {
		m = t.SlowMultiplier
	}
	return t.HorizontalSpeed * m, t.VerticalSpeed * m
}

// ScrollVelocity converts a wheel delta into a vertical velocity change that
// grows with the square of the delta and keeps its sign.
func ScrollVelocity(delta int32, inverted bool, vertical float32) float32 {
	if inverted {
		delta = -delta
	}
	d := float32(delta)
	sign := float32(1)
	if delta < 0 {
		sign = -1
	}
	return sign * d * d * vertical / scrollScale
}

// Look returns the pitch/yaw acceleration for a cursor movement while free
// look is held.
func Look(dx, dy int32, t Tuning) (pitch, yaw float32) {
	invert := float32(1)
	if t.Inverted {
		invert = -1
	}
	sens := t.Sensitivity * (1 - t.PanSmoothing)
	return -(invert * float32(dy) / lookDivisor) * sens, -(invert * float32(dx) / lookDivisor) * sens
}

// Accelerate turns the input into an acceleration relative to yaw. The
// second result reports whether the input asks for camera control.
func Accelerate(in Input, yaw float32, t Tuning) (Axes, bool) {
	var (
		acc     Axes
		control bool
	)
	if in.Look {
		acc.Pitch, acc.Yaw = Look(in.CursorDX, in.CursorDY, t)
		control = true
	}
	move := func(angle float32) {
		s, c := math.Sincos(float64(angle))
		acc.X += float32(c)
		acc.Y += float32(s)
		control = true
	}
	if in.Forward {
		move(yaw)
	}
	if in.Backward {
		move(math.Pi + yaw)
	}
	if in.Left {
		move(math.Pi/2 + yaw)
	}
	if in.Right {
		move(3*math.Pi/2 + yaw)
	}
	pan := 1 - t.PanSmoothing
	if in.RotateLeft {
		acc.Yaw += rotateStep * pan
		control = true
	}
	if in.RotateRight {
		acc.Yaw -= rotateStep * pan
		control = true
	}
	return acc, control
}

// GroundFloor is the lowest camera height allowed above ground: the margin
// is added above a non-negative ground and subtracted below a negative one.
func GroundFloor(ground, margin float32) float32 {
	if math.Signbit(float64(ground)) {
		return ground - margin
	}
	return ground + margin
}
