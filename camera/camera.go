// Package camera models the foreign battle camera and the kinematics the
// controller drives it with.
package camera

import "fmt"

// Type is the camera mode selected in the foreign configuration.
type Type uint32

const (
	TotalWar Type = iota
	General
	RTS
)

func (t Type) String() string {
	switch t {
	case TotalWar:
		return "TotalWar"
	case General:
		return "General"
	case RTS:
		return "RTS"
	}
	return fmt.Sprintf("Type(%d)", uint32(t))
}

// Point is a position as the foreign code stores it: x, height, y.
type Point struct {
	X, Z, Y float32
}

// Axes holds one value per degree of freedom. It is used for the pose, the
// velocity and the per-tick acceleration alike.
type Axes struct {
	X, Y, Z    float32
	Pitch, Yaw float32
}

// Tuning is the part of the configuration the kinematics consume.
// Smoothing factors lie in (0,1); higher means slower decay.
type Tuning struct {
	Sensitivity    float32
	Inverted       bool
	InvertedScroll bool

	PanSmoothing        float32
	HorizontalSmoothing float32
	VerticalSmoothing   float32

	HorizontalSpeed float32
	VerticalSpeed   float32
	FastMultiplier  float32
	SlowMultiplier  float32

	MaintainRelativeHeight bool
	PreventGroundClipping  bool
	GroundClipMargin       float32
}

// Input is the user input sampled for one tick.
type Input struct {
	Forward, Backward, Left, Right bool
	RotateLeft, RotateRight        bool
	Fast, Slow                     bool

	// Look is set while the free look key is held; the cursor delta only
	// counts then.
	Look               bool
	CursorDX, CursorDY int32
	Scroll             int32
}
