// pkg/core/geometry.go
package core

import "time"

// Point is a position in 3D space, in meters.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is an orientation. The zero value is not a valid rotation; use IdentityQuaternion.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// IdentityQuaternion is the "no rotation" orientation.
var IdentityQuaternion = Quaternion{W: 1}

// Pose is a position plus orientation.
type Pose struct {
	Position    Point      `json:"position"`
	Orientation Quaternion `json:"orientation"`
}

// NewPose returns a pose at (x, y, z) with identity orientation.
func NewPose(x, y, z float64) Pose {
	return Pose{
		Position:    Point{X: x, Y: y, Z: z},
		Orientation: IdentityQuaternion,
	}
}

// Header names the reference frame a pose is expressed in.
type Header struct {
	FrameID string    `json:"frameId"`
	Stamp   time.Time `json:"stamp"`
}
