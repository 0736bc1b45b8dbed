// pkg/core/marker.go
package core

import (
	"encoding/json"
	"slices"
)

// InteractionMode describes how a client may manipulate a control.
type InteractionMode string

const (
	InteractionNone         InteractionMode = "none"
	InteractionMenu         InteractionMode = "menu"
	InteractionButton       InteractionMode = "button"
	InteractionMoveAxis     InteractionMode = "move_axis"
	InteractionMovePlane    InteractionMode = "move_plane"
	InteractionRotateAxis   InteractionMode = "rotate_axis"
	InteractionMoveRotate   InteractionMode = "move_rotate"
	InteractionMove3D       InteractionMode = "move_3d"
	InteractionRotate3D     InteractionMode = "rotate_3d"
	InteractionMoveRotate3D InteractionMode = "move_rotate_3d"
)

// OrientationMode describes how a control is oriented relative to its marker.
type OrientationMode string

const (
	OrientationInherit    OrientationMode = "inherit"
	OrientationFixed      OrientationMode = "fixed"
	OrientationViewFacing OrientationMode = "view_facing"
)

// Primitive is a visual element of a control. Its content is owned by the
// client renderer and passed through untouched.
type Primitive = json.RawMessage

// Control is one interaction affordance of a marker.
type Control struct {
	Name                         string          `json:"name"`
	InteractionMode              InteractionMode `json:"interactionMode"`
	OrientationMode              OrientationMode `json:"orientationMode"`
	Orientation                  Quaternion      `json:"orientation"`
	AlwaysVisible                bool            `json:"alwaysVisible"`
	IndependentMarkerOrientation bool            `json:"independentMarkerOrientation"`
	Description                  string          `json:"description,omitempty"`
	Primitives                   []Primitive     `json:"primitives,omitempty"`
}

// MenuCommandType tells the client what to do when a menu entry is picked.
type MenuCommandType string

const (
	MenuFeedback MenuCommandType = "feedback"
	MenuRun      MenuCommandType = "run"
	MenuLaunch   MenuCommandType = "launch"
)

// MenuEntry is one item of a marker's context menu. Entries with ParentID 0
// are top-level.
type MenuEntry struct {
	ID          uint32          `json:"id"`
	ParentID    uint32          `json:"parentId"`
	Title       string          `json:"title"`
	Command     string          `json:"command,omitempty"`
	CommandType MenuCommandType `json:"commandType"`
}

// Marker is a named, user-manipulable 3D annotation.
type Marker struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Header      Header      `json:"header"`
	Pose        Pose        `json:"pose"`
	Scale       float32     `json:"scale"`
	Controls    []Control   `json:"controls,omitempty"`
	Menu        []MenuEntry `json:"menu,omitempty"`

	// Seq is bumped by the server on every accepted mutation of this marker.
	Seq uint64 `json:"seq"`
}

// Clone returns a deep copy of the marker, so the copy can be handed out
// without sharing slices with the receiver.
func (m Marker) Clone() Marker {
	out := m
	if m.Controls != nil {
		out.Controls = make([]Control, len(m.Controls))
		for i, c := range m.Controls {
			out.Controls[i] = c.Clone()
		}
	}
	out.Menu = slices.Clone(m.Menu)
	return out
}

// Clone returns a deep copy of the control.
func (c Control) Clone() Control {
	out := c
	if c.Primitives != nil {
		out.Primitives = make([]Primitive, len(c.Primitives))
		for i, p := range c.Primitives {
			out.Primitives[i] = slices.Clone(p)
		}
	}
	return out
}

// FindControl returns the control with the given name.
func (m *Marker) FindControl(name string) (*Control, bool) {
	for i := range m.Controls {
		if m.Controls[i].Name == name {
			return &m.Controls[i], true
		}
	}
	return nil, false
}
