// pkg/core/feedback.go
package core

// FeedbackKind is the type of user interaction a client reports.
type FeedbackKind string

const (
	FeedbackKeepAlive   FeedbackKind = "keep_alive"
	FeedbackPoseUpdate  FeedbackKind = "pose_update"
	FeedbackMenuSelect  FeedbackKind = "menu_select"
	FeedbackButtonClick FeedbackKind = "button_click"
	FeedbackMouseDown   FeedbackKind = "mouse_down"
	FeedbackMouseUp     FeedbackKind = "mouse_up"
)

// Feedback is an inbound interaction event from a client.
type Feedback struct {
	ClientID    string       `json:"clientId"`
	MarkerName  string       `json:"markerName"`
	ControlName string       `json:"controlName,omitempty"`
	Kind        FeedbackKind `json:"kind"`
	Header      Header       `json:"header"`
	Pose        Pose         `json:"pose"`
	MenuEntryID uint32       `json:"menuEntryId,omitempty"`
	MousePoint  *Point       `json:"mousePoint,omitempty"`
}

// FeedbackFunc handles feedback for a marker or one of its controls.
type FeedbackFunc func(Feedback)
