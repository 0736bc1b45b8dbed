package registry

import (
	"fmt"

	"github.com/OCAP2/interactive-markers/internal/store"
	"github.com/OCAP2/interactive-markers/pkg/core"
)

// CallbackOption narrows which feedback a callback receives.
type CallbackOption func(*store.CallbackKey)

// ForControl limits a callback to feedback on the named control.
func ForControl(control string) CallbackOption {
	return func(k *store.CallbackKey) {
		k.Control = control
	}
}

// ForEvent limits a callback to one kind of feedback.
func ForEvent(kind core.FeedbackKind) CallbackOption {
	return func(k *store.CallbackKey) {
		k.Kind = kind
	}
}

func callbackKey(opts []CallbackOption) store.CallbackKey {
	var k store.CallbackKey
	for _, opt := range opts {
		opt(&k)
	}
	return k
}

// SetCallback registers fn for feedback on the named marker. Without options
// it becomes the marker's default callback. A nil fn removes the registration.
func (r *Registry) SetCallback(name string, fn core.FeedbackFunc, opts ...CallbackOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.SetCallback(name, callbackKey(opts), fn); err != nil {
		return fmt.Errorf("set callback %q: %w", name, err)
	}
	return nil
}
