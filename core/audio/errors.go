package audio

import "errors"

// Sentinel device errors shared by capture backends so orchestration code can
// distinguish a denied microphone from an absent one without knowing which
// backend is configured.
var (
	ErrPermissionDenied  = errors.New("audio device access denied")
	ErrDeviceUnavailable = errors.New("no audio device available")
)
