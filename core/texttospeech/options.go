package texttospeech

import "github.com/PratyushRao/JARVIS/core/audio"

type SynthesisOptions struct {
	// Voice selects a backend voice profile; empty means the backend default.
	Voice string

	EncodingInfo audio.EncodingInfo
}

type SynthesisOption func(*SynthesisOptions)

func WithVoice(voice string) SynthesisOption {
	return func(o *SynthesisOptions) {
		o.Voice = voice
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) SynthesisOption {
	return func(o *SynthesisOptions) {
		if encodingInfo.IsZero() {
			return
		}

		o.EncodingInfo = encodingInfo
	}
}
