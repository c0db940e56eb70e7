package core

import (
	"context"
	"sync"

	"github.com/PratyushRao/JARVIS/core/audio"
)

// audioCapture accumulates microphone chunks for the duration of one
// recording. Chunks arrive on the input's callback goroutine; Stop hands the
// concatenated recording to the caller and resets for the next one.
type audioCapture struct {
	mu        sync.Mutex
	input     AudioInput
	chunks    [][]byte
	recording bool
}

func newAudioCapture(input AudioInput) *audioCapture {
	return &audioCapture{input: input}
}

func (c *audioCapture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recording {
		return ErrAlreadyRecording
	}
	if c.input == nil {
		return audio.ErrDeviceUnavailable
	}

	c.chunks = nil
	if err := c.input.StartCapture(ctx, c.onChunk); err != nil {
		return err
	}
	c.recording = true
	return nil
}

func (c *audioCapture) onChunk(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording {
		// Late chunk from a capture that was already stopped.
		return
	}
	c.chunks = append(c.chunks, append([]byte(nil), chunk...))
}

// Stop ends the recording and returns everything captured, in arrival order.
// The second return reports whether a recording was running at all.
func (c *audioCapture) Stop() ([]byte, bool) {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return nil, false
	}
	c.recording = false
	input := c.input
	c.mu.Unlock()

	// StopCapture joins the capture goroutine, which may be blocked in
	// onChunk on our mutex, so it must run unlocked.
	input.StopCapture()

	c.mu.Lock()
	defer c.mu.Unlock()

	size := 0
	for _, chunk := range c.chunks {
		size += len(chunk)
	}
	recording := make([]byte, 0, size)
	for _, chunk := range c.chunks {
		recording = append(recording, chunk...)
	}
	c.chunks = nil
	return recording, true
}

func (c *audioCapture) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}
