package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/PratyushRao/JARVIS/core/audio"
	"github.com/gen2brain/malgo"
)

type playbackClient struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig

	leftoverAudio []byte
	marks         []playbackMark

	mu      sync.Mutex
	audioMu sync.Mutex
}

// playbackMark sits at a position in the playback buffer; played is closed
// once the device consumed everything before it.
type playbackMark struct {
	position int
	played   chan struct{}
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sampleRate := uint32(audio.DefaultSampleRate)
	channels := 1
	format := malgo.FormatS16

	c.config = malgo.DefaultDeviceConfig(malgo.Playback)
	c.config.SampleRate = sampleRate
	c.config.Playback.Format = format
	c.config.Playback.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1
	c.config.PeriodSizeInFrames = sampleRate / 10 // ~100ms of audio
	c.config.Periods = 4

	c.audioContext = audioContext

	var err error
	if c.device, err = malgo.InitDevice(
		c.audioContext.Context,
		c.config,
		malgo.DeviceCallbacks{Data: c.processAudio()},
	); err != nil {
		return fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
	}

	return nil
}

// Play feeds the blob into the device buffer and blocks until the device
// drained past it, Interrupt cleared the buffer, or ctx was cancelled.
func (c *playbackClient) Play(ctx context.Context, speech []byte) error {
	c.mu.Lock()
	if c.device == nil {
		c.mu.Unlock()
		return audio.ErrDeviceUnavailable
	}
	if !c.device.IsStarted() {
		if err := c.device.Start(); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("failed to start playback device: %w", err)
		}
	}
	c.mu.Unlock()

	mark := playbackMark{played: make(chan struct{})}
	c.audioMu.Lock()
	c.leftoverAudio = append(c.leftoverAudio, speech...)
	mark.position = len(c.leftoverAudio)
	c.marks = append(c.marks, mark)
	c.audioMu.Unlock()

	select {
	case <-mark.played:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Interrupt drops everything queued in the device buffer and releases every
// blocked Play call.
func (c *playbackClient) Interrupt() {
	c.audioMu.Lock()
	marks := c.marks
	c.marks = nil
	c.leftoverAudio = nil
	c.audioMu.Unlock()

	for _, mark := range marks {
		close(mark.played)
	}
}

func (c *playbackClient) Uninit() error {
	c.Interrupt()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	c.device.Uninit()
	c.device = nil

	return nil
}

func (c *playbackClient) processAudio() malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		c.audioMu.Lock()
		consumed := copy(pOutput, c.leftoverAudio)
		c.leftoverAudio = c.leftoverAudio[consumed:]

		var played []playbackMark
		remaining := c.marks[:0]
		for _, mark := range c.marks {
			mark.position -= consumed
			if mark.position <= 0 {
				played = append(played, mark)
			} else {
				remaining = append(remaining, mark)
			}
		}
		c.marks = remaining
		c.audioMu.Unlock()

		for _, mark := range played {
			close(mark.played)
		}
	}
}
