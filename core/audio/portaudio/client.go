package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/PratyushRao/JARVIS/core/audio"
	"github.com/gordonklaus/portaudio"
)

// Client drives a full-duplex portaudio stream. It is the fallback device
// backend for platforms where the miniaudio one misbehaves.
type Client struct {
	bufferSize int
	stream     *portaudio.Stream

	in  []int16
	out []int16

	mu        sync.Mutex
	capturing bool
	captureWG sync.WaitGroup
	stopCh    chan struct{}

	playMu      sync.Mutex
	interrupted chan struct{}
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
	}

	in := make([]int16, bufferSize)
	out := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 1, float64(audio.DefaultSampleRate), bufferSize, in, out)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
	}

	return &Client{
		bufferSize:  bufferSize,
		stream:      stream,
		in:          in,
		out:         out,
		interrupted: make(chan struct{}),
	}, nil
}

// StartCapture reads microphone frames on a background goroutine until
// StopCapture or ctx cancellation.
func (c *Client) StartCapture(ctx context.Context, onAudio func(chunk []byte)) error {
	c.mu.Lock()
	if c.capturing {
		c.mu.Unlock()
		return nil
	}
	if err := c.stream.Start(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to start stream: %w", err)
	}
	c.capturing = true
	stopCh := make(chan struct{})
	c.stopCh = stopCh
	c.captureWG.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.captureWG.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			default:
				if err := c.stream.Read(); err != nil {
					continue
				}
				audioBuffer := bytes.Buffer{}
				binary.Write(&audioBuffer, binary.LittleEndian, c.in)
				onAudio(audioBuffer.Bytes())
			}
		}
	}()
	return nil
}

func (c *Client) StopCapture() {
	c.mu.Lock()
	if !c.capturing {
		c.mu.Unlock()
		return
	}
	c.capturing = false
	close(c.stopCh)
	c.mu.Unlock()

	c.captureWG.Wait()
	_ = c.stream.Stop()
}

// Play writes the blob to the stream buffer by buffer, returning early when
// Stop or ctx cuts it off. Playback calls are serialized.
func (c *Client) Play(ctx context.Context, speech []byte) error {
	c.playMu.Lock()
	defer c.playMu.Unlock()

	c.mu.Lock()
	interrupted := make(chan struct{})
	c.interrupted = interrupted
	c.mu.Unlock()

	if err := c.stream.Start(); err != nil && err != portaudio.StreamIsNotStopped {
		return fmt.Errorf("failed to start stream: %w", err)
	}

	bufferSize := c.bufferSize * 2
	for offset := 0; offset < len(speech); offset += bufferSize {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-interrupted:
			return nil
		default:
		}

		chunk := speech[offset:min(offset+bufferSize, len(speech))]
		if len(chunk) < bufferSize {
			chunk = append(append([]byte(nil), chunk...), make([]byte, bufferSize-len(chunk))...)
		}
		binary.Read(bytes.NewBuffer(chunk), binary.LittleEndian, c.out)
		if err := c.stream.Write(); err != nil {
			return fmt.Errorf("failed to write to stream: %w", err)
		}
	}
	return nil
}

// Stop aborts the in-flight Play call, if any.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.interrupted:
	default:
		close(c.interrupted)
	}
}

func (c *Client) Close() {
	c.StopCapture()
	c.Stop()
	c.stream.Close()
	portaudio.Terminate()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Format:     audio.EncodingLinear16,
	}
}
