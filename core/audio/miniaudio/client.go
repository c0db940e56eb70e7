package miniaudio

import (
	"context"
	"fmt"

	"github.com/PratyushRao/JARVIS/core/audio"
	"github.com/gen2brain/malgo"
)

// Client wraps one malgo context with a capture and a playback device. It
// satisfies both the microphone and the speaker side of the orchestrator.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	playbackClient
	captureClient
}

func NewClient() (*Client, error) {
	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) {},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
	}

	client := Client{
		audioContext: audioCtx,
	}

	if err := client.playbackClient.Init(audioCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback client: %w", err)
	}

	if err := client.captureClient.Init(audioCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	return &client, nil
}

func (c *Client) StartCapture(ctx context.Context, onAudio func(chunk []byte)) error {
	return c.captureClient.Start(ctx, onAudio)
}

func (c *Client) StopCapture() {
	c.captureClient.Stop()
}

// Play blocks until the whole blob has been played, Stop cleared it, or ctx
// was cancelled.
func (c *Client) Play(ctx context.Context, speech []byte) error {
	return c.playbackClient.Play(ctx, speech)
}

func (c *Client) Stop() {
	c.playbackClient.Interrupt()
}

func (c *Client) Close() {
	_ = c.captureClient.Uninit()
	_ = c.playbackClient.Uninit()
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}
