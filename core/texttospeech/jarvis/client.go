package jarvis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PratyushRao/JARVIS/core/audio"
	"github.com/PratyushRao/JARVIS/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// SynthesisClient requests synthesized speech from the backend /tts endpoint,
// one request per segment. The response body is an opaque audio blob in the
// negotiated encoding.
type SynthesisClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

type SynthesisClientOption func(*SynthesisClient)

func WithToken(token string) SynthesisClientOption {
	return func(c *SynthesisClient) { c.token = token }
}

func WithHTTPClient(httpClient *http.Client) SynthesisClientOption {
	return func(c *SynthesisClient) { c.httpClient = httpClient }
}

func NewSynthesisClient(baseURL string, opts ...SynthesisClientOption) *SynthesisClient {
	client := &SynthesisClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *SynthesisClient) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error) {
	options := &texttospeech.SynthesisOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(options)
	}

	ctx, span := tracer.Start(ctx, "synthesize speech segment")
	defer span.End()
	span.SetAttributes(attribute.Int("request.text_length", len(text)))

	body := struct {
		Text       string `json:"text"`
		Voice      string `json:"voice,omitempty"`
		SampleRate int    `json:"sampleRate,omitempty"`
	}{Text: text, Voice: options.Voice, SampleRate: options.EncodingInfo.SampleRate}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tts", bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("synthesis request failed: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errorBody, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
		span.RecordError(err)
		span.SetAttributes(attribute.String("response.error", string(errorBody)))
		return nil, err
	}

	speech, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("failed to read synthesized audio: %w", err)
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("response.audio_bytes", len(speech)))
	return speech, nil
}
