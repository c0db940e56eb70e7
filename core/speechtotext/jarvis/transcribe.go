package jarvis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PratyushRao/JARVIS/core/audio"
	"github.com/PratyushRao/JARVIS/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// TranscriptionClient uploads a finalized recording to the backend /stt
// endpoint and returns the recognized text. One request per utterance; there
// is no streaming path on this backend.
type TranscriptionClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

type TranscriptionClientOption func(*TranscriptionClient)

func WithToken(token string) TranscriptionClientOption {
	return func(c *TranscriptionClient) { c.token = token }
}

func WithHTTPClient(httpClient *http.Client) TranscriptionClientOption {
	return func(c *TranscriptionClient) { c.httpClient = httpClient }
}

func NewTranscriptionClient(baseURL string, opts ...TranscriptionClientOption) *TranscriptionClient {
	client := &TranscriptionClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *TranscriptionClient) Transcribe(ctx context.Context, recording []byte, opts ...speechtotext.TranscriptionOption) (string, error) {
	options := &speechtotext.TranscriptionOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(options)
	}

	ctx, span := tracer.Start(ctx, "transcribe recording")
	defer span.End()
	span.SetAttributes(attribute.Int("request.audio_bytes", len(recording)))

	buffer := &bytes.Buffer{}
	writer := multipart.NewWriter(buffer)
	part, err := writer.CreateFormFile("file", "recording.wav")
	if err != nil {
		return "", fmt.Errorf("failed to build recording upload: %w", err)
	}
	if _, err := part.Write(recording); err != nil {
		return "", fmt.Errorf("failed to build recording upload: %w", err)
	}
	if options.Language != "" {
		if err := writer.WriteField("language", options.Language); err != nil {
			return "", fmt.Errorf("failed to build recording upload: %w", err)
		}
	}
	if err := writer.WriteField("sampleRate", strconv.Itoa(options.EncodingInfo.SampleRate)); err != nil {
		return "", fmt.Errorf("failed to build recording upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to build recording upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/stt", buffer)
	if err != nil {
		return "", fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("transcription request failed: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errorBody, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
		span.RecordError(err)
		span.SetAttributes(attribute.String("response.error", string(errorBody)))
		return "", err
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		err = fmt.Errorf("failed to decode transcription: %w", err)
		span.RecordError(err)
		return "", err
	}

	transcript := strings.TrimSpace(result.Text)
	span.SetAttributes(attribute.Int("response.transcript_length", len(transcript)))
	return transcript, nil
}
