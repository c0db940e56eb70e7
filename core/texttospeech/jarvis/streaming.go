package jarvis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/PratyushRao/JARVIS/core/audio"
	"github.com/PratyushRao/JARVIS/core/texttospeech"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// StreamingSynthesisClient keeps one websocket open to the backend
// /tts/stream endpoint and runs one segment exchange at a time over it:
// a Speak message followed by a Flush, answered by binary audio frames and a
// terminating Flushed message. Compared to the plain HTTP client it avoids
// per-segment connection setup, which matters when a long reply is split into
// many short segments.
type StreamingSynthesisClient struct {
	baseURL string
	token   string

	connMu sync.Mutex
	conn   *websocket.Conn

	closed bool
}

type speakMessage struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Voice      string `json:"voice,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
}

func NewStreamingSynthesisClient(baseURL string, opts ...SynthesisClientOption) *StreamingSynthesisClient {
	// Reuse the HTTP client options for token plumbing; the transport itself
	// is the websocket dialer.
	carrier := &SynthesisClient{}
	for _, opt := range opts {
		opt(carrier)
	}

	return &StreamingSynthesisClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   carrier.token,
	}
}

func (c *StreamingSynthesisClient) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error) {
	options := &texttospeech.SynthesisOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(options)
	}

	ctx, span := tracer.Start(ctx, "synthesize speech segment (stream)")
	defer span.End()
	span.SetAttributes(attribute.Int("request.text_length", len(text)))

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("streaming synthesis client is closed")
	}

	conn, err := c.connectLocked(options)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := conn.WriteJSON(speakMessage{Type: "Speak", Text: text}); err != nil {
		c.dropLocked(conn)
		return nil, fmt.Errorf("failed to send text to synthesis stream: %w", err)
	}
	if err := conn.WriteJSON(speakMessage{Type: "Flush"}); err != nil {
		c.dropLocked(conn)
		return nil, fmt.Errorf("failed to flush synthesis stream: %w", err)
	}

	var speech []byte
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			c.dropLocked(conn)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to read from synthesis stream: %w", err)
		}

		if msgType == websocket.BinaryMessage {
			speech = append(speech, msg...)
			continue
		}

		var parsedMsg struct {
			Type  string `json:"type"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal(msg, &parsedMsg); err != nil {
			continue
		}
		switch parsedMsg.Type {
		case "Flushed":
			span.SetAttributes(attribute.Int("response.audio_bytes", len(speech)))
			return speech, nil
		case "Error":
			c.dropLocked(conn)
			err := fmt.Errorf("synthesis stream reported: %s", parsedMsg.Error)
			span.RecordError(err)
			return nil, err
		}
	}
}

func (c *StreamingSynthesisClient) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.conn != nil {
		_ = c.conn.WriteJSON(speakMessage{Type: "Close"})
		err := c.conn.Close()
		c.conn = nil
		if err != nil {
			return fmt.Errorf("failed to close synthesis stream: %w", err)
		}
	}
	return nil
}

func (c *StreamingSynthesisClient) connectLocked(options *texttospeech.SynthesisOptions) (*websocket.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}

	streamURL, err := url.Parse(c.baseURL + "/tts/stream")
	if err != nil {
		return nil, fmt.Errorf("invalid synthesis stream url: %w", err)
	}
	switch streamURL.Scheme {
	case "http":
		streamURL.Scheme = "ws"
	case "https":
		streamURL.Scheme = "wss"
	}
	queryParams := streamURL.Query()
	queryParams.Set("encoding", options.EncodingInfo.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(options.EncodingInfo.SampleRate))
	if options.Voice != "" {
		queryParams.Set("voice", options.Voice)
	}
	streamURL.RawQuery = queryParams.Encode()

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := websocket.DefaultDialer.Dial(streamURL.String(), header)
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to synthesis stream: %w", err)
	}

	c.conn = conn
	return conn, nil
}

func (c *StreamingSynthesisClient) dropLocked(conn *websocket.Conn) {
	conn.Close()
	if c.conn == conn {
		c.conn = nil
	}
}
