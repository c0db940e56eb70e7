package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultRequestTimeout = 60 * time.Second

// Client talks to the JARVIS backend: chat management, the reasoning
// endpoint and the agent liveness probe. All payloads use the canonical
// `chatId` field name regardless of what historical backend variants emitted.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

type ClientOption func(*Client)

// WithToken sets the bearer credential attached to every request.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
					return operationName + " " + request.URL.Path
				}),
			),
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type Chat struct {
	ChatID string `json:"chatId"`
	Name   string `json:"name"`
}

type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatReply struct {
	Response string `json:"response"`
	ChatID   string `json:"chatId"`
}

func (c *Client) ListChats(ctx context.Context) ([]Chat, error) {
	var chats []Chat
	if err := c.doJSON(ctx, http.MethodGet, "/chats", nil, &chats); err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	return chats, nil
}

func (c *Client) CreateChat(ctx context.Context) (Chat, error) {
	var chat Chat
	if err := c.doJSON(ctx, http.MethodPost, "/chats/new", nil, &chat); err != nil {
		return Chat{}, fmt.Errorf("failed to create chat: %w", err)
	}
	if chat.ChatID == "" {
		return Chat{}, fmt.Errorf("backend returned a chat without an id")
	}
	return chat, nil
}

func (c *Client) History(ctx context.Context, chatID string) ([]HistoryEntry, error) {
	var history []HistoryEntry
	if err := c.doJSON(ctx, http.MethodGet, "/chats/"+chatID+"/history", nil, &history); err != nil {
		return nil, fmt.Errorf("failed to fetch history for chat %s: %w", chatID, err)
	}
	return history, nil
}

func (c *Client) RenameChat(ctx context.Context, chatID string, name string) error {
	body := struct {
		Name string `json:"name"`
	}{Name: name}
	if err := c.doJSON(ctx, http.MethodPatch, "/chats/"+chatID, body, nil); err != nil {
		return fmt.Errorf("failed to rename chat %s: %w", chatID, err)
	}
	return nil
}

func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/chats/"+chatID, nil, nil); err != nil {
		return fmt.Errorf("failed to delete chat %s: %w", chatID, err)
	}
	return nil
}

// SendMessage submits one user turn. chatID may be empty for a brand-new
// conversation; the backend then assigns one and returns it in the reply.
func (c *Client) SendMessage(ctx context.Context, text string, chatID string) (ChatReply, error) {
	ctx, span := tracer.Start(ctx, "send chat message")
	defer span.End()
	span.SetAttributes(attribute.String("request.chat_id", chatID))

	body := struct {
		Text   string `json:"text"`
		ChatID string `json:"chatId,omitempty"`
	}{Text: text, ChatID: chatID}

	var reply ChatReply
	if err := c.doJSON(ctx, http.MethodPost, "/chat", body, &reply); err != nil {
		err = fmt.Errorf("chat request failed: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ChatReply{}, err
	}
	span.SetAttributes(attribute.String("response.chat_id", reply.ChatID))
	return reply, nil
}

// SendImageQuestion submits an image plus a question about it as one turn.
func (c *Client) SendImageQuestion(ctx context.Context, file []byte, filename string, question string, chatID string) (ChatReply, error) {
	ctx, span := tracer.Start(ctx, "send image question")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.chat_id", chatID),
		attribute.Int("request.image_bytes", len(file)),
	)

	buffer := &bytes.Buffer{}
	writer := multipart.NewWriter(buffer)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return ChatReply{}, fmt.Errorf("failed to build image upload: %w", err)
	}
	if _, err := part.Write(file); err != nil {
		return ChatReply{}, fmt.Errorf("failed to build image upload: %w", err)
	}
	if err := writer.WriteField("question", question); err != nil {
		return ChatReply{}, fmt.Errorf("failed to build image upload: %w", err)
	}
	if chatID != "" {
		if err := writer.WriteField("chatId", chatID); err != nil {
			return ChatReply{}, fmt.Errorf("failed to build image upload: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return ChatReply{}, fmt.Errorf("failed to build image upload: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/image-qa", writer.FormDataContentType(), buffer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ChatReply{}, err
	}
	defer resp.Body.Close()

	var reply ChatReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		err = fmt.Errorf("failed to decode image question reply: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ChatReply{}, err
	}
	span.SetAttributes(attribute.String("response.chat_id", reply.ChatID))
	return reply, nil
}

// AgentStatus probes the local agent liveness endpoint.
func (c *Client) AgentStatus(ctx context.Context) (bool, error) {
	var status struct {
		Connected bool `json:"connected"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/agent-status", nil, &status); err != nil {
		return false, fmt.Errorf("failed to fetch agent status: %w", err)
	}
	return status.Connected, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, requestBody any, responseBody any) error {
	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("error marshalling JSON: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	resp, err := c.do(ctx, method, path, "application/json", bodyReader)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if responseBody == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(responseBody); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, &AuthError{StatusCode: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		errorBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		logger.WarnContext(ctx, "backend returned non-OK status",
			"status", resp.Status, "path", path, "body", string(errorBody))
		return nil, fmt.Errorf("non-OK HTTP status: %s", resp.Status)
	}

	return resp, nil
}
