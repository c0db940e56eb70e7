package core

import (
	"context"

	"github.com/PratyushRao/JARVIS/core/audio"
	"github.com/PratyushRao/JARVIS/core/brain"
	"github.com/PratyushRao/JARVIS/core/speechtotext"
	"github.com/PratyushRao/JARVIS/core/texttospeech"
)

// BrainClient sends turns to the assistant backend.
type BrainClient interface {
	SendMessage(ctx context.Context, text string, chatID string) (brain.ChatReply, error)
	SendImageQuestion(ctx context.Context, file []byte, filename string, question string, chatID string) (brain.ChatReply, error)
}

// ChatService manages server-side chats and their history.
type ChatService interface {
	ListChats(ctx context.Context) ([]brain.Chat, error)
	CreateChat(ctx context.Context) (brain.Chat, error)
	History(ctx context.Context, chatID string) ([]brain.HistoryEntry, error)
	RenameChat(ctx context.Context, chatID string, name string) error
	DeleteChat(ctx context.Context, chatID string) error
}

// AgentStatusService reports whether the backend agent is reachable.
type AgentStatusService interface {
	AgentStatus(ctx context.Context) (bool, error)
}

// SpeechToText turns a finished recording into text.
type SpeechToText interface {
	Transcribe(ctx context.Context, recording []byte, opts ...speechtotext.TranscriptionOption) (string, error)
}

// TextToSpeech turns one speech segment into playable audio.
type TextToSpeech interface {
	Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error)
}

// AudioInput captures microphone audio and delivers it chunk by chunk.
type AudioInput interface {
	StartCapture(ctx context.Context, onAudio func(chunk []byte)) error
	StopCapture()
	EncodingInfo() audio.EncodingInfo
}

// AudioOutput plays one audio blob. Play blocks until the blob finished or
// Stop (or the context) cut it short.
type AudioOutput interface {
	Play(ctx context.Context, speech []byte) error
	Stop()
	EncodingInfo() audio.EncodingInfo
}

type OrchestratorOption func(*Orchestrator)

// WithBrain sets the client used to send turns to the assistant backend.
func WithBrain(client BrainClient) OrchestratorOption {
	return func(o *Orchestrator) { o.brain = client }
}

// WithChatService sets the client used to manage chats.
func WithChatService(service ChatService) OrchestratorOption {
	return func(o *Orchestrator) { o.chatService = service }
}

// WithAgentStatusService sets the client polled for backend liveness.
func WithAgentStatusService(service AgentStatusService) OrchestratorOption {
	return func(o *Orchestrator) { o.agentStatus = service }
}

// WithSpeechToText sets the transcription client for voice turns.
func WithSpeechToText(transcriber SpeechToText) OrchestratorOption {
	return func(o *Orchestrator) { o.transcriber = transcriber }
}

// WithTextToSpeech sets the synthesis client for spoken responses.
func WithTextToSpeech(synthesizer TextToSpeech) OrchestratorOption {
	return func(o *Orchestrator) { o.synthesizer = synthesizer }
}

// WithAudioInput sets the microphone used for voice turns. Without one,
// StartRecording reports the device as unavailable.
func WithAudioInput(input AudioInput) OrchestratorOption {
	return func(o *Orchestrator) { o.audioIn = input }
}

// WithAudioOutput sets the speaker used for spoken responses. Without one,
// responses stay text-only and the turn skips the speaking state.
func WithAudioOutput(output AudioOutput) OrchestratorOption {
	return func(o *Orchestrator) { o.audioOut = output }
}

type orchestrateCallbacks struct {
	onMessageAppended func(message Message)
	onTurnState       func(state TurnState)
	onAgentStatus     func(connected bool)
	onSegmentState    func(segment AudioSegment)
	onTranscription   func(transcript string)
	onAuthError       func(err *brain.AuthError)
}

func (c orchestrateCallbacks) defaults() orchestrateCallbacks {
	if c.onMessageAppended == nil {
		c.onMessageAppended = func(Message) {}
	}
	if c.onTurnState == nil {
		c.onTurnState = func(TurnState) {}
	}
	if c.onAgentStatus == nil {
		c.onAgentStatus = func(bool) {}
	}
	if c.onSegmentState == nil {
		c.onSegmentState = func(AudioSegment) {}
	}
	if c.onTranscription == nil {
		c.onTranscription = func(string) {}
	}
	if c.onAuthError == nil {
		c.onAuthError = func(*brain.AuthError) {}
	}
	return c
}

type OrchestrateOptions struct {
	callbacks orchestrateCallbacks
}

type OrchestrateOption func(*OrchestrateOptions)

// WithMessageAppendedCallback fires for every message added to the
// transcript, user and assistant alike.
func WithMessageAppendedCallback(callback func(message Message)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.callbacks.onMessageAppended = callback }
}

// WithTurnStateCallback fires on every turn state transition.
func WithTurnStateCallback(callback func(state TurnState)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.callbacks.onTurnState = callback }
}

// WithAgentStatusCallback fires with each backend liveness poll result.
func WithAgentStatusCallback(callback func(connected bool)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.callbacks.onAgentStatus = callback }
}

// WithSegmentStateCallback fires on every speech segment state change.
func WithSegmentStateCallback(callback func(segment AudioSegment)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.callbacks.onSegmentState = callback }
}

// WithTranscriptionCallback fires with the transcript of a finished
// recording, before the turn is sent to the backend.
func WithTranscriptionCallback(callback func(transcript string)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.callbacks.onTranscription = callback }
}

// WithAuthErrorCallback fires when the backend rejects the credential on a
// turn. No fallback message is appended for auth failures, so this is the
// only signal the UI gets to send the user to re-authentication.
func WithAuthErrorCallback(callback func(err *brain.AuthError)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.callbacks.onAuthError = callback }
}
