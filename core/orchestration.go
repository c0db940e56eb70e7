package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/PratyushRao/JARVIS/core/brain"
	"go.opentelemetry.io/otel/codes"
)

const (
	brainFallbackMessage = "I'm having trouble connecting to my brain right now."
	imageFallbackMessage = "I couldn't process your image question right now."
)

type turnRequestKind int

const (
	turnRequestText turnRequestKind = iota
	turnRequestAudio
	turnRequestImage
)

type turnRequest struct {
	kind      turnRequestKind
	text      string
	recording []byte
	imageFile []byte
	imageName string
	question  string
}

// Orchestrator ties the turn state machine, audio capture, playback queue and
// session store together behind one API. Turn requests are processed one at a
// time by a single worker goroutine; the state machine rejects new input while
// a turn is in flight, so the worker never has a backlog in normal operation.
type Orchestrator struct {
	brain       BrainClient
	chatService ChatService
	agentStatus AgentStatusService
	transcriber SpeechToText
	synthesizer TextToSpeech
	audioIn     AudioInput
	audioOut    AudioOutput

	turnState    *turnStateMachine
	capture      *audioCapture
	queue        *speechQueue
	sessions     *SessionStore
	conversation conversation

	muted atomic.Bool

	requests chan turnRequest
	done     chan struct{}

	started   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc

	callbacks   orchestrateCallbacks
	baseContext context.Context
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		requests:    make(chan turnRequest, 10),
		done:        make(chan struct{}),
		baseContext: context.Background(),
		callbacks:   orchestrateCallbacks{}.defaults(),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.turnState = newTurnStateMachine(func(state TurnState) {
		o.callbacks.onTurnState(state)
	})
	o.capture = newAudioCapture(o.audioIn)
	o.sessions = newSessionStore(o.chatService)
	return o
}

// Orchestrate starts the turn worker and the backend liveness poller. Call it
// at most once per orchestrator; ctx cancellation closes the orchestrator.
func (o *Orchestrator) Orchestrate(ctx context.Context, opts ...OrchestrateOption) {
	o.startOnce.Do(func() {
		options := OrchestrateOptions{}
		for _, opt := range opts {
			opt(&options)
		}
		o.callbacks = options.callbacks.defaults()

		ctx, cancel := context.WithCancel(ctx)
		o.baseContext = ctx
		o.cancel = cancel

		o.queue = newSpeechQueue(ctx, o.synthesizer, o.audioOut,
			func() { o.turnState.SpeechEnded() },
			func(segment AudioSegment) { o.callbacks.onSegmentState(segment) },
		)

		o.started.Store(true)
		go o.processRequests(ctx)
		go (&statusPoller{service: o.agentStatus, onStatus: o.callbacks.onAgentStatus}).run(ctx)
		go func() {
			<-ctx.Done()
			o.Close()
		}()
	})
}

func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		if o.capture.Recording() {
			o.capture.Stop()
		}
		o.queue.StopAll()
		if o.cancel != nil {
			o.cancel()
		}
		if o.started.Load() {
			<-o.done
		}
	})
}

// SubmitText starts a text turn. An empty or whitespace-only submission is
// rejected; submitting while speaking interrupts the speech first.
func (o *Orchestrator) SubmitText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrInvalidInput
	}

	if o.turnState.State() == TurnStateSpeaking {
		o.interrupt()
	}
	if err := o.turnState.BeginThinking(); err != nil {
		return err
	}

	o.appendMessage(Message{Sender: SenderUser, Text: text})
	return o.submitRequest(turnRequest{kind: turnRequestText, text: text})
}

// SubmitImageQuestion starts a turn asking about an image. The transcript
// shows the question prefixed with the image name.
func (o *Orchestrator) SubmitImageQuestion(file []byte, filename string, question string) error {
	question = strings.TrimSpace(question)
	if len(file) == 0 || question == "" {
		return ErrInvalidInput
	}

	if o.turnState.State() == TurnStateSpeaking {
		o.interrupt()
	}
	if err := o.turnState.BeginThinking(); err != nil {
		return err
	}

	o.appendMessage(Message{Sender: SenderUser, Text: fmt.Sprintf("[Image: %s] %s", filename, question)})
	return o.submitRequest(turnRequest{
		kind:      turnRequestImage,
		imageFile: file,
		imageName: filename,
		question:  question,
	})
}

// StartRecording opens the microphone. Speech in progress is interrupted; a
// failed device grab leaves the turn idle.
func (o *Orchestrator) StartRecording() error {
	if o.turnState.State() == TurnStateSpeaking {
		o.interrupt()
	}
	return o.turnState.BeginListening(func() error {
		return o.capture.Start(o.baseContext)
	})
}

// StopRecording closes the microphone and hands the recording to
// transcription. An empty recording abandons the turn without a transcript.
func (o *Orchestrator) StopRecording() error {
	if err := o.turnState.EndListening(); err != nil {
		return err
	}

	recording, ok := o.capture.Stop()
	if !ok || len(recording) == 0 {
		o.turnState.abortToIdle()
		return nil
	}
	return o.submitRequest(turnRequest{kind: turnRequestAudio, recording: recording})
}

func (o *Orchestrator) IsRecording() bool { return o.capture.Recording() }

// SetMuted controls whether responses are spoken. Muting while speech is
// playing cuts it off.
func (o *Orchestrator) SetMuted(muted bool) {
	o.muted.Store(muted)
	if muted && o.turnState.State() == TurnStateSpeaking {
		o.interrupt()
	}
}

func (o *Orchestrator) Muted() bool { return o.muted.Load() }

func (o *Orchestrator) TurnState() TurnState { return o.turnState.State() }

func (o *Orchestrator) Messages() []Message { return o.conversation.Messages() }

func (o *Orchestrator) Segments() []AudioSegment { return o.queue.Segments() }

func (o *Orchestrator) ListChats(ctx context.Context) ([]Chat, error) {
	return o.sessions.ListChats(ctx)
}

func (o *Orchestrator) Chats() []Chat { return o.sessions.Chats() }

func (o *Orchestrator) ActiveChatID() string { return o.sessions.ActiveChatID() }

// SelectChat interrupts whatever is playing, switches the active chat, and
// replaces the transcript with the selected chat's history.
func (o *Orchestrator) SelectChat(ctx context.Context, chatID string) error {
	o.interrupt()

	messages, err := o.sessions.SelectChat(ctx, chatID)
	if err != nil {
		return err
	}
	o.conversation.Replace(messages)
	return nil
}

// NewChat interrupts playback, creates a chat on the server, makes it active
// and clears the transcript.
func (o *Orchestrator) NewChat(ctx context.Context) (Chat, error) {
	o.interrupt()

	chat, err := o.sessions.CreateChat(ctx)
	if err != nil {
		return Chat{}, err
	}
	o.conversation.Clear()
	return chat, nil
}

// DeleteChat removes a chat. Deleting the active one clears the transcript
// and leaves no chat selected.
func (o *Orchestrator) DeleteChat(ctx context.Context, chatID string) error {
	wasActive := o.sessions.ActiveChatID() == chatID
	if err := o.sessions.DeleteChat(ctx, chatID); err != nil {
		return err
	}
	if wasActive {
		o.interrupt()
		o.conversation.Clear()
	}
	return nil
}

func (o *Orchestrator) RenameChat(ctx context.Context, chatID string, name string) error {
	return o.sessions.RenameChat(ctx, chatID, name)
}

// interrupt cuts off speech and settles the turn back to idle. Harmless when
// nothing is playing.
func (o *Orchestrator) interrupt() {
	o.queue.StopAll()
	o.turnState.SpeechEnded()
}

func (o *Orchestrator) submitRequest(request turnRequest) error {
	select {
	case o.requests <- request:
		return nil
	default:
		o.turnState.abortToIdle()
		return errors.New("turn worker is not keeping up, request dropped")
	}
}

func (o *Orchestrator) appendMessage(message Message) {
	o.conversation.Append(message)
	o.callbacks.onMessageAppended(message)
}

func (o *Orchestrator) processRequests(ctx context.Context) {
	defer close(o.done)

	for {
		select {
		case <-ctx.Done():
			return
		case request := <-o.requests:
			switch request.kind {
			case turnRequestAudio:
				o.processRecording(ctx, request.recording)
			default:
				o.processTurn(ctx, request)
			}
		}
	}
}

// processRecording transcribes a finished recording and, when the transcript
// is non-empty, continues it as a regular text turn.
func (o *Orchestrator) processRecording(ctx context.Context, recording []byte) {
	ctx, span := tracer.Start(ctx, "process voice turn")
	defer span.End()

	transcript, err := o.transcribe(ctx, recording)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WarnContext(ctx, "Failed to transcribe recording", "error", err)
		o.turnState.abortToIdle()
		return
	}
	if transcript == "" {
		o.turnState.abortToIdle()
		return
	}

	o.callbacks.onTranscription(transcript)
	o.appendMessage(Message{Sender: SenderUser, Text: transcript})
	o.processTurn(ctx, turnRequest{kind: turnRequestText, text: transcript})
}

func (o *Orchestrator) transcribe(ctx context.Context, recording []byte) (string, error) {
	if o.transcriber == nil {
		return "", errors.New("no speech-to-text client configured")
	}
	return o.transcriber.Transcribe(ctx, recording)
}

// processTurn sends one turn to the backend and routes the reply into the
// transcript and the playback queue.
func (o *Orchestrator) processTurn(ctx context.Context, request turnRequest) {
	ctx, span := tracer.Start(ctx, "process turn")
	defer span.End()

	if o.brain == nil {
		o.appendMessage(Message{Sender: SenderAssistant, Text: brainFallbackMessage})
		o.turnState.abortToIdle()
		return
	}

	sentChatID := o.sessions.ActiveChatID()

	var reply brain.ChatReply
	var err error
	fallback := brainFallbackMessage
	switch request.kind {
	case turnRequestImage:
		fallback = imageFallbackMessage
		reply, err = o.brain.SendImageQuestion(ctx, request.imageFile, request.imageName, request.question, sentChatID)
	default:
		reply, err = o.brain.SendMessage(ctx, request.text, sentChatID)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		var authErr *brain.AuthError
		if errors.As(err, &authErr) {
			// Auth failures are not something a retry or fallback message
			// can paper over; report them distinctly and settle the turn.
			logger.ErrorContext(ctx, "Backend rejected credentials", "status_code", authErr.StatusCode)
			o.callbacks.onAuthError(authErr)
			o.turnState.abortToIdle()
			return
		}

		logger.WarnContext(ctx, "Turn failed, showing fallback response", "error", err)
		o.appendMessage(Message{Sender: SenderAssistant, Text: fallback})
		o.turnState.abortToIdle()
		return
	}

	if o.sessions.ActiveChatID() != sentChatID {
		// The user switched chats while this turn was in flight; its reply
		// belongs to the old chat and would corrupt the new transcript.
		o.turnState.abortToIdle()
		return
	}
	if sentChatID == "" {
		o.sessions.Adopt(reply.ChatID)
	}

	o.appendMessage(Message{Sender: SenderAssistant, Text: reply.Response})

	speak := reply.Response != "" && o.queue.CanPlay() && !o.muted.Load()
	o.turnState.ResponseReady(speak)
	if speak {
		for _, segment := range splitSpeechSegments(reply.Response) {
			o.queue.Enqueue(segment)
		}
	}
}
