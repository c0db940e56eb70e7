package core

import "sync"

// TurnState describes who holds the floor in the conversation.
type TurnState string

const (
	// TurnStateIdle means nothing is happening and every action is allowed.
	TurnStateIdle TurnState = "idle"
	// TurnStateListening means the microphone is open and capturing.
	TurnStateListening TurnState = "listening"
	// TurnStateThinking means a request is in flight and no new input is
	// accepted until it resolves.
	TurnStateThinking TurnState = "thinking"
	// TurnStateSpeaking means synthesized speech is playing and new input
	// interrupts it.
	TurnStateSpeaking TurnState = "speaking"
)

// turnStateMachine serializes turn transitions. All mutating methods take the
// lock, decide the transition, and fire the change callback after unlocking so
// callbacks can call back into the orchestrator without deadlocking.
type turnStateMachine struct {
	mu    sync.Mutex
	state TurnState

	onChange func(state TurnState)
}

func newTurnStateMachine(onChange func(state TurnState)) *turnStateMachine {
	if onChange == nil {
		onChange = func(TurnState) {}
	}
	return &turnStateMachine{state: TurnStateIdle, onChange: onChange}
}

func (m *turnStateMachine) State() TurnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// BeginListening runs acquire while still in idle and only transitions to
// listening if it succeeds, so a failed microphone grab leaves the turn idle.
func (m *turnStateMachine) BeginListening(acquire func() error) error {
	m.mu.Lock()
	if m.state != TurnStateIdle {
		m.mu.Unlock()
		return ErrInvalidState
	}
	if acquire != nil {
		if err := acquire(); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	m.state = TurnStateListening
	m.mu.Unlock()

	m.onChange(TurnStateListening)
	return nil
}

func (m *turnStateMachine) EndListening() error {
	m.mu.Lock()
	if m.state != TurnStateListening {
		m.mu.Unlock()
		return ErrInvalidState
	}
	m.state = TurnStateThinking
	m.mu.Unlock()

	m.onChange(TurnStateThinking)
	return nil
}

func (m *turnStateMachine) BeginThinking() error {
	m.mu.Lock()
	if m.state != TurnStateIdle {
		m.mu.Unlock()
		return ErrInvalidState
	}
	m.state = TurnStateThinking
	m.mu.Unlock()

	m.onChange(TurnStateThinking)
	return nil
}

// ResponseReady resolves a thinking turn: to speaking when there is speakable
// text, straight back to idle when there is not.
func (m *turnStateMachine) ResponseReady(hasSpeech bool) {
	m.mu.Lock()
	if m.state != TurnStateThinking {
		m.mu.Unlock()
		return
	}
	next := TurnStateIdle
	if hasSpeech {
		next = TurnStateSpeaking
	}
	m.state = next
	m.mu.Unlock()

	m.onChange(next)
}

// SpeechEnded is safe to call from any state; it only acts when speech was
// actually playing, so the playback queue can report emptiness without
// checking whose turn it is.
func (m *turnStateMachine) SpeechEnded() {
	m.mu.Lock()
	if m.state != TurnStateSpeaking {
		m.mu.Unlock()
		return
	}
	m.state = TurnStateIdle
	m.mu.Unlock()

	m.onChange(TurnStateIdle)
}

// abortToIdle unwinds a failed turn from any non-idle state.
func (m *turnStateMachine) abortToIdle() {
	m.mu.Lock()
	if m.state == TurnStateIdle {
		m.mu.Unlock()
		return
	}
	m.state = TurnStateIdle
	m.mu.Unlock()

	m.onChange(TurnStateIdle)
}
