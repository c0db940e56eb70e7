package core

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// SegmentState tracks one speech segment through synthesis and playback.
type SegmentState string

const (
	// SegmentStatePending means synthesis for the segment is still running.
	SegmentStatePending SegmentState = "pending"
	// SegmentStateReady means the segment has audio and is waiting its turn.
	SegmentStateReady SegmentState = "ready"
	// SegmentStatePlaying means the segment is being played right now.
	SegmentStatePlaying SegmentState = "playing"
	// SegmentStateDone means the segment played to completion.
	SegmentStateDone SegmentState = "done"
	// SegmentStateFailed means synthesis or playback failed; the segment is
	// skipped and playback moves on.
	SegmentStateFailed SegmentState = "failed"
)

// AudioSegment is one enqueued piece of speech. Sequence reflects enqueue
// order and playback never reorders across it.
type AudioSegment struct {
	ID         string
	Sequence   int
	SourceText string
	State      SegmentState

	audio []byte
	err   error
}

// speechQueue synthesizes enqueued segments concurrently but plays them
// strictly in enqueue order. StopAll bumps the generation counter so that
// synthesis results and playback completions belonging to a cancelled batch
// are recognized as stale and discarded.
type speechQueue struct {
	mu           sync.Mutex
	synth        TextToSpeech
	output       AudioOutput
	segments     []*AudioSegment
	nextSeq      int
	generation   int
	playing      bool
	stopPlayback context.CancelFunc

	updateSignal chan struct{}

	onQueueEmpty   func()
	onSegmentState func(segment AudioSegment)

	baseCtx context.Context
}

func newSpeechQueue(ctx context.Context, synth TextToSpeech, output AudioOutput, onQueueEmpty func(), onSegmentState func(segment AudioSegment)) *speechQueue {
	if onQueueEmpty == nil {
		onQueueEmpty = func() {}
	}
	if onSegmentState == nil {
		onSegmentState = func(AudioSegment) {}
	}
	return &speechQueue{
		synth:          synth,
		output:         output,
		updateSignal:   make(chan struct{}, 1),
		onQueueEmpty:   onQueueEmpty,
		onSegmentState: onSegmentState,
		baseCtx:        ctx,
	}
}

// CanPlay reports whether the queue has both a synthesizer and an output to
// play through.
func (q *speechQueue) CanPlay() bool {
	return q != nil && q.synth != nil && q.output != nil
}

// Enqueue adds a segment, kicks off its synthesis, and starts the play loop
// if one is not already draining the queue.
func (q *speechQueue) Enqueue(text string) *AudioSegment {
	if !q.CanPlay() {
		return nil
	}

	q.mu.Lock()
	segment := &AudioSegment{
		ID:         uuid.NewString(),
		Sequence:   q.nextSeq,
		SourceText: text,
		State:      SegmentStatePending,
	}
	q.nextSeq++
	q.segments = append(q.segments, segment)
	generation := q.generation
	startLoop := !q.playing
	if startLoop {
		q.playing = true
	}
	q.mu.Unlock()

	q.onSegmentState(*segment)
	go q.synthesize(segment, generation)
	if startLoop {
		go q.playLoop(generation)
	}
	return segment
}

func (q *speechQueue) synthesize(segment *AudioSegment, generation int) {
	ctx, span := tracer.Start(q.baseCtx, "synthesize queued segment")
	defer span.End()
	span.SetAttributes(attribute.Int("segment.sequence", segment.Sequence))

	speech, err := q.synth.Synthesize(ctx, segment.SourceText)

	q.mu.Lock()
	if q.generation != generation || segment.State != SegmentStatePending {
		// The batch was stopped while synthesis was in flight.
		q.mu.Unlock()
		return
	}
	if err != nil {
		segment.State = SegmentStateFailed
		segment.err = err
	} else {
		segment.State = SegmentStateReady
		segment.audio = speech
	}
	snapshot := *segment
	q.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WarnContext(ctx, "Failed to synthesize speech segment", "error", err)
	}
	q.onSegmentState(snapshot)
	q.signalUpdate()
}

// playLoop drains the queue head by head. It blocks on updateSignal while the
// head segment is still synthesizing, so a later segment finishing early never
// jumps the order.
func (q *speechQueue) playLoop(generation int) {
	for {
		q.mu.Lock()
		if q.generation != generation {
			q.mu.Unlock()
			return
		}
		if len(q.segments) == 0 {
			q.playing = false
			q.mu.Unlock()
			q.onQueueEmpty()
			return
		}

		head := q.segments[0]
		switch head.State {
		case SegmentStatePending:
			q.mu.Unlock()
			select {
			case <-q.updateSignal:
			case <-q.baseCtx.Done():
				return
			}
			continue
		case SegmentStateFailed:
			q.segments = q.segments[1:]
			q.mu.Unlock()
			continue
		}

		head.State = SegmentStatePlaying
		playCtx, cancel := context.WithCancel(q.baseCtx)
		q.stopPlayback = cancel
		speech := head.audio
		snapshot := *head
		q.mu.Unlock()

		q.onSegmentState(snapshot)
		err := q.output.Play(playCtx, speech)
		cancel()

		q.mu.Lock()
		if q.generation != generation {
			q.mu.Unlock()
			return
		}
		q.stopPlayback = nil
		if err != nil {
			head.State = SegmentStateFailed
			head.err = err
		} else {
			head.State = SegmentStateDone
		}
		if len(q.segments) > 0 && q.segments[0] == head {
			q.segments = q.segments[1:]
		}
		snapshot = *head
		q.mu.Unlock()

		if err != nil {
			logger.Warn("Failed to play speech segment", "error", err)
		}
		q.onSegmentState(snapshot)
	}
}

// StopAll discards everything: queued segments are marked failed, in-flight
// synthesis results are orphaned by the generation bump, and current playback
// is cancelled. Safe to call repeatedly and on an idle queue.
func (q *speechQueue) StopAll() {
	if q == nil {
		return
	}

	q.mu.Lock()
	q.generation++
	stop := q.stopPlayback
	q.stopPlayback = nil
	discarded := q.segments
	q.segments = nil
	q.playing = false
	q.mu.Unlock()

	for _, segment := range discarded {
		q.mu.Lock()
		if segment.State != SegmentStateDone {
			segment.State = SegmentStateFailed
		}
		snapshot := *segment
		q.mu.Unlock()
		q.onSegmentState(snapshot)
	}

	if stop != nil {
		stop()
	}
	if q.output != nil {
		q.output.Stop()
	}
	q.signalUpdate()
}

// Segments returns a snapshot of the queued segments in playback order.
func (q *speechQueue) Segments() []AudioSegment {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	segments := make([]AudioSegment, 0, len(q.segments))
	for _, segment := range q.segments {
		var snapshot AudioSegment
		if err := copier.Copy(&snapshot, segment); err != nil {
			snapshot = *segment
		}
		segments = append(segments, snapshot)
	}
	return segments
}

func (q *speechQueue) signalUpdate() {
	select {
	case q.updateSignal <- struct{}{}:
	default:
	}
}
