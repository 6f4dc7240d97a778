package orchestrator

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/presales-assistant/internal/model"
	"github.com/capitalize-ai/presales-assistant/internal/scheduler"
	"github.com/capitalize-ai/presales-assistant/pkg/logger"
	"github.com/capitalize-ai/presales-assistant/pkg/metrics"
)

const (
	initialProgress  = 10
	scanProgressSpan = 80
)

const (
	outcomeCompleted = "completed"
	outcomeCancelled = "cancelled"
)

// Listener observes turn snapshots.
type Listener func(model.Turn)

type subscriber struct {
	fn      Listener
	removed atomic.Bool
}

type delivery struct {
	snap  model.Turn
	to    []*subscriber
	event *model.TurnEvent
	final bool
}

// stepFunc mutates the turn under h.mu and returns the next step.
type stepFunc func() (next stepFunc, delay time.Duration)

// Handle is a live turn.
type Handle struct {
	o      *Orchestrator
	labels []string
	log    *logger.Logger
	span   trace.Span

	mu          sync.Mutex
	turn        model.Turn
	lastPhase   model.Phase
	answerRunes int
	timer       scheduler.Timer
	finished    bool
	subs        []*subscriber
	queue       []delivery
	draining    bool

	done chan struct{}
}

func newHandle(o *Orchestrator, id, question string, deep bool, labels []string, span trace.Span) *Handle {
	return &Handle{
		o:      o,
		labels: labels,
		log:    o.logger.WithTurn(o.sessionID, id),
		span:   span,
		turn: model.Turn{
			ID:             id,
			SessionID:      o.sessionID,
			Question:       question,
			DeepReasoning:  deep,
			Phase:          model.PhaseIdle,
			ReasoningSteps: []string{},
			StartedAt:      o.now(),
		},
		lastPhase: model.PhaseIdle,
		done:      make(chan struct{}),
	}
}

// ID returns the turn ID.
func (h *Handle) ID() string {
	return h.turn.ID
}

// Snapshot returns a copy of the current turn state.
func (h *Handle) Snapshot() model.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.turn.Clone()
}

// Done is closed once the turn is done or cancelled and every snapshot has
// been delivered.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Finished reports whether the turn has stopped changing.
func (h *Handle) Finished() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finished
}

// Subscribe registers fn for state changes. The current snapshot is delivered
// first; later snapshots follow in order, one at a time. The returned func
// removes the subscription.
func (h *Handle) Subscribe(fn Listener) (unsubscribe func()) {
	s := &subscriber{fn: fn}

	h.mu.Lock()
	h.subs = append(h.subs, s)
	h.queue = append(h.queue, delivery{snap: h.turn.Clone(), to: []*subscriber{s}})
	h.mu.Unlock()

	h.flush()

	return func() {
		s.removed.Store(true)
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, sub := range h.subs {
			if sub == s {
				h.subs = append(h.subs[:i], h.subs[i+1:]...)
				break
			}
		}
	}
}

// Cancel stops the turn where it is and frees the session for a new turn.
// It is a no-op once the turn is done or already cancelled.
func (h *Handle) Cancel() {
	h.mu.Lock()
	if h.finished {
		h.mu.Unlock()
		return
	}
	h.finished = true
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	now := h.o.now()
	h.turn.Cancelled = true
	h.turn.FinishedAt = &now
	h.emitLocked(model.EventTypeCancelled, true)
	phase := h.turn.Phase
	h.o.release(h)
	h.mu.Unlock()

	h.log.Info("turn cancelled", zap.String("phase", string(phase)))
	h.complete(outcomeCancelled)
	h.flush()
}

func (h *Handle) begin() {
	h.mu.Lock()
	h.turn.Phase = model.PhaseRetrieving
	h.turn.Retrieval = model.Retrieval{
		SourcesTotal:    len(h.labels),
		CurrentLabel:    LabelConnecting,
		ProgressPercent: initialProgress,
	}
	h.emitLocked(model.EventTypeStarted, false)

	first := h.analyze
	if len(h.labels) > 0 {
		first = h.scan(0)
	}
	h.timer = h.o.sched.AfterFunc(h.o.pacing.ConnectDelay, func() { h.run(first) })
	h.mu.Unlock()

	h.flush()
}

// run executes one step, delivers its snapshots, then schedules the next.
func (h *Handle) run(step stepFunc) {
	h.mu.Lock()
	if h.finished {
		h.mu.Unlock()
		return
	}
	h.timer = nil
	next, delay := step()
	finished := h.turn.Phase == model.PhaseDone
	if finished {
		h.finished = true
		h.o.release(h)
	}
	h.mu.Unlock()

	if finished {
		h.log.Info("turn completed", zap.Int("answer_length", h.answerRunes))
		h.complete(outcomeCompleted)
	}

	h.flush()

	if next == nil {
		return
	}
	h.mu.Lock()
	if !h.finished {
		h.timer = h.o.sched.AfterFunc(delay, func() { h.run(next) })
	}
	h.mu.Unlock()
}

func (h *Handle) scan(i int) stepFunc {
	return func() (stepFunc, time.Duration) {
		r := &h.turn.Retrieval
		r.SourcesScanned = i + 1
		r.CurrentLabel = h.labels[i]
		if inc := h.o.jitter(); inc > 0 {
			r.MatchesFound += inc
		}
		r.ProgressPercent = scanProgress(r.SourcesScanned, r.SourcesTotal)
		h.emitLocked("", false)

		if i+1 < len(h.labels) {
			return h.scan(i + 1), h.o.pacing.RetrievalStepDelay
		}
		return h.analyze, h.o.pacing.RetrievalStepDelay
	}
}

func (h *Handle) analyze() (stepFunc, time.Duration) {
	h.turn.Retrieval.ProgressPercent = 100
	h.turn.Retrieval.CurrentLabel = LabelAnalyzing
	h.emitLocked("", false)

	if h.turn.DeepReasoning {
		return h.reason(0), h.o.pacing.AnalyzeDelay
	}
	return h.answer, h.o.pacing.AnalyzeDelay
}

func (h *Handle) reason(i int) stepFunc {
	return func() (stepFunc, time.Duration) {
		h.turn.Phase = model.PhaseReasoning
		h.turn.ReasoningSteps = append(h.turn.ReasoningSteps, ReasoningSteps[i])
		h.emitLocked("", false)

		if i+1 < len(ReasoningSteps) {
			return h.reason(i + 1), h.o.pacing.ReasoningStepDelay
		}
		return h.answer, h.o.pacing.ReasoningStepDelay
	}
}

func (h *Handle) answer() (stepFunc, time.Duration) {
	answer := h.o.matcher.Match(h.turn.Question)
	now := h.o.now()

	h.turn.Phase = model.PhaseAnswering
	h.turn.Answer = &answer
	h.turn.RevealedLength = 0
	h.turn.AnsweredAt = &now
	h.turn.ThinkingDuration = math.Round(now.Sub(h.turn.StartedAt).Seconds()*10) / 10
	h.answerRunes = len([]rune(answer.FullText))

	metrics.CatalogMatches.WithLabelValues(answer.Category).Inc()
	h.span.SetAttributes(attribute.String("turn.category", answer.Category))

	h.emitLocked("", false)
	if h.answerRunes == 0 {
		h.markDoneLocked()
		return nil, 0
	}
	return h.reveal, h.o.pacing.RevealInterval
}

func (h *Handle) reveal() (stepFunc, time.Duration) {
	n := h.turn.RevealedLength + h.o.pacing.RevealChunk
	if n > h.answerRunes {
		n = h.answerRunes
	}
	h.turn.RevealedLength = n
	h.emitLocked("", false)

	if n == h.answerRunes {
		h.markDoneLocked()
		return nil, 0
	}
	return h.reveal, h.o.pacing.RevealInterval
}

func (h *Handle) markDoneLocked() {
	now := h.o.now()
	h.turn.Phase = model.PhaseDone
	h.turn.FinishedAt = &now
	h.emitLocked(model.EventTypeCompleted, true)
}

// emitLocked queues the current state for every subscriber. An empty
// eventType publishes a phase event only when the phase changed.
func (h *Handle) emitLocked(eventType model.EventType, final bool) {
	d := delivery{
		snap:  h.turn.Clone(),
		to:    append([]*subscriber(nil), h.subs...),
		final: final,
	}

	if eventType == "" && h.turn.Phase != h.lastPhase {
		eventType = model.EventTypePhase
	}
	if eventType != "" {
		d.event = &model.TurnEvent{
			ID:        uuid.Must(uuid.NewV7()).String(),
			SessionID: h.turn.SessionID,
			TurnID:    h.turn.ID,
			Type:      eventType,
			Phase:     h.turn.Phase,
			CreatedAt: h.o.now(),
		}
		if h.turn.Answer != nil {
			d.event.Category = h.turn.Answer.Category
		}
		h.span.AddEvent(string(eventType), trace.WithAttributes(attribute.String("turn.phase", string(h.turn.Phase))))
		h.log.Debug("turn event",
			zap.String("type", string(eventType)),
			zap.String("phase", string(h.turn.Phase)),
		)
	}
	h.lastPhase = h.turn.Phase
	h.queue = append(h.queue, d)
}

// flush delivers queued snapshots without holding h.mu. Only one goroutine
// drains at a time; re-entrant calls from listeners return immediately and
// their deliveries are picked up by the active drainer.
func (h *Handle) flush() {
	h.mu.Lock()
	if h.draining {
		h.mu.Unlock()
		return
	}
	h.draining = true

	for len(h.queue) > 0 {
		batch := h.queue
		h.queue = nil
		h.mu.Unlock()

		for _, d := range batch {
			h.deliver(d)
		}

		h.mu.Lock()
	}
	h.draining = false
	h.mu.Unlock()
}

func (h *Handle) deliver(d delivery) {
	if d.event != nil && h.o.publisher != nil {
		if err := h.o.publisher.PublishTurnEvent(context.Background(), d.event); err != nil {
			h.log.Warn("failed to publish turn event", zap.Error(err), zap.String("type", string(d.event.Type)))
		}
	}
	for _, s := range d.to {
		if !s.removed.Load() {
			s.fn(d.snap)
		}
	}
	if d.final {
		close(h.done)
	}
}

func (h *Handle) complete(outcome string) {
	h.mu.Lock()
	started := h.turn.StartedAt
	deep := h.turn.DeepReasoning
	h.mu.Unlock()

	metrics.RecordTurnFinished(modeLabel(deep), outcome, h.o.now().Sub(started).Seconds())
	h.span.SetAttributes(attribute.String("turn.outcome", outcome))
	h.span.End()
}

func scanProgress(scanned, total int) int {
	if total <= 0 {
		return initialProgress
	}
	return initialProgress + int(math.Round(scanProgressSpan*float64(scanned)/float64(total)))
}
