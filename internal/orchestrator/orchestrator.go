// Package orchestrator drives a question/answer turn through simulated
// retrieval, optional reasoning, canned answer selection and incremental reveal.
package orchestrator

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/presales-assistant/internal/catalog"
	"github.com/capitalize-ai/presales-assistant/internal/model"
	"github.com/capitalize-ai/presales-assistant/internal/scheduler"
	"github.com/capitalize-ai/presales-assistant/pkg/logger"
	"github.com/capitalize-ai/presales-assistant/pkg/metrics"
	"github.com/capitalize-ai/presales-assistant/pkg/tracing"
)

var (
	// ErrInvalidInput is returned for an empty or whitespace-only question.
	ErrInvalidInput = errors.New("question must not be empty")

	// ErrBusy is returned when the session already has an active turn.
	ErrBusy = errors.New("a turn is already active")
)

// Retrieval labels shown outside the per-knowledge-base scan.
const (
	LabelConnecting = "connecting"
	LabelAnalyzing  = "analyzing"
)

// ReasoningSteps are appended, in order, to deep-reasoning turns.
var ReasoningSteps = []string{
	"分析问题关键词和意图...",
	"检索相关知识库文档...",
	"对比历史项目数据...",
	"整合分析多源信息...",
	"生成结构化回复...",
}

// Matcher selects the answer for a question. It must be pure.
type Matcher interface {
	Match(question string) model.Answer
}

// EventPublisher receives turn lifecycle events.
type EventPublisher interface {
	PublishTurnEvent(ctx context.Context, event *model.TurnEvent) error
}

// Pacing holds the delays between steps.
type Pacing struct {
	ConnectDelay       time.Duration
	RetrievalStepDelay time.Duration
	AnalyzeDelay       time.Duration
	ReasoningStepDelay time.Duration
	RevealInterval     time.Duration
	RevealChunk        int
}

// DefaultPacing returns the stock timing.
func DefaultPacing() Pacing {
	return Pacing{
		ConnectDelay:       400 * time.Millisecond,
		RetrievalStepDelay: 400 * time.Millisecond,
		AnalyzeDelay:       400 * time.Millisecond,
		ReasoningStepDelay: 400 * time.Millisecond,
		RevealInterval:     15 * time.Millisecond,
		RevealChunk:        3,
	}
}

// TurnOptions configures a single turn.
type TurnOptions struct {
	DeepReasoning bool
	// KnowledgeBases are scanned in order; empty means the default set.
	KnowledgeBases []string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSessionID tags turns and events with the owning session.
func WithSessionID(id string) Option {
	return func(o *Orchestrator) { o.sessionID = id }
}

// WithScheduler replaces the real-time scheduler.
func WithScheduler(s scheduler.Scheduler) Option {
	return func(o *Orchestrator) { o.sched = s }
}

// WithPacing overrides step timing.
func WithPacing(p Pacing) Option {
	return func(o *Orchestrator) { o.pacing = p }
}

// WithDefaultKnowledgeBases sets the labels scanned when a turn names none.
func WithDefaultKnowledgeBases(labels []string) Option {
	return func(o *Orchestrator) { o.labels = cleanLabels(labels) }
}

// WithJitter overrides the per-source match increment.
func WithJitter(fn func() int) Option {
	return func(o *Orchestrator) { o.jitter = fn }
}

// WithPublisher forwards turn lifecycle events.
func WithPublisher(p EventPublisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithTracer sets the tracer used for turn spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithClock overrides the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator owns the turns of one chat session. At most one turn is
// active at a time.
type Orchestrator struct {
	sessionID string
	matcher   Matcher
	sched     scheduler.Scheduler
	pacing    Pacing
	labels    []string
	jitter    func() int
	publisher EventPublisher
	logger    *logger.Logger
	tracer    trace.Tracer
	now       func() time.Time

	mu     sync.Mutex
	active *Handle
}

// New creates an orchestrator answering from matcher.
func New(matcher Matcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		matcher: matcher,
		sched:   scheduler.Real(),
		pacing:  DefaultPacing(),
		labels:  catalog.DefaultKnowledgeBaseLabels,
		jitter:  defaultJitter,
		logger:  logger.Global(),
		tracer:  tracing.Tracer(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.pacing.RevealChunk <= 0 {
		o.pacing.RevealChunk = DefaultPacing().RevealChunk
	}
	if len(o.labels) == 0 {
		o.labels = catalog.DefaultKnowledgeBaseLabels
	}
	return o
}

func defaultJitter() int {
	return 2 + rand.Intn(5)
}

// StartTurn begins a new turn. ctx only parents the turn's trace span; the
// turn runs until done or cancelled regardless of ctx.
func (o *Orchestrator) StartTurn(ctx context.Context, question string, opts TurnOptions) (*Handle, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		metrics.TurnsRejected.WithLabelValues("invalid_input").Inc()
		return nil, ErrInvalidInput
	}

	labels := cleanLabels(opts.KnowledgeBases)
	if len(labels) == 0 {
		labels = o.labels
	}

	o.mu.Lock()
	if o.active != nil {
		o.mu.Unlock()
		metrics.TurnsRejected.WithLabelValues("busy").Inc()
		return nil, ErrBusy
	}

	id := uuid.Must(uuid.NewV7()).String()
	_, span := o.tracer.Start(ctx, "orchestrator.turn", trace.WithAttributes(
		attribute.String("session.id", o.sessionID),
		attribute.String("turn.id", id),
		attribute.Bool("turn.deep_reasoning", opts.DeepReasoning),
		attribute.Int("turn.knowledge_bases", len(labels)),
	))

	h := newHandle(o, id, question, opts.DeepReasoning, labels, span)
	o.active = h
	o.mu.Unlock()

	metrics.RecordTurnStarted(modeLabel(opts.DeepReasoning))
	h.log.Info("turn started",
		zap.Bool("deep_reasoning", opts.DeepReasoning),
		zap.Strings("knowledge_bases", labels),
	)

	h.begin()
	return h, nil
}

// Active returns the in-flight turn, or nil.
func (o *Orchestrator) Active() *Handle {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// CancelActive cancels the in-flight turn and reports whether there was one.
func (o *Orchestrator) CancelActive() bool {
	h := o.Active()
	if h == nil {
		return false
	}
	h.Cancel()
	return true
}

func (o *Orchestrator) release(h *Handle) {
	o.mu.Lock()
	if o.active == h {
		o.active = nil
	}
	o.mu.Unlock()
}

func cleanLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func modeLabel(deep bool) string {
	if deep {
		return "deep"
	}
	return "normal"
}
