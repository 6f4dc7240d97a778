package orchestrator

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/capitalize-ai/presales-assistant/internal/catalog"
	"github.com/capitalize-ai/presales-assistant/internal/model"
	"github.com/capitalize-ai/presales-assistant/internal/scheduler"
	"github.com/capitalize-ai/presales-assistant/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const runLimit = 100000

func newTestOrchestrator(opts ...Option) (*Orchestrator, *scheduler.Manual) {
	sched := scheduler.NewManual()
	base := []Option{
		WithSessionID("session-1"),
		WithScheduler(sched),
		WithLogger(logger.NewNop()),
		WithJitter(func() int { return 3 }),
	}
	return New(catalog.Default(), append(base, opts...)...), sched
}

type recorder struct {
	snaps []model.Turn
}

func record(h *Handle) *recorder {
	r := &recorder{}
	h.Subscribe(func(t model.Turn) { r.snaps = append(r.snaps, t) })
	return r
}

func (r *recorder) phases() []model.Phase {
	var out []model.Phase
	for _, s := range r.snaps {
		if len(out) == 0 || out[len(out)-1] != s.Phase {
			out = append(out, s.Phase)
		}
	}
	return out
}

func (r *recorder) last() model.Turn {
	return r.snaps[len(r.snaps)-1]
}

func (r *recorder) inPhase(p model.Phase) []model.Turn {
	var out []model.Turn
	for _, s := range r.snaps {
		if s.Phase == p {
			out = append(out, s)
		}
	}
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	events []model.TurnEvent
	err    error
}

func (p *fakePublisher) PublishTurnEvent(_ context.Context, ev *model.TurnEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *ev)
	return p.err
}

func (p *fakePublisher) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

func TestPricingScenario(t *testing.T) {
	o, sched := newTestOrchestrator()

	h, err := o.StartTurn(context.Background(), "报价是多少？", TurnOptions{})
	require.NoError(t, err)
	rec := record(h)

	sched.RunAll(runLimit)

	assert.Equal(t, []model.Phase{model.PhaseRetrieving, model.PhaseAnswering, model.PhaseDone}, rec.phases())

	var scans int
	for _, s := range rec.inPhase(model.PhaseRetrieving) {
		if s.Retrieval.CurrentLabel != LabelConnecting && s.Retrieval.CurrentLabel != LabelAnalyzing {
			scans++
		}
	}
	assert.Equal(t, 4, scans)

	final := rec.last()
	expected := catalog.Default().Match("报价是多少？")
	require.NotNil(t, final.Answer)
	assert.Equal(t, catalog.CategoryPricing, final.Answer.Category)
	assert.Equal(t, expected.FullText, final.Answer.FullText)
	assert.Len(t, final.Answer.Citations, 1)
	assert.Empty(t, final.ReasoningSteps)
	assert.Equal(t, final.AnswerLength(), final.RevealedLength)
	assert.NotNil(t, final.FinishedAt)
	assert.Equal(t, "session-1", final.SessionID)

	select {
	case <-h.Done():
	default:
		t.Fatal("done channel not closed")
	}
	assert.Nil(t, o.Active())
}

func TestRetrievalProgressIsMonotonic(t *testing.T) {
	o, sched := newTestOrchestrator(WithJitter(func() int { return -5 }))

	h, err := o.StartTurn(context.Background(), "XX项目的招标要求有哪些？", TurnOptions{})
	require.NoError(t, err)
	rec := record(h)
	sched.RunAll(runLimit)

	retrieving := rec.inPhase(model.PhaseRetrieving)
	require.NotEmpty(t, retrieving)

	var progress []int
	for i, s := range retrieving {
		progress = append(progress, s.Retrieval.ProgressPercent)
		assert.LessOrEqual(t, s.Retrieval.SourcesScanned, s.Retrieval.SourcesTotal)
		if i > 0 {
			prev := retrieving[i-1].Retrieval
			assert.GreaterOrEqual(t, s.Retrieval.SourcesScanned, prev.SourcesScanned)
			assert.GreaterOrEqual(t, s.Retrieval.ProgressPercent, prev.ProgressPercent)
			assert.GreaterOrEqual(t, s.Retrieval.MatchesFound, prev.MatchesFound)
		}
	}
	assert.Equal(t, []int{10, 30, 50, 70, 90, 100}, progress)

	last := retrieving[len(retrieving)-1]
	assert.Equal(t, LabelAnalyzing, last.Retrieval.CurrentLabel)
	assert.Equal(t, 100, last.Retrieval.ProgressPercent)
}

func TestRetrievalScansLabelsInOrder(t *testing.T) {
	o, sched := newTestOrchestrator()

	h, err := o.StartTurn(context.Background(), "随便问点别的", TurnOptions{
		KnowledgeBases: []string{"产品资料库", "  ", "竞品分析库", "方法论库"},
	})
	require.NoError(t, err)
	rec := record(h)
	sched.RunAll(runLimit)

	var labels []string
	var matches []int
	for _, s := range rec.inPhase(model.PhaseRetrieving) {
		assert.Equal(t, 3, s.Retrieval.SourcesTotal)
		labels = append(labels, s.Retrieval.CurrentLabel)
		matches = append(matches, s.Retrieval.MatchesFound)
	}
	assert.Equal(t, []string{LabelConnecting, "产品资料库", "竞品分析库", "方法论库", LabelAnalyzing}, labels)
	assert.Equal(t, []int{0, 3, 6, 9, 9}, matches)
	assert.Equal(t, catalog.CategoryOverview, rec.last().Answer.Category)
}

func TestPacingFollowsVirtualTime(t *testing.T) {
	o, sched := newTestOrchestrator()

	h, err := o.StartTurn(context.Background(), "报价是多少？", TurnOptions{})
	require.NoError(t, err)

	snap := h.Snapshot()
	assert.Equal(t, model.PhaseRetrieving, snap.Phase)
	assert.Equal(t, LabelConnecting, snap.Retrieval.CurrentLabel)
	assert.Equal(t, 10, snap.Retrieval.ProgressPercent)

	sched.Advance(399 * time.Millisecond)
	assert.Equal(t, 0, h.Snapshot().Retrieval.SourcesScanned)

	sched.Advance(time.Millisecond)
	assert.Equal(t, 1, h.Snapshot().Retrieval.SourcesScanned)
	assert.Equal(t, "企业产品库", h.Snapshot().Retrieval.CurrentLabel)

	sched.Advance(1600 * time.Millisecond)
	snap = h.Snapshot()
	assert.Equal(t, LabelAnalyzing, snap.Retrieval.CurrentLabel)
	assert.Equal(t, model.PhaseRetrieving, snap.Phase)

	sched.Advance(400 * time.Millisecond)
	snap = h.Snapshot()
	assert.Equal(t, model.PhaseAnswering, snap.Phase)
	assert.Zero(t, snap.RevealedLength)

	sched.Advance(15 * time.Millisecond)
	assert.Equal(t, 3, h.Snapshot().RevealedLength)

	sched.Advance(30 * time.Millisecond)
	assert.Equal(t, 9, h.Snapshot().RevealedLength)
}

func TestRevealIsCompleteAndPrefixGrowing(t *testing.T) {
	o, sched := newTestOrchestrator()

	h, err := o.StartTurn(context.Background(), "我们的核心产品和竞品有什么区别？", TurnOptions{})
	require.NoError(t, err)
	rec := record(h)
	sched.RunAll(runLimit)

	answering := rec.inPhase(model.PhaseAnswering)
	require.NotEmpty(t, answering)
	full := answering[0].Answer.FullText

	assert.Zero(t, answering[0].RevealedLength)
	reachedFull := 0
	for i, s := range answering {
		text := s.RevealedText()
		assert.True(t, strings.HasPrefix(full, text))
		assert.LessOrEqual(t, s.RevealedLength, s.AnswerLength())
		if i > 0 {
			prev := answering[i-1]
			assert.Greater(t, s.RevealedLength, prev.RevealedLength)
			assert.LessOrEqual(t, s.RevealedLength-prev.RevealedLength, 3)
			assert.True(t, strings.HasPrefix(text, prev.RevealedText()))
		}
		if s.RevealedLength == s.AnswerLength() {
			reachedFull++
		}
	}
	assert.Equal(t, 1, reachedFull)
	assert.Equal(t, full, answering[len(answering)-1].RevealedText())

	done := rec.last()
	assert.Equal(t, model.PhaseDone, done.Phase)
	assert.Equal(t, full, done.RevealedText())
}

func TestRevealCountsRunes(t *testing.T) {
	o, sched := newTestOrchestrator()

	h, err := o.StartTurn(context.Background(), "报价是多少？", TurnOptions{})
	require.NoError(t, err)
	sched.Advance(2415 * time.Millisecond)

	snap := h.Snapshot()
	require.Equal(t, model.PhaseAnswering, snap.Phase)
	assert.Equal(t, []rune(snap.Answer.FullText)[:3], []rune(snap.RevealedText()))
}

func TestDeepReasoningAppendsFixedSteps(t *testing.T) {
	o, sched := newTestOrchestrator()

	h, err := o.StartTurn(context.Background(), "XX项目的招标要求有哪些？", TurnOptions{DeepReasoning: true})
	require.NoError(t, err)
	rec := record(h)
	sched.RunAll(runLimit)

	assert.Equal(t, []model.Phase{
		model.PhaseRetrieving,
		model.PhaseReasoning,
		model.PhaseAnswering,
		model.PhaseDone,
	}, rec.phases())

	reasoning := rec.inPhase(model.PhaseReasoning)
	require.Len(t, reasoning, len(ReasoningSteps))
	for i, s := range reasoning {
		assert.Equal(t, ReasoningSteps[:i+1], s.ReasoningSteps)
	}
	for _, s := range rec.inPhase(model.PhaseRetrieving) {
		assert.Empty(t, s.ReasoningSteps)
	}
	assert.Equal(t, ReasoningSteps, rec.last().ReasoningSteps)
	assert.True(t, rec.last().DeepReasoning)
}

func TestNormalModeNeverReasons(t *testing.T) {
	o, sched := newTestOrchestrator()

	h, err := o.StartTurn(context.Background(), "XX项目的招标要求有哪些？", TurnOptions{})
	require.NoError(t, err)
	rec := record(h)
	sched.RunAll(runLimit)

	assert.Empty(t, rec.inPhase(model.PhaseReasoning))
	for _, s := range rec.snaps {
		assert.Empty(t, s.ReasoningSteps)
	}
}

func TestStartTurnRejectsBlankQuestion(t *testing.T) {
	o, sched := newTestOrchestrator()

	for _, q := range []string{"", "   ", "\n\t"} {
		h, err := o.StartTurn(context.Background(), q, TurnOptions{})
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Nil(t, h)
	}
	assert.Nil(t, o.Active())
	assert.Zero(t, sched.Pending())
}

func TestSingleActiveTurn(t *testing.T) {
	o, sched := newTestOrchestrator()

	first, err := o.StartTurn(context.Background(), "报价是多少？", TurnOptions{})
	require.NoError(t, err)

	_, err = o.StartTurn(context.Background(), "另一个问题", TurnOptions{})
	assert.True(t, errors.Is(err, ErrBusy))

	sched.Advance(3 * time.Second)
	_, err = o.StartTurn(context.Background(), "另一个问题", TurnOptions{})
	assert.ErrorIs(t, err, ErrBusy)

	sched.RunAll(runLimit)
	assert.True(t, first.Finished())

	second, err := o.StartTurn(context.Background(), "另一个问题", TurnOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())

	second.Cancel()
	third, err := o.StartTurn(context.Background(), "第三个问题", TurnOptions{})
	require.NoError(t, err)
	assert.Same(t, third, o.Active())
}

func TestCancelFreezesState(t *testing.T) {
	o, sched := newTestOrchestrator()

	h, err := o.StartTurn(context.Background(), "报价是多少？", TurnOptions{DeepReasoning: true})
	require.NoError(t, err)
	rec := record(h)

	sched.Advance(1200 * time.Millisecond)
	before := h.Snapshot()
	require.Equal(t, 3, before.Retrieval.SourcesScanned)

	h.Cancel()
	assert.Zero(t, sched.Pending())
	assert.Nil(t, o.Active())

	after := h.Snapshot()
	assert.True(t, after.Cancelled)
	assert.Equal(t, before.Phase, after.Phase)
	assert.Equal(t, before.Retrieval, after.Retrieval)
	assert.Nil(t, after.Answer)

	count := len(rec.snaps)
	assert.True(t, rec.last().Cancelled)

	h.Cancel()
	sched.RunAll(runLimit)
	assert.Len(t, rec.snaps, count)
	assert.Equal(t, after, h.Snapshot())

	select {
	case <-h.Done():
	default:
		t.Fatal("done channel not closed after cancel")
	}
}

func TestCancelAfterDoneIsNoop(t *testing.T) {
	o, sched := newTestOrchestrator()

	h, err := o.StartTurn(context.Background(), "报价是多少？", TurnOptions{})
	require.NoError(t, err)
	rec := record(h)
	sched.RunAll(runLimit)

	done := h.Snapshot()
	count := len(rec.snaps)

	h.Cancel()
	h.Cancel()
	assert.False(t, o.CancelActive())

	assert.Equal(t, done, h.Snapshot())
	assert.False(t, h.Snapshot().Cancelled)
	assert.Len(t, rec.snaps, count)
}

func TestCancelDuringReveal(t *testing.T) {
	o, sched := newTestOrchestrator()

	h, err := o.StartTurn(context.Background(), "报价是多少？", TurnOptions{})
	require.NoError(t, err)
	sched.Advance(2400*time.Millisecond + 60*time.Millisecond)

	require.True(t, o.CancelActive())
	snap := h.Snapshot()
	assert.Equal(t, model.PhaseAnswering, snap.Phase)
	assert.Equal(t, 12, snap.RevealedLength)

	sched.RunAll(runLimit)
	assert.Equal(t, 12, h.Snapshot().RevealedLength)
}

func TestSubscribeReplaysAndUnsubscribes(t *testing.T) {
	o, sched := newTestOrchestrator()

	h, err := o.StartTurn(context.Background(), "报价是多少？", TurnOptions{})
	require.NoError(t, err)
	sched.Advance(800 * time.Millisecond)

	var got []model.Turn
	unsubscribe := h.Subscribe(func(t model.Turn) { got = append(got, t) })
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Retrieval.SourcesScanned)

	sched.Advance(400 * time.Millisecond)
	require.Len(t, got, 2)

	unsubscribe()
	sched.RunAll(runLimit)
	assert.Len(t, got, 2)
}

func TestListenerMayStartNextTurnOnDone(t *testing.T) {
	o, sched := newTestOrchestrator()

	h, err := o.StartTurn(context.Background(), "报价是多少？", TurnOptions{})
	require.NoError(t, err)

	var next *Handle
	h.Subscribe(func(t model.Turn) {
		if t.Phase == model.PhaseDone && next == nil {
			next, err = o.StartTurn(context.Background(), "我们的核心产品和竞品有什么区别？", TurnOptions{})
		}
	})

	sched.RunAll(runLimit)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, model.PhaseDone, next.Snapshot().Phase)
	assert.Equal(t, catalog.CategoryComparison, next.Snapshot().Answer.Category)
}

func TestListenerMayCancel(t *testing.T) {
	o, sched := newTestOrchestrator()

	h, err := o.StartTurn(context.Background(), "报价是多少？", TurnOptions{})
	require.NoError(t, err)

	var seen []model.Turn
	h.Subscribe(func(t model.Turn) {
		seen = append(seen, t)
		if t.Phase == model.PhaseAnswering && t.RevealedLength >= 6 {
			h.Cancel()
		}
	})
	sched.RunAll(runLimit)

	last := seen[len(seen)-1]
	assert.True(t, last.Cancelled)
	assert.Equal(t, 6, last.RevealedLength)
	assert.Equal(t, 6, seen[len(seen)-2].RevealedLength)
	assert.Nil(t, o.Active())
}

func TestPublishesLifecycleEvents(t *testing.T) {
	pub := &fakePublisher{}
	o, sched := newTestOrchestrator(WithPublisher(pub))

	_, err := o.StartTurn(context.Background(), "报价是多少？", TurnOptions{})
	require.NoError(t, err)
	sched.RunAll(runLimit)
	assert.Equal(t, []model.EventType{model.EventTypeStarted, model.EventTypePhase, model.EventTypeCompleted}, pub.types())
	assert.Equal(t, catalog.CategoryPricing, pub.events[2].Category)
	assert.Equal(t, "session-1", pub.events[0].SessionID)

	pub.events = nil
	_, err = o.StartTurn(context.Background(), "报价是多少？", TurnOptions{DeepReasoning: true})
	require.NoError(t, err)
	sched.RunAll(runLimit)
	assert.Equal(t, []model.EventType{
		model.EventTypeStarted,
		model.EventTypePhase,
		model.EventTypePhase,
		model.EventTypeCompleted,
	}, pub.types())
	assert.Equal(t, model.PhaseReasoning, pub.events[1].Phase)
	assert.Equal(t, model.PhaseAnswering, pub.events[2].Phase)

	pub.events = nil
	pub.err = errors.New("nats down")
	h, err := o.StartTurn(context.Background(), "报价是多少？", TurnOptions{})
	require.NoError(t, err)
	h.Cancel()
	assert.Equal(t, []model.EventType{model.EventTypeStarted, model.EventTypeCancelled}, pub.types())
}

func TestEmptyAnswerFinishesImmediately(t *testing.T) {
	empty := catalog.New(nil, model.Answer{FullText: ""})
	sched := scheduler.NewManual()
	o := New(empty, WithScheduler(sched), WithLogger(logger.NewNop()))

	h, err := o.StartTurn(context.Background(), "hello", TurnOptions{})
	require.NoError(t, err)
	rec := record(h)
	sched.RunAll(runLimit)

	assert.Equal(t, []model.Phase{model.PhaseRetrieving, model.PhaseAnswering, model.PhaseDone}, rec.phases())
	assert.Zero(t, rec.last().RevealedLength)
}

func TestRealSchedulerRunsToCompletion(t *testing.T) {
	o := New(catalog.Default(),
		WithLogger(logger.NewNop()),
		WithPacing(Pacing{
			ConnectDelay:       time.Millisecond,
			RetrievalStepDelay: time.Millisecond,
			AnalyzeDelay:       time.Millisecond,
			ReasoningStepDelay: time.Millisecond,
			RevealInterval:     time.Millisecond,
			RevealChunk:        64,
		}),
	)

	h, err := o.StartTurn(context.Background(), "报价是多少？", TurnOptions{DeepReasoning: true})
	require.NoError(t, err)

	var mu sync.Mutex
	var phases []model.Phase
	h.Subscribe(func(t model.Turn) {
		mu.Lock()
		phases = append(phases, t.Phase)
		mu.Unlock()
	})

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("turn did not finish")
	}

	snap := h.Snapshot()
	assert.Equal(t, model.PhaseDone, snap.Phase)
	assert.Equal(t, snap.Answer.FullText, snap.RevealedText())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, model.PhaseDone, phases[len(phases)-1])
}

func TestStartTurnSucceedsOnceSnapshotIsFinished(t *testing.T) {
	o := New(catalog.Default(),
		WithLogger(logger.NewNop()),
		WithDefaultKnowledgeBases([]string{"产品手册"}),
		WithPacing(Pacing{
			ConnectDelay:       time.Microsecond,
			RetrievalStepDelay: time.Microsecond,
			AnalyzeDelay:       time.Microsecond,
			ReasoningStepDelay: time.Microsecond,
			RevealInterval:     time.Microsecond,
			RevealChunk:        512,
		}),
	)

	h, err := o.StartTurn(context.Background(), "报价是多少？", TurnOptions{})
	require.NoError(t, err)

	for i := 0; i < 300; i++ {
		seen := make(chan struct{})
		go func(h *Handle) {
			defer close(seen)
			for {
				snap := h.Snapshot()
				if snap.Finished() {
					return
				}
				runtime.Gosched()
			}
		}(h)

		if i%3 == 2 {
			go h.Cancel()
		}
		<-seen

		h, err = o.StartTurn(context.Background(), "报价是多少？", TurnOptions{})
		require.NoError(t, err, "iteration %d", i)
	}

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("turn did not finish")
	}
}

func TestScanProgress(t *testing.T) {
	assert.Equal(t, 10, scanProgress(0, 0))
	assert.Equal(t, 37, scanProgress(1, 3))
	assert.Equal(t, 63, scanProgress(2, 3))
	assert.Equal(t, 90, scanProgress(3, 3))
	assert.Equal(t, 90, scanProgress(1, 1))
}
