package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/presales-assistant/internal/catalog"
	"github.com/capitalize-ai/presales-assistant/internal/model"
	"github.com/capitalize-ai/presales-assistant/internal/orchestrator"
	"github.com/capitalize-ai/presales-assistant/internal/service"
	"github.com/capitalize-ai/presales-assistant/pkg/logger"
)

var (
	fastPacing = orchestrator.Pacing{
		ConnectDelay:       time.Millisecond,
		RetrievalStepDelay: time.Millisecond,
		AnalyzeDelay:       time.Millisecond,
		ReasoningStepDelay: time.Millisecond,
		RevealInterval:     time.Millisecond,
		RevealChunk:        40,
	}
	slowPacing = orchestrator.Pacing{
		ConnectDelay:       time.Hour,
		RetrievalStepDelay: time.Hour,
		AnalyzeDelay:       time.Hour,
		ReasoningStepDelay: time.Hour,
		RevealInterval:     time.Hour,
		RevealChunk:        3,
	}
)

type recordingSink struct {
	mu  sync.Mutex
	got []model.Notification
}

func (s *recordingSink) Notify(_ context.Context, message string, kind model.NotificationKind, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, model.Notification{Message: message, Kind: kind, Description: description})
}

func (s *recordingSink) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.got))
	for i, n := range s.got {
		out[i] = n.Message
	}
	return out
}

type testAPI struct {
	handler http.Handler
	svc     *service.SessionService
	sink    *recordingSink
}

func newTestAPI(t *testing.T, pacing orchestrator.Pacing) *testAPI {
	t.Helper()
	log := logger.NewNop()
	svc := service.NewSessionService(func(sessionID string) *orchestrator.Orchestrator {
		return orchestrator.New(catalog.Default(),
			orchestrator.WithSessionID(sessionID),
			orchestrator.WithPacing(pacing),
			orchestrator.WithLogger(log),
		)
	}, log)
	t.Cleanup(svc.Shutdown)

	sink := &recordingSink{}
	return &testAPI{
		handler: NewRouter(RouterConfig{
			Sessions:             svc,
			Notifier:             sink,
			Logger:               log,
			SSEHeartbeatInterval: time.Hour,
		}),
		svc:  svc,
		sink: sink,
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) createSession(t *testing.T) model.Session {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var sess model.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	return sess
}

type sseEvent struct {
	name string
	data string
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			}
		}
		require.NotEmpty(t, ev.name, "malformed SSE block %q", block)
		events = append(events, ev)
	}
	return events
}

func decode[T any](t *testing.T, data string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(data), &v))
	return v
}

func TestHealthAndReady(t *testing.T) {
	api := newTestAPI(t, fastPacing)

	rec := api.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","nats":"disabled"}`, rec.Body.String())
}

type staticChecker bool

func (c staticChecker) IsConnected() bool { return bool(c) }

func TestReadyReportsNATS(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(staticChecker(false)).Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	NewHealthHandler(staticChecker(true)).Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCatalogEndpoints(t *testing.T) {
	api := newTestAPI(t, fastPacing)

	rec := api.do(t, http.MethodGet, "/api/v1/assistants", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assistants := decode[map[string][]model.Assistant](t, rec.Body.String())["assistants"]
	assert.Len(t, assistants, len(catalog.Assistants()))

	rec = api.do(t, http.MethodPost, "/api/v1/assistants/"+catalog.AssistantBid+"/launch", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	launched := decode[model.Assistant](t, rec.Body.String())
	assert.Equal(t, catalog.AssistantBid, launched.ID)
	assert.Equal(t, []string{"已启动" + launched.Name}, api.sink.messages())

	rec = api.do(t, http.MethodPost, "/api/v1/assistants/nope/launch", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/knowledge-bases?scope=personal", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	kbs := decode[map[string][]model.KnowledgeBase](t, rec.Body.String())["knowledge_bases"]
	assert.Equal(t, catalog.KnowledgeBases(model.ScopePersonal), kbs)

	rec = api.do(t, http.MethodGet, "/api/v1/knowledge-bases?scope=galaxy", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/answer-categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	categories := decode[map[string][]string](t, rec.Body.String())["categories"]
	assert.Equal(t, catalog.Default().Categories(), categories)

	rec = api.do(t, http.MethodGet, "/api/v1/suggested-questions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	questions := decode[map[string][]model.SuggestedQuestion](t, rec.Body.String())["questions"]
	assert.Equal(t, catalog.SuggestedQuestions(), questions)
}

func TestSessionCRUD(t *testing.T) {
	api := newTestAPI(t, fastPacing)

	sess := api.createSession(t)
	path := "/api/v1/sessions/" + sess.ID

	rec := api.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sess.ID, decode[model.Session](t, rec.Body.String()).ID)

	rec = api.do(t, http.MethodPut, path, model.UpdateSessionRequest{Title: "XX项目"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "XX项目", decode[model.Session](t, rec.Body.String()).Title)

	rec = api.do(t, http.MethodPut, path, model.UpdateSessionRequest{Title: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/sessions?q=XX&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[model.ListSessionsResponse](t, rec.Body.String())
	assert.Equal(t, 1, list.Total)

	rec = api.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/sessions/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartTurnStatusCodes(t *testing.T) {
	api := newTestAPI(t, slowPacing)
	sess := api.createSession(t)
	turns := "/api/v1/sessions/" + sess.ID + "/turns"

	rec := api.do(t, http.MethodPost, turns, model.StartTurnRequest{Question: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, turns, model.StartTurnRequest{Question: "报价是多少？"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	started := decode[model.TurnSnapshotEvent](t, rec.Body.String())
	assert.Equal(t, model.PhaseRetrieving, started.Turn.Phase)
	assert.Equal(t, orchestrator.LabelConnecting, started.Turn.Retrieval.CurrentLabel)
	assert.Equal(t, turns+"/"+started.Turn.ID, rec.Header().Get("Location"))

	rec = api.do(t, http.MethodPost, turns, model.StartTurnRequest{Question: "另一个问题"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodPost, turns+"/stream", model.StartTurnRequest{Question: "另一个问题"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodGet, turns+"/"+started.Turn.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, started.Turn.ID, decode[model.TurnSnapshotEvent](t, rec.Body.String()).Turn.ID)

	rec = api.do(t, http.MethodDelete, turns+"/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.CancelTurnResponse{Cancelled: true, TurnID: started.Turn.ID},
		decode[model.CancelTurnResponse](t, rec.Body.String()))
	assert.Contains(t, api.sink.messages(), "已停止生成")

	rec = api.do(t, http.MethodDelete, turns+"/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[model.CancelTurnResponse](t, rec.Body.String()).Cancelled)

	rec = api.do(t, http.MethodPost, turns, model.StartTurnRequest{Question: "另一个问题", DeepReasoning: true})
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = api.do(t, http.MethodGet, turns, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[model.ListTurnsResponse](t, rec.Body.String())
	require.Len(t, history.Turns, 2)
	assert.True(t, history.Turns[0].Cancelled)
	assert.Equal(t, history.Turns[1].ID, history.ActiveTurnID)

	rec = api.do(t, http.MethodDelete, turns, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, api.sink.messages(), "对话已清空")

	rec = api.do(t, http.MethodGet, turns, nil)
	assert.Empty(t, decode[model.ListTurnsResponse](t, rec.Body.String()).Turns)

	rec = api.do(t, http.MethodGet, turns+"/0190a8b4-7c3e-7a51-9d2b-5f6c7d8e9f01", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/sessions/0190a8b4-7c3e-7a51-9d2b-5f6c7d8e9f01/turns",
		model.StartTurnRequest{Question: "报价是多少？"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartAndStream(t *testing.T) {
	api := newTestAPI(t, fastPacing)
	sess := api.createSession(t)
	turns := "/api/v1/sessions/" + sess.ID + "/turns"

	rec := api.do(t, http.MethodPost, turns+"/stream", model.StartTurnRequest{Question: "报价是多少？", DeepReasoning: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseSSE(t, rec.Body.String())
	require.GreaterOrEqual(t, len(events), 2)

	done := events[len(events)-1]
	require.Equal(t, "done", done.name)
	doneEvent := decode[model.TurnDoneEvent](t, done.data)
	assert.Equal(t, model.PhaseDone, doneEvent.Phase)
	assert.False(t, doneEvent.Cancelled)

	var lastLen int
	for _, ev := range events[:len(events)-1] {
		require.Equal(t, "turn", ev.name)
		snap := decode[model.TurnSnapshotEvent](t, ev.data)
		assert.GreaterOrEqual(t, snap.Turn.RevealedLength, lastLen)
		lastLen = snap.Turn.RevealedLength
	}

	final := decode[model.TurnSnapshotEvent](t, events[len(events)-2].data)
	expected := catalog.Default().Match("报价是多少？")
	assert.Equal(t, model.PhaseDone, final.Turn.Phase)
	assert.Equal(t, expected.FullText, final.RevealedText)
	assert.Equal(t, orchestrator.ReasoningSteps, final.Turn.ReasoningSteps)

	// A finished turn replays its final state and closes.
	rec = api.do(t, http.MethodGet, turns+"/"+doneEvent.TurnID+"/stream", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	replay := parseSSE(t, rec.Body.String())
	require.Len(t, replay, 2)
	assert.Equal(t, "turn", replay[0].name)
	assert.Equal(t, "done", replay[1].name)

	// Citation preview.
	citationPath := turns + "/" + doneEvent.TurnID + "/citations/" + expected.Citations[0].ID
	rec = api.do(t, http.MethodGet, citationPath+"?copy=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	preview := decode[model.CitationPreview](t, rec.Body.String())
	assert.Equal(t, expected.Citations[0].Title, preview.Citation.Title)
	assert.Contains(t, preview.Content, expected.Citations[0].Snippet)
	assert.Contains(t, api.sink.messages(), "已复制到剪贴板")

	rec = api.do(t, http.MethodGet, turns+"/"+doneEvent.TurnID+"/citations/cite-99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamFollowsBackgroundTurn(t *testing.T) {
	api := newTestAPI(t, fastPacing)
	sess := api.createSession(t)
	turns := "/api/v1/sessions/" + sess.ID + "/turns"

	rec := api.do(t, http.MethodPost, turns, model.StartTurnRequest{Question: "我们的核心产品和竞品有什么区别？"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decode[model.TurnSnapshotEvent](t, rec.Body.String()).Turn.ID

	rec = api.do(t, http.MethodGet, turns+"/"+id+"/stream", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := parseSSE(t, rec.Body.String())
	require.Equal(t, "done", events[len(events)-1].name)

	final := decode[model.TurnSnapshotEvent](t, events[len(events)-2].data)
	assert.Equal(t, catalog.CategoryComparison, final.Turn.Answer.Category)
}

func TestStreamDisconnectCancelsTurn(t *testing.T) {
	api := newTestAPI(t, slowPacing)
	sess := api.createSession(t)
	turns := "/api/v1/sessions/" + sess.ID + "/turns"

	body, err := json.Marshal(model.StartTurnRequest{Question: "报价是多少？"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, turns+"/stream", bytes.NewReader(body)).WithContext(ctx)
	rec := httptest.NewRecorder()

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		api.handler.ServeHTTP(rec, req)
	}()

	require.Eventually(t, func() bool {
		history, err := api.svc.History(context.Background(), sess.ID)
		return err == nil && history.ActiveTurnID != ""
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not return after disconnect")
	}

	history, err := api.svc.History(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, history.Turns, 1)
	assert.True(t, history.Turns[0].Cancelled)
	assert.Empty(t, history.ActiveTurnID)
}

func TestMailboxDeliversEachSnapshotOnce(t *testing.T) {
	box := newMailbox()

	box.put(model.Turn{Phase: model.PhaseRetrieving})
	<-box.ready
	box.put(model.Turn{Phase: model.PhaseAnswering, RevealedLength: 3})

	snap, ok := box.take()
	require.True(t, ok)
	assert.Equal(t, 3, snap.RevealedLength)

	<-box.ready
	_, ok = box.take()
	assert.False(t, ok)
}

type brokenWriter struct {
	header    http.Header
	writes    int
	failAfter int
}

func (w *brokenWriter) Header() http.Header { return w.header }

func (w *brokenWriter) WriteHeader(int) {}

func (w *brokenWriter) Write(p []byte) (int, error) {
	if w.writes >= w.failAfter {
		return 0, errors.New("broken pipe")
	}
	w.writes++
	return len(p), nil
}

func (w *brokenWriter) Flush() {}

func TestStreamEndsWhenHeartbeatWriteFails(t *testing.T) {
	api := newTestAPI(t, slowPacing)
	sess := api.createSession(t)

	turn, err := api.svc.StartTurn(context.Background(), sess.ID, &model.StartTurnRequest{Question: "报价是多少？"})
	require.NoError(t, err)

	h := NewStreamHandler(api.svc, 10*time.Millisecond, logger.NewNop())
	w := &brokenWriter{header: http.Header{}, failAfter: 1}
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		h.follow(w, req, turn, false)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("stream kept running after the connection broke")
	}
	assert.Equal(t, 1, w.writes)
	assert.False(t, turn.Finished())
}
