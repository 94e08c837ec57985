package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/formfill/internal/domain"
	"github.com/ashureev/formfill/internal/orchestrator"
	"github.com/ashureev/formfill/internal/tools"
	"github.com/go-chi/chi/v5"
)

type fakeRepo struct {
	mu          sync.Mutex
	sessions    map[string]*domain.Session
	runs        []*domain.RunRecord
	submissions []*domain.FormSubmission
	touched     []string
	pingErr     error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{sessions: make(map[string]*domain.Session)}
}

func (f *fakeRepo) CreateSession(_ context.Context, s *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy := *s
	f.sessions[s.ThreadID] = &copy
	return nil
}

func (f *fakeRepo) GetSession(_ context.Context, threadID string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[threadID], nil
}

func (f *fakeRepo) TouchSession(_ context.Context, threadID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, threadID)
	return nil
}

func (f *fakeRepo) RecordRun(_ context.Context, run *domain.RunRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeRepo) ListRuns(_ context.Context, _ string) ([]*domain.RunRecord, error) {
	return nil, nil
}

func (f *fakeRepo) SaveFormSubmission(_ context.Context, sub *domain.FormSubmission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions = append(f.submissions, sub)
	return nil
}

func (f *fakeRepo) LatestFormSubmission(_ context.Context, _ string) (*domain.FormSubmission, error) {
	return nil, nil
}

func (f *fakeRepo) GetAssistant(_ context.Context, _ string) (*domain.AssistantRecord, error) {
	return nil, nil
}
func (f *fakeRepo) UpsertAssistant(_ context.Context, _ *domain.AssistantRecord) error { return nil }
func (f *fakeRepo) GetVectorStore(_ context.Context, _ string) (*domain.VectorStoreRecord, error) {
	return nil, nil
}
func (f *fakeRepo) UpsertVectorStore(_ context.Context, _ *domain.VectorStoreRecord) error { return nil }
func (f *fakeRepo) PruneBefore(_ context.Context, _ time.Time) (int64, error)              { return 0, nil }
func (f *fakeRepo) Ping(_ context.Context) error                                           { return f.pingErr }
func (f *fakeRepo) Close() error                                                           { return nil }

type fakeThreads struct {
	next int
	err  error
}

func (f *fakeThreads) CreateThread(_ context.Context) (domain.Thread, error) {
	if f.err != nil {
		return domain.Thread{}, f.err
	}
	f.next++
	return domain.Thread{ID: "thread_new_" + string(rune('0'+f.next))}, nil
}

type fakeRunner struct {
	reply    *orchestrator.Reply
	err      error
	sessions []orchestrator.Session
	contents []string
}

func (f *fakeRunner) Execute(_ context.Context, sess orchestrator.Session, content string) (*orchestrator.Reply, error) {
	f.sessions = append(f.sessions, sess)
	f.contents = append(f.contents, content)
	if f.err != nil {
		return nil, f.err
	}
	reply := *f.reply
	reply.ThreadID = sess.ThreadID
	return &reply, nil
}

func newTestRouter(repo *fakeRepo, threads *fakeThreads, runner *fakeRunner) http.Handler {
	h := NewHandler(repo, threads, runner, Options{
		Helper: Profile{Name: "Form Discussur", ID: "asst_helper", Instructions: "Please address the user as Hector."},
		Form:   Profile{Name: "Form Filler", ID: "asst_form"},
	})
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func post(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var got map[string]any
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return got
}

func TestSendPromptMissingParameters(t *testing.T) {
	runner := &fakeRunner{reply: &orchestrator.Reply{}}
	router := newTestRouter(newFakeRepo(), &fakeThreads{}, runner)

	for _, body := range []string{`{}`, `{"id": "thread_1"}`, `{"content": "hi"}`, ``} {
		w := post(t, router, "/api/sendprompt", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, w.Code)
		}
		got := decode(t, w)
		if got["error"] != "Missing required parameters 'id' or 'content'" {
			t.Errorf("body %q: unexpected error %v", body, got["error"])
		}
	}
	if len(runner.sessions) != 0 {
		t.Errorf("runner must not be called, got %d calls", len(runner.sessions))
	}
}

func TestSendPromptInvalidJSON(t *testing.T) {
	router := newTestRouter(newFakeRepo(), &fakeThreads{}, &fakeRunner{})
	w := post(t, router, "/api/sendprompt", `{"id":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSendPromptUsesHelperAssistant(t *testing.T) {
	repo := newFakeRepo()
	runner := &fakeRunner{reply: &orchestrator.Reply{RunID: "run_1", Status: domain.RunStatusCompleted, Text: "Hello Hector"}}
	router := newTestRouter(repo, &fakeThreads{}, runner)

	w := post(t, router, "/api/sendprompt", `{"id": "thread_1", "content": "What is this form?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := decode(t, w); got["messages"] != "Hello Hector" {
		t.Errorf("unexpected messages %v", got["messages"])
	}

	sess := runner.sessions[0]
	if sess.ThreadID != "thread_1" || sess.AssistantID != "asst_helper" || sess.Instructions != "Please address the user as Hector." {
		t.Errorf("unexpected session %+v", sess)
	}
	if runner.contents[0] != "What is this form?" {
		t.Errorf("content must be forwarded unchanged, got %q", runner.contents[0])
	}
	if len(repo.runs) != 1 || repo.runs[0].RunID != "run_1" || repo.runs[0].Status != domain.RunStatusCompleted {
		t.Errorf("expected one recorded run, got %+v", repo.runs)
	}
	if len(repo.touched) != 1 || repo.touched[0] != "thread_1" {
		t.Errorf("expected thread_1 touched, got %v", repo.touched)
	}
}

func TestSendPromptOrchestrationFailure(t *testing.T) {
	repo := newFakeRepo()
	runner := &fakeRunner{err: &orchestrator.Error{
		Kind:     orchestrator.KindRunTerminal,
		Op:       "settle run",
		ThreadID: "thread_1",
		RunID:    "run_9",
		Status:   domain.RunStatusFailed,
		Err:      orchestrator.ErrRunEnded,
	}}
	router := newTestRouter(repo, &fakeThreads{}, runner)

	w := post(t, router, "/api/sendprompt", `{"id": "thread_1", "content": "hi"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	got := decode(t, w)
	if got["error"] != "Internal Server Error" {
		t.Errorf("unexpected error %v", got["error"])
	}
	if got["kind"] != string(orchestrator.KindRunTerminal) {
		t.Errorf("unexpected kind %v", got["kind"])
	}
	if details, _ := got["details"].(string); !strings.Contains(details, "run_9") {
		t.Errorf("details should name the run, got %q", details)
	}
	if len(repo.runs) != 1 || repo.runs[0].ErrorKind != string(orchestrator.KindRunTerminal) {
		t.Errorf("expected failed run recorded, got %+v", repo.runs)
	}
	if len(repo.touched) != 0 {
		t.Errorf("failed prompt must not touch the session")
	}
}

func TestHelpThreadCreatesSession(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(repo, &fakeThreads{}, &fakeRunner{})

	w := post(t, router, "/api/helpthread", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	id, _ := decode(t, w)["id"].(string)
	if id == "" {
		t.Fatal("expected thread id")
	}
	sess := repo.sessions[id]
	if sess == nil || sess.Kind != domain.SessionKindHelper || sess.AssistantName != "Form Discussur" {
		t.Errorf("unexpected session %+v", sess)
	}
}

func TestHelpThreadRemoteFailure(t *testing.T) {
	router := newTestRouter(newFakeRepo(), &fakeThreads{err: errors.New("unauthorized")}, &fakeRunner{})

	w := post(t, router, "/api/helpthread", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if got := decode(t, w); got["kind"] != string(orchestrator.KindRemoteService) {
		t.Errorf("unexpected kind %v", got["kind"])
	}
}

func TestFormCallCapturesResponses(t *testing.T) {
	repo := newFakeRepo()
	runner := &fakeRunner{reply: &orchestrator.Reply{
		RunID:  "run_form",
		Status: domain.RunStatusCompleted,
		Text:   "Filled what I could.",
		Rounds: 1,
		Invocations: []orchestrator.Invocation{{
			Round:  1,
			Call:   domain.ToolCall{ID: "call_1", Name: tools.FillFormsName, Arguments: `{"responses": "Name: Hector\nEmail: h@example.com"}`},
			Output: domain.ToolOutput{ToolCallID: "call_1", Output: tools.FillFormsAck},
		}},
	}}
	router := newTestRouter(repo, &fakeThreads{}, runner)

	w := post(t, router, "/api/formcall", `{"forms": ["Name:", "Email:"], "context": "VIP client"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	got := decode(t, w)
	if got["messages"] != "Filled what I could." {
		t.Errorf("unexpected messages %v", got["messages"])
	}
	if got["responses"] != "Name: Hector\nEmail: h@example.com" {
		t.Errorf("unexpected responses %v", got["responses"])
	}

	sess := runner.sessions[0]
	if sess.AssistantID != "asst_form" || sess.Instructions != "" {
		t.Errorf("unexpected session %+v", sess)
	}
	if !strings.HasPrefix(runner.contents[0], "['Name:', 'Email:'] Here are the forms.") ||
		!strings.HasSuffix(runner.contents[0], " Here's additional context: VIP client") {
		t.Errorf("unexpected content %q", runner.contents[0])
	}
	if stored := repo.sessions[sess.ThreadID]; stored == nil || stored.Kind != domain.SessionKindForm {
		t.Errorf("expected form session for %s", sess.ThreadID)
	}
	if len(repo.submissions) != 1 || repo.submissions[0].RunID != "run_form" {
		t.Errorf("expected one submission, got %+v", repo.submissions)
	}
}

func TestFormCallWithoutToolCall(t *testing.T) {
	repo := newFakeRepo()
	runner := &fakeRunner{reply: &orchestrator.Reply{RunID: "run_form", Status: domain.RunStatusCompleted, Text: "Nothing to fill."}}
	router := newTestRouter(repo, &fakeThreads{}, runner)

	w := post(t, router, "/api/formcall", `{"forms": ["Name:"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	got := decode(t, w)
	if v, ok := got["responses"]; !ok || v != nil {
		t.Errorf("expected responses to be null, got %v (present=%v)", v, ok)
	}
	if strings.Contains(runner.contents[0], "additional context") {
		t.Error("empty context must not add a context suffix")
	}
	if len(repo.submissions) != 0 {
		t.Errorf("no submission expected, got %d", len(repo.submissions))
	}
}

func TestFormCallFailure(t *testing.T) {
	runner := &fakeRunner{err: &orchestrator.Error{Kind: orchestrator.KindRunStuck, Op: "settle run", Err: orchestrator.ErrRoundLimit}}
	router := newTestRouter(newFakeRepo(), &fakeThreads{}, runner)

	w := post(t, router, "/api/formcall", `{"forms": []}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if got := decode(t, w); got["kind"] != string(orchestrator.KindRunStuck) {
		t.Errorf("unexpected kind %v", got["kind"])
	}
}

func TestReady(t *testing.T) {
	repo := newFakeRepo()
	router := newTestRouter(repo, &fakeThreads{}, &fakeRunner{})

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	repo.pingErr = errors.New("closed")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
