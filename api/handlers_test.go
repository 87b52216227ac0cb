package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/mizuki-commits/dashboard-template/domain"
	"github.com/mizuki-commits/dashboard-template/storage"
	"github.com/mizuki-commits/dashboard-template/todoist"
)

const testToken = "header.payload.signature"

var fixedNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// memStore keeps dashboards as encoded documents so handlers never share
// slices or maps with the stored copy.
type memStore struct {
	mu      sync.Mutex
	docs    map[string][]byte
	saves   int
	loadErr error
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{docs: map[string][]byte{}}
}

func (s *memStore) LoadDashboard(_ context.Context, userID string) (domain.Dashboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return domain.Dashboard{}, s.loadErr
	}
	raw, ok := s.docs[userID]
	if !ok {
		return domain.Dashboard{}, domain.ErrNotFound
	}
	var d domain.Dashboard
	err := sonic.Unmarshal(raw, &d)
	return d, err
}

func (s *memStore) SaveDashboard(_ context.Context, d domain.Dashboard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	raw, err := sonic.Marshal(d)
	if err != nil {
		return err
	}
	s.saves++
	s.docs[d.UserID] = raw
	return nil
}

func (s *memStore) dashboard(t *testing.T, userID string) domain.Dashboard {
	t.Helper()
	d, err := s.LoadDashboard(context.Background(), userID)
	if err != nil {
		t.Fatalf("load %s: %v", userID, err)
	}
	return d
}

type fakeAuth struct{}

func (fakeAuth) UserIDFromAuthHeader(h string) (string, error) {
	if h != "Bearer "+testToken {
		return "", errBadAuthorization
	}
	return "admin", nil
}

func (fakeAuth) Login(username, password string) (Session, error) {
	if username != "admin" || password != "pw" {
		return Session{}, errInvalidCredentials
	}
	return Session{Token: testToken, User: username, ExpiresAt: fixedNow.Add(time.Hour)}, nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	updates []storage.Update
}

func (p *recordingPublisher) Publish(_ context.Context, u storage.Update) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, u)
	return nil
}

type testEnv struct {
	e     *echo.Echo
	srv   *Server
	store *memStore
	pub   *recordingPublisher
	hook  *test.Hook
}

func newTestEnv(t *testing.T, opts ...func(*Deps)) *testEnv {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	store := newMemStore()
	pub := &recordingPublisher{}
	d := Deps{
		Store:     store,
		Auth:      fakeAuth{},
		Publisher: pub,
		Owner:     "admin",
		Logger:    logger,
		Now:       func() time.Time { return fixedNow },
	}
	for _, opt := range opts {
		opt(&d)
	}
	srv := NewServer(d)
	e := echo.New()
	srv.Register(e)
	return &testEnv{e: e, srv: srv, store: store, pub: pub, hook: hook}
}

func (env *testEnv) request(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := sonic.Marshal(b)
		if err != nil {
			panic(err)
		}
		r = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	return env.request(method, path, body, map[string]string{echo.HeaderAuthorization: "Bearer " + testToken})
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := sonic.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(http.MethodGet, "/healthz", nil, nil)
	expectStatus(t, rec, http.StatusOK)
}

func TestRequireUserRejectsMissingToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(http.MethodGet, "/api/mode", nil, nil)
	expectStatus(t, rec, http.StatusUnauthorized)
	if body := decodeBody[errorBody](t, rec); body.Error != msgUnauthorized {
		t.Fatalf("unexpected error message: %q", body.Error)
	}
}

func TestRequireUserAcceptsQueryToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(http.MethodGet, "/api/auth/session?token="+testToken, nil, nil)
	expectStatus(t, rec, http.StatusOK)
	if body := decodeBody[map[string]string](t, rec); body["user"] != "admin" {
		t.Fatalf("unexpected session body: %v", body)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(http.MethodPost, "/api/auth/login", map[string]string{"username": "admin", "password": "pw"}, nil)
	expectStatus(t, rec, http.StatusOK)
	if sess := decodeBody[Session](t, rec); sess.Token != testToken {
		t.Fatalf("unexpected token: %q", sess.Token)
	}

	rec = env.request(http.MethodPost, "/api/auth/login", map[string]string{"username": "admin", "password": "nope"}, nil)
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = env.request(http.MethodPost, "/api/auth/login", map[string]string{"username": "admin"}, nil)
	expectStatus(t, rec, http.StatusBadRequest)
	body := decodeBody[errorBody](t, rec)
	if body.Error != msgInvalidInput || body.Fields["password"] == "" {
		t.Fatalf("expected field error for password, got %+v", body)
	}
}

func TestModeSeedsAndSwitches(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/mode", nil)
	expectStatus(t, rec, http.StatusOK)
	got := decodeBody[modeResponse](t, rec)
	if got.Mode != domain.DefaultMode || len(got.Modes) != len(domain.Modes) {
		t.Fatalf("unexpected mode response: %+v", got)
	}

	rec = env.do(http.MethodPut, "/api/mode", map[string]string{"mode": "sales"})
	expectStatus(t, rec, http.StatusOK)
	if got := decodeBody[modeResponse](t, rec); got.Mode != domain.ModeSales || got.Label != domain.ModeSales.Label() {
		t.Fatalf("unexpected mode after switch: %+v", got)
	}
	if d := env.store.dashboard(t, "admin"); d.Mode != domain.ModeSales {
		t.Fatalf("mode not persisted: %s", d.Mode)
	}
	if len(env.pub.updates) != 1 || env.pub.updates[0].UserID != "admin" {
		t.Fatalf("expected one published update, got %+v", env.pub.updates)
	}

	rec = env.do(http.MethodPut, "/api/mode", map[string]string{"mode": "space"})
	expectStatus(t, rec, http.StatusBadRequest)
	if body := decodeBody[errorBody](t, rec); body.Error != "不正なモードです。" {
		t.Fatalf("unexpected error: %q", body.Error)
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPut, "/api/mode", `{"mode":"sales","extra":1}`)
	expectStatus(t, rec, http.StatusBadRequest)
	if body := decodeBody[errorBody](t, rec); body.Error != msgInvalidBody {
		t.Fatalf("unexpected error: %q", body.Error)
	}
}

func TestModeBoardAndProgress(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/modes/education", nil)
	expectStatus(t, rec, http.StatusOK)
	board := decodeBody[boardResponse](t, rec)
	if len(board.Checklist) == 0 {
		t.Fatal("expected seeded checklist")
	}
	if board.Kpi[domain.PeriodMonth].Target != 5 {
		t.Fatalf("unexpected default month target: %+v", board.Kpi[domain.PeriodMonth])
	}

	rec = env.do(http.MethodPost, "/api/modes/education/checklist/categories/edu-school-1/items/edu-item-1-2/toggle", nil)
	expectStatus(t, rec, http.StatusOK)
	if item := decodeBody[domain.ChecklistItem](t, rec); !item.Completed {
		t.Fatal("expected item to be completed")
	}

	rec = env.do(http.MethodGet, "/api/modes/education/progress", nil)
	expectStatus(t, rec, http.StatusOK)
	p := decodeBody[domain.Progress](t, rec)
	if p.ChecklistCompleted != 1 || p.ChecklistTotal != 6 || p.ChecklistPercent != 17 {
		t.Fatalf("unexpected progress: %+v", p)
	}

	rec = env.do(http.MethodGet, "/api/modes/unknown", nil)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestPutKpi(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPut, "/api/modes/sales/kpi/month", map[string]int{"contract": 4, "contact": -2})
	expectStatus(t, rec, http.StatusOK)
	v := decodeBody[kpiView](t, rec)
	if v.Contract != 4 || v.Contact != 0 || v.Target != 5 || v.Achievement != 80 {
		t.Fatalf("unexpected kpi: %+v", v)
	}

	rec = env.do(http.MethodPut, "/api/modes/sales/kpi/decade", map[string]int{"contract": 1})
	expectStatus(t, rec, http.StatusBadRequest)
	if body := decodeBody[errorBody](t, rec); body.Error != "不正な期間です。" {
		t.Fatalf("unexpected error: %q", body.Error)
	}
}

func TestChecklistLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/modes/projects/checklist/categories", map[string]string{"title": "新規案件"})
	expectStatus(t, rec, http.StatusCreated)
	cat := decodeBody[domain.ChecklistCategory](t, rec)
	if cat.IconID != domain.ModeProjects.DefaultIcon() {
		t.Fatalf("expected default icon, got %q", cat.IconID)
	}
	base := "/api/modes/projects/checklist/categories/" + cat.ID

	rec = env.do(http.MethodPost, base+"/items", map[string]any{"label": "見積書を送信", "deadline": "2026-03-20", "remindDays": 3})
	expectStatus(t, rec, http.StatusCreated)
	item := decodeBody[domain.ChecklistItem](t, rec)
	if item.Deadline != "2026-03-20" || item.StartDate != "2026-03-10" {
		t.Fatalf("unexpected dates: %+v", item)
	}
	if len(item.SubItems) != 1 || item.SubItems[0].Deadline != "2026-03-23" {
		t.Fatalf("expected remind sub-item three days after the deadline, got %+v", item.SubItems)
	}

	rec = env.do(http.MethodPost, base+"/items/"+item.ID+"/subitems", map[string]any{"label": "宛先確認", "assignee": "NISHIKATA"})
	expectStatus(t, rec, http.StatusCreated)
	subs := decodeBody[map[string][]domain.ChecklistSubItem](t, rec)["subItems"]
	if len(subs) != 1 || subs[0].Assignee != domain.AssigneeNishikata || subs[0].Deadline != "2026-03-17" {
		t.Fatalf("unexpected sub-items: %+v", subs)
	}

	rec = env.do(http.MethodPatch, base+"/items/"+item.ID+"/subitems/"+subs[0].ID, map[string]any{"completed": true})
	expectStatus(t, rec, http.StatusOK)

	rec = env.do(http.MethodPatch, base+"/items/"+item.ID, map[string]any{"label": "  "})
	expectStatus(t, rec, http.StatusBadRequest)
	if body := decodeBody[errorBody](t, rec); body.Fields["label"] == "" {
		t.Fatalf("expected label field error, got %+v", body)
	}

	rec = env.do(http.MethodPost, base+"/items", map[string]any{"label": "書類を提出", "deadline": "2026-03-20", "remind": true})
	expectStatus(t, rec, http.StatusCreated)
	reminded := decodeBody[domain.ChecklistItem](t, rec)
	if len(reminded.SubItems) != 1 || reminded.SubItems[0].Deadline != "2026-03-23" {
		t.Fatalf("expected default remind offset, got %+v", reminded.SubItems)
	}

	rec = env.do(http.MethodPost, base+"/items", map[string]any{"label": "書類を提出", "deadline": "2026-03-20"})
	expectStatus(t, rec, http.StatusCreated)
	if plain := decodeBody[domain.ChecklistItem](t, rec); len(plain.SubItems) != 0 {
		t.Fatalf("remind must stay off unless requested, got %+v", plain.SubItems)
	}

	rec = env.do(http.MethodPost, base+"/items", map[string]any{"label": "x", "remindDays": 4})
	expectStatus(t, rec, http.StatusBadRequest)
	if body := decodeBody[errorBody](t, rec); body.Fields["remindDays"] == "" {
		t.Fatalf("expected remindDays field error, got %+v", body)
	}

	rec = env.do(http.MethodPost, base+"/items", map[string]any{"label": "x", "deadline": "3月末"})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = env.do(http.MethodDelete, base+"/items/"+item.ID+"/subitems/"+item.SubItems[0].ID, nil)
	expectStatus(t, rec, http.StatusNoContent)

	d := env.store.dashboard(t, "admin")
	b := d.Boards[domain.ModeProjects]
	_, stored, err := b.Checklist.Item(cat.ID, item.ID)
	if err != nil {
		t.Fatalf("stored item: %v", err)
	}
	if len(stored.SubItems) != 1 || !stored.SubItems[0].Completed {
		t.Fatalf("unexpected stored sub-items: %+v", stored.SubItems)
	}

	rec = env.do(http.MethodDelete, base, nil)
	expectStatus(t, rec, http.StatusNoContent)
	rec = env.do(http.MethodDelete, base, nil)
	expectStatus(t, rec, http.StatusNotFound)
	if body := decodeBody[errorBody](t, rec); body.Error != msgNotFound {
		t.Fatalf("unexpected error: %q", body.Error)
	}
}

func TestChecklistToKanban(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/modes/education/checklist/kanban", map[string]any{
		"selections": []map[string]string{
			{"categoryId": "edu-school-1", "itemId": "edu-item-1-1", "subItemId": "edu-sub-1-1-2"},
			{"categoryId": "edu-school-2", "itemId": "edu-item-2-1"},
		},
	})
	expectStatus(t, rec, http.StatusCreated)
	tasks := decodeBody[map[string][]domain.KanbanTask](t, rec)["tasks"]
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %+v", tasks)
	}
	if tasks[0].Title != "資料準備" || tasks[0].Source != domain.SourceChecklist || tasks[0].Column != domain.ColumnTodo {
		t.Fatalf("unexpected first task: %+v", tasks[0])
	}
	if tasks[0].LinkedEntity == nil || tasks[0].LinkedEntity.Name != "北九州工業高等専門学校" {
		t.Fatalf("unexpected link: %+v", tasks[0].LinkedEntity)
	}

	rec = env.do(http.MethodPost, "/api/modes/education/checklist/kanban", map[string]any{"selections": []any{}})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = env.do(http.MethodPost, "/api/modes/education/checklist/kanban", map[string]any{
		"selections": []map[string]string{{"categoryId": "nope", "itemId": "nope"}},
	})
	expectStatus(t, rec, http.StatusBadRequest)
	if body := decodeBody[errorBody](t, rec); body.Error != "チェックリストの項目を選択してください。" {
		t.Fatalf("unexpected error: %q", body.Error)
	}
}

func TestKanbanLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/kanban/tasks", map[string]any{"title": "提案書レビュー", "deadline": "2026-03-09", "assignee": "MIZUKI"})
	expectStatus(t, rec, http.StatusCreated)
	task := decodeBody[domain.KanbanTask](t, rec)
	if task.Column != domain.ColumnTodo || task.Source != domain.SourceManual {
		t.Fatalf("unexpected defaults: %+v", task)
	}

	rec = env.do(http.MethodPost, "/api/kanban/tasks", map[string]any{"title": " "})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = env.do(http.MethodGet, "/api/modes/sales/alerts", nil)
	expectStatus(t, rec, http.StatusOK)
	alerts := decodeBody[map[string][]domain.Alert](t, rec)["alerts"]
	if len(alerts) == 0 || alerts[0].ID != task.ID || alerts[0].Kind != domain.AlertOverdue {
		t.Fatalf("expected overdue kanban alert first, got %+v", alerts)
	}

	rec = env.do(http.MethodPost, "/api/kanban/tasks/"+task.ID+"/move", map[string]string{"column": "done"})
	expectStatus(t, rec, http.StatusOK)
	rec = env.do(http.MethodPost, "/api/kanban/tasks/"+task.ID+"/move", map[string]string{"column": "later"})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = env.do(http.MethodGet, "/api/kanban?column=done", nil)
	expectStatus(t, rec, http.StatusOK)
	got := decodeBody[kanbanResponse](t, rec)
	if len(got.Tasks) != 1 || got.Progress.TasksDone != 1 || got.Progress.TasksPercent != 100 {
		t.Fatalf("unexpected kanban: %+v", got)
	}

	rec = env.do(http.MethodPatch, "/api/kanban/tasks/"+task.ID, map[string]any{"description": "最終確認"})
	expectStatus(t, rec, http.StatusOK)
	if got := decodeBody[domain.KanbanTask](t, rec); got.Description != "最終確認" || got.Column != domain.ColumnDone {
		t.Fatalf("unexpected patched task: %+v", got)
	}

	rec = env.do(http.MethodGet, "/api/kanban/export.csv", nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.HasPrefix(rec.Body.String(), todoist.BOM+"TYPE,CONTENT") {
		t.Fatalf("expected BOM and header, got %q", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "提案書レビュー") {
		t.Fatalf("expected task in export: %q", rec.Body.String())
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, "kanban.csv") {
		t.Fatalf("unexpected content disposition: %q", cd)
	}

	rec = env.do(http.MethodDelete, "/api/kanban/tasks/"+task.ID, nil)
	expectStatus(t, rec, http.StatusNoContent)
	rec = env.do(http.MethodDelete, "/api/kanban/tasks/"+task.ID, nil)
	expectStatus(t, rec, http.StatusNotFound)
}

func TestChecklistExport(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/modes/recruitment/checklist/export.csv", nil)
	expectStatus(t, rec, http.StatusOK)
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type: %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "求人票の作成支援") {
		t.Fatalf("expected seeded item in export: %q", rec.Body.String())
	}
}

func TestCalendar(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/modes/education/calendar?month=2026-04", nil)
	expectStatus(t, rec, http.StatusOK)
	events := decodeBody[map[string][]domain.CalendarEvent](t, rec)["events"]
	if len(events) == 0 {
		t.Fatal("expected seeded item deadlines in April")
	}

	rec = env.do(http.MethodGet, "/api/modes/education/calendar?month=2026-13", nil)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestRoadmapAndResources(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/modes/ai_support/roadmap/goals", map[string]string{"title": "導入企業 3 社", "targetDate": "2026-06-30"})
	expectStatus(t, rec, http.StatusCreated)
	goal := decodeBody[domain.RoadmapGoal](t, rec)
	if goal.Status != domain.GoalNotStarted {
		t.Fatalf("unexpected default status: %q", goal.Status)
	}

	rec = env.do(http.MethodPatch, "/api/modes/ai_support/roadmap/goals/"+goal.ID, map[string]string{"status": "achieved"})
	expectStatus(t, rec, http.StatusOK)
	rec = env.do(http.MethodPatch, "/api/modes/ai_support/roadmap/goals/"+goal.ID, map[string]string{"status": "maybe"})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = env.do(http.MethodPost, "/api/modes/ai_support/roadmap/milestones", map[string]string{"title": "PoC 完了", "date": "2026-04-15"})
	expectStatus(t, rec, http.StatusCreated)
	ms := decodeBody[domain.RoadmapMilestone](t, rec)
	rec = env.do(http.MethodDelete, "/api/modes/ai_support/roadmap/milestones/"+ms.ID, nil)
	expectStatus(t, rec, http.StatusNoContent)

	rec = env.do(http.MethodPost, "/api/modes/ai_support/resources", map[string]string{"title": "提案資料"})
	expectStatus(t, rec, http.StatusBadRequest)
	if body := decodeBody[errorBody](t, rec); body.Error != "タイトルとURLは必須です。" {
		t.Fatalf("unexpected error: %q", body.Error)
	}

	rec = env.do(http.MethodPost, "/api/modes/ai_support/resources", map[string]string{"title": "提案資料", "url": "https://example.com/deck"})
	expectStatus(t, rec, http.StatusCreated)

	b := env.store.dashboard(t, "admin").Boards[domain.ModeAISupport]
	if len(b.Goals) != 1 || b.Goals[0].Status != domain.GoalAchieved {
		t.Fatalf("unexpected goals: %+v", b.Goals)
	}
	if len(b.Milestones) != 0 || len(b.Resources) != 1 {
		t.Fatalf("unexpected roadmap state: %+v", b)
	}
}

func TestStorageFailures(t *testing.T) {
	env := newTestEnv(t)

	env.store.saveErr = errors.New("table unavailable")
	rec := env.do(http.MethodPut, "/api/mode", map[string]string{"mode": "sales"})
	expectStatus(t, rec, http.StatusServiceUnavailable)
	if body := decodeBody[errorBody](t, rec); body.Error != msgStorageFailed {
		t.Fatalf("unexpected error: %q", body.Error)
	}

	env.store.loadErr = errors.New("table unavailable")
	rec = env.do(http.MethodGet, "/api/mode", nil)
	expectStatus(t, rec, http.StatusServiceUnavailable)

	var failed bool
	for _, entry := range env.hook.AllEntries() {
		if entry.Message == "request.failed" {
			failed = true
		}
	}
	if !failed {
		t.Fatal("expected request.failed log entry")
	}
}
