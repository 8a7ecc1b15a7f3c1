package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/workflow"
	"github.com/jakechorley/rehab-roster/pkg/db"
	"github.com/jakechorley/rehab-roster/pkg/export"
	"github.com/jakechorley/rehab-roster/pkg/sqlite"
)

const monday = "2026-10-19"

// dayBody is the part of a DayResponse the tests look at
type dayBody struct {
	Date       string `json:"date"`
	ScheduleID string `json:"scheduleId"`
	State      struct {
		CurrentStep model.StepID                         `json:"currentStep"`
		Status      map[model.StepID]workflow.StepStatus `json:"status"`
		BedNotes    map[model.Team]string                `json:"bedNotes"`
	} `json:"state"`
	Capacities  []TeamCapacityDTO `json:"capacities"`
	Undo        []string          `json:"undo"`
	Redo        []string          `json:"redo"`
	Escalations *EscalationsDTO   `json:"escalations"`
	Copy        *struct {
		Mode workflow.CopyMode `json:"mode"`
	} `json:"copy"`
}

type testServer struct {
	router   http.Handler
	store    *sqlite.DB
	registry *Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.ReplaceRoster(context.Background(), db.Roster{
		Staff: []db.StaffRow{
			{ID: "t1", Name: "Ann", Rank: "RPT", Team: "FO", Status: "active"},
			{ID: "t2", Name: "Ben", Rank: "RPT", Team: "SMM", Status: "active"},
			{ID: "f1", Name: "Alice", Rank: "PCA", Floating: true, Status: "active"},
			{ID: "f2", Name: "Bob", Rank: "PCA", Floating: true, Status: "active"},
		},
		Wards: []db.WardRow{{Name: "R1", TotalBeds: 20, TeamBeds: "FO=10,SMM=10"}},
	}))

	registry := NewRegistry(store, store, nil, zap.NewNop())
	return &testServer{
		router:   NewRouter(NewHandler(registry, zap.NewNop()), nil),
		store:    store,
		registry: registry,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeDay(t *testing.T, rec *httptest.ResponseRecorder) dayBody {
	t.Helper()
	var body dayBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func (s *testServer) runAll(t *testing.T) {
	t.Helper()
	for _, step := range []model.StepID{model.StepLeaveFTE, model.StepTherapistPCA, model.StepFloatingPCA, model.StepBedRelieving} {
		rec := s.do(t, http.MethodPost, "/api/days/"+monday+"/steps/"+string(step)+"/run", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
}

func TestGetDay_OpensNewDay(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/days/"+monday, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeDay(t, rec)
	assert.Equal(t, monday, body.Date)
	assert.Empty(t, body.ScheduleID)
	assert.Equal(t, model.StepLeaveFTE, body.State.CurrentStep)
	assert.Equal(t, workflow.StatusPending, body.State.Status[model.StepLeaveFTE])
	assert.Empty(t, body.Undo)
	assert.Equal(t, []string{monday}, s.registry.OpenDates())
}

func TestGetDay_InvalidDate(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/days/19-10-2026", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunStep_AllStepsThenSave(t *testing.T) {
	s := newTestServer(t)
	s.runAll(t)

	rec := s.do(t, http.MethodPost, "/api/days/"+monday+"/save", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeDay(t, rec)
	assert.NotEmpty(t, body.ScheduleID)
	assert.Equal(t, workflow.StatusCompleted, body.State.Status[model.StepBedRelieving])

	rec = s.do(t, http.MethodGet, "/api/schedules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var schedules []ScheduleDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &schedules))
	require.Len(t, schedules, 1)
	assert.Equal(t, monday, schedules[0].Date)
	assert.Equal(t, body.ScheduleID, schedules[0].ID)
}

func TestRunStep_ReportsEscalations(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/days/"+monday+"/steps/leave-fte/run", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeDay(t, rec)
	require.NotNil(t, body.Escalations)
	assert.Equal(t, workflow.StatusCompleted, body.State.Status[model.StepLeaveFTE])
}

func TestRunStep_Conflicts(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/days/"+monday+"/steps/floating-pca/run", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "earlier steps pending")

	s.runAll(t)
	rec = s.do(t, http.MethodPost, "/api/days/"+monday+"/steps/therapist-pca/run", RunStepRequest{})
	assert.Equal(t, http.StatusConflict, rec.Code, "later steps hold results")

	rec = s.do(t, http.MethodPost, "/api/days/"+monday+"/steps/therapist-pca/run", RunStepRequest{Confirm: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeDay(t, rec)
	assert.Equal(t, workflow.StatusPending, body.State.Status[model.StepFloatingPCA])
}

func TestRunStep_InvalidAnswers(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/days/"+monday+"/steps/leave-fte/run", RunStepRequest{
		Answers: AnswersDTO{TieBreaks: []model.Team{"XX"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearStep(t *testing.T) {
	s := newTestServer(t)
	s.runAll(t)

	rec := s.do(t, http.MethodPost, "/api/days/"+monday+"/steps/floating-pca/clear", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/days/"+monday+"/steps/floating-pca/clear", ConfirmRequest{Confirm: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeDay(t, rec)
	assert.Equal(t, workflow.StatusPending, body.State.Status[model.StepFloatingPCA])
	assert.Equal(t, workflow.StatusPending, body.State.Status[model.StepBedRelieving])
	assert.Equal(t, workflow.StatusCompleted, body.State.Status[model.StepTherapistPCA])
}

func TestGoTo(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/days/"+monday+"/goto", GoToRequest{Step: model.StepReview})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/days/"+monday+"/goto", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "step is required")

	s.runAll(t)
	rec = s.do(t, http.MethodPost, "/api/days/"+monday+"/goto", GoToRequest{Step: model.StepReview})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.StepReview, decodeDay(t, rec).State.CurrentStep)
}

func TestEdits_UndoRedo(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/days/"+monday+"/undo", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "nothing to undo")

	rec = s.do(t, http.MethodPost, "/api/days/"+monday+"/edits/bed-note", BedNoteRequest{Team: model.TeamFO, Note: "cover R1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeDay(t, rec)
	assert.Equal(t, "cover R1", body.State.BedNotes[model.TeamFO])
	assert.Equal(t, []string{"set bed note"}, body.Undo)

	rec = s.do(t, http.MethodPost, "/api/days/"+monday+"/undo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeDay(t, rec)
	assert.Empty(t, body.State.BedNotes)
	assert.Equal(t, []string{"set bed note"}, body.Redo)

	rec = s.do(t, http.MethodPost, "/api/days/"+monday+"/redo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cover R1", decodeDay(t, rec).State.BedNotes[model.TeamFO])
}

func TestEdits_Errors(t *testing.T) {
	s := newTestServer(t)
	leave := model.LeaveVL

	rec := s.do(t, http.MethodPost, "/api/days/"+monday+"/edits/leave", LeaveRequest{StaffID: "nobody", LeaveType: &leave})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/days/"+monday+"/edits/move-slots", MoveSlotsRequest{
		StaffID: "f1", From: model.TeamFO, To: model.TeamFO, Slots: []model.Slot{1},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "from and to must differ")

	rec = s.do(t, http.MethodPost, "/api/days/"+monday+"/edits/bed-count", BedCountRequest{Team: "XX", SHS: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown team")

	req := httptest.NewRequest(http.MethodPost, "/api/days/"+monday+"/edits/bed-note", bytes.NewBufferString("{"))
	recorder := httptest.NewRecorder()
	s.router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestEditLeave_FlowsIntoCapacities(t *testing.T) {
	s := newTestServer(t)
	leave := model.LeaveVL

	rec := s.do(t, http.MethodPost, "/api/days/"+monday+"/edits/leave", LeaveRequest{StaffID: "t1", LeaveType: &leave})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"edit leave"}, decodeDay(t, rec).Undo)

	for _, step := range []model.StepID{model.StepLeaveFTE, model.StepTherapistPCA} {
		rec = s.do(t, http.MethodPost, "/api/days/"+monday+"/steps/"+string(step)+"/run", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	pt := map[model.Team]float64{}
	for _, c := range decodeDay(t, rec).Capacities {
		pt[c.Team] = c.PTFTE
	}
	assert.Zero(t, pt[model.TeamFO])
	assert.Equal(t, 1.0, pt[model.TeamSMM])
}

func TestCloseDay(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodDelete, "/api/days/"+monday, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s.do(t, http.MethodGet, "/api/days/"+monday, nil)
	rec = s.do(t, http.MethodDelete, "/api/days/"+monday, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, s.registry.OpenDates())
}

func TestCopyDay(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/days/"+monday+"/copy", CopyRequest{To: "2026-10-20", Mode: workflow.CopyFull})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "nothing saved yet")

	s.runAll(t)
	rec = s.do(t, http.MethodPost, "/api/days/"+monday+"/save", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/days/"+monday+"/copy", CopyRequest{To: "2026-10-20", Mode: workflow.CopyHybrid})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeDay(t, rec)
	assert.Equal(t, "2026-10-20", body.Date)
	assert.NotEmpty(t, body.ScheduleID)
	require.NotNil(t, body.Copy)
	assert.Equal(t, workflow.CopyHybrid, body.Copy.Mode)
	assert.Equal(t, workflow.StatusPending, body.State.Status[model.StepFloatingPCA])
	assert.Equal(t, workflow.StatusCompleted, body.State.Status[model.StepTherapistPCA])

	rec = s.do(t, http.MethodPost, "/api/days/"+monday+"/copy", CopyRequest{To: "2026-10-20", Mode: "partial"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportDay(t *testing.T) {
	s := newTestServer(t)
	s.runAll(t)

	rec := s.do(t, http.MethodGet, "/api/days/"+monday+"/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "rehab-2026-10-19.xlsx")

	wb, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer wb.Close()
	assert.Contains(t, wb.GetSheetList(), export.SheetPCAs)
}

func TestListStaff(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/staff", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var staff []StaffDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &staff))
	assert.Len(t, staff, 4)
}

func TestRegistry_OneSessionPerDate(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	mon := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	a, err := s.registry.Open(ctx, mon)
	require.NoError(t, err)
	b, err := s.registry.Open(ctx, mon)
	require.NoError(t, err)
	c, err := s.registry.Open(ctx, mon.AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.NotSame(t, a.controller, c.controller)
}

// gatedSchedules holds GetSchedule for one date until released
type gatedSchedules struct {
	*sqlite.DB
	date    string
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedSchedules) GetSchedule(ctx context.Context, date string) (*db.Schedule, error) {
	if date == g.date {
		if g.calls.Add(1) == 1 {
			close(g.entered)
		}
		<-g.release
	}
	return g.DB.GetSchedule(ctx, date)
}

func TestRegistry_LoadingDateDoesNotBlockOthers(t *testing.T) {
	s := newTestServer(t)
	gate := &gatedSchedules{DB: s.store, date: monday, entered: make(chan struct{}), release: make(chan struct{})}
	registry := NewRegistry(gate, s.store, nil, zap.NewNop())
	ctx := context.Background()
	mon := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	sessions := make([]*session, 3)
	errs := make([]error, 3)
	open := func(i int) {
		defer wg.Done()
		sessions[i], errs[i] = registry.Open(ctx, mon)
	}

	wg.Add(1)
	go open(0)
	select {
	case <-gate.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("monday load never started")
	}
	wg.Add(2)
	go open(1)
	go open(2)

	done := make(chan error, 1)
	go func() {
		_, err := registry.Open(ctx, mon.AddDate(0, 0, 1))
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		close(gate.release)
		t.Fatal("tuesday waited for monday to load")
	}

	close(gate.release)
	wg.Wait()

	for i := range sessions {
		require.NoError(t, errs[i])
		assert.Same(t, sessions[0], sessions[i])
	}
	assert.Equal(t, int32(1), gate.calls.Load())
	assert.ElementsMatch(t, []string{"2026-10-19", "2026-10-20"}, registry.OpenDates())
}
