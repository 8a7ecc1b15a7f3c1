package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jakechorley/rehab-roster/pkg/core/model"
	"github.com/jakechorley/rehab-roster/pkg/core/services"
	"github.com/jakechorley/rehab-roster/pkg/core/workflow"
	"github.com/jakechorley/rehab-roster/pkg/db"
	"github.com/jakechorley/rehab-roster/pkg/export"
)

var validate = validator.New()

// Handler holds the dependencies of the HTTP handlers
type Handler struct {
	Schedules db.ScheduleStore
	Roster    db.RosterStore
	Registry  *Registry
	logger    *zap.Logger
}

// NewHandler creates a handler over a registry
func NewHandler(registry *Registry, logger *zap.Logger) *Handler {
	return &Handler{
		Schedules: registry.schedules,
		Roster:    registry.roster,
		Registry:  registry,
		logger:    logger,
	}
}

// dateParam reads the {date} URL parameter
func dateParam(r *http.Request) (time.Time, error) {
	return services.ParseDate(chi.URLParam(r, "date"))
}

// decode reads and validates a JSON body. An empty body leaves v zeroed.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// session opens the day named in the URL, writing the error response on failure
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session, time.Time, bool) {
	date, err := dateParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return nil, time.Time{}, false
	}
	s, err := h.Registry.Open(r.Context(), date)
	if err != nil {
		h.logger.Error("Failed to open day", zap.String("date", date.Format("2006-01-02")), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to open day", err)
		return nil, time.Time{}, false
	}
	return s, date, true
}

func (h *Handler) dayResponse(s *session, date time.Time) DayResponse {
	undo, redo := s.controller.History()
	resp := DayResponse{
		Date:       date.Format("2006-01-02"),
		State:      s.controller.State(),
		Capacities: toCapacityDTOs(s.controller.Capacities()),
		Undo:       nonNil(undo),
		Redo:       nonNil(redo),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	resp.ScheduleID = s.scheduleID
	resp.RosterError = s.rosterErr
	if s.drift.HasDrift() {
		drift := s.drift
		resp.Drift = &drift
	}
	return resp
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// statusFor maps controller errors onto HTTP statuses
func statusFor(err error) int {
	switch {
	case errors.Is(err, workflow.ErrInvalidEdit):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrUnknownStaff):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrConfirmationRequired),
		errors.Is(err, workflow.ErrStepNotReady),
		errors.Is(err, workflow.ErrNothingToUndo),
		errors.Is(err, workflow.ErrNothingToRedo),
		errors.Is(err, workflow.ErrCancelled):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeControllerError(w http.ResponseWriter, action string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Controller action failed", zap.String("action", action), zap.Error(err))
	}
	writeError(w, status, fmt.Sprintf("Failed to %s", action), err)
}

// GetDay returns a day, opening it on first use.
// GET /api/days/{date}
func (h *Handler) GetDay(w http.ResponseWriter, r *http.Request) {
	s, date, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.dayResponse(s, date))
}

// CloseDay discards a day's unsaved edits.
// DELETE /api/days/{date}
func (h *Handler) CloseDay(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	if !h.Registry.Close(date) {
		writeError(w, http.StatusNotFound, "Day is not open", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RunStep runs one step with any supplied escalation answers.
// POST /api/days/{date}/steps/{step}/run
func (h *Handler) RunStep(w http.ResponseWriter, r *http.Request) {
	var req RunStepRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	s, date, ok := h.session(w, r)
	if !ok {
		return
	}
	step := model.StepID(chi.URLParam(r, "step"))

	script := req.Answers.script()
	s.useScript(script)

	if err := s.controller.RunStep(r.Context(), step, req.Confirm); err != nil {
		h.writeControllerError(w, "run "+string(step), err)
		return
	}

	resp := h.dayResponse(s, date)
	resp.Escalations = toEscalationsDTO(script)
	writeJSON(w, http.StatusOK, resp)
}

// ClearStep clears one step and every later step.
// POST /api/days/{date}/steps/{step}/clear
func (h *Handler) ClearStep(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	s, date, ok := h.session(w, r)
	if !ok {
		return
	}
	step := model.StepID(chi.URLParam(r, "step"))

	if err := s.controller.ClearStep(step, req.Confirm); err != nil {
		h.writeControllerError(w, "clear "+string(step), err)
		return
	}
	writeJSON(w, http.StatusOK, h.dayResponse(s, date))
}

// GoTo moves the current step.
// POST /api/days/{date}/goto
func (h *Handler) GoTo(w http.ResponseWriter, r *http.Request) {
	var req GoToRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	h.act(w, r, "move step", func(c *workflow.Controller) error {
		return c.GoTo(req.Step)
	})
}

// ResetToBaseline discards every result and override of the day.
// POST /api/days/{date}/reset
func (h *Handler) ResetToBaseline(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "reset day", func(c *workflow.Controller) error {
		return c.ResetToBaseline()
	})
}

// Undo reverts the latest edit.
// POST /api/days/{date}/undo
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "undo", func(c *workflow.Controller) error {
		_, err := c.Undo()
		return err
	})
}

// Redo re-applies the latest undone edit.
// POST /api/days/{date}/redo
func (h *Handler) Redo(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "redo", func(c *workflow.Controller) error {
		_, err := c.Redo()
		return err
	})
}

// act runs a controller action on the day in the URL and returns the day
func (h *Handler) act(w http.ResponseWriter, r *http.Request, action string, fn func(c *workflow.Controller) error) {
	s, date, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := fn(s.controller); err != nil {
		h.writeControllerError(w, action, err)
		return
	}
	writeJSON(w, http.StatusOK, h.dayResponse(s, date))
}

// edit decodes an edit request and applies it
func edit[T any](h *Handler, action string, apply func(c *workflow.Controller, req T) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req T
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request", err)
			return
		}
		h.act(w, r, action, func(c *workflow.Controller) error {
			return apply(c, req)
		})
	}
}

// MoveSlots handles POST /api/days/{date}/edits/move-slots
func (h *Handler) MoveSlots() http.HandlerFunc {
	return edit(h, "move slots", func(c *workflow.Controller, req MoveSlotsRequest) error {
		return c.MoveSlots(req.StaffID, req.From, req.To, req.Slots)
	})
}

// DiscardSlots handles POST /api/days/{date}/edits/discard-slots
func (h *Handler) DiscardSlots() http.HandlerFunc {
	return edit(h, "discard slots", func(c *workflow.Controller, req DiscardSlotsRequest) error {
		return c.DiscardSlots(req.StaffID, req.Team, req.Slots)
	})
}

// AssignSlot handles POST /api/days/{date}/edits/assign-slot
func (h *Handler) AssignSlot() http.HandlerFunc {
	return edit(h, "assign slot", func(c *workflow.Controller, req AssignSlotRequest) error {
		return c.AssignSlot(req.StaffID, req.Team, req.Slot)
	})
}

// EditLeave handles POST /api/days/{date}/edits/leave
func (h *Handler) EditLeave() http.HandlerFunc {
	return edit(h, "edit leave", func(c *workflow.Controller, req LeaveRequest) error {
		return c.EditLeave(req.StaffID, workflow.LeaveEdit{
			LeaveType:      req.LeaveType,
			FTERemaining:   req.FTERemaining,
			FTESubtraction: req.FTESubtraction,
			AvailableSlots: req.AvailableSlots,
			InvalidSlots:   req.InvalidSlots,
		})
	})
}

// SplitTherapist handles POST /api/days/{date}/edits/split-therapist
func (h *Handler) SplitTherapist() http.HandlerFunc {
	return edit(h, "split therapist", func(c *workflow.Controller, req SplitTherapistRequest) error {
		return c.SplitTherapist(req.StaffID, req.FTEByTeam)
	})
}

// MergeTherapist handles POST /api/days/{date}/edits/merge-therapist
func (h *Handler) MergeTherapist() http.HandlerFunc {
	return edit(h, "merge therapist", func(c *workflow.Controller, req MergeTherapistRequest) error {
		return c.MergeTherapist(req.StaffID, req.Team)
	})
}

// SetCardColor handles POST /api/days/{date}/edits/card-color
func (h *Handler) SetCardColor() http.HandlerFunc {
	return edit(h, "set card colour", func(c *workflow.Controller, req CardColorRequest) error {
		return c.SetCardColor(req.StaffID, req.Team, req.Color)
	})
}

// SetBedCount handles POST /api/days/{date}/edits/bed-count
func (h *Handler) SetBedCount() http.HandlerFunc {
	return edit(h, "set bed count", func(c *workflow.Controller, req BedCountRequest) error {
		return c.SetBedCountOverride(req.Team, model.BedCountOverride{SHS: req.SHS, StudentPlacement: req.StudentPlacement})
	})
}

// SetBedNote handles POST /api/days/{date}/edits/bed-note
func (h *Handler) SetBedNote() http.HandlerFunc {
	return edit(h, "set bed note", func(c *workflow.Controller, req BedNoteRequest) error {
		return c.SetBedNote(req.Team, req.Note)
	})
}

// SaveDay writes the day to storage.
// POST /api/days/{date}/save
func (h *Handler) SaveDay(w http.ResponseWriter, r *http.Request) {
	s, date, ok := h.session(w, r)
	if !ok {
		return
	}

	id, err := services.SaveDay(r.Context(), h.Schedules, h.logger, s.controller.State())
	if err != nil {
		h.logger.Error("Failed to save day", zap.String("date", date.Format("2006-01-02")), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to save day", err)
		return
	}

	s.mu.Lock()
	s.scheduleID = id
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, h.dayResponse(s, date))
}

// CopyDay copies the saved day onto another date. The target date is
// reopened from storage on its next use.
// POST /api/days/{date}/copy
func (h *Handler) CopyDay(w http.ResponseWriter, r *http.Request) {
	var req CopyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	from, err := dateParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	to, err := services.ParseDate(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid target date", err)
		return
	}

	result, err := services.CopySchedule(r.Context(), h.Schedules, h.Roster, h.Registry.cfg, h.logger, services.CopyRequest{
		From:               from,
		To:                 to,
		Mode:               req.Mode,
		IncludeBufferStaff: req.IncludeBufferStaff,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to copy day", err)
		return
	}
	h.Registry.Close(to)

	s, err := h.Registry.Open(r.Context(), to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to open copied day", err)
		return
	}
	resp := h.dayResponse(s, to)
	resp.Copy = &result.Report
	writeJSON(w, http.StatusCreated, resp)
}

// ExportDay streams the day as it is held, saved or not, as an Excel workbook.
// GET /api/days/{date}/export
func (h *Handler) ExportDay(w http.ResponseWriter, r *http.Request) {
	s, date, ok := h.session(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="rehab-%s.xlsx"`, date.Format("2006-01-02")))
	if err := export.Write(w, s.controller.State(), s.controller.Capacities()); err != nil {
		h.logger.Error("Failed to export day", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to export day", err)
	}
}

// ListSchedules returns the saved schedules, newest first.
// GET /api/schedules
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.Schedules.ListSchedules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list schedules", err)
		return
	}

	dtos := make([]ScheduleDTO, len(schedules))
	for i, s := range schedules {
		dtos[i] = ScheduleDTO{ID: s.ID, Date: s.Date}
		if !s.UpdatedAt.IsZero() {
			dtos[i].UpdatedAt = s.UpdatedAt.Format(time.RFC3339)
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListStaff returns the live roster staff.
// GET /api/staff
func (h *Handler) ListStaff(w http.ResponseWriter, r *http.Request) {
	live, err := services.LiveConfig(r.Context(), h.Roster, h.Registry.cfg, h.logger)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Failed to read roster", err)
		return
	}

	dtos := make([]StaffDTO, len(live.Staff))
	for i, st := range live.Staff {
		dtos[i] = StaffDTO{
			ID:       st.ID,
			Name:     st.Name,
			Rank:     st.Rank,
			Team:     st.Team,
			Floating: st.Floating,
			Status:   st.Status,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListOpenDays returns the dates held in memory.
// GET /api/days
func (h *Handler) ListOpenDays(w http.ResponseWriter, r *http.Request) {
	dates := h.Registry.OpenDates()
	slices.Sort(dates)
	writeJSON(w, http.StatusOK, dates)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
