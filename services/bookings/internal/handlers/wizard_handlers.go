package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/autoescola/internal/http/response"
	"github.com/diagnosis/autoescola/pkg/logger"
	"github.com/diagnosis/autoescola/services/bookings/internal/domain"
)

type dateTimeReq struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type instructorReq struct {
	InstructorID int64 `json:"instructor_id"`
}

type vehicleReq struct {
	VehicleID int64 `json:"vehicle_id"`
}

type locationReq struct {
	Location string `json:"location"`
}

type stepRes struct {
	Moved bool              `json:"moved"`
	Draft *domain.DraftView `json:"draft"`
}

// draftRequest resolves the caller and draft id, adding the draft id to the log context.
func draftRequest(w http.ResponseWriter, r *http.Request) (context.Context, domain.Student, string, bool) {
	student, ok := studentFromRequest(r)
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return nil, domain.Student{}, "", false
	}
	id := chi.URLParam(r, "id")
	ctx := context.WithValue(r.Context(), logger.DraftIDKey, id)
	return ctx, student, id, true
}

// StartWizard handles POST /v1/wizards
func (h *Handlers) StartWizard(w http.ResponseWriter, r *http.Request) {
	student, ok := studentFromRequest(r)
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	v, err := h.wizardService.Start(r.Context(), student)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, v)
}

func (h *Handlers) GetWizard(w http.ResponseWriter, r *http.Request) {
	ctx, student, id, ok := draftRequest(w, r)
	if !ok {
		return
	}
	v, err := h.wizardService.Get(ctx, student.ID, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, v)
}

func (h *Handlers) DiscardWizard(w http.ResponseWriter, r *http.Request) {
	ctx, student, id, ok := draftRequest(w, r)
	if !ok {
		return
	}
	if err := h.wizardService.Discard(ctx, student.ID, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) SetDateTime(w http.ResponseWriter, r *http.Request) {
	ctx, student, id, ok := draftRequest(w, r)
	if !ok {
		return
	}
	var req dateTimeReq
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}

	v, err := h.wizardService.SetDateTime(ctx, student.ID, id, req.Date, req.Time)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, v)
}

func (h *Handlers) SelectInstructor(w http.ResponseWriter, r *http.Request) {
	ctx, student, id, ok := draftRequest(w, r)
	if !ok {
		return
	}
	var req instructorReq
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}

	v, err := h.wizardService.SelectInstructor(ctx, student.ID, id, req.InstructorID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, v)
}

func (h *Handlers) SelectVehicle(w http.ResponseWriter, r *http.Request) {
	ctx, student, id, ok := draftRequest(w, r)
	if !ok {
		return
	}
	var req vehicleReq
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}

	v, err := h.wizardService.SelectVehicle(ctx, student.ID, id, req.VehicleID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, v)
}

func (h *Handlers) SelectLocation(w http.ResponseWriter, r *http.Request) {
	ctx, student, id, ok := draftRequest(w, r)
	if !ok {
		return
	}
	var req locationReq
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}

	v, err := h.wizardService.SelectLocation(ctx, student.ID, id, req.Location)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, v)
}

// Advance answers 200 whether or not the step moved; see "moved".
func (h *Handlers) Advance(w http.ResponseWriter, r *http.Request) {
	ctx, student, id, ok := draftRequest(w, r)
	if !ok {
		return
	}
	v, moved, err := h.wizardService.Advance(ctx, student.ID, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, stepRes{Moved: moved, Draft: v})
}

func (h *Handlers) Retreat(w http.ResponseWriter, r *http.Request) {
	ctx, student, id, ok := draftRequest(w, r)
	if !ok {
		return
	}
	v, moved, err := h.wizardService.Retreat(ctx, student.ID, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, stepRes{Moved: moved, Draft: v})
}

// Submit handles POST /v1/wizards/{id}/submit
func (h *Handlers) Submit(w http.ResponseWriter, r *http.Request) {
	ctx, student, id, ok := draftRequest(w, r)
	if !ok {
		return
	}
	sub, err := h.wizardService.Submit(ctx, student, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, sub)
}

func (h *Handlers) GetCatalog(w http.ResponseWriter, r *http.Request) {
	c, err := h.wizardService.Catalog(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, c)
}

func (h *Handlers) GetProgress(w http.ResponseWriter, r *http.Request) {
	student, ok := studentFromRequest(r)
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}
	p, err := h.wizardService.Progress(r.Context(), student.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, p)
}

func (h *Handlers) ListInstructorLessons(w http.ResponseWriter, r *http.Request) {
	caller, ok := studentFromRequest(r)
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}
	limit, offset := parsePagination(r)

	lessons, err := h.wizardService.InstructorLessons(r.Context(), caller.ID, limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if lessons == nil {
		lessons = []domain.InstructorLesson{}
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"lessons": lessons,
		"limit":   limit,
		"offset":  offset,
	})
}

type lessonStatusReq struct {
	Status string `json:"status"`
}

func (h *Handlers) UpdateLessonStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := studentFromRequest(r)
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}
	lessonID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || lessonID <= 0 {
		response.BadRequest(w, "Invalid lesson id")
		return
	}

	var req lessonStatusReq
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}
	next, ok := domain.ParseLessonStatus(req.Status)
	if !ok {
		response.WriteErrorWithDetails(w, http.StatusBadRequest, "Status inválido", response.CodeInvalidInput,
			map[string]string{"status": "unknown status " + strconv.Quote(req.Status)})
		return
	}

	lesson, err := h.wizardService.UpdateLessonStatus(r.Context(), caller.ID, lessonID, next)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, lesson)
}
