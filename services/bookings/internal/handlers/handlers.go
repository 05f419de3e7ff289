package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/autoescola/internal/accounts"
	"github.com/diagnosis/autoescola/internal/http/response"
	"github.com/diagnosis/autoescola/internal/wizard"
	"github.com/diagnosis/autoescola/pkg/logger"
	mw "github.com/diagnosis/autoescola/pkg/middleware"
	"github.com/diagnosis/autoescola/services/bookings/internal/domain"
	"github.com/diagnosis/autoescola/services/bookings/internal/service"
)

type Handlers struct {
	wizardService service.WizardService
}

func New(wizardService service.WizardService) *Handlers {
	return &Handlers{wizardService: wizardService}
}

// RouterConfig carries what the routes need besides the service. When Roles
// is set, every route also checks the caller's stored role.
type RouterConfig struct {
	JWTSecret      string
	Roles          mw.RoleSource
	Idempotency    mw.IdempotencyStore
	IdempotencyTTL time.Duration
}

func (cfg RouterConfig) session(roles ...accounts.Role) []func(http.Handler) http.Handler {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	mws := []func(http.Handler) http.Handler{mw.RequireSession(cfg.JWTSecret, names...)}
	if cfg.Roles != nil {
		mws = append(mws, mw.RequireStoredRole(cfg.Roles, names...))
	}
	return mws
}

// Routes mounts the /v1 API.
func (h *Handlers) Routes(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Route("/v1", func(r chi.Router) {
		r.With(cfg.session()...).Get("/catalog", h.GetCatalog)

		r.Route("/wizards", func(r chi.Router) {
			r.Use(cfg.session(accounts.RoleStudent)...)
			r.Post("/", h.StartWizard)
			r.Get("/{id}", h.GetWizard)
			r.Delete("/{id}", h.DiscardWizard)
			r.Put("/{id}/datetime", h.SetDateTime)
			r.Put("/{id}/instructor", h.SelectInstructor)
			r.Put("/{id}/vehicle", h.SelectVehicle)
			r.Put("/{id}/location", h.SelectLocation)
			r.Post("/{id}/advance", h.Advance)
			r.Post("/{id}/retreat", h.Retreat)
			r.With(mw.IdempotencyMiddleware(cfg.Idempotency, cfg.IdempotencyTTL)).Post("/{id}/submit", h.Submit)
		})

		r.With(cfg.session(accounts.RoleStudent)...).
			Get("/students/me/progress", h.GetProgress)

		r.Route("/instructors/me/lessons", func(r chi.Router) {
			r.Use(cfg.session(accounts.RoleInstructor)...)
			r.Get("/", h.ListInstructorLessons)
			r.Patch("/{id}", h.UpdateLessonStatus)
		})
	})

	return r
}

// Helper to get the authenticated student from the request
func studentFromRequest(r *http.Request) (domain.Student, bool) {
	claims := mw.ClaimsFromContext(r.Context())
	if claims == nil {
		return domain.Student{}, false
	}
	return domain.Student{ID: claims.UserID(), Email: claims.Email, Name: claims.FullName}, true
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeServiceError maps service and wizard errors onto HTTP answers.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrDraftNotFound):
		response.NotFound(w, "Wizard draft not found")
	case errors.Is(err, domain.ErrLessonNotFound):
		response.NotFound(w, "Aula não encontrada")
	case errors.Is(err, domain.ErrInvalidTransition):
		response.Conflict(w, err.Error(), response.CodeInvalidTransition)
	case errors.Is(err, domain.ErrSlotTaken):
		response.Conflict(w, "Este horário não está mais disponível para o instrutor", response.CodeSlotTaken)
	case errors.Is(err, wizard.ErrInstructorUnavailable):
		response.Conflict(w, "Instrutor indisponível", response.CodeInstructorUnavailable)
	case errors.Is(err, wizard.ErrNotReady):
		response.WriteError(w, http.StatusUnprocessableEntity, "Preencha todos os campos antes de confirmar", response.CodeWizardIncomplete)
	case errors.Is(err, wizard.ErrPastDate):
		response.WriteErrorWithDetails(w, http.StatusBadRequest, err.Error(), response.CodePastDate, map[string]string{"date": err.Error()})
	case errors.Is(err, wizard.ErrInvalidDate):
		response.WriteErrorWithDetails(w, http.StatusBadRequest, err.Error(), response.CodeInvalidInput, map[string]string{"date": err.Error()})
	case errors.Is(err, wizard.ErrUnknownTimeSlot):
		response.WriteErrorWithDetails(w, http.StatusBadRequest, err.Error(), response.CodeInvalidInput, map[string]string{"time": err.Error()})
	case errors.Is(err, wizard.ErrUnknownInstructor):
		response.WriteErrorWithDetails(w, http.StatusBadRequest, err.Error(), response.CodeInvalidInput, map[string]string{"instructor_id": err.Error()})
	case errors.Is(err, wizard.ErrUnknownVehicle):
		response.WriteErrorWithDetails(w, http.StatusBadRequest, err.Error(), response.CodeInvalidInput, map[string]string{"vehicle_id": err.Error()})
	case errors.Is(err, wizard.ErrUnknownLocation):
		response.WriteErrorWithDetails(w, http.StatusBadRequest, err.Error(), response.CodeInvalidInput, map[string]string{"location": err.Error()})
	default:
		logger.ErrorContext(r.Context(), "Wizard request failed", "error", err, "path", r.URL.Path)
		response.InternalError(w, "Internal server error")
	}
}

// Helper to parse pagination parameters
func parsePagination(r *http.Request) (limit, offset int) {
	limit = 20
	offset = 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return limit, offset
}
