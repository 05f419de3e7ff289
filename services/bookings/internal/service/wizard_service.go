package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/diagnosis/autoescola/internal/wizard"
	"github.com/diagnosis/autoescola/pkg/events"
	"github.com/diagnosis/autoescola/pkg/logger"
	"github.com/diagnosis/autoescola/services/bookings/internal/domain"
	"github.com/diagnosis/autoescola/services/bookings/internal/repository"
)

const successTitle = "Aula agendada com sucesso!"

// WizardService runs booking wizards on behalf of students. Drafts are only
// visible to the student who started them.
type WizardService interface {
	Start(ctx context.Context, student domain.Student) (*domain.DraftView, error)
	Get(ctx context.Context, userID, draftID string) (*domain.DraftView, error)
	SetDateTime(ctx context.Context, userID, draftID, date, slot string) (*domain.DraftView, error)
	SelectInstructor(ctx context.Context, userID, draftID string, instructorID int64) (*domain.DraftView, error)
	SelectVehicle(ctx context.Context, userID, draftID string, vehicleID int64) (*domain.DraftView, error)
	SelectLocation(ctx context.Context, userID, draftID, location string) (*domain.DraftView, error)
	Advance(ctx context.Context, userID, draftID string) (*domain.DraftView, bool, error)
	Retreat(ctx context.Context, userID, draftID string) (*domain.DraftView, bool, error)
	Submit(ctx context.Context, student domain.Student, draftID string) (*domain.Submission, error)
	Discard(ctx context.Context, userID, draftID string) error

	Catalog(ctx context.Context) (*wizard.Catalog, error)
	Progress(ctx context.Context, studentID string) (domain.Progress, error)
	InstructorLessons(ctx context.Context, userID string, limit, offset int) ([]domain.InstructorLesson, error)
	UpdateLessonStatus(ctx context.Context, userID string, lessonID int64, next domain.LessonStatus) (*domain.Lesson, error)
}

type wizardService struct {
	drafts   repository.DraftRepository
	catalog  repository.CatalogRepository
	lessons  repository.LessonRepository
	eventBus events.Publisher
	draftTTL time.Duration
	now      func() time.Time
}

type Option func(*wizardService)

func WithClock(now func() time.Time) Option {
	return func(s *wizardService) { s.now = now }
}

func NewWizardService(
	drafts repository.DraftRepository,
	catalog repository.CatalogRepository,
	lessons repository.LessonRepository,
	eventBus events.Publisher,
	draftTTL time.Duration,
	opts ...Option,
) WizardService {
	s := &wizardService{
		drafts:   drafts,
		catalog:  catalog,
		lessons:  lessons,
		eventBus: eventBus,
		draftTTL: draftTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *wizardService) Start(ctx context.Context, student domain.Student) (*domain.DraftView, error) {
	cat, err := s.catalog.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	now := s.now()
	w := wizard.New(cat, wizard.WithClock(s.now))
	d := &domain.Draft{
		ID:        uuid.NewString(),
		UserID:    student.ID,
		State:     w.State(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.drafts.Save(ctx, d, s.draftTTL); err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}

	logger.InfoContext(ctx, "Wizard started", "draft_id", d.ID)
	return view(d, w, cat), nil
}

func (s *wizardService) Get(ctx context.Context, userID, draftID string) (*domain.DraftView, error) {
	d, w, cat, err := s.load(ctx, userID, draftID)
	if err != nil {
		return nil, err
	}
	return view(d, w, cat), nil
}

func (s *wizardService) SetDateTime(ctx context.Context, userID, draftID, date, slot string) (*domain.DraftView, error) {
	return s.mutate(ctx, userID, draftID, func(w *wizard.Wizard) error {
		if err := w.SetDate(date); err != nil {
			return err
		}
		return w.SetTime(slot)
	})
}

func (s *wizardService) SelectInstructor(ctx context.Context, userID, draftID string, instructorID int64) (*domain.DraftView, error) {
	return s.mutate(ctx, userID, draftID, func(w *wizard.Wizard) error {
		return w.SelectInstructor(instructorID)
	})
}

func (s *wizardService) SelectVehicle(ctx context.Context, userID, draftID string, vehicleID int64) (*domain.DraftView, error) {
	return s.mutate(ctx, userID, draftID, func(w *wizard.Wizard) error {
		return w.SelectVehicle(vehicleID)
	})
}

func (s *wizardService) SelectLocation(ctx context.Context, userID, draftID, location string) (*domain.DraftView, error) {
	return s.mutate(ctx, userID, draftID, func(w *wizard.Wizard) error {
		return w.SelectLocation(location)
	})
}

func (s *wizardService) Advance(ctx context.Context, userID, draftID string) (*domain.DraftView, bool, error) {
	var moved bool
	v, err := s.mutate(ctx, userID, draftID, func(w *wizard.Wizard) error {
		moved = w.Advance()
		return nil
	})
	return v, moved, err
}

func (s *wizardService) Retreat(ctx context.Context, userID, draftID string) (*domain.DraftView, bool, error) {
	var moved bool
	v, err := s.mutate(ctx, userID, draftID, func(w *wizard.Wizard) error {
		moved = w.Retreat()
		return nil
	})
	return v, moved, err
}

// Submit persists the lesson and then resets the draft. When the slot is
// already taken the draft is left exactly as it was.
func (s *wizardService) Submit(ctx context.Context, student domain.Student, draftID string) (*domain.Submission, error) {
	d, w, cat, err := s.load(ctx, student.ID, draftID)
	if err != nil {
		return nil, err
	}

	conf, err := w.Confirmation()
	if err != nil {
		return nil, err
	}

	lesson, err := s.lessons.Create(ctx, &domain.Lesson{
		StudentID:       student.ID,
		InstructorID:    conf.InstructorID,
		VehicleID:       conf.VehicleID,
		Location:        conf.Location,
		Date:            conf.Date,
		Time:            conf.Time,
		DurationMinutes: domain.LessonDurationMinutes,
		Status:          domain.LessonScheduled,
	})
	if err != nil {
		if errors.Is(err, domain.ErrSlotTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create lesson: %w", err)
	}

	if _, err := w.Submit(); err != nil {
		return nil, err
	}
	d.State = w.State()
	d.UpdatedAt = s.now()
	if err := s.drafts.Save(ctx, d, s.draftTTL); err != nil {
		logger.ErrorContext(ctx, "Failed to reset draft after submission", "error", err, "draft_id", d.ID, "lesson_id", lesson.ID)
	}

	event := events.LessonBookedEvent{
		LessonID:     lesson.ID,
		StudentID:    student.ID,
		StudentEmail: student.Email,
		StudentName:  student.Name,
		InstructorID: lesson.InstructorID,
		VehicleID:    lesson.VehicleID,
		Location:     lesson.Location,
		Date:         lesson.Date,
		Time:         lesson.Time,
		BookedAt:     lesson.CreatedAt,
	}
	if in, ok := cat.Instructor(lesson.InstructorID); ok {
		event.InstructorName = in.Name
	}
	if err := s.eventBus.Publish(ctx, events.LessonBooked, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish lesson booked event", "error", err, "lesson_id", lesson.ID)
	}

	logger.InfoContext(ctx, "Lesson booked", "lesson_id", lesson.ID, "instructor_id", lesson.InstructorID, "date", lesson.Date, "time", lesson.Time)

	return &domain.Submission{
		Lesson:       lesson,
		Confirmation: conf,
		Title:        successTitle,
		Message:      conf.Message(),
		Draft:        view(d, w, cat),
	}, nil
}

func (s *wizardService) Discard(ctx context.Context, userID, draftID string) error {
	d, err := s.drafts.Get(ctx, draftID)
	if err != nil {
		return err
	}
	if d.UserID != userID {
		return domain.ErrDraftNotFound
	}
	return s.drafts.Delete(ctx, draftID)
}

func (s *wizardService) Catalog(ctx context.Context) (*wizard.Catalog, error) {
	return s.catalog.Load(ctx)
}

func (s *wizardService) Progress(ctx context.Context, studentID string) (domain.Progress, error) {
	n, err := s.lessons.CountCompleted(ctx, studentID)
	if err != nil {
		return domain.Progress{}, fmt.Errorf("failed to count lessons: %w", err)
	}
	return domain.NewProgress(n), nil
}

func (s *wizardService) InstructorLessons(ctx context.Context, userID string, limit, offset int) ([]domain.InstructorLesson, error) {
	from := s.now().Format(wizard.DateLayout)
	return s.lessons.ListForInstructorUser(ctx, userID, from, limit, offset)
}

// UpdateLessonStatus moves a lesson on the caller's agenda along
// scheduled -> in-progress -> completed, or cancels a scheduled one.
func (s *wizardService) UpdateLessonStatus(ctx context.Context, userID string, lessonID int64, next domain.LessonStatus) (*domain.Lesson, error) {
	current, err := s.lessons.GetForInstructorUser(ctx, lessonID, userID)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, next)
	}

	updated, err := s.lessons.UpdateStatus(ctx, lessonID, userID, current.Status, next)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Lesson status changed", "lesson_id", lessonID, "from", current.Status, "to", next)
	return updated, nil
}

func (s *wizardService) load(ctx context.Context, userID, draftID string) (*domain.Draft, *wizard.Wizard, *wizard.Catalog, error) {
	d, err := s.drafts.Get(ctx, draftID)
	if err != nil {
		return nil, nil, nil, err
	}
	if d.UserID != userID {
		return nil, nil, nil, domain.ErrDraftNotFound
	}

	cat, err := s.catalog.Load(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	w, err := wizard.Restore(cat, d.State, wizard.WithClock(s.now))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("corrupt draft %s: %w", d.ID, err)
	}
	return d, w, cat, nil
}

// mutate applies fn to the stored draft. A failing fn leaves the stored draft untouched.
func (s *wizardService) mutate(ctx context.Context, userID, draftID string, fn func(w *wizard.Wizard) error) (*domain.DraftView, error) {
	d, w, cat, err := s.load(ctx, userID, draftID)
	if err != nil {
		return nil, err
	}
	if err := fn(w); err != nil {
		return nil, err
	}

	d.State = w.State()
	d.UpdatedAt = s.now()
	if err := s.drafts.Save(ctx, d, s.draftTTL); err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}
	return view(d, w, cat), nil
}

func view(d *domain.Draft, w *wizard.Wizard, cat *wizard.Catalog) *domain.DraftView {
	return &domain.DraftView{
		ID:         d.ID,
		Step:       int(w.Step()),
		StepName:   w.Step().String(),
		Selection:  w.Selection(),
		CanProceed: w.CanProceed(),
		Catalog:    cat,
		UpdatedAt:  d.UpdatedAt,
	}
}
