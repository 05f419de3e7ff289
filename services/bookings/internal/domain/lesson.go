package domain

import (
	"errors"
	"slices"
	"time"

	"github.com/diagnosis/autoescola/internal/wizard"
)

type LessonStatus string

const (
	LessonPending     LessonStatus = "pending"
	LessonScheduled   LessonStatus = "scheduled"
	LessonInProgress  LessonStatus = "in-progress"
	LessonCompleted   LessonStatus = "completed"
	LessonCancelled   LessonStatus = "cancelled"
	LessonRescheduled LessonStatus = "rescheduled"
)

func ParseLessonStatus(s string) (LessonStatus, bool) {
	switch LessonStatus(s) {
	case LessonPending, LessonScheduled, LessonInProgress, LessonCompleted, LessonCancelled, LessonRescheduled:
		return LessonStatus(s), true
	default:
		return "", false
	}
}

var lessonTransitions = map[LessonStatus][]LessonStatus{
	LessonScheduled:  {LessonInProgress, LessonCancelled},
	LessonInProgress: {LessonCompleted},
}

// CanTransition reports whether an instructor may move a lesson from s to next.
func (s LessonStatus) CanTransition(next LessonStatus) bool {
	return slices.Contains(lessonTransitions[s], next)
}

// Business Rules
const (
	LessonDurationMinutes = 50
	RequiredLessons       = 20
)

var (
	ErrDraftNotFound = errors.New("wizard draft not found")
	ErrSlotTaken     = errors.New("instructor already has a lesson at this date and time")

	ErrLessonNotFound    = errors.New("lesson not found")
	ErrInvalidTransition = errors.New("invalid lesson status transition")
)

type Lesson struct {
	ID              int64        `json:"id"`
	StudentID       string       `json:"student_id"`
	InstructorID    int64        `json:"instructor_id"`
	VehicleID       int64        `json:"vehicle_id"`
	Location        string       `json:"location"`
	Date            string       `json:"date"`
	Time            string       `json:"time"`
	DurationMinutes int          `json:"duration_minutes"`
	Status          LessonStatus `json:"status"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Student is the authenticated caller of the wizard routes.
type Student struct {
	ID    string
	Email string
	Name  string
}

// Draft is a wizard run stored between requests.
type Draft struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	State     wizard.State `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// DraftView is what the API returns for a draft.
type DraftView struct {
	ID         string           `json:"id"`
	Step       int              `json:"step"`
	StepName   string           `json:"step_name"`
	Selection  wizard.Selection `json:"selection"`
	CanProceed bool             `json:"can_proceed"`
	Catalog    *wizard.Catalog  `json:"catalog,omitempty"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

type Submission struct {
	Lesson       *Lesson             `json:"lesson"`
	Confirmation wizard.Confirmation `json:"confirmation"`
	Title        string              `json:"title"`
	Message      string              `json:"message"`
	Draft        *DraftView          `json:"draft"`
}

// Progress counts completed lessons toward the required minimum. One
// completed lesson is one class hour.
type Progress struct {
	CompletedLessons int `json:"completed_lessons"`
	RequiredLessons  int `json:"required_lessons"`
	RemainingLessons int `json:"remaining_lessons"`
	Percentage       int `json:"percentage"`
}

func NewProgress(completed int) Progress {
	if completed < 0 {
		completed = 0
	}
	p := Progress{CompletedLessons: completed, RequiredLessons: RequiredLessons}
	p.RemainingLessons = max(RequiredLessons-completed, 0)
	p.Percentage = min(completed*100/RequiredLessons, 100)
	return p
}

// InstructorLesson is a lesson on an instructor's agenda.
type InstructorLesson struct {
	Lesson
	StudentName string `json:"student_name"`
}
