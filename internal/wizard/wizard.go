// Package wizard implements the three-step lesson booking flow:
// date and time, then instructor, then vehicle and meeting point.
//
// A step only advances when its required fields are filled in, and it can
// always go back except from the first step. Submitting from the last step
// yields a Confirmation and clears the whole selection.
package wizard

import (
	"errors"
	"fmt"
	"time"
)

type Step int

const (
	StepDateTime        Step = 1
	StepInstructor      Step = 2
	StepVehicleLocation Step = 3
)

func (s Step) String() string {
	switch s {
	case StepDateTime:
		return "date_time"
	case StepInstructor:
		return "instructor"
	case StepVehicleLocation:
		return "vehicle_location"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

const DateLayout = "2006-01-02"

var (
	ErrInvalidDate           = errors.New("date must be formatted as YYYY-MM-DD")
	ErrPastDate              = errors.New("date must not be in the past")
	ErrUnknownTimeSlot       = errors.New("time is not an offered slot")
	ErrUnknownInstructor     = errors.New("instructor not found")
	ErrInstructorUnavailable = errors.New("instructor is not available")
	ErrUnknownVehicle        = errors.New("vehicle not found")
	ErrUnknownLocation       = errors.New("location not found")
	ErrNotReady              = errors.New("booking is not complete")
	ErrInvalidStep           = errors.New("invalid wizard step")
)

// Selection holds the choices made so far. Unset ids are nil.
type Selection struct {
	Date         string `json:"date"`
	Time         string `json:"time"`
	InstructorID *int64 `json:"instructor_id"`
	VehicleID    *int64 `json:"vehicle_id"`
	Location     string `json:"location"`
}

// State is the persistable part of a wizard.
type State struct {
	Step      Step      `json:"step"`
	Selection Selection `json:"selection"`
}

// Confirmation describes a submitted booking.
type Confirmation struct {
	Date         string `json:"date"`
	Time         string `json:"time"`
	InstructorID int64  `json:"instructor_id"`
	VehicleID    int64  `json:"vehicle_id"`
	Location     string `json:"location"`
}

// Message is the user-facing confirmation text.
func (c Confirmation) Message() string {
	return fmt.Sprintf("Sua aula foi marcada para %s às %s", c.Date, c.Time)
}

type Wizard struct {
	catalog *Catalog
	now     func() time.Time
	step    Step
	sel     Selection
}

type Option func(*Wizard)

// WithClock overrides the clock used to reject past dates.
func WithClock(now func() time.Time) Option {
	return func(w *Wizard) { w.now = now }
}

func New(catalog *Catalog, opts ...Option) *Wizard {
	w := &Wizard{catalog: catalog, now: time.Now, step: StepDateTime}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Restore rebuilds a wizard from a saved state.
func Restore(catalog *Catalog, st State, opts ...Option) (*Wizard, error) {
	if st.Step < StepDateTime || st.Step > StepVehicleLocation {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStep, st.Step)
	}
	w := New(catalog, opts...)
	w.step = st.Step
	w.sel = st.Selection
	return w, nil
}

func (w *Wizard) Step() Step { return w.step }

func (w *Wizard) Selection() Selection { return w.sel }

func (w *Wizard) State() State {
	return State{Step: w.step, Selection: w.sel}
}

// SetDate sets the lesson date. An empty value clears it.
func (w *Wizard) SetDate(date string) error {
	if date == "" {
		w.sel.Date = ""
		return nil
	}
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return ErrInvalidDate
	}
	now := w.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if d.Before(today) {
		return ErrPastDate
	}
	w.sel.Date = date
	return nil
}

// SetTime sets the lesson start slot. An empty value clears it.
func (w *Wizard) SetTime(slot string) error {
	if slot == "" {
		w.sel.Time = ""
		return nil
	}
	if !w.catalog.HasTimeSlot(slot) {
		return ErrUnknownTimeSlot
	}
	w.sel.Time = slot
	return nil
}

// SelectInstructor picks an instructor. Unavailable instructors leave the
// current choice untouched.
func (w *Wizard) SelectInstructor(id int64) error {
	in, ok := w.catalog.Instructor(id)
	if !ok {
		return ErrUnknownInstructor
	}
	if !in.Available {
		return ErrInstructorUnavailable
	}
	w.sel.InstructorID = &id
	return nil
}

func (w *Wizard) SelectVehicle(id int64) error {
	if _, ok := w.catalog.Vehicle(id); !ok {
		return ErrUnknownVehicle
	}
	w.sel.VehicleID = &id
	return nil
}

func (w *Wizard) SelectLocation(loc string) error {
	if !w.catalog.HasLocation(loc) {
		return ErrUnknownLocation
	}
	w.sel.Location = loc
	return nil
}

// CanProceed reports whether the active step's required fields are set.
func (w *Wizard) CanProceed() bool {
	switch w.step {
	case StepDateTime:
		return w.sel.Date != "" && w.sel.Time != ""
	case StepInstructor:
		if w.sel.InstructorID == nil {
			return false
		}
		in, ok := w.catalog.Instructor(*w.sel.InstructorID)
		return ok && in.Available
	case StepVehicleLocation:
		return w.sel.VehicleID != nil && w.sel.Location != ""
	default:
		return false
	}
}

// Advance moves to the next step. It is a no-op returning false when the
// current step is incomplete or already the last one.
func (w *Wizard) Advance() bool {
	if w.step >= StepVehicleLocation || !w.CanProceed() {
		return false
	}
	w.step++
	return true
}

// Retreat moves back one step; a no-op on the first step.
func (w *Wizard) Retreat() bool {
	if w.step <= StepDateTime {
		return false
	}
	w.step--
	return true
}

// Confirmation returns what Submit would confirm without resetting.
func (w *Wizard) Confirmation() (Confirmation, error) {
	if w.step != StepVehicleLocation || !w.CanProceed() {
		return Confirmation{}, ErrNotReady
	}
	c := Confirmation{
		Date:      w.sel.Date,
		Time:      w.sel.Time,
		VehicleID: *w.sel.VehicleID,
		Location:  w.sel.Location,
	}
	if w.sel.InstructorID != nil {
		c.InstructorID = *w.sel.InstructorID
	}
	return c, nil
}

// Submit confirms the booking and resets the wizard to an empty first step.
func (w *Wizard) Submit() (Confirmation, error) {
	c, err := w.Confirmation()
	if err != nil {
		return Confirmation{}, err
	}
	w.Reset()
	return c, nil
}

func (w *Wizard) Reset() {
	w.step = StepDateTime
	w.sel = Selection{}
}
