package wizard

import "slices"

// DefaultTimeSlots are the lesson start times offered by the school.
var DefaultTimeSlots = []string{"08:00", "09:00", "10:00", "11:00", "14:00", "15:00", "16:00", "17:00"}

type Instructor struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Speciality string  `json:"speciality"`
	Rating     float64 `json:"rating"`
	Available  bool    `json:"available"`
}

type Vehicle struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Catalog is the set of choices a wizard run may select from.
type Catalog struct {
	Instructors []Instructor `json:"instructors"`
	Vehicles    []Vehicle    `json:"vehicles"`
	Locations   []string     `json:"locations"`
	TimeSlots   []string     `json:"time_slots"`
}

func (c *Catalog) Instructor(id int64) (Instructor, bool) {
	for _, in := range c.Instructors {
		if in.ID == id {
			return in, true
		}
	}
	return Instructor{}, false
}

func (c *Catalog) Vehicle(id int64) (Vehicle, bool) {
	for _, v := range c.Vehicles {
		if v.ID == id {
			return v, true
		}
	}
	return Vehicle{}, false
}

func (c *Catalog) HasLocation(loc string) bool {
	return slices.Contains(c.Locations, loc)
}

func (c *Catalog) HasTimeSlot(slot string) bool {
	slots := c.TimeSlots
	if len(slots) == 0 {
		slots = DefaultTimeSlots
	}
	return slices.Contains(slots, slot)
}
