// Package clock abstracts wall-clock access so dose schedule math can be
// tested against fixed instants.
package clock

import "time"

// Clock supplies the current time and the location schedule arithmetic runs
// in.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// System is a Clock backed by the operating system clock.
type System struct {
	loc *time.Location
}

// NewSystem returns a system clock pinned to the given location. A nil
// location falls back to time.Local.
func NewSystem(loc *time.Location) *System {
	if loc == nil {
		loc = time.Local
	}
	return &System{loc: loc}
}

func (s *System) Now() time.Time {
	return time.Now().In(s.loc)
}

func (s *System) Location() *time.Location {
	return s.loc
}

// Fixed is a Clock frozen at a single instant, for tests.
type Fixed struct {
	t time.Time
}

// NewFixed returns a clock that always reports t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{t: t}
}

func (f *Fixed) Now() time.Time {
	return f.t
}

func (f *Fixed) Location() *time.Location {
	return f.t.Location()
}

// Set moves the fixed clock to a new instant.
func (f *Fixed) Set(t time.Time) {
	f.t = t
}
