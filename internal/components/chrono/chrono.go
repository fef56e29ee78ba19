package chrono

import "time"

// API is the interface that anything depending on the system clock should use.
type API interface {
	Now() time.Time
	Location() *time.Location
}

// StandardImpl reads the system clock in the machine's local timezone, plugins
// run on the user's own machine so local time is what they expect to see.
type StandardImpl struct {
	location *time.Location
}

func NewStandardImpl() StandardImpl {
	return StandardImpl{location: time.Local}
}

func (s StandardImpl) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardImpl) Location() *time.Location {
	return s.location
}

// FixedImpl always returns the same time.
type FixedImpl struct {
	time time.Time
}

func NewFixedImpl(t time.Time) FixedImpl {
	return FixedImpl{time: t}
}

func (f FixedImpl) Now() time.Time {
	return f.time
}

func (f FixedImpl) Location() *time.Location {
	return f.time.Location()
}
