package calltrace

import "strconv"

// TraceID identifies one root operation and the nesting level of a span in it.
// TraceID values are immutable; Deeper and Shallower return new values.
type TraceID struct {
	id    string
	level int
}

// NewRootID returns a level 0 TraceID with a fresh id from gen.
func NewRootID(gen IDGenerator) TraceID {
	if gen == nil {
		gen = UUIDPrefixID
	}
	return TraceID{id: gen()}
}

// ID returns the id shared by every span of the root operation.
func (t TraceID) ID() string { return t.id }

// Level returns the nesting depth. Zero is the root.
func (t TraceID) Level() int { return t.level }

// IsRoot reports whether t is at level 0.
func (t TraceID) IsRoot() bool { return t.level == 0 }

// IsZero reports whether t was never assigned an id.
func (t TraceID) IsZero() bool { return t.id == "" }

// Deeper returns the TraceID for a span nested one level below t.
func (t TraceID) Deeper() TraceID {
	return TraceID{id: t.id, level: t.level + 1}
}

// Shallower returns the TraceID one level above t.
// It panics at the root; callers check IsRoot first.
func (t TraceID) Shallower() TraceID {
	if t.level == 0 {
		panic("calltrace: Shallower called on root TraceID " + t.id)
	}
	return TraceID{id: t.id, level: t.level - 1}
}

func (t TraceID) String() string {
	return t.id + "@" + strconv.Itoa(t.level)
}
