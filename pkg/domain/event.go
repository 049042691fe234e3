package domain

import "time"

// Event is the adaptor for TypeEvent entities (calendar events).
type Event struct{ *Entity }

func NewEvent() Event                        { return Event{New(TypeEvent)} }
func LoadEvent(properties map[string]any) Event { return Event{Load(TypeEvent, properties)} }

func (e Event) Summary() string     { return stringProp(e.Entity, "summary") }
func (e Event) SetSummary(v string) { e.Set("summary", v) }

func (e Event) Start() time.Time { return timeProp(e.Entity, "start") }
func (e Event) SetStart(v time.Time) { e.Set("start", v) }

func (e Event) End() time.Time     { return timeProp(e.Entity, "end") }
func (e Event) SetEnd(v time.Time) { e.Set("end", v) }

func (e Event) Calendar() string     { return stringProp(e.Entity, "calendar") }
func (e Event) SetCalendar(v string) { e.Set("calendar", v) }

func timeProp(e *Entity, name string) time.Time {
	v, ok := e.Get(name)
	if !ok {
		return time.Time{}
	}
	t, _ := v.(time.Time)
	return t
}
