package audio

import "sort"

type eventKind int

const (
	eventSet eventKind = iota
	eventLinearRamp
)

type paramEvent struct {
	kind  eventKind
	time  float64
	value float64
}

// Param is an automated value on the graph clock, in seconds. It follows
// the usual automation model: a set event jumps to its value at its time,
// a linear ramp event reaches its value at its time starting from the
// preceding event.
//
// Param is not safe for concurrent use; the graph lock guards it.
type Param struct {
	initial float64
	events  []paramEvent
}

// NewParam creates a param holding v until the first event.
func NewParam(v float64) *Param {
	return &Param{initial: v}
}

// SetValueAt jumps to v at time t.
func (p *Param) SetValueAt(v, t float64) {
	p.insert(paramEvent{kind: eventSet, time: t, value: v})
}

// LinearRampTo ramps from the preceding event to v, arriving at time t.
func (p *Param) LinearRampTo(v, t float64) {
	p.insert(paramEvent{kind: eventLinearRamp, time: t, value: v})
}

// CancelAndHold drops every event after t and holds the value the param had
// at t, so a new ramp can start from wherever the old automation was.
func (p *Param) CancelAndHold(t float64) {
	v := p.ValueAt(t)
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].time >= t })
	p.events = append(p.events[:i], paramEvent{kind: eventSet, time: t, value: v})
}

// ValueAt evaluates the automation at time t.
func (p *Param) ValueAt(t float64) float64 {
	prevTime, prevValue := 0.0, p.initial
	for _, e := range p.events {
		if e.time <= t {
			prevTime, prevValue = e.time, e.value
			continue
		}
		if e.kind == eventLinearRamp && e.time > prevTime {
			return Lerp(prevValue, e.value, (t-prevTime)/(e.time-prevTime))
		}
		break
	}
	return prevValue
}

// insert keeps events ordered by time; equal times keep insertion order.
func (p *Param) insert(e paramEvent) {
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].time > e.time })
	p.events = append(p.events, paramEvent{})
	copy(p.events[i+1:], p.events[i:])
	p.events[i] = e
}
