package audio

import (
	"math"
	"sort"
)

type eventKind int

const (
	kindSetValue eventKind = iota
	kindLinearRamp
	kindSetTarget
)

type paramEvent struct {
	kind  eventKind
	time  float64
	value float64
	tau   float64
}

// Param is an automatable value evaluated against a sample clock, in the
// manner of a Web Audio AudioParam. Events are applied in time order;
// a linear ramp runs from the previous event (or the moment it was
// scheduled) to its own end time.
//
// Param is not safe for concurrent use; Graph serialises access.
type Param struct {
	value  float64
	events []paramEvent

	// start point of a pending linear ramp
	anchorTime  float64
	anchorValue float64

	target      *paramEvent
	targetStart float64
	lastTime    float64
}

// NewParam returns a param holding v.
func NewParam(v float64) *Param {
	return &Param{value: v, anchorValue: v}
}

// Value is the most recently computed value.
func (p *Param) Value() float64 {
	return p.value
}

func (p *Param) insert(ev paramEvent) {
	if len(p.events) == 0 && p.target == nil && ev.kind == kindLinearRamp {
		p.anchorTime, p.anchorValue = p.lastTime, p.value
	}
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].time > ev.time })
	p.events = append(p.events, paramEvent{})
	copy(p.events[i+1:], p.events[i:])
	p.events[i] = ev
}

// SetValueAtTime jumps to v at t. Graph only uses it to pin the current
// value before a ramp, so the jump is always to the value already held.
func (p *Param) SetValueAtTime(v, t float64) {
	p.insert(paramEvent{kind: kindSetValue, time: t, value: v})
}

// LinearRampToValueAtTime ramps linearly to v, arriving at t.
func (p *Param) LinearRampToValueAtTime(v, t float64) {
	p.insert(paramEvent{kind: kindLinearRamp, time: t, value: v})
}

// SetTargetAtTime approaches v exponentially from t with time constant tau.
func (p *Param) SetTargetAtTime(v, t, tau float64) {
	if tau <= 0 {
		p.SetValueAtTime(v, t)
		return
	}
	p.insert(paramEvent{kind: kindSetTarget, time: t, value: v, tau: tau})
}

// CancelScheduledValues drops every event at or after t and freezes any
// running target approach at its current value.
func (p *Param) CancelScheduledValues(t float64) {
	i := sort.Search(len(p.events), func(i int) bool { return p.events[i].time >= t })
	p.events = p.events[:i]
	p.target = nil
	p.anchorTime, p.anchorValue = p.lastTime, p.value
}

// At advances the param to time t and returns its value. t must not go
// backwards between calls.
func (p *Param) At(t float64) float64 {
	p.lastTime = t
	for len(p.events) > 0 {
		ev := p.events[0]
		if ev.kind == kindLinearRamp {
			if t < ev.time {
				span := ev.time - p.anchorTime
				if span <= 0 {
					p.value = ev.value
				} else {
					frac := (t - p.anchorTime) / span
					p.value = p.anchorValue + (ev.value-p.anchorValue)*frac
				}
				return p.value
			}
			p.value = ev.value
			p.target = nil
			p.anchorTime, p.anchorValue = ev.time, ev.value
			p.events = p.events[1:]
			continue
		}
		if ev.time > t {
			break
		}
		switch ev.kind {
		case kindSetValue:
			p.value = ev.value
			p.target = nil
		case kindSetTarget:
			target := ev
			p.target = &target
			p.targetStart = p.value
		}
		p.anchorTime, p.anchorValue = ev.time, p.value
		p.events = p.events[1:]
	}

	if p.target != nil {
		elapsed := t - p.target.time
		p.value = p.target.value + (p.targetStart-p.target.value)*math.Exp(-elapsed/p.target.tau)
		p.anchorTime, p.anchorValue = t, p.value
	}
	return p.value
}
