package logic

import "time"

// Sampler turns raw level samples into pressed states.
//
// Debounce is a plain fixed-period resample: every call replaces the
// previous state with the negation of the new levels. A single noisy read
// flips the reported state until the next sample corrects it.
type Sampler struct {
	current       Pressed
	sampled       bool
	samples       uint64
	startTime     time.Time
	eventCounts   EventCounts
	lastHeartbeat time.Time
}

// NewSampler creates a sampler. The startTime is used for calculating uptime
// in heartbeat events.
func NewSampler(startTime time.Time) *Sampler {
	return &Sampler{
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Process records a sample and returns the transitions it caused.
// The first sample establishes the baseline and returns no events.
// When both buttons change in the same sample, A is reported before B.
func (s *Sampler) Process(input Input) []Event {
	next := Pressed{
		A: !input.AHigh,
		B: !input.BHigh,
	}
	prev := s.current
	wasSampled := s.sampled

	s.current = next
	s.sampled = true
	s.samples++

	if !wasSampled {
		return nil
	}

	var events []Event
	if next.A != prev.A {
		events = append(events, s.event(input.Time, transitionType(ChannelA, next.A)))
	}
	if next.B != prev.B {
		events = append(events, s.event(input.Time, transitionType(ChannelB, next.B)))
	}

	for _, e := range events {
		switch e.Type {
		case EventAPressed:
			s.eventCounts.APressed++
		case EventAReleased:
			s.eventCounts.AReleased++
		case EventBPressed:
			s.eventCounts.BPressed++
		case EventBReleased:
			s.eventCounts.BReleased++
		}
	}

	return events
}

func (s *Sampler) event(t time.Time, typ EventType) Event {
	return Event{
		Timestamp: t,
		Type:      typ,
		AState:    StateOf(s.current.A),
		BState:    StateOf(s.current.B),
	}
}

func transitionType(ch Channel, pressed bool) EventType {
	switch {
	case ch == ChannelA && pressed:
		return EventAPressed
	case ch == ChannelA:
		return EventAReleased
	case pressed:
		return EventBPressed
	default:
		return EventBReleased
	}
}

// Current returns the pressed states from the most recent sample.
// Before the first sample both buttons read as released.
func (s *Sampler) Current() Pressed {
	return s.current
}

// IsSampled returns whether at least one sample has been processed.
func (s *Sampler) IsSampled() bool {
	return s.sampled
}

// Samples returns the number of samples processed.
func (s *Sampler) Samples() uint64 {
	return s.samples
}

// EventCountsSnapshot returns a copy of the transition counters.
func (s *Sampler) EventCountsSnapshot() EventCounts {
	return s.eventCounts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if nothing has been sampled yet, if
// the interval has not elapsed, or if interval is <= 0 (disabled).
func (s *Sampler) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if !s.sampled {
		return nil
	}

	if now.Sub(s.lastHeartbeat) < interval {
		return nil
	}

	s.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(s.startTime),
		Samples:   s.samples,
		Counts:    s.eventCounts,
	}
}
