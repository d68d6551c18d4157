// Package sched provides the central timing fabric: a single monotonic
// cycle counter shared by the CPU and every peripheral, with named events
// fired at cycle-accurate offsets.
package sched

import "log/slog"

// TickCount counts CPU cycles since reset. It only ever increases.
type TickCount = int64

// Handle identifies a registered event. Handles are stable for the
// lifetime of the scheduler.
type Handle int

type event struct {
	name     string
	nextFire TickCount
	period   TickCount // 0 for one-shot events
	active   bool
}

// Scheduler multiplexes periodic and one-shot callbacks over a single
// cycle counter. Events that fire in the same chunk fire in registration
// order, which is why events live in a slice scanned in index order
// rather than a sorted queue.
type Scheduler struct {
	now         TickCount
	frameTarget TickCount
	events      []event
}

func New() *Scheduler {
	return &Scheduler{}
}

// RegisterEvent registers a one-shot event. It starts inactive.
func (s *Scheduler) RegisterEvent(name string) Handle {
	s.events = append(s.events, event{name: name})
	return Handle(len(s.events) - 1)
}

// RegisterPeriodicEvent registers an event that re-arms itself by adding
// period after each firing. It starts inactive.
func (s *Scheduler) RegisterPeriodicEvent(name string, period TickCount) Handle {
	s.events = append(s.events, event{name: name, period: period})
	return Handle(len(s.events) - 1)
}

// Schedule activates the event and sets it to fire delay cycles from now.
// Scheduling an already-active event replaces its previous schedule.
// Delays below 1 are clamped to 1.
func (s *Scheduler) Schedule(h Handle, delay TickCount) {
	ev := s.event(h)
	if delay < 1 {
		delay = 1
	}
	ev.nextFire = s.now + delay
	ev.active = true
}

// Deactivate stops the event from firing until it is scheduled again.
func (s *Scheduler) Deactivate(h Handle) {
	s.event(h).active = false
}

// SetPeriod changes a periodic event's re-arm interval.
func (s *Scheduler) SetPeriod(h Handle, period TickCount) {
	s.event(h).period = period
}

// SetFrameTarget caps the CPU execution budget at a frame boundary,
// cycles from now.
func (s *Scheduler) SetFrameTarget(cycles TickCount) {
	s.frameTarget = s.now + cycles
}

// FrameTargetReached reports whether the counter has reached or passed
// the current frame target.
func (s *Scheduler) FrameTargetReached() bool {
	return s.now >= s.frameTarget
}

// Budget returns how many cycles the CPU may execute before the next
// event (or the frame target) is due. Never less than 1, so the CPU
// always makes forward progress even when an event is overdue.
func (s *Scheduler) Budget() TickCount {
	next := s.frameTarget
	for i := range s.events {
		ev := &s.events[i]
		if ev.active && ev.nextFire < next {
			next = ev.nextFire
		}
	}
	budget := next - s.now
	if budget < 1 {
		budget = 1
	}
	return budget
}

// AddCycles advances the global counter by the cycles the CPU just
// consumed.
func (s *Scheduler) AddCycles(n TickCount) {
	s.now += n
}

// Cycles returns the current value of the global counter.
func (s *Scheduler) Cycles() TickCount {
	return s.now
}

// RunEvents fires every active event whose fire tick has arrived, in
// registration order, and returns the fired handles. Periodic events
// re-arm themselves; one-shot events deactivate.
func (s *Scheduler) RunEvents() []Handle {
	var fired []Handle
	for i := range s.events {
		ev := &s.events[i]
		if !ev.active || ev.nextFire > s.now {
			continue
		}
		fired = append(fired, Handle(i))
		if ev.period > 0 {
			ev.nextFire += ev.period
			if ev.nextFire <= s.now {
				// Overdue by more than a period: re-arm one period from
				// now instead of replaying the missed firings.
				ev.nextFire = s.now + ev.period
			}
		} else {
			ev.active = false
		}
	}
	return fired
}

// Name returns the event's registration name, for logging.
func (s *Scheduler) Name(h Handle) string {
	return s.event(h).name
}

func (s *Scheduler) event(h Handle) *event {
	if int(h) < 0 || int(h) >= len(s.events) {
		slog.Error("invalid event handle", "handle", int(h))
		panic("sched: invalid event handle")
	}
	return &s.events[int(h)]
}
