package core

// Timer represents a scheduled event. Handlers run in interrupt context:
// they must not touch the Queue, only interrupt-safe state such as
// Position.
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// Scheduler keeps timers sorted by wake time and runs the due ones. It
// stands in for the periodic motion interrupt when running off target.
type Scheduler struct {
	list *Timer
}

// timerBefore compares tick counts across uint32 wraparound.
func timerBefore(a, b uint32) bool {
	return int32(a-b) < 0
}

// Add inserts a timer in wake time order.
func (s *Scheduler) Add(t *Timer) {
	critical(func() {
		s.insert(t)
	})
}

func (s *Scheduler) insert(t *Timer) {
	if s.list == nil || timerBefore(t.WakeTime, s.list.WakeTime) {
		t.next = s.list
		s.list = t
		return
	}

	cur := s.list
	for cur.next != nil && !timerBefore(t.WakeTime, cur.next.WakeTime) {
		cur = cur.next
	}
	t.next = cur.next
	cur.next = t
}

// Remove unlinks a timer if it is scheduled.
func (s *Scheduler) Remove(t *Timer) {
	critical(func() {
		if s.list == t {
			s.list = t.next
			t.next = nil
			return
		}
		for cur := s.list; cur != nil; cur = cur.next {
			if cur.next == t {
				cur.next = t.next
				t.next = nil
				return
			}
		}
	})
}

// Pending returns the number of scheduled timers.
func (s *Scheduler) Pending() int {
	n := 0
	for cur := s.list; cur != nil; cur = cur.next {
		n++
	}
	return n
}

// Dispatch runs every timer due at now and returns how many handlers ran.
// A handler returning SF_RESCHEDULE is inserted again with its updated
// WakeTime.
func (s *Scheduler) Dispatch(now uint32) int {
	ran := 0
	critical(func() {
		for s.list != nil && !timerBefore(now, s.list.WakeTime) {
			t := s.list
			s.list = t.next
			t.next = nil

			ran++
			if t.Handler(t) == SF_RESCHEDULE {
				s.insert(t)
			}
		}
	})
	return ran
}

// PositionSampler is a periodic timer that latches the shared storage
// position, the way a power-loss handler snapshots where to resume.
type PositionSampler struct {
	Timer
	Interval uint32

	src  PositionReader
	last Position
	hits Position
}

// NewPositionSampler creates a sampler reading src every interval ticks,
// first firing at start.
func NewPositionSampler(src PositionReader, start, interval uint32) *PositionSampler {
	ps := &PositionSampler{Interval: interval, src: src}
	ps.WakeTime = start
	ps.Handler = ps.sample
	return ps
}

func (ps *PositionSampler) sample(t *Timer) uint8 {
	ps.last.Publish(ps.src.Load())
	ps.hits.Advance(1)
	if ps.Interval == 0 {
		return SF_DONE
	}
	t.WakeTime += ps.Interval
	return SF_RESCHEDULE
}

// Last returns the most recent sample.
func (ps *PositionSampler) Last() uint32 {
	return ps.last.Load()
}

// Samples returns how many times the sampler ran.
func (ps *PositionSampler) Samples() uint32 {
	return ps.hits.Load()
}
