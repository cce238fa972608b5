package core

import "testing"

func TestSchedulerOrder(t *testing.T) {
	var s Scheduler
	var order []uint32

	record := func(tm *Timer) uint8 {
		order = append(order, tm.WakeTime)
		return SF_DONE
	}
	for _, wake := range []uint32{300, 100, 200} {
		s.Add(&Timer{WakeTime: wake, Handler: record})
	}
	if s.Pending() != 3 {
		t.Fatalf("Expected 3 pending timers, got %d", s.Pending())
	}

	if ran := s.Dispatch(150); ran != 1 {
		t.Errorf("Expected 1 timer at 150, ran %d", ran)
	}
	if ran := s.Dispatch(300); ran != 2 {
		t.Errorf("Expected 2 timers at 300, ran %d", ran)
	}
	if len(order) != 3 || order[0] != 100 || order[1] != 200 || order[2] != 300 {
		t.Errorf("Unexpected dispatch order %v", order)
	}
	if s.Pending() != 0 {
		t.Errorf("Expected no pending timers, got %d", s.Pending())
	}
}

func TestSchedulerRemove(t *testing.T) {
	var s Scheduler
	fired := false
	a := &Timer{WakeTime: 10, Handler: func(*Timer) uint8 { fired = true; return SF_DONE }}
	b := &Timer{WakeTime: 20, Handler: func(*Timer) uint8 { return SF_DONE }}
	s.Add(a)
	s.Add(b)
	s.Remove(a)

	if s.Dispatch(30) != 1 {
		t.Error("Expected only the remaining timer to run")
	}
	if fired {
		t.Error("Removed timer fired")
	}
}

func TestSchedulerWraparound(t *testing.T) {
	var s Scheduler
	var order []string

	s.Add(&Timer{WakeTime: 5, Handler: func(*Timer) uint8 { order = append(order, "after"); return SF_DONE }})
	s.Add(&Timer{WakeTime: 0xFFFFFFF0, Handler: func(*Timer) uint8 { order = append(order, "before"); return SF_DONE }})

	if s.Dispatch(0xFFFFFFF8) != 1 {
		t.Error("Expected the pre-wrap timer only")
	}
	if s.Dispatch(10) != 1 {
		t.Error("Expected the post-wrap timer")
	}
	if len(order) != 2 || order[0] != "before" || order[1] != "after" {
		t.Errorf("Unexpected order across wraparound: %v", order)
	}
}

func TestPositionSampler(t *testing.T) {
	var s Scheduler
	var pos Position
	ps := NewPositionSampler(&pos, 100, 50)
	s.Add(&ps.Timer)

	pos.Publish(42)
	s.Dispatch(100)
	if ps.Last() != 42 {
		t.Errorf("Expected sample 42, got %d", ps.Last())
	}

	pos.Publish(99)
	if s.Dispatch(149) != 0 {
		t.Error("Sampler fired before its interval")
	}
	s.Dispatch(150)
	if ps.Last() != 99 || ps.Samples() != 2 {
		t.Errorf("Expected sample 99 after 2 runs, got %d after %d", ps.Last(), ps.Samples())
	}
	if s.Pending() != 1 {
		t.Errorf("Sampler should stay scheduled, pending=%d", s.Pending())
	}

	once := NewPositionSampler(&pos, 0, 0)
	var s2 Scheduler
	s2.Add(&once.Timer)
	s2.Dispatch(0)
	if s2.Pending() != 0 {
		t.Error("Zero interval sampler should run once")
	}
}
