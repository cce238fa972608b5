package core

import (
	"sync"
	"testing"
)

func TestPositionPublishAdvance(t *testing.T) {
	var p Position
	if p.Load() != 0 {
		t.Errorf("Expected zero position, got %d", p.Load())
	}
	p.Publish(1000)
	if got := p.Advance(24); got != 1024 {
		t.Errorf("Expected Advance to return 1024, got %d", got)
	}
	if p.Load() != 1024 {
		t.Errorf("Expected 1024, got %d", p.Load())
	}
}

func TestPositionConcurrentReader(t *testing.T) {
	q := newTestQueue(t)
	pos := q.Position()

	var reader PositionReader = pos
	done := make(chan struct{})
	var wg sync.WaitGroup
	var bad uint32
	failed := false

	wg.Add(1)
	go func() {
		defer wg.Done()
		var last uint32
		for {
			select {
			case <-done:
				return
			default:
			}
			v := reader.Load()
			if v < last || v%5 != 0 {
				bad, failed = v, true
				return
			}
			last = v
		}
	}()

	for i := 0; i < 2000; i++ {
		if err := q.EnqueueStorage("G1 X1", 5); err != nil {
			t.Fatalf("EnqueueStorage failed: %v", err)
		}
		q.Begin()
		q.Commit()
	}
	close(done)
	wg.Wait()

	if failed {
		t.Errorf("Reader observed inconsistent position %d", bad)
	}
	if pos.Load() != 2000*5 {
		t.Errorf("Expected final position %d, got %d", 2000*5, pos.Load())
	}
}
