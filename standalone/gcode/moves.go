package gcode

import (
	"cmdq/core"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/lfq"
)

// MoveBuffer hands planned moves from the main loop to the motion tick.
// Push belongs to the main loop, the timer handler is the only consumer.
type MoveBuffer struct {
	q        *lfq.SPSC[Move]
	queued   atomix.Uint32
	done     atomix.Uint32
	distance atomix.Uint64 // Completed travel in micrometres

	timer    core.Timer
	interval uint32
}

// NewMoveBuffer creates a buffer holding at least capacity moves. The
// motion tick completes one move every interval ticks.
func NewMoveBuffer(capacity int, interval uint32) *MoveBuffer {
	if capacity < 2 {
		capacity = 2
	}
	b := &MoveBuffer{
		q:        lfq.NewSPSC[Move](capacity),
		interval: interval,
	}
	b.timer.Handler = b.tick
	return b
}

// Push queues a move. It returns an error classified by iox.IsWouldBlock
// when the buffer is full.
func (b *MoveBuffer) Push(m Move) error {
	if err := b.q.Enqueue(&m); err != nil {
		return err
	}
	b.queued.Add(1)
	return nil
}

// Pending returns the number of queued moves the motion tick has not
// completed yet.
func (b *MoveBuffer) Pending() int {
	return int(b.queued.Load() - b.done.Load())
}

// Cap returns the number of moves the buffer holds.
func (b *MoveBuffer) Cap() int {
	return b.q.Cap()
}

// Completed returns the number of moves the motion tick finished.
func (b *MoveBuffer) Completed() uint32 {
	return b.done.Load()
}

// Travelled returns the completed travel in millimetres.
func (b *MoveBuffer) Travelled() float64 {
	return float64(b.distance.Load()) / 1000
}

// Timer returns the motion tick timer, first firing at start.
func (b *MoveBuffer) Timer(start uint32) *core.Timer {
	b.timer.WakeTime = start
	return &b.timer
}

func (b *MoveBuffer) tick(t *core.Timer) uint8 {
	if m, err := b.q.Dequeue(); err == nil {
		b.distance.Add(uint64(m.Distance * 1000))
		b.done.Add(1)
	}
	if b.interval == 0 {
		return core.SF_DONE
	}
	t.WakeTime += b.interval
	return core.SF_RESCHEDULE
}
