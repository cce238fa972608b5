package core

import "strconv"

// DebugWriter is a function type for writing debug lines
type DebugWriter func(string)

// Queue event codes
const (
	EvtEnqueueBack  = 1 // Record appended at the tail
	EvtEnqueueFront = 2 // Chained record pushed at the head
	EvtPop          = 3 // Head record finalized
	EvtFull         = 4 // Enqueue rejected for lack of space
	EvtReset        = 5 // Queue reset
)

// EventRingSize is the number of queue events kept for post-mortem dumps
const EventRingSize = 32

// QueueEvent captures one queue operation
type QueueEvent struct {
	Seq    uint32 // Monotonic event number, 0 marks an empty slot
	Type   uint8
	Tag    Tag
	Size   uint16 // Encoded record size
	Length uint16 // Bytes stored after the operation
}

// EventRing keeps the last EventRingSize queue events. Recording never
// allocates and never blocks.
type EventRing struct {
	events [EventRingSize]QueueEvent
	head   uint8
	seq    uint32
}

// Record stores an event, overwriting the oldest one.
func (e *EventRing) Record(typ uint8, tag Tag, size, length int) {
	e.seq++
	e.events[e.head] = QueueEvent{
		Seq:    e.seq,
		Type:   typ,
		Tag:    tag,
		Size:   uint16(size),
		Length: uint16(length),
	}
	e.head = (e.head + 1) % EventRingSize
}

// Snapshot returns the recorded events, oldest first.
func (e *EventRing) Snapshot() []QueueEvent {
	out := make([]QueueEvent, 0, EventRingSize)
	for i := uint8(0); i < EventRingSize; i++ {
		evt := e.events[(e.head+i)%EventRingSize]
		if evt.Seq == 0 {
			continue
		}
		out = append(out, evt)
	}
	return out
}

// Clear drops all recorded events.
func (e *EventRing) Clear() {
	*e = EventRing{}
}

func eventName(typ uint8) string {
	switch typ {
	case EvtEnqueueBack:
		return "ENQ_BACK"
	case EvtEnqueueFront:
		return "ENQ_FRONT"
	case EvtPop:
		return "POP"
	case EvtFull:
		return "FULL!"
	case EvtReset:
		return "RESET"
	}
	return "UNKNOWN"
}

// Dump writes the queued records and the event ring to the debug writer.
// Call it from the main loop only.
func (q *Queue) Dump() {
	w := q.debug
	if w == nil {
		return
	}

	w("[CMDQ] === Queue Dump ===")
	w("[CMDQ] records=" + strconv.Itoa(q.count) +
		" bytes=" + strconv.Itoa(q.ring.Len()) +
		" free_back=" + strconv.Itoa(q.ring.AvailableBack()) +
		" free_front=" + strconv.Itoa(q.ring.AvailableFront()))
	nr := 0
	q.Walk(func(r Record) bool {
		line := "[CMDQ] #" + strconv.Itoa(nr) + " " + r.Tag.String()
		switch r.Tag {
		case TagStorage, TagPendingRemoval:
			line += " sdlen=" + strconv.Itoa(int(r.StorageLen))
		case TagHostNumbered:
			line += " N" + strconv.Itoa(int(r.Line))
		}
		w(line + " " + r.Text)
		nr++
		return true
	})
	for _, evt := range q.events.Snapshot() {
		w("[CMDQ] " + eventName(evt.Type) +
			" seq=" + strconv.FormatUint(uint64(evt.Seq), 10) +
			" tag=" + evt.Tag.String() +
			" size=" + strconv.Itoa(int(evt.Size)) +
			" len=" + strconv.Itoa(int(evt.Length)))
	}
	w("[CMDQ] === End Dump ===")
}
