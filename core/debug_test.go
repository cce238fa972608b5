package core

import (
	"strings"
	"testing"
)

func TestQueueDump(t *testing.T) {
	q := newTestQueue(t)
	var lines []string
	q.SetDebugWriter(func(s string) { lines = append(lines, s) })

	q.EnqueueStorage("G1 X1", 7)
	q.EnqueueHostNumbered("N3 M105")
	q.EnqueueFront("G4")
	q.Dump()

	out := strings.Join(lines, "\n")
	for _, want := range []string{
		"[CMDQ] === Queue Dump ===",
		"records=3",
		"#0 chained G4",
		"#1 storage sdlen=7 G1 X1",
		"#2 host-numbered N3 M105",
		"ENQ_FRONT",
		"[CMDQ] === End Dump ===",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Dump output missing %q:\n%s", want, out)
		}
	}
}

func TestQueueDumpWithoutWriter(t *testing.T) {
	q := newTestQueue(t)
	q.EnqueueUI("M117")
	q.Dump()
}

func TestEventRingOverwrite(t *testing.T) {
	var e EventRing
	for i := 0; i < EventRingSize+5; i++ {
		e.Record(EvtPop, TagHost, i, 0)
	}
	snap := e.Snapshot()
	if len(snap) != EventRingSize {
		t.Fatalf("Expected %d events, got %d", EventRingSize, len(snap))
	}
	if snap[0].Seq != 6 || snap[len(snap)-1].Seq != EventRingSize+5 {
		t.Errorf("Unexpected sequence window %d..%d", snap[0].Seq, snap[len(snap)-1].Seq)
	}

	e.Clear()
	if len(e.Snapshot()) != 0 {
		t.Error("Clear should drop all events")
	}
}

func TestQueueRecordsFullEvent(t *testing.T) {
	q, _ := NewQueue(Config{ChainedSlots: 1, ChainedTextLen: 2})
	q.EnqueueFront("G1 X1")

	snap := q.Events().Snapshot()
	if len(snap) == 0 || snap[len(snap)-1].Type != EvtFull {
		t.Errorf("Expected a FULL event, got %+v", snap)
	}
}
