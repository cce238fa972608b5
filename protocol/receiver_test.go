package protocol

import (
	"strings"
	"testing"

	"cmdq/core"
)

func newTestReceiver(t *testing.T) (*core.Queue, *ScratchOutput, *LineReceiver) {
	t.Helper()
	q, err := core.NewQueue(core.DefaultConfig())
	if err != nil {
		t.Fatalf("NewQueue failed: %v", err)
	}
	out := NewScratchOutput()
	return q, out, NewLineReceiver(q, out)
}

func numbered(n int, cmd string) string {
	return AppendChecksum("N"+itoa(n)+" "+cmd) + "\n"
}

func drainTexts(q *core.Queue) []string {
	var texts []string
	for {
		r, ok := q.Peek()
		if !ok {
			return texts
		}
		texts = append(texts, r.Text)
		q.PopFront()
	}
}

func TestReceiverUnnumbered(t *testing.T) {
	q, out, rx := newTestReceiver(t)
	input := NewSliceInputBuffer([]byte("G28\r\n\nG1 X10 ; move\nM105"))

	rx.Receive(input)

	if input.Available() != 0 {
		t.Errorf("Expected all input consumed, %d left", input.Available())
	}
	if !rx.Pending() {
		t.Error("Unterminated line should stay pending")
	}
	texts := drainTexts(q)
	if strings.Join(texts, "|") != "G28|G1 X10" {
		t.Errorf("Unexpected queued lines %q", texts)
	}
	if len(out.Result()) != 0 {
		t.Errorf("Accepted lines should not be answered here, got %q", out.Result())
	}

	rx.Receive(NewSliceInputBuffer([]byte("\n")))
	if r, _ := q.Peek(); r.Text != "M105" || r.Tag != core.TagHost {
		t.Errorf("Expected host M105, got %+v", r)
	}
}

func TestReceiverNumbered(t *testing.T) {
	q, out, rx := newTestReceiver(t)
	stream := numbered(1, "G28") + numbered(2, "G1 X5")

	rx.Receive(NewSliceInputBuffer([]byte(stream)))

	if q.LastAcceptedLine() != 2 {
		t.Errorf("Expected last accepted line 2, got %d", q.LastAcceptedLine())
	}
	r, _ := q.Peek()
	if r.Tag != core.TagHostNumbered || r.Line != 1 || r.Text != "G28" {
		t.Errorf("Unexpected head record %+v", r)
	}
	if rx.Stats().Lines != 2 || len(out.Result()) != 0 {
		t.Errorf("Stats %+v output %q", rx.Stats(), out.Result())
	}
}

func TestReceiverChecksumMismatch(t *testing.T) {
	q, out, rx := newTestReceiver(t)
	rx.Receive(NewSliceInputBuffer([]byte(numbered(1, "G28"))))
	out.Reset()

	rx.Receive(NewSliceInputBuffer([]byte("N2 G1 X5*0\n")))

	got := string(out.Result())
	if !strings.Contains(got, "Error:checksum mismatch, Last Line: 1") {
		t.Errorf("Missing checksum error in %q", got)
	}
	if !strings.Contains(got, "Resend: 2\nok\n") {
		t.Errorf("Missing resend request in %q", got)
	}
	if q.Len() != 1 {
		t.Errorf("Rejected line was queued, len=%d", q.Len())
	}
}

func TestReceiverLineSequence(t *testing.T) {
	q, out, rx := newTestReceiver(t)
	rx.Receive(NewSliceInputBuffer([]byte(numbered(1, "G28") + numbered(3, "G1 X1"))))

	if !strings.Contains(string(out.Result()), "Resend: 2") {
		t.Errorf("Expected resend from 2, got %q", out.Result())
	}
	if q.LastAcceptedLine() != 1 || rx.Stats().Resends != 1 {
		t.Errorf("last=%d stats=%+v", q.LastAcceptedLine(), rx.Stats())
	}
}

func TestReceiverMissingFields(t *testing.T) {
	_, out, rx := newTestReceiver(t)
	rx.Receive(NewSliceInputBuffer([]byte("N1 G28\nG28*12\n")))

	got := string(out.Result())
	if !strings.Contains(got, "No Checksum with line number") {
		t.Errorf("Missing checksum error in %q", got)
	}
	if !strings.Contains(got, "No Line Number with checksum") {
		t.Errorf("Missing line number error in %q", got)
	}
}

func TestReceiverM110(t *testing.T) {
	q, _, rx := newTestReceiver(t)
	rx.Receive(NewSliceInputBuffer([]byte(numbered(1, "G28") + numbered(100, "M110") + numbered(101, "G1 X1"))))

	if q.LastAcceptedLine() != 101 {
		t.Errorf("Expected line numbering to continue from M110, got %d", q.LastAcceptedLine())
	}
	if q.Len() != 3 {
		t.Errorf("Expected 3 queued lines, got %d", q.Len())
	}
}

func TestReceiverLineTooLong(t *testing.T) {
	q, out, rx := newTestReceiver(t)
	long := "G1 " + strings.Repeat("X", 200) + "\nG28\n"

	rx.Receive(NewSliceInputBuffer([]byte(long)))

	if !strings.Contains(string(out.Result()), "Error:Line too long") {
		t.Errorf("Expected line too long error, got %q", out.Result())
	}
	texts := drainTexts(q)
	if len(texts) != 1 || texts[0] != "G28" {
		t.Errorf("Expected only G28 queued, got %q", texts)
	}
	if rx.Stats().Overflow != 1 {
		t.Errorf("Expected one overflow, got %+v", rx.Stats())
	}
}

func TestReceiverBackpressure(t *testing.T) {
	q, _, rx := newTestReceiver(t)
	line := "G1 " + strings.Repeat("X", 90) + "\n"
	stream := strings.Repeat(line, 10)
	input := NewSliceInputBuffer([]byte(stream))

	rx.Receive(input)

	if input.Available() == 0 {
		t.Fatal("Expected bytes to stay in the input buffer on a full queue")
	}
	queued := q.Len()
	if queued == 0 || queued >= 10 {
		t.Fatalf("Unexpected number of queued lines %d", queued)
	}

	// Consuming a record lets the receiver continue where it stopped
	total := 0
	for input.Available() > 0 {
		if !q.PopFront() {
			t.Fatal("Receiver stalled with an empty queue")
		}
		total++
		rx.Receive(input)
	}
	total += len(drainTexts(q))
	if total != 10 {
		t.Errorf("Expected 10 lines end to end, got %d", total)
	}
}

func TestReceiverAbort(t *testing.T) {
	q, out, rx := newTestReceiver(t)
	rx.Receive(NewSliceInputBuffer([]byte(numbered(1, "G28") + numbered(2, "G1 X1") + "N3 G1")))
	out.Reset()

	rx.Abort()

	if !q.IsEmpty() || rx.Pending() {
		t.Error("Abort should drop queued records and the partial line")
	}
	if got := string(out.Result()); got != "Resend: 3\n" {
		t.Errorf("Expected resend from 3, got %q", got)
	}
	rx.Receive(NewSliceInputBuffer([]byte(numbered(3, "G1 X1"))))
	if q.LastAcceptedLine() != 3 {
		t.Errorf("Expected line 3 accepted after abort, got %d", q.LastAcceptedLine())
	}
}
