package gcode

import (
	"strings"
	"testing"

	"cmdq/core"
	"cmdq/protocol"
)

type testRig struct {
	q     *core.Queue
	out   *protocol.ScratchOutput
	moves *MoveBuffer
	sched core.Scheduler
	now   uint32
	in    *Interpreter
}

func newTestRig(t *testing.T, cfg core.Config, moveCap int) *testRig {
	t.Helper()
	q, err := core.NewQueue(cfg)
	if err != nil {
		t.Fatalf("NewQueue failed: %v", err)
	}
	r := &testRig{
		q:     q,
		out:   protocol.NewScratchOutput(),
		moves: NewMoveBuffer(moveCap, 1),
	}
	r.sched.Add(r.moves.Timer(1))
	r.in = NewInterpreter(q, r.out, r.moves, DefaultMachineConfig())
	return r
}

// tick advances the motion clock by one period
func (r *testRig) tick() {
	r.now++
	r.sched.Dispatch(r.now)
}

// run steps the interpreter until the queue is empty, ticking the motion
// clock whenever the head has to wait
func (r *testRig) run(t *testing.T) {
	t.Helper()
	for i := 0; !r.q.IsEmpty(); i++ {
		if i > 1000 {
			t.Fatal("Interpreter did not drain the queue")
		}
		if !r.in.Step() {
			r.tick()
		}
	}
}

func (r *testRig) output() string {
	s := string(r.out.Result())
	r.out.Reset()
	return s
}

func TestInterpreterMoveScenario(t *testing.T) {
	r := newTestRig(t, core.DefaultConfig(), 4)
	r.q.EnqueueUI("G1 X10 Y5")

	if !r.in.Step() {
		t.Fatal("Step returned false")
	}
	pos := r.in.GetState().Position
	if pos.X != 10 || pos.Y != 5 || pos.Z != 0 {
		t.Errorf("Unexpected position %+v", pos)
	}
	if r.moves.Pending() != 1 {
		t.Errorf("Expected 1 pending move, got %d", r.moves.Pending())
	}
	if got := r.output(); got != "" {
		t.Errorf("UI commands are not acknowledged, got %q", got)
	}

	r.tick()
	if r.moves.Pending() != 0 || r.moves.Completed() != 1 {
		t.Errorf("Motion tick did not complete the move")
	}
	if d := r.moves.Travelled(); d < 11.18 || d > 11.19 {
		t.Errorf("Unexpected travel %f", d)
	}
}

func TestInterpreterPackedExtrusion(t *testing.T) {
	r := newTestRig(t, core.DefaultConfig(), 4)
	r.q.EnqueueHost("G1 X10E5")
	r.q.EnqueueHost("G92 X2E1")
	r.q.EnqueueHost("M114")
	r.run(t)

	if got := r.output(); got != "ok\nok\nX:2.00 Y:0.00 Z:0.00 E:1.00\nok\n" {
		t.Errorf("Unexpected output %q", got)
	}
	if r.moves.Completed() != 1 {
		t.Errorf("Expected 1 move, got %d", r.moves.Completed())
	}
	if d := r.moves.Travelled(); d != 10 {
		t.Errorf("Expected X to travel 10, got %f", d)
	}
}

func TestInterpreterHostAck(t *testing.T) {
	r := newTestRig(t, core.DefaultConfig(), 4)
	r.q.EnqueueHost("G92 X3 E1")
	r.q.EnqueueHostNumbered("N1 M114")
	r.run(t)

	if got := r.output(); got != "ok\nX:3.00 Y:0.00 Z:0.00 E:1.00\nok\n" {
		t.Errorf("Unexpected output %q", got)
	}
	if r.q.ExecutedLine() != 1 {
		t.Errorf("Expected executed line 1, got %d", r.q.ExecutedLine())
	}
}

func TestInterpreterHomeExpansion(t *testing.T) {
	r := newTestRig(t, core.DefaultConfig(), 4)
	r.q.EnqueueHost("G1 X20 Y20 Z5")
	r.q.EnqueueHost("G28")
	r.q.EnqueueHost("M114")

	r.in.Step()
	r.in.Step()

	var queued []string
	r.q.Walk(func(rec core.Record) bool {
		queued = append(queued, rec.Tag.String()+":"+rec.Text)
		return true
	})
	expected := []string{
		"chained:G1 X0 F3000",
		"chained:G1 Y0 F3000",
		"chained:G1 Z0 F3000",
		"host:M114",
	}
	if strings.Join(queued, ",") != strings.Join(expected, ",") {
		t.Errorf("Unexpected queue after G28: %v", queued)
	}

	r.output()
	r.run(t)
	if got := r.output(); got != "X:0.00 Y:0.00 Z:0.00 E:0.00\nok\n" {
		t.Errorf("Unexpected output %q", got)
	}
	if r.in.GetState().Homed != [3]bool{true, true, true} {
		t.Errorf("Axes not homed: %v", r.in.GetState().Homed)
	}
}

func TestInterpreterHomeRelative(t *testing.T) {
	r := newTestRig(t, core.DefaultConfig(), 4)
	r.q.EnqueueUI("G91")
	r.q.EnqueueUI("G1 Z10")
	r.q.EnqueueUI("G28 Z")
	r.run(t)

	st := r.in.GetState()
	if st.AbsoluteMode {
		t.Error("Relative mode should be restored after homing")
	}
	if st.Position.Z != 0 || st.Homed != [3]bool{false, false, true} {
		t.Errorf("Unexpected state after G28 Z: %+v", st)
	}
}

func TestInterpreterHomeReservationFull(t *testing.T) {
	r := newTestRig(t, core.Config{ChainedSlots: 1}, 4)
	r.q.EnqueueHost("G28")
	r.in.Step()

	got := r.output()
	if !strings.Contains(got, "Error:"+ErrExpansionFull.Error()) || !strings.HasSuffix(got, "ok\n") {
		t.Errorf("Expected expansion error and ok, got %q", got)
	}
	if !r.q.IsEmpty() {
		t.Error("Failed expansion must not leave chained records")
	}
	if r.in.GetState().Homed != [3]bool{} {
		t.Error("Failed expansion must not mark axes homed")
	}
}

func TestInterpreterMoveBufferFull(t *testing.T) {
	r := newTestRig(t, core.DefaultConfig(), 2)
	r.q.EnqueueUI("G1 X1")
	r.q.EnqueueUI("G1 X2")
	r.q.EnqueueUI("G1 X3")

	r.in.Step()
	r.in.Step()
	if r.in.Step() {
		t.Fatal("Third move should wait for the move buffer")
	}
	if rec, _ := r.q.Peek(); rec.Text != "G1 X3" || r.q.Len() != 1 {
		t.Errorf("Waiting move must stay at the head, got %q len=%d", rec.Text, r.q.Len())
	}
	if r.in.GetState().Position.X != 2 {
		t.Errorf("Position must not advance for a waiting move, got %f", r.in.GetState().Position.X)
	}

	r.tick()
	if !r.in.Step() {
		t.Error("Move should run once the buffer has room")
	}
}

func TestInterpreterWaitForMoves(t *testing.T) {
	r := newTestRig(t, core.DefaultConfig(), 4)
	r.q.EnqueueUI("G1 X1")
	r.q.EnqueueUI("G1 X2")
	r.q.EnqueueHost("M400")

	r.in.Step()
	r.in.Step()
	if r.in.Step() {
		t.Fatal("M400 should wait for pending moves")
	}
	r.tick()
	r.tick()
	if !r.in.Step() {
		t.Error("M400 should finish once moves are done")
	}
	if got := r.output(); got != "ok\n" {
		t.Errorf("Expected a single ok, got %q", got)
	}
}

func TestInterpreterStorageRecord(t *testing.T) {
	r := newTestRig(t, core.DefaultConfig(), 4)
	r.q.Position().Publish(40)
	r.q.EnqueueStorage("G1 X1", 9)
	r.q.EnqueueStorage("M117 done", 12)
	r.run(t)

	if r.q.Position().Load() != 61 {
		t.Errorf("Expected storage position 61, got %d", r.q.Position().Load())
	}
	if r.in.GetState().Message != "done" {
		t.Errorf("Expected message %q, got %q", "done", r.in.GetState().Message)
	}
	if got := r.output(); got != "" {
		t.Errorf("Storage commands are not acknowledged, got %q", got)
	}
}

type fakePlayback struct {
	offset, size uint32
	active       bool
}

func (f fakePlayback) Status() (uint32, uint32, bool) {
	return f.offset, f.size, f.active
}

func TestInterpreterReports(t *testing.T) {
	r := newTestRig(t, core.DefaultConfig(), 4)

	r.q.EnqueueUI("M27")
	r.in.Step()
	if got := r.output(); got != "Not SD printing\n" {
		t.Errorf("Unexpected M27 output %q", got)
	}

	r.in.SetPlaybackStatus(fakePlayback{offset: 120, size: 4096, active: true})
	r.q.EnqueueUI("M27")
	r.in.Step()
	if got := r.output(); got != "SD printing byte 120/4096\n" {
		t.Errorf("Unexpected M27 output %q", got)
	}

	r.q.EnqueueUI("M104 S210")
	r.q.EnqueueUI("M140 S60")
	r.q.EnqueueUI("M105")
	r.run(t)
	if got := r.output(); got != "T:0.00 /210.00 B:0.00 /60.00\n" {
		t.Errorf("Unexpected M105 output %q", got)
	}
}

func TestInterpreterLineReset(t *testing.T) {
	r := newTestRig(t, core.DefaultConfig(), 4)
	r.q.EnqueueUI("M110 N50")
	r.in.Step()

	if r.q.LastAcceptedLine() != 50 {
		t.Errorf("Expected last line 50, got %d", r.q.LastAcceptedLine())
	}
}

func TestInterpreterUnknown(t *testing.T) {
	r := newTestRig(t, core.DefaultConfig(), 4)
	r.q.EnqueueHost("G999")
	r.q.EnqueueHost("T1")
	r.q.EnqueueHost("G X")
	r.q.EnqueueHost("; just a comment")
	r.run(t)

	got := r.output()
	for _, want := range []string{
		"echo:Unknown command: \"G999\"\nok\n",
		"echo:Unknown command: \"T1\"\nok\n",
		"Error:" + ErrMissingNumber.Error() + "\nok\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Missing %q in %q", want, got)
		}
	}
	if strings.Count(got, "ok\n") != 4 {
		t.Errorf("Expected 4 acknowledgements, got %q", got)
	}
}
