package standalone

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cmdq/core"
	"cmdq/protocol"
	"cmdq/standalone/config"
	"cmdq/standalone/gcode"
	"cmdq/standalone/playback"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
	"github.com/spf13/afero"
	"pkt.systems/pslog"
)

// uiQueueSize is the number of UI commands waiting for queue space
const uiQueueSize = 16

// Manager runs the single-threaded main loop: it moves host bytes, UI
// commands and playback lines into the command queue, interprets the
// queue head and dispatches the motion timers.
//
// Only SubmitUI may be called from another goroutine, and from one
// goroutine at a time. Host bytes read elsewhere arrive through a
// ChunkSource.
type Manager struct {
	cfg    config.Config
	logger pslog.Logger

	queue   *core.Queue
	fifo    *protocol.FifoBuffer
	recv    *protocol.LineReceiver
	out     *protocol.ScratchOutput
	interp  *gcode.Interpreter
	moves   *gcode.MoveBuffer
	sched   core.Scheduler
	sampler *core.PositionSampler
	player  *playback.Player

	chunks       ChunkSource
	pendingChunk []byte

	ui          *lfq.SPSC[string]
	uiSubmitted atomix.Uint64
	uiTaken     uint64
	pendingUI   string
	hasUI       bool

	sink io.Writer
	now  uint32
}

// NewManager creates a manager with the given configuration. Replies to
// the host are written to sink; a nil sink drops them.
func NewManager(ctx context.Context, cfg config.Config, sink io.Writer) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("standalone: %w", err)
	}
	queue, err := core.NewQueue(cfg.CoreConfig())
	if err != nil {
		return nil, fmt.Errorf("standalone: %w", err)
	}

	m := &Manager{
		cfg:    cfg,
		logger: pslog.Ctx(ctx).With("component", "cmdq"),
		queue:  queue,
		fifo:   protocol.NewFifoBuffer(cfg.Serial.FifoSize),
		out:    protocol.NewScratchOutput(),
		moves:  gcode.NewMoveBuffer(cfg.Machine.MoveBufferSize, uint32(cfg.Loop.MoveTicks)),
		ui:     lfq.NewSPSC[string](uiQueueSize),
		sink:   sink,
	}
	m.recv = protocol.NewLineReceiver(queue, m.out)
	m.interp = gcode.NewInterpreter(queue, m.out, m.moves, cfg.MachineConfig())
	m.sampler = core.NewPositionSampler(queue.Position(), uint32(cfg.Loop.SampleTicks), uint32(cfg.Loop.SampleTicks))

	m.sched.Add(m.moves.Timer(uint32(cfg.Loop.MoveTicks)))
	m.sched.Add(&m.sampler.Timer)

	if cfg.Logging.DumpQueue {
		queue.SetDebugWriter(func(line string) {
			m.logger.Debug(line)
		})
	}
	return m, nil
}

// Queue returns the command queue
func (m *Manager) Queue() *core.Queue {
	return m.queue
}

// AttachChunks sets the source of host-link bytes
func (m *Manager) AttachChunks(src ChunkSource) {
	m.chunks = src
}

// Feed copies host-link bytes into the input FIFO from the main loop
// goroutine and returns how many fit. The rest has to be offered again
// later.
func (m *Manager) Feed(data []byte) int {
	return m.fifo.Write(data)
}

// SubmitUI hands a command from the local interface to the main loop. It
// returns core.ErrFull when too many UI commands are waiting.
func (m *Manager) SubmitUI(text string) error {
	if err := m.ui.Enqueue(&text); err != nil {
		if iox.IsWouldBlock(err) {
			return core.ErrFull
		}
		return err
	}
	m.uiSubmitted.Add(1)
	return nil
}

// Play opens name on fs and starts queueing it from offset
func (m *Manager) Play(fs afero.Fs, name string, offset uint32) error {
	if m.player != nil {
		if err := m.player.Close(); err != nil {
			m.logger.Warn("playback close failed", "file", m.player.Name(), "err", err)
		}
	}
	p := playback.NewPlayer(fs, m.queue)
	if err := p.Open(name); err != nil {
		return err
	}
	if err := p.Start(offset); err != nil {
		_ = p.Close()
		return err
	}
	m.player = p
	m.interp.SetPlaybackStatus(p)
	m.logger.Info("playback started", "file", name, "offset", offset)
	return nil
}

// Abort stops execution. Queued records are dropped, playback pauses at
// the last executed offset and line numbering continues after the last
// accepted line.
func (m *Manager) Abort() {
	if m.player != nil {
		m.player.Pause()
	}
	m.recv.Abort()
	m.hasUI = false
	m.flush()
	m.logger.Warn("queue aborted",
		"stopped_at_line", m.queue.StoppedAtLine(),
		"resume_offset", m.queue.Position().Load(),
	)
	m.queue.Dump()
}

// Poll runs one main loop iteration at motion tick now. It returns false
// when nothing happened, so the caller can back off.
func (m *Manager) Poll(now uint32) bool {
	m.now = now
	busy := m.pullChunks()

	if m.fifo.Available() > 0 && m.queue.CanAcceptLine() {
		before := m.fifo.Available()
		m.recv.Receive(m.fifo)
		busy = busy || m.fifo.Available() != before
	}

	if m.drainUI() {
		busy = true
	}
	if m.pumpPlayback() {
		busy = true
	}

	for i := 0; i < m.cfg.Loop.StepsPerIteration; i++ {
		if !m.interp.Step() {
			break
		}
		busy = true
	}

	// Timers are driven by the tick, not by input
	m.sched.Dispatch(now)
	m.flush()
	return busy
}

// Run polls until ctx is done. Motion ticks are derived from the
// configured tick period.
func (m *Manager) Run(ctx context.Context) error {
	return m.RunUntil(ctx, nil)
}

// RunUntil polls until ctx is done or done reports true after an
// iteration. It returns nil in the latter case.
func (m *Manager) RunUntil(ctx context.Context, done func() bool) error {
	tick := m.cfg.Tick()
	start := time.Now()
	lastStatus := start
	backoff := iox.Backoff{}

	m.logger.Info("main loop started",
		"tick", tick,
		"general_size", m.queue.Config().GeneralSize,
		"reserve_size", m.queue.Config().ReserveSize(),
	)
	defer func() {
		m.logStatus("main loop stopped")
		m.queue.Dump()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := time.Now()
		if m.Poll(uint32(now.Sub(start) / tick)) {
			backoff.Reset()
		} else {
			backoff.Wait()
		}

		if interval := m.cfg.StatusInterval(); interval > 0 && now.Sub(lastStatus) >= interval {
			lastStatus = now
			m.logStatus("queue status")
		}
		if done != nil && done() {
			return nil
		}
	}
}

// Idle reports whether all input is consumed and every queued command
// and move has finished
func (m *Manager) Idle() bool {
	if m.hasUI || m.uiTaken != m.uiSubmitted.Load() || m.recv.Pending() || m.fifo.Available() > 0 || len(m.pendingChunk) > 0 {
		return false
	}
	if m.player != nil {
		if _, _, playing := m.player.Status(); playing {
			return false
		}
	}
	return m.queue.IsEmpty() && m.moves.Pending() == 0
}

// PlaybackDone reports whether the playback file was queued and executed
// to the end
func (m *Manager) PlaybackDone() bool {
	return m.player != nil && m.player.Done()
}

// State returns the interpreter's machine state
func (m *Manager) State() *gcode.MachineState {
	return m.interp.GetState()
}

// Status returns a snapshot of the main loop counters
func (m *Manager) Status() Status {
	stats := m.recv.Stats()
	st := Status{
		Records:          m.queue.Len(),
		FreeBack:         m.queue.AvailableBack(),
		FreeFront:        m.queue.AvailableFront(),
		CurrentLine:      m.queue.CurrentLine(),
		LastAcceptedLine: m.queue.LastAcceptedLine(),
		ExecutedLine:     m.queue.ExecutedLine(),
		Executed:         m.interp.Executed(),
		MovesPending:     m.moves.Pending(),
		MovesDone:        m.moves.Completed(),
		Position:         m.queue.Position().Load(),
		SampledPosition:  m.sampler.Last(),
		ReadAhead:        m.queue.StorageLengthOwed(),
		Lines:            stats.Lines,
		Resends:          stats.Resends,
		Dropped:          m.out.Dropped(),
	}
	if m.player != nil {
		_, _, st.Playing = m.player.Status()
		st.Playback = m.player.Name()
	}
	return st
}

// Close releases the playback file
func (m *Manager) Close() error {
	if m.player == nil {
		return nil
	}
	return m.player.Close()
}

func (m *Manager) pullChunks() bool {
	moved := false
	for {
		if len(m.pendingChunk) == 0 {
			if m.chunks == nil {
				return moved
			}
			chunk, err := m.chunks.Dequeue()
			if err != nil {
				if !iox.IsWouldBlock(err) {
					m.logger.Warn("host link read failed", "err", err)
				}
				return moved
			}
			m.pendingChunk = chunk
		}
		n := m.fifo.Write(m.pendingChunk)
		m.pendingChunk = m.pendingChunk[n:]
		if n > 0 {
			moved = true
		}
		if len(m.pendingChunk) > 0 {
			return moved
		}
	}
}

func (m *Manager) drainUI() bool {
	moved := false
	for {
		if !m.hasUI {
			text, err := m.ui.Dequeue()
			if err != nil {
				return moved
			}
			m.pendingUI, m.hasUI = text, true
			m.uiTaken++
		}
		err := m.queue.EnqueueUI(m.pendingUI)
		if core.IsFull(err) {
			return moved
		}
		if err != nil {
			m.logger.Warn("ui command rejected", "text", m.pendingUI, "err", err)
		}
		m.hasUI = false
		moved = true
	}
}

func (m *Manager) pumpPlayback() bool {
	if m.player == nil {
		return false
	}
	n, err := m.player.Pump()
	switch {
	case err == nil, core.IsFull(err):
	case errors.Is(err, io.EOF):
		if n > 0 {
			m.logger.Info("playback queued to end of file",
				"file", m.player.Name(),
				"lines", m.player.Lines(),
			)
		}
	default:
		m.logger.Error("playback stopped", "file", m.player.Name(), "err", err)
		protocol.Reply(m.out, protocol.ReplyError+err.Error())
	}
	return n > 0
}

func (m *Manager) flush() {
	data := m.out.Result()
	if len(data) == 0 {
		return
	}
	if dropped := m.out.Dropped(); dropped > 0 {
		m.logger.Warn("reply overflow", "dropped", dropped)
	}
	if m.sink != nil {
		if _, err := m.sink.Write(data); err != nil {
			m.logger.Warn("reply write failed", "err", err)
		}
	}
	m.out.Reset()
}

func (m *Manager) logStatus(msg string) {
	st := m.Status()
	m.logger.Info(msg,
		"tick", m.now,
		"records", st.Records,
		"free_back", st.FreeBack,
		"free_front", st.FreeFront,
		"executed", st.Executed,
		"last_line", st.LastAcceptedLine,
		"position", st.Position,
		"sampled", st.SampledPosition,
		"moves_done", st.MovesDone,
	)
}
