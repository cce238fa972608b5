package gcode

import (
	"errors"
	"math"
	"strconv"

	"cmdq/core"
	"cmdq/protocol"

	"code.hybscloud.com/iox"
)

// ErrExpansionFull is reported when a command cannot push its chained
// commands because the reserved front region is exhausted.
var ErrExpansionFull = errors.New("chained command reservation full")

// PlaybackStatus reports storage playback progress for M27
type PlaybackStatus interface {
	Status() (offset, size uint32, active bool)
}

type result uint8

const (
	resultDone  result = iota // Record finished, finalize it
	resultRetry               // Keep the record at the head and try again later
)

// Interpreter executes the records at the head of the command queue
type Interpreter struct {
	q        *core.Queue
	out      protocol.OutputBuffer
	moves    *MoveBuffer
	config   MachineConfig
	state    MachineState
	playback PlaybackStatus

	executed uint32
}

// NewInterpreter creates a new G-code interpreter
func NewInterpreter(q *core.Queue, out protocol.OutputBuffer, moves *MoveBuffer, config MachineConfig) *Interpreter {
	return &Interpreter{
		q:      q,
		out:    out,
		moves:  moves,
		config: config,
		state: MachineState{
			AbsoluteMode: true,
			FeedRate:     config.DefaultVelocity,
			TargetTemp:   make(map[string]float64),
		},
	}
}

// SetPlaybackStatus sets the source of M27 reports
func (interp *Interpreter) SetPlaybackStatus(p PlaybackStatus) {
	interp.playback = p
}

// Step interprets the record at the head of the queue. It returns false
// when the queue is empty or the head has to wait, so the main loop can
// move on to other work.
func (interp *Interpreter) Step() bool {
	rec, ok := interp.q.Begin()
	if !ok {
		return false
	}

	res, err := interp.executeText(rec.Text)
	if res == resultRetry {
		interp.q.RepeatFront()
		return false
	}
	if err != nil {
		protocol.Reply(interp.out, protocol.ReplyError+err.Error())
	}

	interp.q.Commit()
	interp.executed++
	if rec.Tag == core.TagHost || rec.Tag == core.TagHostNumbered {
		protocol.Reply(interp.out, protocol.ReplyOK)
	}
	return true
}

// Executed returns the number of records finalized by Step
func (interp *Interpreter) Executed() uint32 {
	return interp.executed
}

// GetState returns the current machine state
func (interp *Interpreter) GetState() *MachineState {
	return &interp.state
}

func (interp *Interpreter) executeText(text string) (result, error) {
	cmd, err := ParseLine(text)
	if err != nil {
		return resultDone, err
	}
	if cmd == nil || cmd.Type == 0 {
		if cmd != nil && cmd.Comment == "" {
			interp.unknown(text)
		}
		return resultDone, nil
	}
	return interp.execute(cmd)
}

// execute executes a parsed G-code command
func (interp *Interpreter) execute(cmd *Command) (result, error) {
	switch cmd.Type {
	case 'G':
		return interp.executeG(cmd)
	case 'M':
		return interp.executeM(cmd)
	}
	interp.unknown(cmd.Code())
	return resultDone, nil
}

// executeG handles G-codes
func (interp *Interpreter) executeG(cmd *Command) (result, error) {
	switch cmd.Number {
	case 0, 1: // G0/G1 - Linear move
		return interp.doMove(cmd)
	case 28: // G28 - Home
		return resultDone, interp.doHome(cmd)
	case 90: // G90 - Absolute positioning
		interp.state.AbsoluteMode = true
	case 91: // G91 - Relative positioning
		interp.state.AbsoluteMode = false
	case 92: // G92 - Set position
		interp.doSetPosition(cmd)
	default:
		interp.unknown(cmd.Code())
	}
	return resultDone, nil
}

// executeM handles M-codes
func (interp *Interpreter) executeM(cmd *Command) (result, error) {
	switch cmd.Number {
	case 27: // M27 - Report playback status
		interp.reportPlayback()
	case 82: // M82 - Absolute extrusion
		interp.state.ExtrudeMode = false
	case 83: // M83 - Relative extrusion
		interp.state.ExtrudeMode = true
	case 104: // M104 - Set extruder temperature
		if cmd.HasParameter('S') {
			interp.state.TargetTemp["extruder"] = cmd.GetParameter('S', 0)
		}
	case 140: // M140 - Set bed temperature
		if cmd.HasParameter('S') {
			interp.state.TargetTemp["bed"] = cmd.GetParameter('S', 0)
		}
	case 105: // M105 - Get temperature
		interp.reportTemperature()
	case 110: // M110 - Set line number
		if pos, ok := FindParam(cmd.Text, 'N'); ok {
			interp.q.SetLastLine(ReadLong(cmd.Text, pos))
		}
	case 114: // M114 - Get current position
		interp.reportPosition()
	case 117: // M117 - Display message
		interp.state.Message = cmd.Argument()
	case 400: // M400 - Wait for moves to finish
		if interp.moves != nil && interp.moves.Pending() > 0 {
			return resultRetry, nil
		}
	default:
		interp.unknown(cmd.Code())
	}
	return resultDone, nil
}

// doMove queues a linear move (G0/G1). A full move buffer keeps the
// command at the head of the queue until the motion tick makes room.
func (interp *Interpreter) doMove(cmd *Command) (result, error) {
	current := interp.state.Position
	target := current

	// Calculate target position
	text := cmd.Text
	if interp.state.AbsoluteMode {
		target.X = axisParam(text, 'X', current.X)
		target.Y = axisParam(text, 'Y', current.Y)
		target.Z = axisParam(text, 'Z', current.Z)
	} else {
		target.X = current.X + axisParam(text, 'X', 0)
		target.Y = current.Y + axisParam(text, 'Y', 0)
		target.Z = current.Z + axisParam(text, 'Z', 0)
	}

	// Handle extruder
	if HasParam(text, 'E') {
		if interp.state.ExtrudeMode {
			target.E = current.E + axisParam(text, 'E', 0)
		} else {
			target.E = axisParam(text, 'E', current.E)
		}
	}

	feed := interp.state.FeedRate
	if HasParam(text, 'F') {
		feed = axisParam(text, 'F', 0) / 60.0 // Convert mm/min to mm/s
	}

	dx := target.X - current.X
	dy := target.Y - current.Y
	dz := target.Z - current.Z
	de := target.E - current.E
	distance := math.Sqrt(dx*dx + dy*dy + dz*dz)

	if distance >= 0.001 || math.Abs(de) >= 0.001 {
		if interp.moves != nil {
			err := interp.moves.Push(Move{
				Start:    current,
				End:      target,
				Velocity: feed,
				Distance: distance,
			})
			if iox.IsWouldBlock(err) {
				return resultRetry, nil
			}
			if err != nil {
				return resultDone, err
			}
		}
	}

	// Commit state only once the move is accepted
	interp.state.FeedRate = feed
	interp.state.Position = target
	return resultDone, nil
}

// doHome expands G28 into chained moves to the origin of each requested
// axis. The moves run before anything queued behind the G28.
func (interp *Interpreter) doHome(cmd *Command) error {
	axes := []byte{'X', 'Y', 'Z'}
	if cmd.HasParameter('X') || cmd.HasParameter('Y') || cmd.HasParameter('Z') {
		axes = axes[:0]
		for _, a := range []byte{'X', 'Y', 'Z'} {
			if cmd.HasParameter(a) {
				axes = append(axes, a)
			}
		}
	}

	feed := strconv.FormatFloat(interp.config.HomingVelocity*60, 'f', -1, 64)
	chain := make([]string, 0, len(axes)+2)
	relative := !interp.state.AbsoluteMode
	if relative {
		chain = append(chain, "G90")
	}
	for _, a := range axes {
		chain = append(chain, "G1 "+string(a)+"0 F"+feed)
	}
	if relative {
		chain = append(chain, "G91")
	}

	if err := interp.q.EnqueueFrontBatch(chain...); err != nil {
		if core.IsFull(err) {
			return ErrExpansionFull
		}
		return err
	}
	for _, a := range axes {
		interp.state.Homed[a-'X'] = true
	}
	return nil
}

// doSetPosition sets the current position (G92)
func (interp *Interpreter) doSetPosition(cmd *Command) {
	pos := &interp.state.Position
	pos.X = axisParam(cmd.Text, 'X', pos.X)
	pos.Y = axisParam(cmd.Text, 'Y', pos.Y)
	pos.Z = axisParam(cmd.Text, 'Z', pos.Z)
	pos.E = axisParam(cmd.Text, 'E', pos.E)
}

// axisParam reads a coordinate from the raw line. An uppercase E ends the
// number, so packed fields such as "X10E5" read as X=10 and E=5.
func axisParam(text string, letter byte, def float64) float64 {
	pos, ok := FindParam(text, letter)
	if !ok {
		return def
	}
	return ReadFloatBeforeE(text, pos)
}

func (interp *Interpreter) reportPosition() {
	p := interp.state.Position
	protocol.Reply(interp.out, "X:"+formatFloat(p.X)+
		" Y:"+formatFloat(p.Y)+
		" Z:"+formatFloat(p.Z)+
		" E:"+formatFloat(p.E))
}

func (interp *Interpreter) reportTemperature() {
	t := interp.state.TargetTemp
	protocol.Reply(interp.out, "T:0.00 /"+formatFloat(t["extruder"])+
		" B:0.00 /"+formatFloat(t["bed"]))
}

func (interp *Interpreter) reportPlayback() {
	if interp.playback == nil {
		protocol.Reply(interp.out, "Not SD printing")
		return
	}
	offset, size, active := interp.playback.Status()
	if !active {
		protocol.Reply(interp.out, "Not SD printing")
		return
	}
	protocol.Reply(interp.out, "SD printing byte "+
		strconv.FormatUint(uint64(offset), 10)+"/"+
		strconv.FormatUint(uint64(size), 10))
}

func (interp *Interpreter) unknown(code string) {
	protocol.Reply(interp.out, protocol.ReplyEcho+"Unknown command: \""+code+"\"")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
