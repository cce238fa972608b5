package gcode

// Position represents a position in machine coordinates
type Position struct {
	X float64
	Y float64
	Z float64
	E float64 // Extruder
}

// Move is a linear move handed from the interpreter to the motion tick
type Move struct {
	Start    Position
	End      Position
	Velocity float64 // Feedrate (mm/s)
	Distance float64 // Total distance (mm)
}

// MachineConfig holds the motion defaults the interpreter needs
type MachineConfig struct {
	DefaultVelocity float64 // Default feedrate (mm/s)
	HomingVelocity  float64 // Feedrate of the chained homing moves (mm/s)
	MoveBufferSize  int     // Moves queued ahead of the motion tick
}

// DefaultMachineConfig returns the stock motion defaults
func DefaultMachineConfig() MachineConfig {
	return MachineConfig{
		DefaultVelocity: 50,
		HomingVelocity:  50,
		MoveBufferSize:  16,
	}
}

// MachineState represents the current machine state
type MachineState struct {
	Position     Position           // Current position
	Homed        [3]bool            // Homing status [X, Y, Z]
	AbsoluteMode bool               // Absolute (G90) vs relative (G91) positioning
	FeedRate     float64            // Current feedrate (mm/s)
	ExtrudeMode  bool               // Relative extrusion (M83)
	TargetTemp   map[string]float64 // Target temperatures
	Message      string             // Last M117 message
}

// Command represents a parsed G-code command
type Command struct {
	Type       byte             // 'G', 'M', 'T'
	Number     int              // Command number (e.g., 0 for G0, 28 for G28)
	Parameters map[byte]float64 // Parameters (X, Y, Z, E, F, S, etc.)
	Comment    string           // Comment text
	Text       string           // Source text, comment included
}

// HasParameter checks if a parameter exists in the command
func (cmd *Command) HasParameter(param byte) bool {
	_, ok := cmd.Parameters[param]
	return ok
}

// GetParameter gets a parameter value, or returns the default if not present
func (cmd *Command) GetParameter(param byte, defaultValue float64) float64 {
	if val, ok := cmd.Parameters[param]; ok {
		return val
	}
	return defaultValue
}

// Code returns the command word, e.g. "G1"
func (cmd *Command) Code() string {
	if cmd.Type == 0 {
		return ""
	}
	return string(cmd.Type) + itoa(cmd.Number)
}
