package standalone

// ChunkSource yields byte chunks read by a transport goroutine. An empty
// source returns an error classified by iox.IsWouldBlock.
type ChunkSource interface {
	Dequeue() ([]byte, error)
}

// Status is a snapshot of the main loop, taken from the main loop
type Status struct {
	Records   int // Queued records
	FreeBack  int // Largest record the tail can take
	FreeFront int // Free bytes of the chained reservation

	CurrentLine      int32
	LastAcceptedLine int32
	ExecutedLine     int32

	Executed     uint32 // Records interpreted
	MovesPending int
	MovesDone    uint32

	Position        uint32 // Executed storage offset
	SampledPosition uint32 // Last value latched by the sampler
	ReadAhead       uint32 // Storage bytes queued but not begun

	Playing  bool
	Playback string

	Lines   uint32 // Host lines accepted
	Resends uint32
	Dropped int // Reply bytes lost to a full output buffer
}
