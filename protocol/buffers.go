package protocol

import "strconv"

// InputBuffer provides an abstraction for reading incoming protocol data
type InputBuffer interface {
	// Data returns the available data slice
	Data() []byte

	// Available returns the number of bytes available
	Available() int

	// Pop removes n bytes from the front of the buffer
	Pop(n int)
}

// OutputBuffer collects reply bytes until the main loop flushes them
type OutputBuffer interface {
	Output(data []byte)
}

// Reply writes one reply line to out.
func Reply(out OutputBuffer, line string) {
	if out == nil {
		return
	}
	out.Output([]byte(line))
	out.Output([]byte{'\n'})
}

// ReplyResendFrom writes the Resend request for line n.
func ReplyResendFrom(out OutputBuffer, n int32) {
	Reply(out, ReplyResend+strconv.FormatInt(int64(n), 10))
}

// SliceInputBuffer implements InputBuffer using a byte slice
type SliceInputBuffer struct {
	data []byte
}

// NewSliceInputBuffer creates a new SliceInputBuffer
func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte {
	return s.data
}

func (s *SliceInputBuffer) Available() int {
	return len(s.data)
}

func (s *SliceInputBuffer) Pop(n int) {
	if n > len(s.data) {
		n = len(s.data)
	}
	s.data = s.data[n:]
}

// ScratchOutput implements OutputBuffer using a fixed-size scratch buffer.
// Output past the end is dropped and counted.
type ScratchOutput struct {
	buf     [MessageMax]byte
	pos     int
	dropped int
}

// NewScratchOutput creates a new ScratchOutput
func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{pos: 0}
}

func (s *ScratchOutput) Output(data []byte) {
	n := copy(s.buf[s.pos:], data)
	s.pos += n
	s.dropped += len(data) - n
}

// Result returns the accumulated output data
func (s *ScratchOutput) Result() []byte {
	return s.buf[:s.pos]
}

// Dropped returns the number of bytes that did not fit since the last Reset
func (s *ScratchOutput) Dropped() int {
	return s.dropped
}

// Reset clears the buffer
func (s *ScratchOutput) Reset() {
	s.pos = 0
	s.dropped = 0
}

// FifoBuffer holds host-link bytes until the receiver has a whole line.
// One slot stays empty to tell full from empty.
type FifoBuffer struct {
	buf   []byte
	read  int
	write int
}

// NewFifoBuffer creates a FifoBuffer holding up to capacity-1 bytes
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write appends as much of data as fits and returns the count
func (f *FifoBuffer) Write(data []byte) int {
	n := min(len(data), f.Free())
	end := f.write + n
	if end <= len(f.buf) {
		copy(f.buf[f.write:end], data[:n])
	} else {
		first := copy(f.buf[f.write:], data[:n])
		copy(f.buf, data[first:n])
	}
	f.write = end % len(f.buf)
	return n
}

// Available returns the number of buffered bytes
func (f *FifoBuffer) Available() int {
	if f.write >= f.read {
		return f.write - f.read
	}
	return len(f.buf) - f.read + f.write
}

// Free returns the number of bytes Write would accept
func (f *FifoBuffer) Free() int {
	return len(f.buf) - f.Available() - 1
}

// Data returns the buffered bytes. Wrapped contents are copied into a
// fresh slice so the receiver always sees whole lines.
func (f *FifoBuffer) Data() []byte {
	if f.read <= f.write {
		return f.buf[f.read:f.write]
	}
	result := make([]byte, 0, f.Available())
	result = append(result, f.buf[f.read:]...)
	return append(result, f.buf[:f.write]...)
}

// Pop drops n bytes from the front
func (f *FifoBuffer) Pop(n int) {
	n = min(n, f.Available())
	f.read = (f.read + n) % len(f.buf)
}
