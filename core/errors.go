package core

import (
	"errors"
	"fmt"

	"code.hybscloud.com/iox"
)

var (
	// ErrFull reports that the target region cannot hold the packed record.
	// It wraps iox.ErrWouldBlock: tail producers should stop reading input
	// and retry once the interpreter has consumed records.
	ErrFull = fmt.Errorf("cmdqueue full: %w", iox.ErrWouldBlock)

	// ErrRecordTooLarge reports text longer than the configured maximum.
	ErrRecordTooLarge = errors.New("cmdqueue: record text too long")

	// ErrInvalidText reports text that cannot be stored (embedded NUL).
	ErrInvalidText = errors.New("cmdqueue: text contains NUL")

	// ErrLineNumber reports a missing or malformed N<digits> prefix.
	ErrLineNumber = errors.New("cmdqueue: malformed line number")

	// ErrInvalidTag reports a tag that cannot be enqueued by the caller.
	ErrInvalidTag = errors.New("cmdqueue: invalid record tag")

	// ErrCorrupt reports bytes that do not decode as a record.
	ErrCorrupt = errors.New("cmdqueue: corrupt record")
)

// IsFull reports whether err is a capacity (backpressure) condition.
func IsFull(err error) bool {
	return iox.IsWouldBlock(err)
}
