package protocol

import (
	"errors"
	"strconv"
	"strings"

	"cmdq/core"
)

// Reasons a host line is rejected
const (
	errNoChecksum       = "No Checksum with line number, Last Line: "
	errNoLineNumber     = "No Line Number with checksum, Last Line: "
	errChecksumMismatch = "checksum mismatch, Last Line: "
	errLineSequence     = "Line Number is not Last Line Number+1, Last Line: "
	errLineTooLong      = "Line too long"
)

// ReceiverStats counts what the receiver did with host lines
type ReceiverStats struct {
	Lines    uint32 // Lines queued
	Resends  uint32 // Resend requests sent
	Overflow uint32 // Lines dropped for being too long
}

// LineReceiver assembles host-link bytes into lines and queues them.
//
// Numbered lines ("N<n> <command>*<checksum>") are checked against the
// XOR checksum and against the queue's last accepted line number; a bad
// line is answered with an error, a Resend request for the expected line
// and "ok". Unnumbered lines are queued as they are. Text after ';' is
// dropped.
//
// The receiver only consumes input while the queue can take a worst-case
// record, so on a full queue the bytes stay in the input buffer.
type LineReceiver struct {
	q      *core.Queue
	output OutputBuffer

	line      []byte
	maxLine   int
	inComment bool
	overflow  bool
	stats     ReceiverStats
}

// NewLineReceiver creates a receiver feeding q and replying on output
func NewLineReceiver(q *core.Queue, output OutputBuffer) *LineReceiver {
	maxLine := q.Config().MaxTextLen + LineOverhead
	return &LineReceiver{
		q:       q,
		output:  output,
		line:    make([]byte, 0, maxLine),
		maxLine: maxLine,
	}
}

// Receive processes incoming data from the input buffer and pops what it
// consumed
func (r *LineReceiver) Receive(input InputBuffer) {
	data := input.Data()
	consumed := 0

	for consumed < len(data) {
		if !r.q.CanAcceptLine() {
			break
		}
		b := data[consumed]
		consumed++

		switch {
		case b == '\n' || b == '\r':
			r.endLine()
		case r.overflow || r.inComment:
		case b == CommentMarker:
			r.inComment = true
		case len(r.line) >= r.maxLine:
			r.overflow = true
		default:
			r.line = append(r.line, b)
		}
	}

	if consumed > 0 {
		input.Pop(consumed)
	}
}

// Abort halts the queue and discards the partially assembled line.
// Numbering continues after the last accepted line, which the host is
// asked to send next.
func (r *LineReceiver) Abort() {
	r.q.Halt()
	stop := r.q.StoppedAtLine()
	r.q.SetLastLine(stop)
	r.discard()
	ReplyResendFrom(r.output, stop+1)
}

// Stats returns the receiver counters
func (r *LineReceiver) Stats() ReceiverStats {
	return r.stats
}

// Pending reports whether a partial line is buffered
func (r *LineReceiver) Pending() bool {
	return len(r.line) > 0 || r.overflow || r.inComment
}

func (r *LineReceiver) endLine() {
	defer r.discard()

	if r.overflow {
		r.stats.Overflow++
		Reply(r.output, ReplyError+errLineTooLong)
		r.requestResend()
		return
	}
	text := strings.TrimSpace(string(r.line))
	if text == "" {
		return
	}
	r.processLine(text)
}

func (r *LineReceiver) processLine(text string) {
	star := strings.IndexByte(text, ChecksumMarker)

	if text[0] != 'N' {
		if star >= 0 {
			r.reject(errNoLineNumber)
			return
		}
		r.enqueue(r.q.EnqueueHost(text))
		return
	}

	if star < 0 {
		r.reject(errNoChecksum)
		return
	}
	want, err := strconv.ParseUint(strings.TrimSpace(text[star+1:]), 10, 8)
	if err != nil || uint8(want) != Checksum([]byte(text[:star])) {
		r.reject(errChecksumMismatch)
		return
	}
	body := strings.TrimSpace(text[:star])

	// M110 sets the numbering base, so its own number is not checked
	if !strings.Contains(body, "M110") {
		n, ok := lineNumber(body)
		if !ok || n != r.q.LastAcceptedLine()+1 {
			r.reject(errLineSequence)
			return
		}
	}

	_, err = r.q.EnqueueHostNumbered(body)
	r.enqueue(err)
}

func (r *LineReceiver) enqueue(err error) {
	switch {
	case err == nil:
		r.stats.Lines++
	case errors.Is(err, core.ErrRecordTooLarge):
		r.stats.Overflow++
		Reply(r.output, ReplyError+errLineTooLong)
		r.requestResend()
	case errors.Is(err, core.ErrLineNumber):
		r.reject(errLineSequence)
	default:
		Reply(r.output, ReplyError+err.Error())
		r.requestResend()
	}
}

func (r *LineReceiver) reject(reason string) {
	Reply(r.output, ReplyError+reason+strconv.FormatInt(int64(r.q.LastAcceptedLine()), 10))
	r.requestResend()
}

func (r *LineReceiver) requestResend() {
	r.stats.Resends++
	ReplyResendFrom(r.output, r.q.LastAcceptedLine()+1)
	Reply(r.output, ReplyOK)
}

func (r *LineReceiver) discard() {
	r.line = r.line[:0]
	r.inComment = false
	r.overflow = false
}

// lineNumber parses the "N<digits>" prefix of a host line
func lineNumber(s string) (int32, bool) {
	if len(s) < 2 || s[0] != 'N' {
		return 0, false
	}
	end := 1
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.ParseInt(s[1:end], 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(n), true
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
