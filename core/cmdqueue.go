package core

import (
	"errors"
	"strconv"
)

// Queue sizing defaults
const (
	DefaultMaxTextLen     = 96 // Longest command text, terminator excluded
	DefaultBufSize        = 4  // Worst-case records the general region holds
	DefaultChainedSlots   = 5  // Maximum-length chained records in the reserved region
	DefaultChainedTextLen = 20 // Text length a chained slot is sized for
)

// Config sizes a Queue. Zero fields take the defaults.
type Config struct {
	MaxTextLen     int
	GeneralSize    int // Bytes; 0 means DefaultBufSize worst-case records
	ChainedSlots   int
	ChainedTextLen int
}

// DefaultConfig returns the stock queue configuration.
func DefaultConfig() Config {
	return Config{}.WithDefaults()
}

// WithDefaults fills the zero fields. A zero GeneralSize is derived from
// the effective MaxTextLen.
func (c Config) WithDefaults() Config {
	if c.MaxTextLen == 0 {
		c.MaxTextLen = DefaultMaxTextLen
	}
	if c.GeneralSize == 0 {
		c.GeneralSize = DefaultBufSize * c.MaxRecordSize()
	}
	if c.ChainedSlots == 0 {
		c.ChainedSlots = DefaultChainedSlots
	}
	if c.ChainedTextLen == 0 {
		c.ChainedTextLen = DefaultChainedTextLen
	}
	return c
}

// MaxRecordSize returns the size of the largest record the queue accepts.
func (c Config) MaxRecordSize() int {
	return RecordSize(TagHostNumbered, c.MaxTextLen)
}

// ReserveSize returns the size of the reserved front region.
func (c Config) ReserveSize() int {
	return c.ChainedSlots * RecordSize(TagChained, c.ChainedTextLen)
}

// Validate checks that the configuration describes a usable queue.
func (c Config) Validate() error {
	switch {
	case c.MaxTextLen < 1:
		return errors.New("cmdqueue: max text length must be positive")
	case c.ChainedSlots < 0 || c.ChainedTextLen < 0:
		return errors.New("cmdqueue: chained reservation must not be negative")
	case c.ChainedTextLen > c.MaxTextLen:
		return errors.New("cmdqueue: chained text length exceeds max text length")
	case c.GeneralSize < c.MaxRecordSize():
		return errors.New("cmdqueue: general region smaller than one record")
	}
	return nil
}

// Queue is the command intake buffer between the producers (host link,
// storage playback, UI) and the interpreter loop.
//
// All methods belong to the main loop. The only state read from interrupt
// context is the storage Position, which is published atomically.
//
// A record at the head goes through two steps. Begin hands it to the
// interpreter; a storage record becomes TagPendingRemoval at that point.
// Commit (or PopFront) finalizes it: the storage length is published to
// Position and the head advances.
type Queue struct {
	cfg     Config
	ring    *Ring
	scratch []byte
	pos     Position
	events  EventRing
	debug   DebugWriter

	count  int
	active bool // Head was handed out by Begin and is not finalized yet

	currentLine      int32
	lastAcceptedLine int32
	stoppedAtLine    int32
	executedLine     int32
}

// NewQueue creates a queue with the given configuration.
func NewQueue(cfg Config) (*Queue, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Queue{
		cfg:     cfg,
		ring:    NewRing(cfg.ReserveSize(), cfg.GeneralSize),
		scratch: make([]byte, cfg.MaxRecordSize()),
	}, nil
}

// Config returns the effective configuration.
func (q *Queue) Config() Config {
	return q.cfg
}

// Position returns the storage offset shared with interrupt context.
func (q *Queue) Position() *Position {
	return &q.pos
}

// Events returns the queue event ring.
func (q *Queue) Events() *EventRing {
	return &q.events
}

// SetDebugWriter routes queue diagnostics to w.
func (q *Queue) SetDebugWriter(w DebugWriter) {
	q.debug = w
}

// EnqueueBack appends a record at the tail. Chained records must use
// EnqueueFront. For TagHostNumbered the line counters follow r.Line.
func (q *Queue) EnqueueBack(r Record) error {
	switch r.Tag {
	case TagHost, TagStorage, TagUI, TagHostNumbered:
	default:
		return ErrInvalidTag
	}
	if len(r.Text) > q.cfg.MaxTextLen {
		return ErrRecordTooLarge
	}
	if r.Tag == TagHostNumbered {
		q.currentLine = r.Line
	}

	n, err := Encode(q.scratch, r)
	if err != nil {
		return err
	}
	if err := q.ring.AppendBack(q.scratch[:n]); err != nil {
		q.events.Record(EvtFull, r.Tag, n, q.ring.Len())
		return err
	}
	q.count++
	if r.Tag == TagHostNumbered {
		q.lastAcceptedLine = r.Line
	}
	q.events.Record(EvtEnqueueBack, r.Tag, n, q.ring.Len())
	return nil
}

// EnqueueHost queues a line received over the host link without a line number.
func (q *Queue) EnqueueHost(text string) error {
	return q.EnqueueBack(Record{Tag: TagHost, Text: text})
}

// EnqueueHostNumbered consumes the leading N<digits> token of text, stores
// the number in the record and queues the remainder. It returns the parsed
// line number, also when the enqueue itself fails.
func (q *Queue) EnqueueHostNumbered(text string) (int32, error) {
	line, rest, ok := splitLineNumber(text)
	if !ok {
		return 0, ErrLineNumber
	}
	return line, q.EnqueueBack(Record{Tag: TagHostNumbered, Line: line, Text: rest})
}

// EnqueueStorage queues a line read from storage together with the number
// of storage bytes it stands for.
func (q *Queue) EnqueueStorage(text string, storageLen uint16) error {
	return q.EnqueueBack(Record{Tag: TagStorage, StorageLen: storageLen, Text: text})
}

// EnqueueUI queues a command issued from the local UI.
func (q *Queue) EnqueueUI(text string) error {
	return q.EnqueueBack(Record{Tag: TagUI, Text: text})
}

// EnqueueFront pushes a chained command so that it runs next. If the head
// is currently being interpreted it is finalized first, so the chained
// command runs after it and not before it. Pushing never blocks: when the
// reserved region cannot hold the record ErrFull is returned and nothing
// changes, including the active head.
func (q *Queue) EnqueueFront(text string) error {
	if len(text) > q.cfg.MaxTextLen {
		return ErrRecordTooLarge
	}
	if !validText(text) {
		return ErrInvalidText
	}
	n := RecordSize(TagChained, len(text))
	if n > q.frontAvailable() {
		q.events.Record(EvtFull, TagChained, n, q.ring.Len())
		return ErrFull
	}

	if q.active {
		q.PopFront()
	}
	span, err := q.ring.ReserveFront(n)
	if err != nil {
		return err
	}
	if _, err := Encode(span, Record{Tag: TagChained, Text: text}); err != nil {
		q.ring.AdvanceFront(n)
		return err
	}
	q.count++
	q.events.Record(EvtEnqueueFront, TagChained, n, q.ring.Len())
	return nil
}

// EnqueueFrontBatch pushes texts so that they run in the given order ahead
// of everything queued. Either every text is pushed or, on error, none is
// and the active head is left alone.
func (q *Queue) EnqueueFrontBatch(texts ...string) error {
	total := 0
	for _, text := range texts {
		if len(text) > q.cfg.MaxTextLen {
			return ErrRecordTooLarge
		}
		if !validText(text) {
			return ErrInvalidText
		}
		total += RecordSize(TagChained, len(text))
	}
	if total > q.frontAvailable() {
		q.events.Record(EvtFull, TagChained, total, q.ring.Len())
		return ErrFull
	}
	for i := len(texts) - 1; i >= 0; i-- {
		if err := q.EnqueueFront(texts[i]); err != nil {
			return err
		}
	}
	return nil
}

// frontAvailable returns the reserved bytes a push could use, counting the
// space an active head in the reserved region gives back when finalized.
func (q *Queue) frontAvailable() int {
	avail := q.ring.AvailableFront()
	if q.active {
		if size, inFront := q.headSize(); inFront {
			avail += size
		}
	}
	return avail
}

// Peek returns the head record without changing any state.
func (q *Queue) Peek() (Record, bool) {
	span := q.ring.PeekFront()
	if span == nil {
		return Record{}, false
	}
	return q.mustDecode(span), true
}

// Begin hands the head record to the interpreter. A storage record moves
// to TagPendingRemoval: its length is owed to Position from now on and is
// published when the record is finalized.
func (q *Queue) Begin() (Record, bool) {
	span := q.ring.PeekFront()
	if span == nil {
		q.active = false
		return Record{}, false
	}
	r := q.mustDecode(span)
	if r.Tag == TagStorage {
		setTag(span, TagPendingRemoval)
		r.Tag = TagPendingRemoval
	}
	q.active = true
	return r, true
}

// Commit finalizes the record handed out by Begin. It does nothing when the
// record was already finalized by EnqueueFront or retained by RepeatFront.
func (q *Queue) Commit() {
	if q.active {
		q.PopFront()
	}
}

// Active reports whether the head was handed out and not finalized yet.
func (q *Queue) Active() bool {
	return q.active
}

// PopFront removes the head record and reports whether there was one. The
// storage length of a storage record is published to Position first.
func (q *Queue) PopFront() bool {
	q.active = false
	span := q.ring.PeekFront()
	if span == nil {
		return false
	}
	r, n := q.decodeHeader(span)
	if r.Tag.IsStorage() {
		q.pos.Advance(uint32(r.StorageLen))
	}
	if r.Tag == TagHostNumbered {
		q.executedLine = r.Line
	}
	q.ring.AdvanceFront(n)
	q.count--
	q.events.Record(EvtPop, r.Tag, n, q.ring.Len())
	return true
}

// RepeatFront keeps the head record for another interpretation pass. A
// record in TagPendingRemoval goes back to TagStorage.
func (q *Queue) RepeatFront() {
	q.active = false
	if span := q.ring.PeekFront(); span != nil && Tag(span[0]) == TagPendingRemoval {
		setTag(span, TagStorage)
	}
}

// IsEmpty reports whether no record is queued.
func (q *Queue) IsEmpty() bool {
	return q.ring.Empty()
}

// Len returns the number of queued records.
func (q *Queue) Len() int {
	return q.count
}

// AvailableBack returns the largest record the tail can take right now.
func (q *Queue) AvailableBack() int {
	return q.ring.AvailableBack()
}

// AvailableFront returns the free bytes of the reserved front region.
func (q *Queue) AvailableFront() int {
	return q.ring.AvailableFront()
}

// CanAcceptLine reports whether the tail can take a worst-case record.
// Byte producers check it before pulling more input.
func (q *Queue) CanAcceptLine() bool {
	return q.ring.AvailableBack() >= q.cfg.MaxRecordSize()
}

// Reset drops every record and zeroes the line counters. The shared
// Position is left alone; playback republishes it when it restarts.
func (q *Queue) Reset() {
	critical(func() {
		q.ring.Reset()
		q.count = 0
		q.active = false
		q.currentLine = 0
		q.lastAcceptedLine = 0
		q.stoppedAtLine = 0
		q.executedLine = 0
	})
	q.events.Record(EvtReset, TagUnknown, 0, 0)
}

// Halt aborts the pipeline: the queue is reset and the last accepted line
// is kept as the stop point for the resend handshake.
func (q *Queue) Halt() {
	stop := q.lastAcceptedLine
	q.Reset()
	q.stoppedAtLine = stop
}

// SetLastLine sets the expected line numbering base (M110).
func (q *Queue) SetLastLine(n int32) {
	q.currentLine = n
	q.lastAcceptedLine = n
}

// CurrentLine returns the line number parsed from the most recent numbered line.
func (q *Queue) CurrentLine() int32 { return q.currentLine }

// LastAcceptedLine returns the line number of the last numbered line stored.
func (q *Queue) LastAcceptedLine() int32 { return q.lastAcceptedLine }

// StoppedAtLine returns the last accepted line at the time of Halt.
func (q *Queue) StoppedAtLine() int32 { return q.stoppedAtLine }

// ExecutedLine returns the line number of the last numbered record popped.
func (q *Queue) ExecutedLine() int32 { return q.executedLine }

// ResendFrom returns the first line the host has to send again after Halt.
func (q *Queue) ResendFrom() int32 { return q.stoppedAtLine + 1 }

// HeadStorageLength returns the storage bytes the head record stands for,
// or 0 when the head is not storage-sourced.
func (q *Queue) HeadStorageLength() uint16 {
	span := q.ring.PeekFront()
	if span == nil {
		return 0
	}
	r, _ := q.decodeHeader(span)
	if !r.Tag.IsStorage() {
		return 0
	}
	return r.StorageLen
}

// StorageLengthOwed sums the storage bytes of every queued record that was
// read from storage and not handed to the interpreter yet. Playback
// subtracts it from the file offset to find where to resume.
func (q *Queue) StorageLengthOwed() uint32 {
	var owed uint32
	q.Walk(func(r Record) bool {
		if r.Tag == TagStorage {
			owed += uint32(r.StorageLen)
		}
		return true
	})
	return owed
}

// Walk calls fn for each queued record in consumption order until fn
// returns false.
func (q *Queue) Walk(fn func(Record) bool) {
	for _, seg := range q.ring.Segments() {
		for len(seg) > 0 {
			r := q.mustDecode(seg)
			if !fn(r) {
				return
			}
			seg = seg[r.Size():]
		}
	}
}

// headSize returns the encoded size of the head record and whether it
// lives in the reserved front region.
func (q *Queue) headSize() (int, bool) {
	span := q.ring.PeekFront()
	if span == nil {
		return 0, false
	}
	_, n := q.decodeHeader(span)
	return n, q.ring.AvailableFront() < q.ring.ReserveSize()
}

// decodeHeader reads tag and metadata of the record at the start of span
// and its encoded size.
func (q *Queue) decodeHeader(span []byte) (Record, int) {
	r, n, err := Decode(span)
	if err != nil {
		panic("cmdqueue: corrupt record at head")
	}
	return r, n
}

func (q *Queue) mustDecode(span []byte) Record {
	r, _ := q.decodeHeader(span)
	return r
}

func validText(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return false
		}
	}
	return true
}

// splitLineNumber parses a leading "N<digits>" token. Leading blanks are
// skipped and so are the blanks after the number.
func splitLineNumber(s string) (int32, string, bool) {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	if i >= len(s) || s[i] != 'N' {
		return 0, "", false
	}
	i++
	start := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == start {
		return 0, "", false
	}
	n, err := strconv.ParseInt(s[start:i], 10, 32)
	if err != nil {
		return 0, "", false
	}
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return int32(n), s[i:], true
}
