// Package playback streams a G-code file from storage into the command
// queue, tagging every record with the number of file bytes it stands for.
package playback

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"cmdq/core"

	"github.com/spf13/afero"
)

// ReadBufferSize bounds the length of a single file line, terminator included
const ReadBufferSize = 256

// flushThreshold is the number of skipped bytes after which an empty record
// carries them, keeping every storage length within 16 bits
const flushThreshold = math.MaxUint16 - ReadBufferSize

// ErrNotOpen is returned when no file is open
var ErrNotOpen = errors.New("playback: no file open")

// Player is the storage playback producer. All methods belong to the main
// loop.
//
// Comment and blank lines are not queued; their bytes are added to the
// storage length of the next queued record, so that the shared Position
// reaches the end of a line once the record for that line is finalized.
type Player struct {
	fs   afero.Fs
	q    *core.Queue
	name string
	file afero.File
	rd   *bufio.Reader
	size uint32

	offset  uint32 // File offset of the next unread byte
	skipped uint32 // Bytes read since the last queued record
	lines   uint32
	active  bool
	eof     bool
}

// NewPlayer creates a player reading from fs and feeding q
func NewPlayer(fs afero.Fs, q *core.Queue) *Player {
	return &Player{fs: fs, q: q}
}

// Open opens a file for playback. Playback starts with Start.
func (p *Player) Open(name string) error {
	p.Close()

	f, err := p.fs.Open(name)
	if err != nil {
		return fmt.Errorf("playback: open %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("playback: stat %s: %w", name, err)
	}
	if info.Size() > math.MaxUint32 {
		f.Close()
		return fmt.Errorf("playback: %s is too large", name)
	}

	p.name = name
	p.file = f
	p.size = uint32(info.Size())
	p.rd = bufio.NewReaderSize(f, ReadBufferSize)
	return nil
}

// Start begins playback at offset and publishes it as the current position.
// Start(0) plays the whole file; a resume passes the position saved when
// playback stopped.
func (p *Player) Start(offset uint32) error {
	if p.file == nil {
		return ErrNotOpen
	}
	if offset > p.size {
		return fmt.Errorf("playback: offset %d past end of %s", offset, p.name)
	}
	if _, err := p.file.Seek(int64(offset), io.SeekStart); err != nil {
		return fmt.Errorf("playback: seek %s: %w", p.name, err)
	}
	p.rd.Reset(p.file)
	p.offset = offset
	p.skipped = 0
	p.eof = false
	p.active = true
	p.q.Position().Publish(offset)
	return nil
}

// Pause stops reading. Queued records keep running.
func (p *Player) Pause() {
	p.active = false
}

// Close stops playback and closes the file
func (p *Player) Close() error {
	p.active = false
	p.eof = false
	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	p.rd = nil
	return err
}

// Pump reads lines and queues them until the queue cannot take a
// worst-case record or the file ends. It returns the number of records
// queued. A full queue is reported as core.ErrFull; io.EOF is returned
// once the whole file is queued.
func (p *Player) Pump() (int, error) {
	if !p.active {
		if p.eof {
			return 0, io.EOF
		}
		return 0, nil
	}

	queued := 0
	for {
		if !p.q.CanAcceptLine() {
			return queued, core.ErrFull
		}

		raw, err := p.rd.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			p.active = false
			return queued, fmt.Errorf("playback: line at offset %d of %s: %w", p.offset, p.name, core.ErrRecordTooLarge)
		}
		if err != nil && !errors.Is(err, io.EOF) {
			p.active = false
			return queued, fmt.Errorf("playback: read %s: %w", p.name, err)
		}

		p.offset += uint32(len(raw))
		p.skipped += uint32(len(raw))
		text := commandText(raw)

		if text != "" || p.skipped >= flushThreshold {
			if qerr := p.q.EnqueueStorage(text, uint16(p.skipped)); qerr != nil {
				p.active = false
				return queued, fmt.Errorf("playback: line at offset %d of %s: %w", p.offset-uint32(len(raw)), p.name, qerr)
			}
			p.skipped = 0
			p.lines++
			queued++
		}

		if errors.Is(err, io.EOF) {
			// Trailing comments still count towards the position
			if p.skipped > 0 {
				if qerr := p.q.EnqueueStorage("", uint16(p.skipped)); qerr != nil {
					return queued, qerr
				}
				p.skipped = 0
				queued++
			}
			p.active = false
			p.eof = true
			return queued, io.EOF
		}
	}
}

// Status reports the executed file position against the file size, and
// whether playback is running (M27)
func (p *Player) Status() (offset, size uint32, active bool) {
	running := p.active || (p.eof && !p.Done())
	return p.q.Position().Load(), p.size, p.file != nil && running
}

// Done reports whether the whole file was queued and executed
func (p *Player) Done() bool {
	return p.eof && p.q.Position().Load() >= p.size
}

// ReadOffset returns the file offset of the next unread byte
func (p *Player) ReadOffset() uint32 {
	return p.offset
}

// ReadAhead returns the file bytes queued but not handed to the
// interpreter yet
func (p *Player) ReadAhead() uint32 {
	return p.q.StorageLengthOwed()
}

// Lines returns the number of records queued since Open
func (p *Player) Lines() uint32 {
	return p.lines
}

// Name returns the open file name
func (p *Player) Name() string {
	return p.name
}

// commandText strips the line terminator, comments and surrounding blanks
func commandText(raw []byte) string {
	if i := bytes.IndexByte(raw, ';'); i >= 0 {
		raw = raw[:i]
	}
	return string(bytes.TrimSpace(raw))
}
