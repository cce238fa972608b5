package serial

import (
	"context"
	"errors"
	"io"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/lfq"
	"code.hybscloud.com/spin"
)

// DefaultChunkSize is the read size of one chunk
const DefaultChunkSize = 256

// Reader copies bytes from a port into a single-producer chunk queue. Run
// is the only producer; the main loop is the only consumer through
// Dequeue.
type Reader struct {
	src       io.Reader
	chunks    *lfq.SPSC[[]byte]
	chunkSize int

	bytes atomix.Uint64
	reads atomix.Uint64
	waits atomix.Uint64
}

// NewReader creates a reader queueing up to queueSize chunks of at most
// chunkSize bytes
func NewReader(src io.Reader, queueSize, chunkSize int) *Reader {
	if queueSize < 2 {
		queueSize = 2
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Reader{
		src:       src,
		chunks:    lfq.NewSPSC[[]byte](queueSize),
		chunkSize: chunkSize,
	}
}

// Dequeue returns the oldest chunk, or an iox.ErrWouldBlock error when
// none is waiting
func (r *Reader) Dequeue() ([]byte, error) {
	return r.chunks.Dequeue()
}

// Run reads until ctx is done or the source fails. The end of the source
// returns nil once every chunk is queued.
func (r *Reader) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		buf := make([]byte, r.chunkSize)
		n, err := r.src.Read(buf)
		if n > 0 {
			r.reads.Add(1)
			r.bytes.Add(uint64(n))
			if perr := r.push(ctx, buf[:n]); perr != nil {
				return perr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// push waits for room in the chunk queue while the main loop catches up
func (r *Reader) push(ctx context.Context, chunk []byte) error {
	sw := spin.Wait{}
	for {
		if err := r.chunks.Enqueue(&chunk); err == nil {
			return nil
		}
		r.waits.Add(1)
		if err := ctx.Err(); err != nil {
			return err
		}
		sw.Once()
	}
}

// Bytes returns the number of bytes read
func (r *Reader) Bytes() uint64 {
	return r.bytes.Load()
}

// Reads returns the number of non-empty reads
func (r *Reader) Reads() uint64 {
	return r.reads.Load()
}

// Waits returns how often a chunk found the queue full
func (r *Reader) Waits() uint64 {
	return r.waits.Load()
}
