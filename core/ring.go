package core

// Ring is the fixed backing store of the command queue.
//
// The array is split in two physical regions:
//
//	buf[:reserve]  reserved front region, a stack growing down towards 0
//	buf[reserve:]  general region, a circular byte buffer
//
// Chained records are pushed into the reserved region directly in front of
// the current head. Everything else is appended to the general region.
// Each region keeps its own accounting so neither can consume the other's
// capacity. Records are never split across the physical end of the general
// region: an append that does not fit before the end wraps to offset 0 and
// the bytes left behind stay unused until the head passes them.
//
// Ring knows nothing about record boundaries; callers decode the span
// returned by PeekFront and advance by the decoded size.
type Ring struct {
	buf     []byte
	reserve int
	top     int // First used byte of the front stack, == reserve when empty

	// General region cursors, relative to buf[reserve:]
	head   int
	tail   int
	length int  // Record bytes stored in the general region
	end    int  // End of the upper segment while split
	split  bool // Data occupies [head,end) followed by [0,tail)
}

// NewRing creates a ring with the given reserved front and general sizes.
func NewRing(reserve, general int) *Ring {
	if reserve < 0 {
		reserve = 0
	}
	if general < 1 {
		general = 1
	}
	return &Ring{
		buf:     make([]byte, reserve+general),
		reserve: reserve,
		top:     reserve,
	}
}

// Cap returns the total size of the backing array.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// GeneralSize returns the size of the general region.
func (r *Ring) GeneralSize() int {
	return len(r.buf) - r.reserve
}

// ReserveSize returns the size of the reserved front region.
func (r *Ring) ReserveSize() int {
	return r.reserve
}

// ReserveFront claims n bytes directly in front of the current head and
// returns the span for the caller to fill. On ErrFull nothing changes.
func (r *Ring) ReserveFront(n int) ([]byte, error) {
	if n <= 0 || n > r.top {
		return nil, ErrFull
	}
	r.top -= n
	return r.buf[r.top : r.top+n], nil
}

// AppendBack copies p to the tail of the general region. Either all of p is
// stored or, on ErrFull, nothing is.
func (r *Ring) AppendBack(p []byte) error {
	n := len(p)
	if n == 0 {
		return nil
	}
	size := r.GeneralSize()
	g := r.buf[r.reserve:]

	switch {
	case r.split:
		if r.head-r.tail < n {
			return ErrFull
		}
	case size-r.tail >= n:
	case r.head >= n:
		r.end = r.tail
		r.tail = 0
		r.split = true
	default:
		return ErrFull
	}

	copy(g[r.tail:], p)
	r.tail += n
	r.length += n
	if !r.split && r.tail == size {
		r.end = size
		r.tail = 0
		r.split = true
	}
	return nil
}

// PeekFront returns the contiguous bytes starting at the oldest record.
// The span always begins on a record boundary and ends on one, but may hold
// more than one record. It is nil when the ring is empty.
func (r *Ring) PeekFront() []byte {
	if r.top < r.reserve {
		return r.buf[r.top:r.reserve]
	}
	if r.length == 0 {
		return nil
	}
	g := r.buf[r.reserve:]
	if r.split {
		return g[r.head:r.end]
	}
	return g[r.head:r.tail]
}

// AdvanceFront drops n bytes from the head. n must be the size of the
// record at the head.
func (r *Ring) AdvanceFront(n int) {
	if n <= 0 {
		return
	}
	if r.top < r.reserve {
		r.top += n
		if r.top > r.reserve {
			r.top = r.reserve
		}
		return
	}
	if r.length == 0 {
		return
	}

	r.head += n
	r.length -= n
	if r.length <= 0 {
		r.resetGeneral()
		return
	}
	if r.split && r.head >= r.end {
		r.head = 0
		r.end = 0
		r.split = false
	}
}

// AvailableBack returns the largest record size AppendBack would accept.
func (r *Ring) AvailableBack() int {
	if r.split {
		return r.head - r.tail
	}
	if free := r.GeneralSize() - r.tail; free > r.head {
		return free
	}
	return r.head
}

// AvailableFront returns the free bytes left in the reserved front region.
func (r *Ring) AvailableFront() int {
	return r.top
}

// Len returns the number of record bytes stored in both regions.
func (r *Ring) Len() int {
	return r.reserve - r.top + r.length
}

// Empty reports whether no record bytes are stored.
func (r *Ring) Empty() bool {
	return r.Len() == 0
}

// Segments returns the stored bytes as up to three contiguous spans in
// consumption order: front stack, upper general segment, wrapped segment.
func (r *Ring) Segments() [][]byte {
	segs := make([][]byte, 0, 3)
	if r.top < r.reserve {
		segs = append(segs, r.buf[r.top:r.reserve])
	}
	if r.length == 0 {
		return segs
	}
	g := r.buf[r.reserve:]
	if r.split {
		if r.end > r.head {
			segs = append(segs, g[r.head:r.end])
		}
		if r.tail > 0 {
			segs = append(segs, g[:r.tail])
		}
		return segs
	}
	return append(segs, g[r.head:r.tail])
}

// Reset drops all stored bytes.
func (r *Ring) Reset() {
	r.top = r.reserve
	r.resetGeneral()
}

func (r *Ring) resetGeneral() {
	r.head = 0
	r.tail = 0
	r.length = 0
	r.end = 0
	r.split = false
}
