package core

import "encoding/binary"

// Tag identifies where a queued command came from. The tag also fixes the
// width of the metadata that follows it in the backing store.
type Tag uint8

const (
	TagUnknown        Tag = 0 // Never produced by the queue itself
	TagHost           Tag = 1 // Host serial link
	TagStorage        Tag = 2 // Removable storage playback
	TagUI             Tag = 3 // Local user interface
	TagChained        Tag = 4 // Generated while executing another command
	TagPendingRemoval Tag = 5 // Storage record handed to the interpreter, length not yet published
	TagHostNumbered   Tag = 6 // Host serial link with an N line number

	tagCount = 7
)

// Metadata widths in bytes
const (
	storageLenSize = 2
	lineNumberSize = 4
)

func (t Tag) String() string {
	switch t {
	case TagUnknown:
		return "unknown"
	case TagHost:
		return "host"
	case TagStorage:
		return "storage"
	case TagUI:
		return "ui"
	case TagChained:
		return "chained"
	case TagPendingRemoval:
		return "pending-removal"
	case TagHostNumbered:
		return "host-numbered"
	}
	return "invalid"
}

// Valid reports whether t is a known tag.
func (t Tag) Valid() bool {
	return t < tagCount
}

// IsStorage reports whether records with this tag owe storage bytes.
func (t Tag) IsStorage() bool {
	return t == TagStorage || t == TagPendingRemoval
}

// MetaSize returns the metadata width carried by records with this tag.
func (t Tag) MetaSize() int {
	switch t {
	case TagStorage, TagPendingRemoval:
		return storageLenSize
	case TagHostNumbered:
		return lineNumberSize
	}
	return 0
}

// Record is one queued command. Only the metadata field that belongs to
// Tag is stored; the others are ignored by Encode and zero after Decode.
type Record struct {
	Tag        Tag
	Line       int32  // TagHostNumbered
	StorageLen uint16 // TagStorage, TagPendingRemoval
	Text       string
}

// Size returns the encoded size of r.
func (r Record) Size() int {
	return RecordSize(r.Tag, len(r.Text))
}

// RecordSize returns the encoded size of a record with the given tag and
// text length: tag byte, metadata, text and the NUL terminator.
func RecordSize(tag Tag, textLen int) int {
	return 1 + tag.MetaSize() + textLen + 1
}

// Encode packs r into dst and returns the number of bytes written.
// dst must be at least r.Size() bytes long.
func Encode(dst []byte, r Record) (int, error) {
	if !r.Tag.Valid() {
		return 0, ErrInvalidTag
	}
	n := r.Size()
	if len(dst) < n {
		return 0, ErrFull
	}
	for i := 0; i < len(r.Text); i++ {
		if r.Text[i] == 0 {
			return 0, ErrInvalidText
		}
	}

	dst[0] = byte(r.Tag)
	pos := 1
	switch r.Tag {
	case TagStorage, TagPendingRemoval:
		binary.LittleEndian.PutUint16(dst[pos:], r.StorageLen)
	case TagHostNumbered:
		binary.LittleEndian.PutUint32(dst[pos:], uint32(r.Line))
	}
	pos += r.Tag.MetaSize()
	pos += copy(dst[pos:], r.Text)
	dst[pos] = 0
	return n, nil
}

// Decode unpacks the record at the start of src and returns it together
// with its encoded size. The size is fixed by the tag and the terminator.
func Decode(src []byte) (Record, int, error) {
	if len(src) == 0 {
		return Record{}, 0, ErrCorrupt
	}
	tag := Tag(src[0])
	if !tag.Valid() {
		return Record{}, 0, ErrCorrupt
	}
	pos := 1 + tag.MetaSize()
	if len(src) <= pos {
		return Record{}, 0, ErrCorrupt
	}

	r := Record{Tag: tag}
	switch tag {
	case TagStorage, TagPendingRemoval:
		r.StorageLen = binary.LittleEndian.Uint16(src[1:])
	case TagHostNumbered:
		r.Line = int32(binary.LittleEndian.Uint32(src[1:]))
	}

	end := pos
	for end < len(src) && src[end] != 0 {
		end++
	}
	if end == len(src) {
		return Record{}, 0, ErrCorrupt
	}
	r.Text = string(src[pos:end])
	return r, end + 1, nil
}

// setTag rewrites the tag byte of an encoded record in place. Only tags of
// equal metadata width may be swapped.
func setTag(span []byte, tag Tag) {
	if len(span) > 0 && Tag(span[0]).MetaSize() == tag.MetaSize() {
		span[0] = byte(tag)
	}
}
