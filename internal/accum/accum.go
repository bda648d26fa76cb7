// Package accum implements the device-resident part accumulator: a
// fixed-capacity byte arena that turns a stream of 5-byte upload parts into
// page-aligned flash writes, with resynchronisation on loss or reorder.
package accum

import "fmt"

// LessOfMinPartError is returned by PutPart when part_number refers to bytes
// already flushed to flash; P is the oldest part still buffered.
type LessOfMinPartError struct{ P int }

func (e *LessOfMinPartError) Error() string {
	return fmt.Sprintf("accum: part below buffered minimum, resume from %d", e.P)
}

// MoreOfMaxPartError is returned by PutPart when part_number skips ahead of
// what the accumulator has seen; P is the next expected part.
type MoreOfMaxPartError struct{ P int }

func (e *MoreOfMaxPartError) Error() string {
	return fmt.Sprintf("accum: part above buffered maximum, resume from %d", e.P)
}

// ErrNotEnoughSpace is returned by PutPart when the arena has no room left
// for another part before a page is flushed.
var ErrNotEnoughSpace = fmt.Errorf("accum: not enough space")

// Accumulator is the PAGE+PART arena described in SPEC_FULL.md §4.4. It
// performs no allocation after New.
type Accumulator struct {
	page            int
	part            int
	buf             []byte // len <= page+part, cap == page+part
	loadedPartsCount int
}

// New creates an Accumulator for the given page and part sizes.
func New(pageSize, partSize int) *Accumulator {
	return &Accumulator{
		page: pageSize,
		part: partSize,
		buf:  make([]byte, 0, pageSize+partSize),
	}
}

// Reset clears all buffered bytes and the part counter, as if freshly
// constructed.
func (a *Accumulator) Reset() {
	a.buf = a.buf[:0]
	a.loadedPartsCount = 0
}

// LoadedPartsCount reports how many parts are considered committed, counted
// from part 0 since the last Reset.
func (a *Accumulator) LoadedPartsCount() int { return a.loadedPartsCount }

// Len reports the number of buffered (not yet flushed) bytes.
func (a *Accumulator) Len() int { return len(a.buf) }

// PartSize reports the fixed part size the accumulator was constructed with.
func (a *Accumulator) PartSize() int { return a.part }

// PutPart appends part at part_number, or fails per SPEC_FULL.md §4.4.
func (a *Accumulator) PutPart(part []byte, partNumber int) error {
	if len(part) != a.part {
		panic(fmt.Sprintf("accum: part must be %d bytes, got %d", a.part, len(part)))
	}
	if partNumber == 0 {
		a.Reset()
	}
	switch {
	case partNumber < a.loadedPartsCount:
		drop := (a.loadedPartsCount - partNumber) * a.part
		if drop > len(a.buf) {
			oldest := a.loadedPartsCount - len(a.buf)/a.part
			return &LessOfMinPartError{P: oldest}
		}
		a.buf = a.buf[:len(a.buf)-drop]
		a.loadedPartsCount -= drop / a.part
	case partNumber > a.loadedPartsCount:
		return &MoreOfMaxPartError{P: a.loadedPartsCount}
	}
	if len(a.buf)+a.part > cap(a.buf) {
		return ErrNotEnoughSpace
	}
	a.buf = append(a.buf, part...)
	a.loadedPartsCount++
	return nil
}

// PageIsReady reports whether a full page is available to flush.
func (a *Accumulator) PageIsReady() bool { return len(a.buf) >= a.page }

// GetPage returns the first page's bytes and its zero-based page index, or
// ok=false if no full page is buffered yet.
func (a *Accumulator) GetPage() (page []byte, index int, ok bool) {
	if !a.PageIsReady() {
		return nil, 0, false
	}
	index = a.loadedPartsCount*a.part/a.page - 1
	return a.buf[:a.page], index, true
}

// RemovePage drops the first page's bytes, returning whether one was
// present.
func (a *Accumulator) RemovePage() bool {
	if !a.PageIsReady() {
		return false
	}
	copy(a.buf, a.buf[a.page:])
	a.buf = a.buf[:len(a.buf)-a.page]
	return true
}
