package chunker

import "fmt"

// ByteRange is an inclusive range of byte offsets in a remote object.
type ByteRange struct {
	Begin int64
	End   int64
}

// Size returns the number of bytes covered by the range.
func (r ByteRange) Size() int64 {
	return r.End - r.Begin + 1
}

// String formats the range as an HTTP Range header value.
func (r ByteRange) String() string {
	return fmt.Sprintf("bytes=%d-%d", r.Begin, r.End)
}

// RangeIterator lazily partitions an object into ranges sized by a Chunker.
type RangeIterator struct {
	seq   Sequence
	begin int64
	total int64
	index int
}

// Ranges returns an iterator over the ranges that cover [0, total) exactly once, in order.
func Ranges(c Chunker, total int64) *RangeIterator {
	return &RangeIterator{seq: c.Sequence(), total: total}
}

// Next returns the next range. The second return value is false once the object is covered.
func (it *RangeIterator) Next() (ByteRange, bool) {
	if it.begin >= it.total {
		return ByteRange{}, false
	}

	size := it.seq.Next()
	if size <= 0 {
		size = 1
	}

	end := it.begin + size - 1
	if end >= it.total || end < it.begin {
		end = it.total - 1
	}

	r := ByteRange{Begin: it.begin, End: end}
	it.begin = end + 1
	it.index++

	return r, true
}

// Count returns how many ranges have been produced so far.
func (it *RangeIterator) Count() int {
	return it.index
}

// Split returns every range of an object of the given size.
func Split(c Chunker, total int64) []ByteRange {
	var ranges []ByteRange
	it := Ranges(c, total)
	for {
		r, ok := it.Next()
		if !ok {
			return ranges
		}
		ranges = append(ranges, r)
	}
}
