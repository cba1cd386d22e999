// Package chunker decides how large each part of a multipart transfer is.
//
// Part sizes, the total object size and the number of parts all have to comply with the S3
// multipart limits.
// https://docs.aws.amazon.com/AmazonS3/latest/userguide/qfacts.html
package chunker

// Amazon S3 multipart upload limits
const (
	MinPartSize  = int64(5_242_880)
	MaxPartSize  = int64(5_368_709_120)
	MaxPartCount = 10_000

	// DefaultGrowthFactor grows each part by 1/1530 of the previous one, which keeps a 5 TiB
	// object under MaxPartCount parts while small objects still use MinPartSize parts.
	DefaultGrowthFactor = int64(1530)
)

// Sequence yields part sizes one at a time. It never ends.
type Sequence interface {
	Next() int64
}

// Chunker provides part sizes. Every call to Sequence returns a fresh, independent iterator
// starting from the first part.
type Chunker interface {
	Sequence() Sequence
}

// Func adapts a function returning a Sequence to the Chunker interface.
type Func func() Sequence

// Sequence ...
func (f Func) Sequence() Sequence {
	return f()
}

// Geometric grows part sizes from Min towards Max by adding size/GrowthFactor at every step.
type Geometric struct {
	Min          int64
	Max          int64
	GrowthFactor int64
}

// Default returns the chunker sized for the S3 limits.
func Default() Geometric {
	return Geometric{
		Min:          MinPartSize,
		Max:          MaxPartSize,
		GrowthFactor: DefaultGrowthFactor,
	}
}

// Sequence ...
func (g Geometric) Sequence() Sequence {
	d := Default()
	if g.Min <= 0 {
		g.Min = d.Min
	}
	if g.Max < g.Min {
		g.Max = d.Max
		if g.Max < g.Min {
			g.Max = g.Min
		}
	}
	if g.GrowthFactor <= 0 {
		g.GrowthFactor = d.GrowthFactor
	}

	return &geometricSequence{next: g.Min, max: g.Max, factor: g.GrowthFactor}
}

type geometricSequence struct {
	next   int64
	max    int64
	factor int64
}

func (s *geometricSequence) Next() int64 {
	size := s.next

	grown := size + size/s.factor
	if grown > s.max || grown < size {
		grown = s.max
	}
	s.next = grown

	return size
}

// Fixed returns a chunker that always yields size.
func Fixed(size int64) Chunker {
	if size <= 0 {
		size = MinPartSize
	}
	return Func(func() Sequence {
		return fixedSequence(size)
	})
}

type fixedSequence int64

func (s fixedSequence) Next() int64 {
	return int64(s)
}

// SizeIterator holds the current size of a sequence and advances it on demand.
type SizeIterator struct {
	seq     Sequence
	current int64
}

// NewSizeIterator ...
func NewSizeIterator(c Chunker) *SizeIterator {
	seq := c.Sequence()
	return &SizeIterator{seq: seq, current: seq.Next()}
}

// Value returns the current size.
func (it *SizeIterator) Value() int64 {
	return it.current
}

// Advance moves to the next size in the sequence.
func (it *SizeIterator) Advance() {
	it.current = it.seq.Next()
}
