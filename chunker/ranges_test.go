package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_DefaultSixMiB(t *testing.T) {
	ranges := Split(Default(), 6_291_456)

	require.Len(t, ranges, 2)
	assert.Equal(t, "bytes=0-5242879", ranges[0].String())
	assert.Equal(t, "bytes=5242880-6291455", ranges[1].String())
}

func TestSplit_Empty(t *testing.T) {
	assert.Empty(t, Split(Default(), 0))
}

func TestSplit_CoversObjectExactly(t *testing.T) {
	chunkers := map[string]Chunker{
		"fixed 1":     Fixed(1),
		"fixed 7":     Fixed(7),
		"fixed 1000":  Fixed(1000),
		"geometric":   Geometric{Min: 3, Max: 50, GrowthFactor: 4},
		"default":     Default(),
		"steep curve": Geometric{Min: 1, Max: 1 << 20, GrowthFactor: 1},
	}
	sizes := []int64{0, 1, 2, 6, 7, 8, 99, 100, 101, 4096, 123_457}

	for name, c := range chunkers {
		for _, total := range sizes {
			ranges := Split(c, total)

			var next int64
			for i, r := range ranges {
				require.Equal(t, next, r.Begin, "%s/%d: gap or overlap at range %d", name, total, i)
				require.GreaterOrEqual(t, r.End, r.Begin, "%s/%d: empty range %d", name, total, i)
				next = r.End + 1
			}
			require.Equal(t, total, next, "%s/%d: ranges do not cover the object", name, total)
			if total > 0 {
				assert.Equal(t, total-1, ranges[len(ranges)-1].End)
			}
		}
	}
}

func TestByteRange_Size(t *testing.T) {
	assert.Equal(t, int64(1), ByteRange{Begin: 4, End: 4}.Size())
	assert.Equal(t, MinPartSize, ByteRange{Begin: 0, End: MinPartSize - 1}.Size())
}

func TestRangeIterator_IsLazy(t *testing.T) {
	calls := 0
	c := Func(func() Sequence {
		return countingSequence{calls: &calls}
	})

	it := Ranges(c, 100)
	assert.Equal(t, 0, calls)

	r, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, ByteRange{Begin: 0, End: 9}, r)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, it.Count())
}

type countingSequence struct {
	calls *int
}

func (s countingSequence) Next() int64 {
	*s.calls++
	return 10
}
