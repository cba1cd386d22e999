package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSequence(t *testing.T) {
	seq := Default().Sequence()

	first := seq.Next()
	assert.Equal(t, MinPartSize, first)
	assert.Equal(t, MinPartSize+MinPartSize/DefaultGrowthFactor, seq.Next())

	prev := first
	for i := 0; i < 20_000; i++ {
		size := seq.Next()
		require.GreaterOrEqual(t, size, prev, "sequence decreased at step %d", i)
		require.LessOrEqual(t, size, MaxPartSize)
		prev = size
	}
}

func TestDefaultSequence_ConvergesToMax(t *testing.T) {
	seq := Default().Sequence()

	var size int64
	for i := 0; i < 100_000; i++ {
		size = seq.Next()
		if size == MaxPartSize {
			break
		}
	}

	assert.Equal(t, MaxPartSize, size)
	assert.Equal(t, MaxPartSize, seq.Next())
}

func TestSequence_IsRestartable(t *testing.T) {
	c := Default()

	a := c.Sequence()
	a.Next()
	a.Next()

	b := c.Sequence()
	assert.Equal(t, MinPartSize, b.Next())
}

func TestDefaultPartCountForLargeObject(t *testing.T) {
	const fiveTiB = int64(5 * 1024 * 1024 * 1024 * 1024)

	it := Ranges(Default(), fiveTiB)
	for {
		if _, ok := it.Next(); !ok {
			break
		}
	}

	assert.LessOrEqual(t, it.Count(), MaxPartCount)
}

func TestGeometric_InvalidParametersFallBackToDefaults(t *testing.T) {
	tests := []struct {
		name  string
		g     Geometric
		first int64
	}{
		{name: "zero value", g: Geometric{}, first: MinPartSize},
		{name: "custom min", g: Geometric{Min: 10, Max: 100, GrowthFactor: 2}, first: 10},
		{name: "max below min", g: Geometric{Min: 10, Max: 5, GrowthFactor: 2}, first: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := tt.g.Sequence()
			assert.Equal(t, tt.first, seq.Next())
			assert.GreaterOrEqual(t, seq.Next(), tt.first)
		})
	}
}

func TestGeometric_SmallValues(t *testing.T) {
	seq := Geometric{Min: 10, Max: 20, GrowthFactor: 2}.Sequence()

	var got []int64
	for i := 0; i < 4; i++ {
		got = append(got, seq.Next())
	}

	assert.Equal(t, []int64{10, 15, 20, 20}, got)
}

func TestFixed(t *testing.T) {
	seq := Fixed(3).Sequence()
	assert.Equal(t, int64(3), seq.Next())
	assert.Equal(t, int64(3), seq.Next())

	assert.Equal(t, MinPartSize, Fixed(0).Sequence().Next())
}

func TestSizeIterator(t *testing.T) {
	it := NewSizeIterator(Geometric{Min: 10, Max: 20, GrowthFactor: 2})

	assert.Equal(t, int64(10), it.Value())
	assert.Equal(t, int64(10), it.Value())
	it.Advance()
	assert.Equal(t, int64(15), it.Value())
	it.Advance()
	it.Advance()
	assert.Equal(t, int64(20), it.Value())
}
