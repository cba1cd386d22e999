package transfer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathEvaluator_Evaluate(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.log", "b.txt", "nested/c.log", "nested/deeper/d.log"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(name), 0644))
	}

	tests := []struct {
		name  string
		paths []string
		want  []string
	}{
		{
			name:  "plain path",
			paths: []string{filepath.Join(dir, "b.txt")},
			want:  []string{filepath.Join(dir, "b.txt")},
		},
		{
			name:  "single level glob",
			paths: []string{filepath.Join(dir, "*.log")},
			want:  []string{filepath.Join(dir, "a.log")},
		},
		{
			name:  "recursive glob",
			paths: []string{filepath.Join(dir, "**", "*.log")},
			want: []string{
				filepath.Join(dir, "a.log"),
				filepath.Join(dir, "nested", "c.log"),
				filepath.Join(dir, "nested", "deeper", "d.log"),
			},
		},
		{
			name:  "missing paths are skipped",
			paths: []string{filepath.Join(dir, "missing.txt"), filepath.Join(dir, "*.bin")},
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evaluator := NewPathEvaluator(log.NewLogger(), pathutil.NewPathModifier(), pathutil.NewPathChecker())

			got, err := evaluator.Evaluate(tt.paths)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}
