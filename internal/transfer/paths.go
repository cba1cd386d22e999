package transfer

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/bmatcuk/doublestar/v4"
)

// PathEvaluator expands the source paths of an upload.
type PathEvaluator struct {
	logger       log.Logger
	pathModifier pathutil.PathModifier
	pathChecker  pathutil.PathChecker
}

// NewPathEvaluator ...
func NewPathEvaluator(logger log.Logger, pathModifier pathutil.PathModifier, pathChecker pathutil.PathChecker) *PathEvaluator {
	return &PathEvaluator{
		logger:       logger,
		pathModifier: pathModifier,
		pathChecker:  pathChecker,
	}
}

// Evaluate expands glob patterns (including **) and returns the absolute paths of the regular
// files matched. Paths that don't exist are skipped with a warning.
func (e *PathEvaluator) Evaluate(paths []string) ([]string, error) {
	var expandedPaths []string
	for _, path := range paths {
		if !strings.ContainsAny(path, "*?[{") {
			expandedPaths = append(expandedPaths, path)
			continue
		}

		base, pattern := doublestar.SplitPattern(path)
		absBase, err := e.pathModifier.AbsPath(base) // resolves ~/ and expands any envs
		if err != nil {
			return nil, err
		}
		matches, err := doublestar.Glob(os.DirFS(absBase), pattern, doublestar.WithNoFollow(), doublestar.WithFilesOnly())
		if err != nil {
			e.logger.Warnf("Error in path pattern '%s': %s", path, err)
			continue
		}
		if len(matches) == 0 {
			e.logger.Warnf("No match for path pattern: %s", path)
			continue
		}

		for _, match := range matches {
			expandedPaths = append(expandedPaths, filepath.Join(absBase, match))
		}
	}

	var finalPaths []string
	for _, path := range expandedPaths {
		absPath, err := e.pathModifier.AbsPath(path)
		if err != nil {
			e.logger.Warnf("Failed to parse path %s, error: %s", path, err)
			continue
		}

		exists, err := e.pathChecker.IsPathExists(absPath)
		if err != nil {
			e.logger.Warnf("Failed to check path %s, error: %s", absPath, err)
		}
		if !exists {
			e.logger.Warnf("Path doesn't exist: %s", path)
			continue
		}

		finalPaths = append(finalPaths, absPath)
	}

	return finalPaths, nil
}
