package payload

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/bmatcuk/doublestar/v4"
)

// Collector turns path patterns into file payloads.
type Collector struct {
	logger       log.Logger
	pathModifier pathutil.PathModifier
}

// NewCollector ...
func NewCollector(logger log.Logger, pathModifier pathutil.PathModifier) *Collector {
	return &Collector{
		logger:       logger,
		pathModifier: pathModifier,
	}
}

// Collect expands every pattern (plain paths, `*` and `**` globs, `~/`) into files.
// Directories and missing paths are skipped with a warning. The result is sorted and de-duplicated.
func (c *Collector) Collect(patterns []string) ([]Payload, error) {
	var expandedPaths []string
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}

		if !strings.Contains(pattern, "*") {
			expandedPaths = append(expandedPaths, pattern)
			continue
		}

		base, glob := doublestar.SplitPattern(pattern)
		absBase, err := c.pathModifier.AbsPath(base) // resolves ~/ and expands any envs
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", base, err)
		}
		matches, err := doublestar.Glob(os.DirFS(absBase), glob, doublestar.WithFilesOnly())
		if err != nil {
			c.logger.Warnf("Error in path pattern '%s': %s", pattern, err)
			continue
		}
		if len(matches) == 0 {
			c.logger.Warnf("No match for path pattern: %s", pattern)
			continue
		}

		for _, match := range matches {
			expandedPaths = append(expandedPaths, filepath.Join(absBase, match))
		}
	}

	seen := map[string]bool{}
	var finalPaths []string
	for _, path := range expandedPaths {
		absPath, err := c.pathModifier.AbsPath(path)
		if err != nil {
			c.logger.Warnf("Failed to parse path %s, error: %s", path, err)
			continue
		}

		info, err := os.Stat(absPath)
		if err != nil {
			c.logger.Warnf("Photo path doesn't exist: %s", path)
			continue
		}
		if info.IsDir() {
			c.logger.Warnf("Skipping directory: %s", path)
			continue
		}

		if seen[absPath] {
			continue
		}
		seen[absPath] = true
		finalPaths = append(finalPaths, absPath)
	}

	sort.Strings(finalPaths)
	c.logger.Debugf("Collected %d files from %d patterns", len(finalPaths), len(patterns))

	return FromPaths(finalPaths)
}
