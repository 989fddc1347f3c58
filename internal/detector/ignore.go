package detector

import "strings"

// defaultIgnorePatterns are the built-in exclusions, matched as substrings
// against the vault-relative path.
var defaultIgnorePatterns = []string{
	".obsidian/",
	"_embeddings/",
	".git/",
	".DS_Store",
	"node_modules/",
	".sync-conflict-",
	".trash/",
}

// IgnoreSet decides whether a vault-relative path should be excluded from
// sync: the built-in patterns plus any operator-configured extras.
type IgnoreSet struct {
	patterns []string
}

// NewIgnoreSet builds an IgnoreSet from the built-in patterns plus extra.
func NewIgnoreSet(extra []string) *IgnoreSet {
	patterns := make([]string, 0, len(defaultIgnorePatterns)+len(extra))
	patterns = append(patterns, defaultIgnorePatterns...)
	patterns = append(patterns, extra...)
	return &IgnoreSet{patterns: patterns}
}

// Ignored reports whether path matches any ignore pattern or isn't Markdown.
func (s *IgnoreSet) Ignored(path string) bool {
	if !strings.HasSuffix(path, ".md") {
		return true
	}
	return s.IgnoredDir(path)
}

// IgnoredDir reports whether path (file or directory, with or without a
// .md suffix) falls under an ignore pattern. Used to decide whether to
// watch a directory at all, independent of the Markdown-only file filter.
func (s *IgnoreSet) IgnoredDir(path string) bool {
	for _, p := range s.patterns {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}
