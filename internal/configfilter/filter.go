// Package configfilter selects subtrees of an arbitrary JSON document by dotted
// paths such as "dns.upstreams" or "dns.hosts[2]".
package configfilter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bnema/pihole-sync/internal/domain"
)

type segment struct {
	name    string
	index   int
	isIndex bool
}

// Filter is immutable and safe for concurrent use.
type Filter struct {
	mode  domain.FilterMode
	paths [][]segment
}

func New(paths []string, mode domain.FilterMode) (*Filter, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown filter mode %q", mode)
	}

	parsed := make([][]segment, 0, len(paths))
	for _, raw := range paths {
		segments, err := parsePath(raw)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, segments)
	}

	return &Filter{mode: mode, paths: parsed}, nil
}

func (f *Filter) Mode() domain.FilterMode {
	return f.mode
}

// Apply returns a filtered copy of doc. The input is never modified.
//
// Exclude drops every subtree at or below a listed path. Include keeps subtrees at
// or below a listed path plus the containers leading to them; with no paths it
// yields an empty object. Array elements are judged by their index in the input,
// and a path without an index matches an array element at any index.
func (f *Filter) Apply(doc any) any {
	if len(f.paths) == 0 {
		if f.mode == domain.FilterModeInclude {
			return map[string]any{}
		}
		return doc
	}

	if f.mode == domain.FilterModeExclude {
		return f.exclude(doc, nil)
	}

	kept, ok := f.include(doc, nil)
	if !ok {
		return map[string]any{}
	}
	return kept
}

func (f *Filter) exclude(value any, path []segment) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, child := range typed {
			childPath := appendSegment(path, segment{name: key})
			if f.covered(childPath) {
				continue
			}
			out[key] = f.exclude(child, childPath)
		}
		return out
	case []any:
		out := make([]any, 0, len(typed))
		for idx, child := range typed {
			childPath := appendSegment(path, segment{index: idx, isIndex: true})
			if f.covered(childPath) {
				continue
			}
			out = append(out, f.exclude(child, childPath))
		}
		return out
	default:
		return value
	}
}

func (f *Filter) include(value any, path []segment) (any, bool) {
	if len(path) > 0 && f.covered(path) {
		return value, true
	}
	if len(path) > 0 && !f.leadsToPath(path) {
		return nil, false
	}

	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any)
		for key, child := range typed {
			if kept, ok := f.include(child, appendSegment(path, segment{name: key})); ok {
				out[key] = kept
			}
		}
		return out, true
	case []any:
		out := make([]any, 0)
		for idx, child := range typed {
			if kept, ok := f.include(child, appendSegment(path, segment{index: idx, isIndex: true})); ok {
				out = append(out, kept)
			}
		}
		return out, true
	default:
		// A scalar on the way to a deeper path has nothing to contribute.
		return nil, false
	}
}

func (f *Filter) covered(node []segment) bool {
	for _, p := range f.paths {
		if relate(p, node) == relationCovers {
			return true
		}
	}
	return false
}

func (f *Filter) leadsToPath(node []segment) bool {
	for _, p := range f.paths {
		if relate(p, node) == relationAncestor {
			return true
		}
	}
	return false
}

type relation int

const (
	relationNone relation = iota
	// relationCovers: node equals the filter path or lies below it.
	relationCovers
	// relationAncestor: node lies strictly above the filter path.
	relationAncestor
)

// relate compares a filter path with a concrete node path. Node indices that the
// filter path does not mention are skipped, so "a.b" matches "a[3].b".
func relate(filterPath, node []segment) relation {
	i, j := 0, 0
	for i < len(filterPath) && j < len(node) {
		want, got := filterPath[i], node[j]
		switch {
		case got.isIndex && want.isIndex:
			if want.index != got.index {
				return relationNone
			}
			i++
			j++
		case got.isIndex:
			j++
		case want.isIndex:
			return relationNone
		default:
			if want.name != got.name {
				return relationNone
			}
			i++
			j++
		}
	}

	if i == len(filterPath) {
		return relationCovers
	}
	return relationAncestor
}

func appendSegment(path []segment, next segment) []segment {
	out := make([]segment, len(path), len(path)+1)
	copy(out, path)
	return append(out, next)
}

func parsePath(raw string) ([]segment, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("filter path is empty")
	}

	var segments []segment
	for _, part := range strings.Split(trimmed, ".") {
		name, rest, hasIndex := strings.Cut(part, "[")
		if name == "" && (!hasIndex || len(segments) == 0) {
			return nil, fmt.Errorf("invalid filter path %q", raw)
		}
		if name != "" {
			segments = append(segments, segment{name: name})
		}
		for hasIndex {
			digits, tail, closed := strings.Cut(rest, "]")
			if !closed {
				return nil, fmt.Errorf("invalid filter path %q: unclosed index", raw)
			}
			idx, err := strconv.Atoi(digits)
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("invalid filter path %q: bad index %q", raw, digits)
			}
			segments = append(segments, segment{index: idx, isIndex: true})

			if tail == "" {
				break
			}
			if !strings.HasPrefix(tail, "[") {
				return nil, fmt.Errorf("invalid filter path %q", raw)
			}
			rest = tail[1:]
		}
	}

	return segments, nil
}
