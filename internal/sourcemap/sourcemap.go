// Package sourcemap implements generation and composition of source map v3
// documents. Decoding and position resolution is delegated to
// github.com/go-sourcemap/sourcemap; this package owns the encoding side
// (VLQ mappings) that bundle concatenation needs.
package sourcemap

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	gosourcemap "github.com/go-sourcemap/sourcemap"
)

// Map is a standard source map v3 document.
type Map struct {
	Version        int      `json:"version"`
	File           string   `json:"file,omitempty"`
	SourceRoot     string   `json:"sourceRoot,omitempty"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// SourceNode associates a fragment of content with its own source map. The
// map, when present, attributes positions in Content back to an earlier
// original; a nil map means Content is itself the original.
type SourceNode struct {
	Source  string
	Content string
	Map     *Map
}

// Parse decodes a source map JSON document.
func Parse(data []byte) (*Map, error) {
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid source map: %w", err)
	}
	if m.Version != 3 {
		return nil, fmt.Errorf("unsupported source map version %d", m.Version)
	}
	return &m, nil
}

// JSON serializes the map document.
func (m *Map) JSON() ([]byte, error) {
	if m.Sources == nil {
		m.Sources = []string{}
	}
	if m.Names == nil {
		m.Names = []string{}
	}
	return json.Marshal(m)
}

// InlineURL returns the map as a base64 data URL suitable for an inline
// sourceMappingURL comment.
func (m *Map) InlineURL() (string, error) {
	data, err := m.JSON()
	if err != nil {
		return "", err
	}
	return "data:application/json;charset=utf-8;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// Consumer parses the map into a position resolver. Line arguments to the
// returned consumer are 1-based, columns 0-based.
func (m *Map) Consumer() (*gosourcemap.Consumer, error) {
	data, err := m.JSON()
	if err != nil {
		return nil, err
	}
	return gosourcemap.Parse("", data)
}

// ContentFor returns the recorded original content for a source, or "" when
// the map carries none.
func (m *Map) ContentFor(source string) string {
	for i, s := range m.Sources {
		if s == source && i < len(m.SourcesContent) {
			return m.SourcesContent[i]
		}
	}
	return ""
}

// segment is one decoded mapping segment. Lines and columns are 0-based.
type segment struct {
	genCol    int
	srcIndex  int
	srcLine   int
	srcCol    int
	hasSource bool
}

// Builder accumulates mapping segments and produces a Map. Generated lines
// and original lines passed to AddSegment are 0-based.
type Builder struct {
	file        string
	sources     []string
	sourceIndex map[string]int
	contents    map[string]string
	lines       [][]segment
}

// NewBuilder creates a builder for the given output file name.
func NewBuilder(file string) *Builder {
	return &Builder{
		file:        file,
		sourceIndex: make(map[string]int),
		contents:    make(map[string]string),
	}
}

// AddSegment records that output position (genLine, genCol) originates from
// (source, srcLine, srcCol).
func (b *Builder) AddSegment(genLine, genCol int, source string, srcLine, srcCol int) {
	idx, ok := b.sourceIndex[source]
	if !ok {
		idx = len(b.sources)
		b.sourceIndex[source] = idx
		b.sources = append(b.sources, source)
	}
	for len(b.lines) <= genLine {
		b.lines = append(b.lines, nil)
	}
	b.lines[genLine] = append(b.lines[genLine], segment{
		genCol:    genCol,
		srcIndex:  idx,
		srcLine:   srcLine,
		srcCol:    srcCol,
		hasSource: true,
	})
}

// SetContent records the original content for a source so the built map can
// populate sourcesContent.
func (b *Builder) SetContent(source, content string) {
	b.contents[source] = content
}

// Build encodes the accumulated segments into a v3 map document.
func (b *Builder) Build() *Map {
	m := &Map{
		Version:  3,
		File:     b.file,
		Sources:  append([]string(nil), b.sources...),
		Names:    []string{},
		Mappings: encodeMappings(b.lines),
	}
	if len(b.contents) > 0 {
		m.SourcesContent = make([]string, len(b.sources))
		for i, s := range b.sources {
			m.SourcesContent[i] = b.contents[s]
		}
	}
	return m
}

// Compose resolves every segment of outer through inner, producing a map
// that attributes outer's generated positions to inner's original sources.
// Outer segments that fall off inner's mappings are dropped; inner's
// sourcesContent carries over.
func Compose(outer, inner *Map) (*Map, error) {
	consumer, err := inner.Consumer()
	if err != nil {
		return nil, fmt.Errorf("composing maps: %w", err)
	}
	lines, err := decodeMappings(outer.Mappings)
	if err != nil {
		return nil, fmt.Errorf("composing maps: %w", err)
	}

	b := NewBuilder(outer.File)
	for genLine, segs := range lines {
		for _, seg := range segs {
			if !seg.hasSource {
				continue
			}
			source, _, line, col, ok := consumer.Source(seg.srcLine+1, seg.srcCol)
			if !ok || source == "" {
				continue
			}
			b.AddSegment(genLine, seg.genCol, source, line-1, col)
			if content := inner.ContentFor(source); content != "" {
				b.SetContent(source, content)
			}
		}
	}
	return b.Build(), nil
}
