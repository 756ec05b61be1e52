// Package types holds the core data model shared across the assetforge
// pipeline: file records supplied by the watcher, and the results produced
// by bundle generation.
package types

import (
	"time"

	"github.com/assetforge/assetforge/internal/sourcemap"
)

// FileType classifies a source file for join-rule and optimizer selection.
type FileType string

const (
	FileTypeScript     FileType = "script"
	FileTypeStylesheet FileType = "stylesheet"
	FileTypeOther      FileType = "other"
)

// String returns the string representation of the file type.
func (t FileType) String() string {
	return string(t)
}

// FileRecord is one source file known to the pipeline. Records are owned by
// the file watcher and treated as read-only by every downstream stage.
type FileRecord struct {
	// Path is the canonical identifier, stable across runs.
	Path string
	// Type selects which join rules and optimizers apply.
	Type FileType
	// IsModule marks files that are wrapped as loadable modules when
	// concatenated into a script bundle.
	IsModule bool
	// Content is the current text payload.
	Content string
	// SourceNode associates Content with its own source map fragment.
	// It may be nil for types without map support.
	SourceNode *sourcemap.SourceNode
	// ModTime is the last observed modification time.
	ModTime time.Time
}

// Node returns the record's source node, synthesizing one from Content when
// the watcher did not attach a map fragment.
func (r *FileRecord) Node() *sourcemap.SourceNode {
	if r.SourceNode != nil {
		return r.SourceNode
	}
	return &sourcemap.SourceNode{Source: r.Path, Content: r.Content}
}

// PipelineResult is the output of concatenation and optimization for a
// single join target.
type PipelineResult struct {
	// Path is the resolved output path for the bundle.
	Path string
	// Type is the content type of the bundle.
	Type FileType
	// Data is the final text content.
	Data string
	// Map is the composed source map, nil when maps are disabled or the
	// content type has no map support.
	Map *sourcemap.Map
	// SourceFiles are the records that contributed to Data, used to
	// populate the map's sourcesContent section.
	SourceFiles []*FileRecord
}
