package bundle

import (
	"fmt"
	"strings"

	"github.com/assetforge/assetforge/internal/sourcemap"
	"github.com/assetforge/assetforge/internal/types"
)

// ModuleWrapper produces the prefix and suffix lines wrapping one module
// file so it is individually loadable by name at runtime.
type ModuleWrapper func(path string) (prefix, suffix string)

// ConcatOptions configures one concatenation pass.
type ConcatOptions struct {
	// OutputPath is the bundle's resolved output path, recorded as the
	// map's file field.
	OutputPath string
	// Wrapper wraps module files in script bundles. Nil disables wrapping.
	Wrapper ModuleWrapper
	// Definition is the module-definition preamble emitted before any
	// wrapped module file.
	Definition string
	// AutoRequire lists paths that get a trailing load invocation, in
	// listed order.
	AutoRequire []string
	// IsModule classifies paths needing module wrapping beyond the
	// record's own flag, e.g. files under the package-manager directory.
	IsModule func(path string) bool
	// WithMap enables source map composition.
	WithMap bool
}

// Concat merges the ordered files into bundle text and, when enabled, a
// composed source map attributing every output line back to its original
// file and line. Fragments carrying their own map are resolved through it
// so the final map reaches the true original; fragments without a map are
// attributed directly. The map's sourcesContent is populated from the
// contributing records so tooling can display original source without a
// separate fetch.
func Concat(files []*types.FileRecord, t types.FileType, opts ConcatOptions) (string, *sourcemap.Map, error) {
	var (
		out     strings.Builder
		builder *sourcemap.Builder
		genLine int
	)
	if opts.WithMap {
		builder = sourcemap.NewBuilder(opts.OutputPath)
	}

	writeLines := func(lines []string) {
		for _, line := range lines {
			out.WriteString(line)
			out.WriteByte('\n')
		}
		genLine += len(lines)
	}

	script := t == types.FileTypeScript

	if script && opts.Definition != "" && anyModule(files, opts.IsModule) {
		writeLines(splitLines(opts.Definition))
	}

	for _, file := range files {
		fragment := strings.TrimRight(file.Content, "\n")
		if script && needsSeparator(fragment) {
			fragment += ";"
		}

		wrapped := script && opts.Wrapper != nil && isModuleFile(file, opts.IsModule)
		if wrapped {
			prefix, _ := opts.Wrapper(file.Path)
			writeLines([]string{prefix})
		}

		lines := splitLines(fragment)
		if builder != nil {
			if err := mapFragment(builder, file, genLine, len(lines)); err != nil {
				return "", nil, fmt.Errorf("mapping %s: %w", file.Path, err)
			}
		}
		writeLines(lines)

		if wrapped {
			_, suffix := opts.Wrapper(file.Path)
			writeLines([]string{suffix})
		}
	}

	if script {
		for _, path := range opts.AutoRequire {
			writeLines([]string{fmt.Sprintf("require(%q);", path)})
		}
	}

	if builder == nil {
		return out.String(), nil, nil
	}
	return out.String(), builder.Build(), nil
}

// mapFragment records segments for one fragment occupying lineCount output
// lines starting at genLine.
func mapFragment(builder *sourcemap.Builder, file *types.FileRecord, genLine, lineCount int) error {
	node := file.Node()
	if node.Map == nil {
		builder.SetContent(node.Source, node.Content)
		for i := 0; i < lineCount; i++ {
			builder.AddSegment(genLine+i, 0, node.Source, i, 0)
		}
		return nil
	}

	// The fragment carries its own map: resolve each line through it so
	// the composed map attributes output back to the true original.
	consumer, err := node.Map.Consumer()
	if err != nil {
		return err
	}
	for i := 0; i < lineCount; i++ {
		source, _, line, col, ok := consumer.Source(i+1, 0)
		if !ok || source == "" {
			continue
		}
		builder.AddSegment(genLine+i, 0, source, line-1, col)
		if content := node.Map.ContentFor(source); content != "" {
			builder.SetContent(source, content)
		}
	}
	return nil
}

// needsSeparator reports whether a script fragment must be terminated to
// prevent cross-file syntax breakage.
func needsSeparator(fragment string) bool {
	trimmed := strings.TrimRight(fragment, " \t\n")
	return trimmed != "" && !strings.HasSuffix(trimmed, ";")
}

func isModuleFile(file *types.FileRecord, detect func(string) bool) bool {
	if file.IsModule {
		return true
	}
	return detect != nil && detect(file.Path)
}

func anyModule(files []*types.FileRecord, detect func(string) bool) bool {
	for _, file := range files {
		if isModuleFile(file, detect) {
			return true
		}
	}
	return false
}

func splitLines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}
