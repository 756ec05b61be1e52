package bundle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/assetforge/assetforge/internal/config"
	"github.com/assetforge/assetforge/internal/errors"
	"github.com/assetforge/assetforge/internal/logging"
	"github.com/assetforge/assetforge/internal/optimize"
	"github.com/assetforge/assetforge/internal/types"
)

// Generator orchestrates one full generation pass: per join target it
// orders the matched files, concatenates them, runs the optimizer chain,
// and writes the output. Targets share no mutable state, so a pass issues
// them concurrently; one target's failure never blocks its siblings.
type Generator struct {
	cfg        *config.Config
	joins      *JoinMapping
	optimizers []optimize.Optimizer
	optimizeFn OptimizeFunc
	log        logging.Logger
	metrics    *Metrics
}

// OptimizeFunc runs the optimize stage for one bundle. The default runs the
// in-process optimizer chain; a coordinator may substitute one that
// dispatches the work to worker processes.
type OptimizeFunc func(ctx context.Context, bundle *types.PipelineResult) (*types.PipelineResult, error)

// TargetResult is the outcome of one join target in a generation cycle.
type TargetResult struct {
	Path     string
	Type     types.FileType
	Files    int
	Bytes    int
	Duration time.Duration
	Err      error
}

// CycleResult aggregates all target outcomes of one generation cycle. The
// caller decides whether any failed target is fatal to the overall build.
type CycleResult struct {
	Targets []TargetResult
}

// Failed returns the targets that did not complete.
func (cr *CycleResult) Failed() []TargetResult {
	var failed []TargetResult
	for _, t := range cr.Targets {
		if t.Err != nil {
			failed = append(failed, t)
		}
	}
	return failed
}

// NewGenerator creates a generation coordinator over resolved joins.
func NewGenerator(cfg *config.Config, joins *JoinMapping, optimizers []optimize.Optimizer, log logging.Logger) *Generator {
	g := &Generator{
		cfg:        cfg,
		joins:      joins,
		optimizers: optimizers,
		log:        log.WithComponent("generator"),
		metrics:    NewMetrics(),
	}
	g.optimizeFn = func(ctx context.Context, bundle *types.PipelineResult) (*types.PipelineResult, error) {
		return optimize.RunChain(ctx, bundle, g.optimizers)
	}
	return g
}

// SetOptimizer replaces the in-process optimizer chain, typically with a
// worker pool's dispatch. Call before Generate; not safe concurrently with it.
func (g *Generator) SetOptimizer(fn OptimizeFunc) {
	if fn != nil {
		g.optimizeFn = fn
	}
}

// Metrics returns the coordinator's cycle metrics.
func (g *Generator) Metrics() *Metrics {
	return g.metrics
}

/// joinTarget is the resolved runtime unit of work: one output path plus
// the records currently matching its rule. Recomputed every cycle.
type joinTarget struct {
	output  string
	typ     types.FileType
	matcher Matcher
	files   []*types.FileRecord
}

// Generate runs one full generation pass over the given records and
// returns the aggregate of all target outcomes.
func (g *Generator) Generate(ctx context.Context, records []*types.FileRecord) *CycleResult {
	targets := g.resolveTargets(records)

	results := make(chan TargetResult, len(targets))
	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(target joinTarget) {
			defer wg.Done()
			results <- g.generateTarget(ctx, target)
		}(target)
	}
	wg.Wait()
	close(results)

	cycle := &CycleResult{}
	for result := range results {
		cycle.Targets = append(cycle.Targets, result)
		g.metrics.RecordTarget(result)
	}
	sort.Slice(cycle.Targets, func(i, j int) bool { return cycle.Targets[i].Path < cycle.Targets[j].Path })
	return cycle
}

// resolveTargets recomputes the join targets for the current record set.
// Targets with no matching files produce no output.
func (g *Generator) resolveTargets(records []*types.FileRecord) []joinTarget {
	byType := make(map[types.FileType][]*types.FileRecord)
	for _, record := range records {
		byType[record.Type] = append(byType[record.Type], record)
	}

	var targets []joinTarget
	for _, t := range []types.FileType{types.FileTypeScript, types.FileTypeStylesheet} {
		for _, output := range g.joins.Outputs(t) {
			matcher, _ := g.joins.MatcherFor(t, output)
			var matched []*types.FileRecord
			for _, record := range byType[t] {
				if matcher.Match(record.Path) {
					matched = append(matched, record)
				}
			}
			if len(matched) == 0 {
				continue
			}
			targets = append(targets, joinTarget{output: output, typ: t, matcher: matcher, files: matched})
		}
	}
	return targets
}

// generateTarget runs stages order, concat, optimize, write for one target.
func (g *Generator) generateTarget(ctx context.Context, target joinTarget) TargetResult {
	start := time.Now()
	result := TargetResult{Path: target.output, Type: target.typ, Files: len(target.files)}

	fail := func(err error) TargetResult {
		result.Err = err
		result.Duration = time.Since(start)
		g.log.Error(ctx, err, "target generation failed", "output", target.output)
		return result
	}

	ordered := g.orderFiles(target)

	withMap := g.cfg.SourceMaps != config.SourceMapsOff
	data, composed, err := Concat(ordered, target.typ, g.concatOptions(target, withMap))
	if err != nil {
		return fail(errors.WrapWrite(err, target.output))
	}

	bundle := &types.PipelineResult{
		Path:        target.output,
		Type:        target.typ,
		Data:        data,
		Map:         composed,
		SourceFiles: ordered,
	}

	if g.cfg.Optimize {
		bundle, err = g.optimizeFn(ctx, bundle)
		if err != nil {
			return fail(err)
		}
	}

	bytes, err := g.write(bundle)
	if err != nil {
		return fail(err)
	}

	result.Bytes = bytes
	result.Duration = time.Since(start)
	g.log.Debug(ctx, "target generated", "output", target.output,
		"files", result.Files, "bytes", result.Bytes, "duration", result.Duration)
	return result
}

// orderFiles applies the ordering spec derived from the current config and
// the target's matched files.
func (g *Generator) orderFiles(target joinTarget) []*types.FileRecord {
	order := g.orderConfig(target.typ)

	paths := make([]string, 0, len(target.files))
	byPath := make(map[string]*types.FileRecord, len(target.files))
	for _, record := range target.files {
		paths = append(paths, record.Path)
		byPath[record.Path] = record
	}

	vendor := g.vendorPredicate(order.Vendor)
	spec := OrderingSpec{
		Before:          order.Before,
		After:           order.After,
		ExplicitOrder:   target.matcher.ExplicitOrder(),
		VendorPredicate: vendor,
		PackageOrder:    g.packagePathOrder(paths, vendor),
	}

	ordered := make([]*types.FileRecord, 0, len(paths))
	for _, path := range Order(paths, spec) {
		ordered = append(ordered, byPath[path])
	}
	return ordered
}

func (g *Generator) orderConfig(t types.FileType) config.OrderConfig {
	if t == types.FileTypeStylesheet {
		return g.cfg.Files.Stylesheets.Order
	}
	return g.cfg.Files.Scripts.Order
}

/// vendorPredicate classifies third-party paths: anything matching the
// configured vendor globs, or living under the package-manager directory.
func (g *Generator) vendorPredicate(globs []string) func(string) bool {
	npmPrefix := ""
	if g.cfg.NPM.Enabled {
		npmPrefix = g.cfg.NPM.Directory + "/"
	}
	return func(path string) bool {
		if npmPrefix != "" && strings.HasPrefix(path, npmPrefix) {
			return true
		}
		for _, glob := range globs {
			if ok, err := doublestar.Match(glob, path); err == nil && ok {
				return true
			}
		}
		return false
	}
}

// packagePathOrder expands the package manager's package ordering into a
// concrete path ordering over the target's vendor files.
func (g *Generator) packagePathOrder(paths []string, vendor func(string) bool) []string {
	if !g.cfg.NPM.Enabled || len(g.cfg.NPM.PackageOrder) == 0 {
		return nil
	}
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	var ordered []string
	for _, pkg := range g.cfg.NPM.PackageOrder {
		prefix := g.cfg.NPM.Directory + "/" + pkg + "/"
		for _, path := range sorted {
			if vendor(path) && strings.HasPrefix(path, prefix) {
				ordered = append(ordered, path)
			}
		}
	}
	return ordered
}

func (g *Generator) concatOptions(target joinTarget, withMap bool) ConcatOptions {
	opts := ConcatOptions{
		OutputPath: target.output,
		WithMap:    withMap,
		IsModule:   g.moduleDetection(),
	}
	if target.typ == types.FileTypeScript && g.cfg.Modules.Wrapper == "commonjs" {
		opts.Wrapper = CommonJSWrapper
		if g.cfg.Modules.Definition {
			opts.Definition = CommonJSDefinition()
		}
		opts.AutoRequire = moduleNames(g.cfg.Modules.AutoRequire)
	}
	return opts
}

func (g *Generator) moduleDetection() func(string) bool {
	if !g.cfg.NPM.Enabled {
		return nil
	}
	prefix := g.cfg.NPM.Directory + "/"
	return func(path string) bool { return strings.HasPrefix(path, prefix) }
}

func moduleNames(paths []string) []string {
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, ModuleName(p))
	}
	return names
}

// write persists the bundle content and, depending on the source-map mode,
// a sibling map file or an inline base64 map reference.
func (g *Generator) write(bundle *types.PipelineResult) (int, error) {
	fullPath := filepath.Join(g.cfg.Paths.Public, bundle.Path)
	data := bundle.Data

	if bundle.Map != nil && g.cfg.SourceMaps != config.SourceMapsOff {
		ref, mapData, err := g.mapReference(bundle)
		if err != nil {
			return 0, errors.WrapWrite(err, bundle.Path)
		}
		data += ref
		if mapData != nil {
			mapPath := fullPath + ".map"
			if err := writeFile(mapPath, mapData); err != nil {
				return 0, errors.WrapWrite(err, bundle.Path)
			}
		}
	}

	if err := writeFile(fullPath, []byte(data)); err != nil {
		return 0, errors.WrapWrite(err, bundle.Path)
	}
	return len(data), nil
}

// mapReference builds the sourceMappingURL comment for the bundle's type
// and mode. The returned mapData is nil in inline mode, where no separate
// file is written.
func (g *Generator) mapReference(bundle *types.PipelineResult) (string, []byte, error) {
	var url string
	var mapData []byte

	switch g.cfg.SourceMaps {
	case config.SourceMapsInline:
		inline, err := bundle.Map.InlineURL()
		if err != nil {
			return "", nil, err
		}
		url = inline
	case config.SourceMapsAbsoluteURL:
		data, err := bundle.Map.JSON()
		if err != nil {
			return "", nil, err
		}
		mapData = data
		url = "/" + bundle.Path + ".map"
	default:
		data, err := bundle.Map.JSON()
		if err != nil {
			return "", nil, err
		}
		mapData = data
		url = filepath.Base(bundle.Path) + ".map"
	}

	if bundle.Type == types.FileTypeStylesheet {
		return fmt.Sprintf("\n/*# sourceMappingURL=%s */\n", url), mapData, nil
	}
	return fmt.Sprintf("\n//# sourceMappingURL=%s\n", url), mapData, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
