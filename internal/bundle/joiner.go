package bundle

import (
	"context"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/assetforge/assetforge/internal/config"
	"github.com/assetforge/assetforge/internal/logging"
	"github.com/assetforge/assetforge/internal/types"
)

// DefaultEntryKey is the entry key of a type's default join target, as
// opposed to a named entry point.
const DefaultEntryKey = "*"

// matcherKind tags the variants of a join-rule matcher. The declarative
// shapes (string glob, path array, custom predicate) are resolved into this
// uniform form once, at configuration-resolution time.
type matcherKind int

const (
	matchAll matcherKind = iota
	matchGlob
	matchPathList
	matchPredicate
)

// Matcher is the resolved boolean test of one join rule.
type Matcher struct {
	kind   matcherKind
	glob   string
	paths  map[string]struct{}
	listed []string
	pred   func(path string) bool
}

// MatchAll matches every file of the rule's type.
func MatchAll() Matcher {
	return Matcher{kind: matchAll}
}

// GlobMatcher matches paths against a doublestar glob pattern.
func GlobMatcher(pattern string) Matcher {
	return Matcher{kind: matchGlob, glob: pattern}
}

// PathListMatcher matches an explicit set of literal paths. The listed
// order is retained: it fully specifies the relative order of those paths
// inside the bundle.
func PathListMatcher(paths []string) Matcher {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return Matcher{kind: matchPathList, paths: set, listed: append([]string(nil), paths...)}
}

// ExplicitOrder returns the listed path order for array-valued rules, nil
// for every other matcher shape.
func (m Matcher) ExplicitOrder() []string {
	if m.kind != matchPathList {
		return nil
	}
	return append([]string(nil), m.listed...)
}

// PredicateMatcher wraps a custom predicate.
func PredicateMatcher(pred func(path string) bool) Matcher {
	return Matcher{kind: matchPredicate, pred: pred}
}

// Match reports whether path belongs to the rule's target.
func (m Matcher) Match(path string) bool {
	switch m.kind {
	case matchAll:
		return true
	case matchGlob:
		ok, err := doublestar.Match(m.glob, path)
		return err == nil && ok
	case matchPathList:
		_, ok := m.paths[path]
		return ok
	case matchPredicate:
		return m.pred(path)
	default:
		return false
	}
}

// JoinMapping is the resolved, immutable mapping from file type and entry
// key to output paths and their matchers. It is constructed once per build
// by ResolveJoins and shared read-only across concurrent generation targets
// and worker processes.
type JoinMapping struct {
	byType map[types.FileType]map[string]map[string]Matcher
}

// Outputs returns the sorted output paths declared for a file type.
func (jm *JoinMapping) Outputs(t types.FileType) []string {
	var outputs []string
	for _, rules := range jm.byType[t] {
		for output := range rules {
			outputs = append(outputs, output)
		}
	}
	sort.Strings(outputs)
	return outputs
}

// MatcherFor returns the matcher claiming output for the given type.
func (jm *JoinMapping) MatcherFor(t types.FileType, output string) (Matcher, bool) {
	for _, rules := range jm.byType[t] {
		if m, ok := rules[output]; ok {
			return m, true
		}
	}
	return Matcher{}, false
}

// TargetsFor returns the sorted output paths whose rules match path.
func (jm *JoinMapping) TargetsFor(t types.FileType, path string) []string {
	var outputs []string
	for _, rules := range jm.byType[t] {
		for output, m := range rules {
			if m.Match(path) {
				outputs = append(outputs, output)
			}
		}
	}
	sort.Strings(outputs)
	return outputs
}

// ResolveJoins normalizes the declarative per-type join configuration into
// a JoinMapping, validating entry points against the currently watched
// paths. Misconfiguration never fails resolution: conflicting or misused
// rules are dropped with a logged warning and the build continues.
//
// A script default-join configuration is inherited by the stylesheet type
// when the latter declares none. The inheritance happens here, once, not
// per generation cycle.
//
// Output-path claims are tracked across both types: every output file has
// exactly one writer per cycle, so two rules claiming the same path would
// race on the final write. The earlier claim wins regardless of type, which
// in particular drops an inherited stylesheet rule that collides with the
// script rule it was copied from.
func ResolveJoins(ctx context.Context, files *config.FilesConfig, watched []string, log logging.Logger) *JoinMapping {
	log = log.WithComponent("joiner")

	watchedSet := make(map[string]struct{}, len(watched))
	for _, p := range watched {
		watchedSet[p] = struct{}{}
	}

	scripts := files.Scripts
	stylesheets := files.Stylesheets
	if stylesheets.IsZero() && scripts.JoinTo != nil {
		log.Debug(ctx, "stylesheets inherit script default join", "join_to", scripts.JoinTo)
		stylesheets.JoinTo = scripts.JoinTo
	}

	claimed := make(map[string]struct{})
	jm := &JoinMapping{byType: make(map[types.FileType]map[string]map[string]Matcher)}
	jm.byType[types.FileTypeScript] = resolveType(ctx, types.FileTypeScript, scripts, watchedSet, claimed, log)
	jm.byType[types.FileTypeStylesheet] = resolveType(ctx, types.FileTypeStylesheet, stylesheets, watchedSet, claimed, log)
	return jm
}

// resolveType resolves one type's configuration into entryKey -> output ->
// matcher, applying first-claim-wins conflict resolution over output paths.
// The claimed set is shared across types by the caller.
func resolveType(
	ctx context.Context,
	t types.FileType,
	tc config.TypeConfig,
	watched map[string]struct{},
	claimed map[string]struct{},
	log logging.Logger,
) map[string]map[string]Matcher {
	resolved := make(map[string]map[string]Matcher)

	if tc.JoinTo != nil {
		rules := resolveJoinValue(ctx, t, tc.JoinTo, log)
		resolved[DefaultEntryKey] = claimRules(ctx, t, rules, claimed, log)
	}

	if len(tc.Entries) == 0 {
		return resolved
	}
	if t != types.FileTypeScript {
		log.Warn(ctx, nil, "entry points require the script type, ignoring",
			"type", t.String(), "entries", len(tc.Entries))
		return resolved
	}

	// Entry keys are sorted so conflict resolution is deterministic
	// regardless of map iteration order.
	entryKeys := make([]string, 0, len(tc.Entries))
	for key := range tc.Entries {
		entryKeys = append(entryKeys, key)
	}
	sort.Strings(entryKeys)

	for _, entry := range entryKeys {
		if _, ok := watched[entry]; !ok {
			log.Warn(ctx, nil, "entry point does not name a watched input path",
				"entry", entry)
		}
		rules := resolveEntryValue(ctx, t, entry, tc.Entries[entry], log)
		kept := claimRules(ctx, t, rules, claimed, log)
		if len(kept) > 0 {
			resolved[entry] = kept
		}
	}

	return resolved
}

// claimRules keeps rules whose output paths are not yet claimed by any
// earlier rule of either type; the later rule is dropped with a warning.
func claimRules(
	ctx context.Context,
	t types.FileType,
	rules map[string]Matcher,
	claimed map[string]struct{},
	log logging.Logger,
) map[string]Matcher {
	kept := make(map[string]Matcher, len(rules))

	outputs := make([]string, 0, len(rules))
	for output := range rules {
		outputs = append(outputs, output)
	}
	sort.Strings(outputs)

	for _, output := range outputs {
		if _, taken := claimed[output]; taken {
			log.Warn(ctx, nil, "output path already claimed, dropping rule",
				"type", t.String(), "output", output)
			continue
		}
		claimed[output] = struct{}{}
		kept[output] = rules[output]
	}
	return kept
}

// resolveJoinValue normalizes a join_to value: a single output path string,
// or a mapping of output path to matcher spec.
func resolveJoinValue(ctx context.Context, t types.FileType, value any, log logging.Logger) map[string]Matcher {
	switch v := value.(type) {
	case string:
		return map[string]Matcher{v: MatchAll()}
	case map[string]any:
		rules := make(map[string]Matcher, len(v))
		for output, spec := range v {
			m, ok := resolveMatcherSpec(spec)
			if !ok {
				log.Warn(ctx, nil, "unrecognized matcher spec, dropping rule",
					"type", t.String(), "output", output)
				continue
			}
			rules[output] = m
		}
		return rules
	default:
		log.Warn(ctx, nil, "unrecognized join_to shape, dropping",
			"type", t.String())
		return nil
	}
}

// resolveEntryValue normalizes an entry-point value: a bare output path
// (the entry file seeds the bundle alone) or an output-to-matcher mapping.
func resolveEntryValue(ctx context.Context, t types.FileType, entry string, value any, log logging.Logger) map[string]Matcher {
	if output, ok := value.(string); ok {
		return map[string]Matcher{output: PathListMatcher([]string{entry})}
	}
	return resolveJoinValue(ctx, t, value, log)
}

// resolveMatcherSpec resolves the declarative matcher shapes into the
// tagged Matcher variant.
func resolveMatcherSpec(spec any) (Matcher, bool) {
	switch s := spec.(type) {
	case string:
		return GlobMatcher(s), true
	case []string:
		return PathListMatcher(s), true
	case []any:
		paths := make([]string, 0, len(s))
		for _, item := range s {
			p, ok := item.(string)
			if !ok {
				return Matcher{}, false
			}
			paths = append(paths, p)
		}
		return PathListMatcher(paths), true
	case func(string) bool:
		return PredicateMatcher(s), true
	default:
		return Matcher{}, false
	}
}
