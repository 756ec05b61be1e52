// Package bundle implements the bundle resolution and generation engine:
// resolving declarative join rules into concrete output targets,
// deterministically ordering the files inside each target, concatenating
// them with composed source maps, and coordinating per-target generation.
package bundle

import "sort"

// OrderingSpec controls deterministic file ordering within one join target.
type OrderingSpec struct {
	// Before lists paths forced to the front, in listed order.
	Before []string
	// After lists paths forced to the back, in listed order.
	After []string
	// ExplicitOrder, when set, fully specifies the order for the listed
	// paths, overriding default placement. Used when a join rule is
	// array-valued.
	ExplicitOrder []string
	// VendorPredicate classifies a path as third-party.
	VendorPredicate func(path string) bool
	// PackageOrder is an externally supplied ordering for third-party
	// packages, e.g. from the package manager's dependency graph.
	PackageOrder []string
}

// ordering groups, by classification priority. A path belongs to exactly
// one group, decided by its first match in this priority order.
const (
	groupExplicit = iota
	groupBefore
	groupAfter
	groupVendor
	groupRemainder
	groupCount
)

// Order returns a deterministic total order for paths under spec. The
// result is independent of the input's enumeration order, partitions the
// input completely (every path appears exactly once), and is idempotent:
// ordering an already-ordered sequence yields the same sequence.
//
// The emitted sequence is: explicit-order paths, before paths, vendor
// paths, remaining paths, after paths. Within the vendor group, paths
// named in PackageOrder come first in that order; the rest keep natural
// (lexicographic) order.
func Order(paths []string, spec OrderingSpec) []string {
	// Natural order is canonical path order so that set enumeration
	// order cannot leak into the result.
	natural := append([]string(nil), paths...)
	sort.Strings(natural)

	explicitRank := indexRank(spec.ExplicitOrder)
	beforeRank := indexRank(spec.Before)
	afterRank := indexRank(spec.After)
	packageRank := indexRank(spec.PackageOrder)

	groups := make([][]string, groupCount)
	for _, path := range natural {
		switch {
		case has(explicitRank, path):
			groups[groupExplicit] = append(groups[groupExplicit], path)
		case has(beforeRank, path):
			groups[groupBefore] = append(groups[groupBefore], path)
		case has(afterRank, path):
			groups[groupAfter] = append(groups[groupAfter], path)
		case spec.VendorPredicate != nil && spec.VendorPredicate(path):
			groups[groupVendor] = append(groups[groupVendor], path)
		default:
			groups[groupRemainder] = append(groups[groupRemainder], path)
		}
	}

	sortByRank(groups[groupExplicit], explicitRank)
	sortByRank(groups[groupBefore], beforeRank)
	sortByRank(groups[groupAfter], afterRank)
	sortVendor(groups[groupVendor], packageRank)

	ordered := make([]string, 0, len(natural))
	ordered = append(ordered, groups[groupExplicit]...)
	ordered = append(ordered, groups[groupBefore]...)
	ordered = append(ordered, groups[groupVendor]...)
	ordered = append(ordered, groups[groupRemainder]...)
	ordered = append(ordered, groups[groupAfter]...)
	return ordered
}

func indexRank(listed []string) map[string]int {
	rank := make(map[string]int, len(listed))
	for i, path := range listed {
		if _, seen := rank[path]; !seen {
			rank[path] = i
		}
	}
	return rank
}

func has(rank map[string]int, path string) bool {
	_, ok := rank[path]
	return ok
}

// sortByRank orders paths by their listed position. Every path in the
// slice is present in rank by construction.
func sortByRank(paths []string, rank map[string]int) {
	sort.SliceStable(paths, func(i, j int) bool {
		return rank[paths[i]] < rank[paths[j]]
	})
}

// sortVendor orders the vendor group: paths named in PackageOrder first,
// in that order; unlisted vendor paths keep their natural relative order.
func sortVendor(paths []string, packageRank map[string]int) {
	sort.SliceStable(paths, func(i, j int) bool {
		ri, iListed := packageRank[paths[i]]
		rj, jListed := packageRank[paths[j]]
		switch {
		case iListed && jListed:
			return ri < rj
		case iListed:
			return true
		case jListed:
			return false
		default:
			return false // keep natural order
		}
	})
}
