// Package solve implements the package/build iteration and sorting
// pipeline: a stateful per-name PackageIterator over one or more
// repositories, a per-version RepositoryBuildIterator (source builds
// last), a SortedBuildIterator that orders binary builds by a
// dynamically constructed option-value key, and a stateless validator
// chain. Grounded on src/solve/package_iterator.rs and
// src/solve/validation.rs.
package solve

import (
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/spfs-io/spfs/ident"
)

// srcKeySentinel is the key assigned to source builds so they always sort
// after every binary build, regardless of what real option values would
// otherwise produce.
const srcKeySentinel = "\xff\xff\xff\xff"

// defaultKeyOrder is BUILD_KEY_NAME_ORDER's fallback when
// SPK_BUILD_OPTION_KEY_ORDER is unset.
var defaultKeyOrder = []string{"gcc", "python"}

var (
	keyOrderOnce sync.Once
	keyOrder     []string
)

// BuildOptionKeyOrder returns the process-wide priority list of option
// names that should appear first (in this order) in a sorted build key,
// parsed once from SPK_BUILD_OPTION_KEY_ORDER (comma-separated) or
// defaultKeyOrder if unset. Mirrors the teacher's once_cell::Lazy static.
func BuildOptionKeyOrder() []string {
	keyOrderOnce.Do(func() {
		if raw, ok := os.LookupEnv("SPK_BUILD_OPTION_KEY_ORDER"); ok && raw != "" {
			for _, name := range strings.Split(raw, ",") {
				if name != "" {
					keyOrder = append(keyOrder, name)
				}
			}
			return
		}
		keyOrder = append(keyOrder, defaultKeyOrder...)
	})
	return keyOrder
}

// buildKey renders the sort key for one non-source build: the values of
// orderedNames, concatenated in order, missing names treated as the empty
// string to match OptionMap's default-on-miss lookup semantics.
func buildKey(options map[string]string, orderedNames []string) string {
	var b strings.Builder
	for _, name := range orderedNames {
		b.WriteString(options[name])
		b.WriteByte(0)
	}
	return b.String()
}

// changeCounter tracks, for one option name, whether its value differs
// across the binary builds seen so far.
type changeCounter struct {
	last  string
	count int
	useIt bool
}

// sortBuildOptionValues orders specs (already paired 1:1 with their
// resolved option maps) the way SortedBuildIterator does: build the set
// of key columns from names that vary or are partial, order priority
// names first then the rest alphabetically, concatenate values into a
// key, and sort ascending. Source builds get srcKeySentinel, the
// lexicographically greatest possible key, so the ascending sort already
// places them after every binary build.
func sortBuildOptionValues(items []buildItem) {
	changes := make(map[string]*changeCounter)
	numNonSource := 0

	for _, item := range items {
		if item.isSource {
			continue
		}
		numNonSource++
		for name, value := range item.options {
			c, ok := changes[name]
			if !ok {
				c = &changeCounter{last: value}
				changes[name] = c
			}
			c.count++
			if !c.useIt && c.last != value {
				c.useIt = true
			}
		}
	}

	var keyEntryNames []string
	for name, c := range changes {
		if c.useIt || c.count != numNonSource {
			keyEntryNames = append(keyEntryNames, name)
		}
	}
	sort.Strings(keyEntryNames)

	inEntries := make(map[string]bool, len(keyEntryNames))
	for _, n := range keyEntryNames {
		inEntries[n] = true
	}

	var orderedNames []string
	priority := BuildOptionKeyOrder()
	inPriority := make(map[string]bool, len(priority))
	for _, name := range priority {
		inPriority[name] = true
		if inEntries[name] {
			orderedNames = append(orderedNames, name)
		}
	}
	for _, name := range keyEntryNames {
		if !inPriority[name] {
			orderedNames = append(orderedNames, name)
		}
	}

	for i := range items {
		if items[i].isSource {
			items[i].key = srcKeySentinel
			continue
		}
		items[i].key = buildKey(items[i].options, orderedNames)
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].key < items[j].key })
}

// buildItem pairs a resolved spec with the data sortBuildOptionValues
// needs: whether it's a source build, and its fully resolved option map.
type buildItem struct {
	ident      ident.BuildIdent
	isSource   bool
	deprecated bool
	options    map[string]string
	key        string
	source     PackageSource
}
