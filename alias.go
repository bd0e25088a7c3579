package condrv

import (
	"sort"
	"strings"
	"sync"
)

// AliasStore is the exe-scoped command-alias table. All keys are
// compared case-insensitively but stored under their original casing for
// Exes()/enumeration, matching the observed wire idiom of preserving the
// caller's original casing in GetAliasExes while matching case-insensitively
// on lookup.
type AliasStore struct {
	mu        sync.Mutex
	// exes maps lowercase exe name -> lowercase source -> target entry.
	exes      map[string]map[string]aliasEntry
	// exeCasing remembers the most recently Add-ed casing of each exe name,
	// since Exes() enumerates human-readable text.
	exeCasing map[string]string
}

type aliasEntry struct {
	// originalSrc preserves the source casing last used to Add the entry,
	// since GetAliases serializes human-readable text (exe casing lives in
	// AliasStore.exeCasing).
	originalSrc string
	target      string
}

// NewAliasStore returns an empty alias store.
func NewAliasStore() *AliasStore {
	return &AliasStore{
		exes:      make(map[string]map[string]aliasEntry),
		exeCasing: make(map[string]string),
	}
}

// Add inserts or updates exe/src -> target, or removes the entry when
// target is empty. exe and src are matched case-insensitively.
func (a *AliasStore) Add(exe, src, target string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	exeKey := strings.ToLower(exe)
	srcKey := strings.ToLower(src)

	if target == "" {
		if srcs, ok := a.exes[exeKey]; ok {
			delete(srcs, srcKey)
			if len(srcs) == 0 {
				delete(a.exes, exeKey)
				delete(a.exeCasing, exeKey)
			}
		}
		return
	}

	srcs, ok := a.exes[exeKey]
	if !ok {
		srcs = make(map[string]aliasEntry)
		a.exes[exeKey] = srcs
	}
	srcs[srcKey] = aliasEntry{originalSrc: src, target: target}
	a.exeCasing[exeKey] = exe
}

// Get returns the target for exe/src and whether it was found.
func (a *AliasStore) Get(exe, src string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	srcs, ok := a.exes[strings.ToLower(exe)]
	if !ok {
		return "", false
	}
	entry, ok := srcs[strings.ToLower(src)]
	if !ok {
		return "", false
	}
	return entry.target, true
}

// aliasListLine formats one alias as the wire idiom's "src=tgt" line.
func aliasListLine(src, target string) string {
	return src + "=" + target
}

// serializeAliasList builds "src=tgt\0src=tgt\0\0", with the trailing
// double-NUL only present when the list is non-empty (see DESIGN.md for
// the wire-layout decision). Entries are sorted by source for a
// deterministic wire order,
// since the underlying map has none.
func serializeAliasList(srcs map[string]aliasEntry) string {
	if len(srcs) == 0 {
		return ""
	}
	entries := make([]aliasEntry, 0, len(srcs))
	for _, e := range srcs {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].originalSrc < entries[j].originalSrc })
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, aliasListLine(e.originalSrc, e.target))
	}
	return strings.Join(lines, "\x00") + "\x00\x00"
}

// Aliases returns the serialized "src=tgt\0...\0\0" list for exe.
func (a *AliasStore) Aliases(exe string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return serializeAliasList(a.exes[strings.ToLower(exe)])
}

// AliasesLength returns the byte length of the Go string Aliases(exe)
// produces. This is not the UTF-16 wire size: the dispatcher encodes to
// UTF-16 itself before sizing the response.
func (a *AliasStore) AliasesLength(exe string) int {
	return len(a.Aliases(exe))
}

// Exes returns the serialized "exe\0exe\0\0" list of every exe name that has
// at least one alias, sorted for determinism.
func (a *AliasStore) Exes() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.exes) == 0 {
		return ""
	}
	names := make([]string, 0, len(a.exes))
	for exeKey, srcs := range a.exes {
		if len(srcs) == 0 {
			continue
		}
		names = append(names, a.exeCasing[exeKey])
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return strings.Join(names, "\x00") + "\x00\x00"
}

// ExesLength returns the byte length Exes() would produce.
func (a *AliasStore) ExesLength() int {
	return len(a.Exes())
}
