// Package capability defines the fixed set of names an analysis program may use.
//
// The list is engine independent. Each engine binds exactly Names() plus the
// language intrinsics returned by Intrinsics; anything else is unresolvable
// from inside a program.
package capability

import (
	"fmt"
	"sort"
	"strings"

	"github.com/thomassthus-stack/Tommytiger/internal/domain/analysis"
)

// Kind classifies an allow-listed name.
type Kind string

const (
	KindBuiltin Kind = "builtin"
	KindLibrary Kind = "library"
	KindBinding Kind = "binding"
	KindSlot    Kind = "slot"
)

// Well known names referenced by engines.
const (
	DatasetName = "df"
	ResultName  = "result"
	PrintName   = "print"
)

// Capability is a single permitted name.
type Capability struct {
	Name    string
	Kind    Kind
	Summary string
}

// List is an immutable, ordered allow-list.
type List struct {
	entries []Capability
	index   map[string]int
}

var defaultList = mustNew(
	Capability{Name: "len", Kind: KindBuiltin, Summary: "length of a list, string, mapping or dataset"},
	Capability{Name: "min", Kind: KindBuiltin, Summary: "smallest of the arguments or of a list"},
	Capability{Name: "max", Kind: KindBuiltin, Summary: "largest of the arguments or of a list"},
	Capability{Name: "sum", Kind: KindBuiltin, Summary: "numeric sum of a list"},
	Capability{Name: "abs", Kind: KindBuiltin, Summary: "absolute value"},
	Capability{Name: "range", Kind: KindBuiltin, Summary: "integer sequence range(stop) or range(start, stop[, step])"},
	Capability{Name: PrintName, Kind: KindBuiltin, Summary: "write diagnostics to the execution log"},
	Capability{Name: "pd", Kind: KindLibrary, Summary: "dataset manipulation: columns, filtering, grouping, summaries"},
	Capability{Name: "np", Kind: KindLibrary, Summary: "numeric array helpers: mean, median, std, percentiles"},
	Capability{Name: "plt", Kind: KindLibrary, Summary: "chart descriptions; charts are declared, never rendered"},
	Capability{Name: "json", Kind: KindLibrary, Summary: "encode values to and decode values from JSON text"},
	Capability{Name: DatasetName, Kind: KindBinding, Summary: "the input dataset (read-only copy)"},
	Capability{Name: ResultName, Kind: KindSlot, Summary: "output slot; bind the analysis result here"},
)

var intrinsics = map[analysis.Language][]string{
	analysis.LanguageJavaScript: {
		"Array", "Boolean", "Error", "Infinity", "Math", "NaN", "Number", "Object",
		"RangeError", "String", "TypeError", "isFinite", "isNaN", "parseFloat",
		"parseInt", "undefined",
	},
	analysis.LanguagePython: {
		"Exception", "KeyError", "TypeError", "ValueError", "bool", "dict", "enumerate",
		"float", "int", "isinstance", "list", "round", "set", "sorted", "str", "tuple", "zip",
	},
}

var excluded = []string{
	"filesystem access (open, read, write, delete)",
	"network access (sockets, http clients)",
	"process spawning and environment access",
	"dynamic module import (import, require)",
	"dynamic code evaluation (eval, exec, Function constructor)",
	"host reflection and interpreter internals",
	"wall clock and sleep primitives",
}

// Default returns the allow-list every engine enforces.
func Default() *List {
	return defaultList
}

// New builds a list from entries. Names must be unique and non-empty.
func New(entries ...Capability) (*List, error) {
	list := &List{
		entries: make([]Capability, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for _, entry := range entries {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			return nil, fmt.Errorf("capability: empty name")
		}
		if _, dup := list.index[name]; dup {
			return nil, fmt.Errorf("capability: duplicate name %q", name)
		}
		entry.Name = name
		list.index[name] = len(list.entries)
		list.entries = append(list.entries, entry)
	}
	return list, nil
}

func mustNew(entries ...Capability) *List {
	list, err := New(entries...)
	if err != nil {
		panic(err)
	}
	return list
}

// Names returns every allow-listed name in declaration order.
func (l *List) Names() []string {
	names := make([]string, len(l.entries))
	for i, entry := range l.entries {
		names[i] = entry.Name
	}
	return names
}

// Entries returns a copy of the list contents.
func (l *List) Entries() []Capability {
	out := make([]Capability, len(l.entries))
	copy(out, l.entries)
	return out
}

// Lookup returns the capability registered under name.
func (l *List) Lookup(name string) (Capability, bool) {
	idx, ok := l.index[name]
	if !ok {
		return Capability{}, false
	}
	return l.entries[idx], true
}

// Allowed reports whether name is on the list.
func (l *List) Allowed(name string) bool {
	_, ok := l.index[name]
	return ok
}

// ByKind returns the names of the given kind in declaration order.
func (l *List) ByKind(kind Kind) []string {
	var names []string
	for _, entry := range l.entries {
		if entry.Kind == kind {
			names = append(names, entry.Name)
		}
	}
	return names
}

// Intrinsics returns the language-level symbols an engine for lang keeps in
// addition to the list. The result is sorted.
func (l *List) Intrinsics(lang analysis.Language) []string {
	names := append([]string(nil), intrinsics[lang]...)
	sort.Strings(names)
	return names
}

// Bindable returns the full set of names an engine for lang exposes, sorted.
func (l *List) Bindable(lang analysis.Language) []string {
	names := append(l.Names(), l.Intrinsics(lang)...)
	sort.Strings(names)
	return names
}

// Describe renders the list as a bullet list, grouped by kind.
func (l *List) Describe() string {
	var b strings.Builder
	for _, kind := range []Kind{KindBinding, KindSlot, KindBuiltin, KindLibrary} {
		for _, entry := range l.entries {
			if entry.Kind != kind {
				continue
			}
			fmt.Fprintf(&b, "- %s (%s): %s\n", entry.Name, entry.Kind, entry.Summary)
		}
	}
	return b.String()
}

// Excluded enumerates the surface no engine may expose.
func Excluded() []string {
	return append([]string(nil), excluded...)
}
