package watcher

import (
	"strings"
)

// Kind is a bitmask describing what happened to a filesystem entry.
type Kind uint8

const (
	Created Kind = 1 << iota
	Deleted
	Changed
	Renamed

	// All is only used for synthetic snapshot events of entries that existed before watching started.
	All = Created | Deleted | Changed | Renamed
)

var kindNames = []struct {
	kind Kind
	name string
}{
	{Created, "Created"},
	{Deleted, "Deleted"},
	{Changed, "Changed"},
	{Renamed, "Renamed"},
}

// String returns the kind names joined by "|", or "All" for the full mask.
func (k Kind) String() string {
	if k == All {
		return "All"
	}
	if k == 0 {
		return "None"
	}
	var parts []string
	for _, kn := range kindNames {
		if k&kn.kind != 0 {
			parts = append(parts, kn.name)
		}
	}
	return strings.Join(parts, "|")
}

// Has reports whether any bit of other is set in k.
func (k Kind) Has(other Kind) bool {
	return k&other != 0
}

// ParseKind converts a single kind name (case-insensitive) back into a Kind.
func ParseKind(name string) (Kind, bool) {
	if strings.EqualFold(name, "all") {
		return All, true
	}
	for _, kn := range kindNames {
		if strings.EqualFold(name, kn.name) {
			return kn.kind, true
		}
	}
	return 0, false
}

// Event is one logical filesystem change.
// OldFullPath and OldName are only set for Renamed events.
type Event struct {
	Kind        Kind
	FullPath    string
	Name        string
	OldFullPath string
	OldName     string
}

// IsRename reports whether the event carries rename information.
func (e Event) IsRename() bool {
	return e.Kind == Renamed
}

func (e Event) String() string {
	if e.IsRename() {
		return e.Kind.String() + " " + e.OldFullPath + " -> " + e.FullPath
	}
	return e.Kind.String() + " " + e.FullPath
}
