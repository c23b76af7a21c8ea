package watcher

// Rule decides whether two events describe the same underlying change.
//
// Two events are duplicates when their kinds intersect and they point at the same
// path and name. Renames must also agree on where they came from. Two Created events
// for the same path always collapse, which absorbs the create storms some platforms
// emit for a single new file.
type Rule struct{}

// AreDuplicates reports whether a and b are the same logical change. Nil never matches.
func (Rule) AreDuplicates(a, b *Event) bool {
	if a == nil || b == nil {
		return false
	}
	return sameChange(a, b) || repeatedCreate(a, b)
}

// Key buckets events for lookup. Every pair of duplicates shares a key; events sharing
// a key are not necessarily duplicates, so callers still check AreDuplicates.
func (Rule) Key(e *Event) string {
	if e == nil {
		return ""
	}
	return e.FullPath + "\x00" + e.Name
}

func sameChange(a, b *Event) bool {
	return a.Kind&b.Kind != 0 && samePath(a, b) && sameOrigin(a, b)
}

// sameOrigin only constrains pairs of renames.
func sameOrigin(a, b *Event) bool {
	if !a.IsRename() || !b.IsRename() {
		return true
	}
	return a.OldFullPath == b.OldFullPath && a.OldName == b.OldName
}

func repeatedCreate(a, b *Event) bool {
	return a.Kind.Has(Created) && b.Kind.Has(Created) && samePath(a, b)
}

func samePath(a, b *Event) bool {
	return a.FullPath == b.FullPath && a.Name == b.Name
}
