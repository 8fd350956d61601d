package api

// Record is the persisted progress of a campaign.
//
// Added holds contacts enrolled by direct addition. Linked holds contacts that
// were sent the invite link, and contacts whose direct addition failed. Both
// lists keep insertion order and never contain duplicates when mutated through
// MarkAdded / MarkLinked. Entries are never removed.
type Record struct {
	Added  []string `json:"added"`
	Linked []string `json:"linked"`

	added  map[string]struct{}
	linked map[string]struct{}
}

// NewRecord returns an empty Record.
func NewRecord() *Record {
	return &Record{
		Added:  []string{},
		Linked: []string{},
	}
}

func (r *Record) index() {
	if r.added == nil {
		r.added = make(map[string]struct{}, len(r.Added))
		for _, id := range r.Added {
			r.added[id] = struct{}{}
		}
	}
	if r.linked == nil {
		r.linked = make(map[string]struct{}, len(r.Linked))
		for _, id := range r.Linked {
			r.linked[id] = struct{}{}
		}
	}
}

// IsAdded reports whether id was enrolled by direct addition.
func (r *Record) IsAdded(id string) bool {
	r.index()
	_, ok := r.added[id]
	return ok
}

// IsLinked reports whether id is on the link path.
func (r *Record) IsLinked(id string) bool {
	r.index()
	_, ok := r.linked[id]
	return ok
}

// IsProcessed reports whether id is in either set.
func (r *Record) IsProcessed(id string) bool {
	return r.IsAdded(id) || r.IsLinked(id)
}

// MarkAdded appends id to Added if absent and reports whether it changed.
func (r *Record) MarkAdded(id string) bool {
	if r.IsAdded(id) {
		return false
	}
	r.Added = append(r.Added, id)
	r.added[id] = struct{}{}
	return true
}

// MarkLinked appends id to Linked if absent and reports whether it changed.
func (r *Record) MarkLinked(id string) bool {
	if r.IsLinked(id) {
		return false
	}
	r.Linked = append(r.Linked, id)
	r.linked[id] = struct{}{}
	return true
}

// Pending returns the contacts that are in neither set, in input order.
func (r *Record) Pending(contacts []string) []string {
	out := make([]string, 0, len(contacts))
	for _, id := range contacts {
		if !r.IsProcessed(id) {
			out = append(out, id)
		}
	}
	return out
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	c := &Record{
		Added:  make([]string, len(r.Added)),
		Linked: make([]string, len(r.Linked)),
	}
	copy(c.Added, r.Added)
	copy(c.Linked, r.Linked)
	return c
}
