package diff

// handler is the shared skeleton of the per-entity diffs. Each entity
// kind supplies its identity key, equality predicate, and statement
// generators; the skeleton reduces the two catalogs to drop, create,
// and update calls.
type handler[T any] struct {
	key    func(T) string
	manage func(T) bool // nil manages everything
	equal  func(desired, current T) bool
	create func(T) error
	drop   func(T) error
	update func(desired, current T) error
}

func (h handler[T]) managed(v T) bool {
	return h.manage == nil || h.manage(v)
}

// applyDrops emits a drop for every managed current entity absent from
// desired.
func (h handler[T]) applyDrops(desired, current []T) error {
	want := make(map[string]bool, len(desired))
	for _, d := range desired {
		if h.managed(d) {
			want[h.key(d)] = true
		}
	}
	for _, c := range current {
		if !h.managed(c) || want[h.key(c)] {
			continue
		}
		if err := h.drop(c); err != nil {
			return err
		}
	}
	return nil
}

// applyCreatesAndUpdates emits a create for every managed desired
// entity absent from current, and an update for every matched pair the
// equality predicate rejects.
func (h handler[T]) applyCreatesAndUpdates(desired, current []T) error {
	have := make(map[string]T, len(current))
	for _, c := range current {
		if h.managed(c) {
			have[h.key(c)] = c
		}
	}
	for _, d := range desired {
		if !h.managed(d) {
			continue
		}
		c, ok := have[h.key(d)]
		if !ok {
			if err := h.create(d); err != nil {
				return err
			}
			continue
		}
		if !h.equal(d, c) {
			if err := h.update(d, c); err != nil {
				return err
			}
		}
	}
	return nil
}
