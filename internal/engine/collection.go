package engine

// Record is anything held in a synced collection.
type Record interface {
	RecordID() string
}

// collection is an ordered, id-addressable set of records. All access runs
// on the store's command loop, so it carries no locking of its own.
type collection[R Record] struct {
	items []R
}

// All returns a copy of the items in order.
func (c *collection[R]) All() []R {
	out := make([]R, len(c.items))
	copy(out, c.items)
	return out
}

// Get returns the record with the given id.
func (c *collection[R]) Get(id string) (R, bool) {
	if i := c.indexOf(id); i >= 0 {
		return c.items[i], true
	}
	var zero R
	return zero, false
}

// Append adds a record to the end of the collection.
func (c *collection[R]) Append(r R) {
	c.items = append(c.items, r)
}

// Replace swaps the record with the given id for r, keeping its slot.
func (c *collection[R]) Replace(id string, r R) bool {
	if i := c.indexOf(id); i >= 0 {
		c.items[i] = r
		return true
	}
	return false
}

// Upsert replaces the record sharing r's id, or appends r when absent.
func (c *collection[R]) Upsert(r R) {
	if !c.Replace(r.RecordID(), r) {
		c.Append(r)
	}
}

// Remove deletes the record with the given id. Removing an absent id is a
// no-op.
func (c *collection[R]) Remove(id string) bool {
	i := c.indexOf(id)
	if i < 0 {
		return false
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	return true
}

// Snapshot captures the collection for a later wholesale Restore.
func (c *collection[R]) Snapshot() []R {
	return c.All()
}

// Restore replaces the collection's contents with a snapshot.
func (c *collection[R]) Restore(snap []R) {
	c.items = snap
}

// Len returns the number of records held.
func (c *collection[R]) Len() int { return len(c.items) }

func (c *collection[R]) indexOf(id string) int {
	for i, r := range c.items {
		if r.RecordID() == id {
			return i
		}
	}
	return -1
}
