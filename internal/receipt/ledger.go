package receipt

// Ledger tracks the aggregate claimed quantity per item across every
// participant. It is the single source of truth: participant claims are
// derived views and never override it.
//
// Ledger itself is not safe for concurrent use; all access goes through the
// owning session's lock so read-modify-write on one item never interleaves.
type Ledger struct {
	capacity []Quantity
	claimed  []Quantity
}

func NewLedger(c Catalog) *Ledger {
	l := &Ledger{
		capacity: make([]Quantity, c.Len()),
		claimed:  make([]Quantity, c.Len()),
	}
	for _, item := range c.items {
		l.capacity[item.ID] = QuantityFromInt(int64(item.TotalQuantity))
		l.claimed[item.ID] = QuantityFromInt(0)
	}
	return l
}

// TryAdjust applies as much of delta as fits into [0, totalQuantity] and
// returns the portion actually applied. Overshooting is clamped, not an
// error; the return value may be zero.
func (l *Ledger) TryAdjust(itemID int, delta Quantity) Quantity {
	if itemID < 0 || itemID >= len(l.claimed) {
		return QuantityFromInt(0)
	}
	next := l.claimed[itemID].Add(delta)
	if next.Sign() < 0 {
		next = QuantityFromInt(0)
	} else if next.Cmp(l.capacity[itemID]) > 0 {
		next = l.capacity[itemID]
	}
	actual := next.Sub(l.claimed[itemID])
	l.claimed[itemID] = next
	return actual
}

// Claimed returns the aggregate claimed quantity for one item.
func (l *Ledger) Claimed(itemID int) Quantity {
	if itemID < 0 || itemID >= len(l.claimed) {
		return QuantityFromInt(0)
	}
	return l.claimed[itemID]
}

// Remaining returns the unclaimed capacity for one item.
func (l *Ledger) Remaining(itemID int) Quantity {
	if itemID < 0 || itemID >= len(l.claimed) {
		return QuantityFromInt(0)
	}
	return l.capacity[itemID].Sub(l.claimed[itemID])
}
