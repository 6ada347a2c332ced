package receipt

import (
	"strings"
	"unicode/utf8"
)

// MaxCatalogItems bounds the catalog. Entries beyond the cap are dropped
// silently: a partially split receipt is still usable.
const MaxCatalogItems = 30

// RawItem is one recognized receipt line as delivered by the OCR or ticket
// collaborators, before deduplication.
type RawItem struct {
	Name      string
	UnitPrice Money
	Quantity  int
}

// Item is one catalog line. Immutable after Normalize.
type Item struct {
	ID            int
	Name          string
	UnitPrice     Money
	TotalQuantity int
}

type Catalog struct {
	items []Item
}

// Normalize merges near-duplicate raw entries into catalog items. Two entries
// merge when their names share at least one token longer than one rune
// (case-insensitive) and their unit prices are equal. A merged occurrence adds
// one unit; each raw entry stands for one matched receipt line.
func Normalize(raw []RawItem) Catalog {
	var items []Item
	tokens := make([][]string, 0, len(raw))

	for _, r := range raw {
		if r.Quantity < 0 {
			continue
		}
		rt := nameTokens(r.Name)
		merged := false
		for i := range items {
			if items[i].UnitPrice.Cmp(r.UnitPrice) == 0 && sharesToken(tokens[i], rt) {
				items[i].TotalQuantity++
				merged = true
				break
			}
		}
		if merged {
			continue
		}
		if len(items) >= MaxCatalogItems {
			continue
		}
		items = append(items, Item{
			ID:            len(items),
			Name:          r.Name,
			UnitPrice:     r.UnitPrice,
			TotalQuantity: r.Quantity,
		})
		tokens = append(tokens, rt)
	}
	return Catalog{items: items}
}

func (c Catalog) Len() int {
	return len(c.items)
}

func (c Catalog) Items() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

func (c Catalog) Item(id int) (Item, bool) {
	if id < 0 || id >= len(c.items) {
		return Item{}, false
	}
	return c.items[id], true
}

func nameTokens(name string) []string {
	fields := strings.Fields(strings.ToLower(name))
	out := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}

func sharesToken(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
