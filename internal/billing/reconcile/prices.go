package reconcile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DefaultTicketPrices are the consultation ticket bundles sold in production.
var DefaultTicketPrices = map[string]int{
	"price_1Rl9H6BDZKTuon087WLZVdSZ": 1,
	"price_1Rl9GJBDZKTuon08ozCutQYR": 3,
	"price_1Rkv9KBDZKTuon084VUeTgzf": 10,
}

// PriceTable maps a one-off price id to the number of tickets it buys.
type PriceTable struct {
	counts map[string]int
}

func NewPriceTable(counts map[string]int) PriceTable {
	m := make(map[string]int, len(counts))
	for id, n := range counts {
		m[id] = n
	}
	return PriceTable{counts: m}
}

// ParsePriceTable reads "price_a:1,price_b:3". An empty string yields the
// default table.
func ParsePriceTable(s string) (PriceTable, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return NewPriceTable(DefaultTicketPrices), nil
	}

	counts := make(map[string]int)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, n, ok := strings.Cut(pair, ":")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return PriceTable{}, fmt.Errorf("parse ticket prices: bad entry %q", pair)
		}
		count, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil || count <= 0 {
			return PriceTable{}, fmt.Errorf("parse ticket prices: bad count in %q", pair)
		}
		if _, dup := counts[id]; dup {
			return PriceTable{}, fmt.Errorf("parse ticket prices: duplicate price %q", id)
		}
		counts[id] = count
	}
	if len(counts) == 0 {
		return PriceTable{}, fmt.Errorf("parse ticket prices: no entries in %q", s)
	}
	return PriceTable{counts: counts}, nil
}

// Count returns the tickets bought by priceID, or 0 for an unknown price.
func (t PriceTable) Count(priceID string) int {
	return t.counts[priceID]
}

func (t PriceTable) Has(priceID string) bool {
	_, ok := t.counts[priceID]
	return ok
}

// PriceIDs returns the known price ids in sorted order.
func (t PriceTable) PriceIDs() []string {
	ids := make([]string, 0, len(t.counts))
	for id := range t.counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
