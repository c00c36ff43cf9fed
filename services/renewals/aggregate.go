package renewals

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Record is the slice of a renewal row the history view needs.
type Record struct {
	ID            uint
	NaturalKey    string
	Period        string
	StartDate     time.Time
	ExpiryDate    time.Time
	Amount        decimal.Decimal
	PaymentStatus string
	Status        string
	TransactionID string
	CreatedAt     time.Time
}

// History is the renewal history of one natural key.
type History struct {
	NaturalKey       string
	Records          []Record // oldest first
	CumulativeExpiry time.Time
	TotalAmount      decimal.Decimal
	Latest           Record
}

// Aggregate groups records by natural key and chains their periods. The first
// record's stored expiry anchors the chain and every later record extends the
// running expiry by its own period. Records with an unparseable period add
// nothing to the chain but still count towards the total. The input is not
// modified; groups are returned ordered by natural key.
func Aggregate(records []Record) []History {
	groups := map[string][]Record{}
	for _, r := range records {
		groups[r.NaturalKey] = append(groups[r.NaturalKey], r)
	}

	out := make([]History, 0, len(groups))
	for key, rs := range groups {
		sort.SliceStable(rs, func(i, j int) bool {
			if rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
				return rs[i].ID < rs[j].ID
			}
			return rs[i].CreatedAt.Before(rs[j].CreatedAt)
		})

		h := History{NaturalKey: key, Records: rs, TotalAmount: decimal.Zero}
		var cumulative *time.Time
		for _, r := range rs {
			if cumulative == nil {
				anchor := r.ExpiryDate
				cumulative = &anchor
			} else if p, err := ParsePeriod(r.Period); err == nil {
				next := p.AddTo(*cumulative)
				cumulative = &next
			}
			h.TotalAmount = h.TotalAmount.Add(r.Amount)
		}
		if cumulative != nil {
			h.CumulativeExpiry = *cumulative
		}
		h.Latest = rs[len(rs)-1]
		out = append(out, h)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].NaturalKey < out[j].NaturalKey })
	return out
}
