package receipt

import (
	"fmt"
	"sort"
	"strings"
)

// settle converts final claims into debts: each participant owes unit price
// times their own claimed quantity. Unclaimed capacity is billed to no one,
// so the grand total always equals the claimed value on the ledger.
func settle(sess *BillSession) *SettlementResult {
	res := &SettlementResult{
		SessionID: sess.ID,
		Total:     MoneyFromInt(0),
	}
	ids := make([]string, 0, len(sess.Participants))
	for id := range sess.Participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		p := sess.Participants[id]
		debt := MoneyFromInt(0)
		for itemID, c := range p.Claims {
			if c.Quantity.Sign() <= 0 {
				continue
			}
			item, ok := sess.Catalog.Item(itemID)
			if !ok {
				continue
			}
			debt = debt.Add(item.UnitPrice.MulQuantity(c.Quantity))
		}
		res.Debts = append(res.Debts, Debt{ParticipantID: id, Amount: debt})
		res.Total = res.Total.Add(debt)
	}
	return res
}

// Summary renders the result for a channel message.
func (r *SettlementResult) Summary() string {
	var b strings.Builder
	b.WriteString("精算結果:\n")
	for _, d := range r.Debts {
		fmt.Fprintf(&b, "<@%s>: %s 円\n", d.ParticipantID, d.Amount.Display())
	}
	fmt.Fprintf(&b, "合計: %s 円", r.Total.Display())
	return b.String()
}
