/*
summary.go - Read-only presentation feed

PURPOSE:
  Exposes derived values (totals, balance, per-category breakdown, badge
  model) as pure functions of a BillingRecord. No independent state, no
  I/O - this keeps the core testable without any rendering surface.
*/
package ledger

// Summary is the derived view of a record consumed by summary UIs.
type Summary struct {
	TotalCharges  Money
	TotalPayments Money
	Balance       Money
	ByCategory    []CategoryTotal
}

// CategoryTotal aggregates charges of one type, in first-appearance order.
type CategoryTotal struct {
	Type  string
	Total Money
	Count int
}

// Badge is the compact balance indicator shown on a card.
// Red signals an amount owed, green a settled or overpaid card.
type Badge struct {
	Text  string
	Color string
}

// Summarize computes the full derived view of a record.
func Summarize(r *BillingRecord) Summary {
	s := Summary{
		TotalCharges:  r.TotalCharges(),
		TotalPayments: r.TotalPayments(),
	}
	s.Balance = s.TotalCharges.Sub(s.TotalPayments)

	index := map[string]int{}
	for _, c := range r.Charges {
		i, ok := index[c.Type]
		if !ok {
			i = len(s.ByCategory)
			index[c.Type] = i
			s.ByCategory = append(s.ByCategory, CategoryTotal{Type: c.Type})
		}
		s.ByCategory[i].Total = s.ByCategory[i].Total.Add(c.Amount)
		s.ByCategory[i].Count++
	}
	return s
}

// BadgeFor renders the balance badge for a record.
func BadgeFor(r *BillingRecord) Badge {
	balance := r.Balance()
	color := "green"
	if balance.IsPositive() {
		color = "red"
	}
	return Badge{
		Text:  "$" + balance.String(),
		Color: color,
	}
}
