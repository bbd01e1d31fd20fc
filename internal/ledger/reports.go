package ledger

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/NgigiN/finboard/internal/storage"
)

type CategoryTotal struct {
	Category string          `json:"category"`
	Income   decimal.Decimal `json:"income"`
	Expense  decimal.Decimal `json:"expense"`
}

// Summary is the dashboard view of one month.
type Summary struct {
	Month         string          `json:"month"`
	TotalBalance  decimal.Decimal `json:"total_balance"`
	TotalInvested decimal.Decimal `json:"total_invested"`
	Income        decimal.Decimal `json:"income"`
	Expense       decimal.Decimal `json:"expense"`
	Net           decimal.Decimal `json:"net"`
	ByCategory    []CategoryTotal `json:"by_category"`
	PaidAlerts    []storage.Alert `json:"paid_alerts"`
}

// Summary totals balances and the month's journal. An empty month means the
// current one.
func (s *Service) Summary(ctx context.Context, uc UserContext, month string) (*Summary, error) {
	if month == "" {
		month = s.currentMonth()
	}
	from, to, err := s.monthRange(month)
	if err != nil {
		return nil, err
	}

	sum := &Summary{Month: month}
	err = s.run(ctx, uc, "summary", func(tx *storage.Tx) error {
		*sum = Summary{Month: month}

		accounts, err := tx.Accounts()
		if err != nil {
			return err
		}
		for _, a := range accounts {
			sum.TotalBalance = sum.TotalBalance.Add(a.Balance)
		}
		funds, err := tx.Funds()
		if err != nil {
			return err
		}
		for _, f := range funds {
			sum.TotalInvested = sum.TotalInvested.Add(f.Balance)
		}

		entries, err := tx.TransactionsBetween(from.UTC(), to.UTC())
		if err != nil {
			return err
		}
		byCategory := make(map[string]*CategoryTotal)
		for _, e := range entries {
			ct, ok := byCategory[e.Category]
			if !ok {
				ct = &CategoryTotal{Category: e.Category}
				byCategory[e.Category] = ct
			}
			if e.Type == storage.Income {
				sum.Income = sum.Income.Add(e.Amount)
				ct.Income = ct.Income.Add(e.Amount)
			} else {
				sum.Expense = sum.Expense.Add(e.Amount)
				ct.Expense = ct.Expense.Add(e.Amount)
			}
		}
		sum.Net = sum.Income.Sub(sum.Expense)
		for _, ct := range byCategory {
			sum.ByCategory = append(sum.ByCategory, *ct)
		}
		sort.Slice(sum.ByCategory, func(i, j int) bool {
			a, b := sum.ByCategory[i], sum.ByCategory[j]
			if !a.Expense.Equal(b.Expense) {
				return a.Expense.GreaterThan(b.Expense)
			}
			return a.Category < b.Category
		})

		alerts, err := tx.Alerts()
		if err != nil {
			return err
		}
		for i := range alerts {
			if PaidFor(&alerts[i], month) {
				sum.PaidAlerts = append(sum.PaidAlerts, alerts[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sum, nil
}
