package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/NgigiN/finboard/internal/storage"
)

type AlertInput struct {
	Title       string
	Description string
	DayOfMonth  int
	Category    string
	Amount      decimal.Decimal // zero means supplied at payment time
	AccountID   string
	Type        storage.AlertType
}

// PayOptions override the alert's stored account and amount for one payment.
type PayOptions struct {
	AccountID string
	Amount    decimal.Decimal
}

func loadAlert(tx *storage.Tx, id string) (*storage.Alert, error) {
	a, err := tx.Alert(id)
	if err != nil {
		return nil, notFound(err, ErrAlertNotFound, id)
	}
	return a, nil
}

// PaidFor reports whether the alert is marked paid for month (YYYY-MM).
func PaidFor(a *storage.Alert, month string) bool {
	return a.LastPaidMonth != nil && *a.LastPaidMonth == month
}

func clampDay(day int) int {
	switch {
	case day < 1:
		return 1
	case day > 31:
		return 31
	}
	return day
}

func (s *Service) CreateAlert(ctx context.Context, uc UserContext, in AlertInput) (*storage.Alert, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := required("title", in.Title); err != nil {
		return nil, err
	}
	if !in.Amount.IsZero() {
		if err := validateAmount(in.Amount); err != nil {
			return nil, err
		}
	}
	if in.Type == "" {
		in.Type = storage.Payable
	}
	if in.Type != storage.Payable && in.Type != storage.Receivable {
		return nil, invalidf("alert type must be payable or receivable, got %q", in.Type)
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = "Outros"
	}

	var alert *storage.Alert
	err := s.run(ctx, uc, "create_alert", func(tx *storage.Tx) error {
		if in.AccountID != "" {
			if _, err := loadAccount(tx, in.AccountID); err != nil {
				return err
			}
		}
		alert = &storage.Alert{
			Title:       in.Title,
			Description: strings.TrimSpace(in.Description),
			DayOfMonth:  clampDay(in.DayOfMonth),
			Category:    category,
			Amount:      in.Amount,
			AccountID:   in.AccountID,
			Type:        in.Type,
		}
		return tx.CreateAlert(alert)
	})
	if err != nil {
		return nil, err
	}
	return alert, nil
}

func (s *Service) ListAlerts(ctx context.Context, uc UserContext) ([]storage.Alert, error) {
	var list []storage.Alert
	err := s.read(ctx, uc, func(tx *storage.Tx) error {
		var err error
		list, err = tx.Alerts()
		return err
	})
	return list, err
}

// DueAlerts lists alerts not yet paid this month whose day has arrived. A
// day past the end of a short month falls on its last day.
func (s *Service) DueAlerts(ctx context.Context, uc UserContext) ([]storage.Alert, error) {
	alerts, err := s.ListAlerts(ctx, uc)
	if err != nil {
		return nil, err
	}
	today := s.now().In(s.loc)
	month := MonthKey(today)
	lastDay := time.Date(today.Year(), today.Month()+1, 0, 0, 0, 0, 0, s.loc).Day()

	var due []storage.Alert
	for _, a := range alerts {
		if PaidFor(&a, month) {
			continue
		}
		day := a.DayOfMonth
		if day > lastDay {
			day = lastDay
		}
		if today.Day() >= day {
			due = append(due, a)
		}
	}
	return due, nil
}

// DeleteAlert removes the alert. Entries created by its past payments stay
// in the journal as ordinary manual entries.
func (s *Service) DeleteAlert(ctx context.Context, uc UserContext, id string) error {
	return s.run(ctx, uc, "delete_alert", func(tx *storage.Tx) error {
		if _, err := loadAlert(tx, id); err != nil {
			return err
		}
		if err := tx.DetachTransactions(id); err != nil {
			return err
		}
		return tx.DeleteAlert(id)
	})
}

// MarkAlertPaid posts the bill for the current month and records the
// created entry on the alert so it can be reversed exactly.
func (s *Service) MarkAlertPaid(ctx context.Context, uc UserContext, alertID string, opts PayOptions) (*storage.Alert, error) {
	if !opts.Amount.IsZero() {
		if err := validateAmount(opts.Amount); err != nil {
			return nil, err
		}
	}

	var alert *storage.Alert
	err := s.run(ctx, uc, "mark_alert_paid", func(tx *storage.Tx) error {
		a, err := loadAlert(tx, alertID)
		if err != nil {
			return err
		}
		month := s.currentMonth()
		if PaidFor(a, month) {
			return ErrAlreadyPaid
		}

		amount := a.Amount
		if opts.Amount.IsPositive() {
			amount = opts.Amount
		}
		if !amount.IsPositive() {
			return invalidf("alert %q has no amount to pay", a.Title)
		}
		accountID := firstNonEmpty(opts.AccountID, a.AccountID, s.defaultAccount)
		if accountID == "" {
			return invalidf("alert %q has no account to pay from", a.Title)
		}
		acc, err := loadAccount(tx, accountID)
		if err != nil {
			return err
		}

		entryType := storage.Expense
		if a.Type == storage.Receivable {
			entryType = storage.Income
		}
		entry := &storage.Transaction{
			Amount:      amount,
			Type:        entryType,
			Category:    a.Category,
			Date:        s.dateOrNow(time.Time{}),
			Description: a.Title,
			Source:      storage.SourceAlert,
			SourceID:    a.ID,
		}
		if err := postEntry(tx, acc, entry); err != nil {
			return err
		}

		a.LastPaidMonth = &month
		a.TransactionID = &entry.ID
		a.AccountID = accountID
		a.Amount = amount
		if err := tx.SaveAlert(a); err != nil {
			return err
		}
		alert = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return alert, nil
}

// MarkAlertUnpaid clears the current month's paid mark and reverses the
// entry the payment created. If that entry has already disappeared the
// balance is left alone. An alert not paid for the current month, including
// one paid in an earlier month, is left untouched.
func (s *Service) MarkAlertUnpaid(ctx context.Context, uc UserContext, alertID string) (*storage.Alert, error) {
	var alert *storage.Alert
	err := s.run(ctx, uc, "mark_alert_unpaid", func(tx *storage.Tx) error {
		a, err := loadAlert(tx, alertID)
		if err != nil {
			return err
		}
		alert = a
		if !PaidFor(a, s.currentMonth()) {
			return nil
		}

		if a.TransactionID != nil && a.AccountID != "" {
			acc, err := loadAccount(tx, a.AccountID)
			if err != nil {
				return err
			}
			entry, err := tx.Transaction(a.AccountID, *a.TransactionID)
			switch {
			case err == nil:
				if err := reverseEntry(tx, acc, entry); err != nil {
					return err
				}
			case !errors.Is(err, storage.ErrNotFound):
				return err
			}
		}

		a.LastPaidMonth = nil
		a.TransactionID = nil
		return tx.SaveAlert(a)
	})
	if err != nil {
		return nil, err
	}
	return alert, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
