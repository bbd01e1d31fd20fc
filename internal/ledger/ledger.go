// Package ledger keeps cached account and fund balances consistent with the
// journal entries and movements that justify them. Every balance-affecting
// operation reads current state and writes all affected documents in one
// store transaction.
package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/NgigiN/finboard/internal/metrics"
	"github.com/NgigiN/finboard/internal/storage"
)

// UserContext identifies whose collections an operation touches.
type UserContext struct {
	UserID string
}

func (uc UserContext) validate() error {
	if strings.TrimSpace(uc.UserID) == "" {
		return invalidf("user id is required")
	}
	return nil
}

type Options struct {
	// DefaultAccount pays alerts that carry no account of their own.
	DefaultAccount string
	// Location decides where month boundaries fall. Defaults to time.Local.
	Location *time.Location
	Now      func() time.Time
}

type Service struct {
	db             *storage.Database
	defaultAccount string
	loc            *time.Location
	now            func() time.Time

	// afterReversal, when set, runs after each committed fund cascade step.
	afterReversal func(movementID string)
}

func NewService(db *storage.Database, opts Options) *Service {
	s := &Service{
		db:             db,
		defaultAccount: opts.DefaultAccount,
		loc:            opts.Location,
		now:            opts.Now,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// DefaultAccount is the fallback account for alert payments and imports.
func (s *Service) DefaultAccount() string { return s.defaultAccount }

// run executes fn as one atomic store transaction for uc and records metrics.
func (s *Service) run(ctx context.Context, uc UserContext, op string, fn func(tx *storage.Tx) error) error {
	start := time.Now()
	err := uc.validate()
	if err == nil {
		err = translate(s.db.RunInTransaction(ctx, uc.UserID, fn))
	}
	metrics.Observe(op, outcome(err), start)
	return err
}

// read runs fn against the store without a write transaction.
func (s *Service) read(ctx context.Context, uc UserContext, fn func(tx *storage.Tx) error) error {
	if err := uc.validate(); err != nil {
		return err
	}
	return fn(s.db.Conn(ctx, uc.UserID))
}

// MonthKey formats t as YYYY-MM.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

func (s *Service) currentMonth() string {
	return MonthKey(s.now().In(s.loc))
}

// monthRange returns [start, end) of a YYYY-MM key in the service location.
func (s *Service) monthRange(key string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01", key, s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, invalidf("month %q must be YYYY-MM", key)
	}
	return t, t.AddDate(0, 1, 0), nil
}

// dateOrNow normalises journal dates to UTC so stored values sort and
// compare consistently.
func (s *Service) dateOrNow(d time.Time) time.Time {
	if d.IsZero() {
		d = s.now()
	}
	return d.UTC()
}

// ParseAmount parses user input into a positive amount with at most two
// fraction digits. A comma is accepted as decimal separator.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, invalidf("amount is required")
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return decimal.Zero, invalidf("amount %q is not a number", raw)
	}
	if err := validateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ParseQuota parses an optional quota value. Empty input means no quota.
func ParseQuota(raw string) (decimal.NullDecimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return decimal.NullDecimal{}, invalidf("quota value %q is not a number", raw)
	}
	q := decimal.NewNullDecimal(d)
	return q, validateQuota(q)
}

func validateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return invalidf("amount must be greater than zero, got %s", d)
	}
	return validateCents(d)
}

func validateCents(d decimal.Decimal) error {
	if !d.Equal(d.Truncate(2)) {
		return invalidf("amount %s has more than two decimal places", d)
	}
	return nil
}

func validateQuota(q decimal.NullDecimal) error {
	if q.Valid && q.Decimal.IsNegative() {
		return invalidf("quota value must not be negative, got %s", q.Decimal)
	}
	return nil
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalidf("%s is required", field)
	}
	return nil
}
