package ledger

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/NgigiN/finboard/internal/metrics"
	"github.com/NgigiN/finboard/internal/storage"
)

// InvestmentCategory is the journal category of every fund movement.
const InvestmentCategory = "Investimentos"

type ContributionInput struct {
	FundID          string
	OriginAccountID string
	Amount          decimal.Decimal
	Date            time.Time
	QuotaValue      decimal.NullDecimal
}

// ContributionEdit replaces the mutable fields of a movement. An empty
// OriginAccountID keeps the current origin; a zero Date keeps the current date.
type ContributionEdit struct {
	OriginAccountID string
	Amount          decimal.Decimal
	Date            time.Time
	QuotaValue      decimal.NullDecimal
}

func loadFund(tx *storage.Tx, id string) (*storage.Fund, error) {
	f, err := tx.Fund(id)
	if err != nil {
		return nil, notFound(err, ErrFundNotFound, id)
	}
	return f, nil
}

func loadMovement(tx *storage.Tx, id string) (*storage.Movement, error) {
	m, err := tx.Movement(id)
	if err != nil {
		return nil, notFound(err, ErrMovementNotFound, id)
	}
	return m, nil
}

func units(amount decimal.Decimal, quota decimal.NullDecimal) decimal.NullDecimal {
	if !quota.Valid || !quota.Decimal.IsPositive() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(amount.DivRound(quota.Decimal, 8))
}

func movementDescription(fund *storage.Fund, t storage.MovementType) string {
	name := fund.Name
	if name == "" {
		name = "Fundo"
	}
	if t == storage.Sell {
		return "Resgate de " + name
	}
	return "Aporte em " + name
}

func signedFundEffect(t storage.MovementType, amount decimal.Decimal) decimal.Decimal {
	m := storage.Movement{Type: t, Amount: amount}
	return m.FundEffect()
}

func (s *Service) CreateFund(ctx context.Context, uc UserContext, name, custodianAccountID string) (*storage.Fund, error) {
	name = strings.TrimSpace(name)
	if err := required("fund name", name); err != nil {
		return nil, err
	}
	if err := required("custodian account", custodianAccountID); err != nil {
		return nil, err
	}

	var fund *storage.Fund
	err := s.run(ctx, uc, "create_fund", func(tx *storage.Tx) error {
		if _, err := loadAccount(tx, custodianAccountID); err != nil {
			return err
		}
		fund = &storage.Fund{Name: name, CustodianAccountID: custodianAccountID, Balance: decimal.Zero}
		return tx.CreateFund(fund)
	})
	if err != nil {
		return nil, err
	}
	return fund, nil
}

func (s *Service) GetFund(ctx context.Context, uc UserContext, id string) (*storage.Fund, error) {
	var fund *storage.Fund
	err := s.read(ctx, uc, func(tx *storage.Tx) error {
		var err error
		fund, err = loadFund(tx, id)
		return err
	})
	return fund, err
}

func (s *Service) ListFunds(ctx context.Context, uc UserContext) ([]storage.Fund, error) {
	var list []storage.Fund
	err := s.read(ctx, uc, func(tx *storage.Tx) error {
		var err error
		list, err = tx.Funds()
		return err
	})
	return list, err
}

func (s *Service) ListMovements(ctx context.Context, uc UserContext, fundID string) ([]storage.Movement, error) {
	var list []storage.Movement
	err := s.read(ctx, uc, func(tx *storage.Tx) error {
		if _, err := loadFund(tx, fundID); err != nil {
			return err
		}
		var err error
		list, err = tx.MovementsFor(fundID)
		return err
	})
	return list, err
}

// Contribute buys into a fund from an origin account. The account is
// debited even below zero; it tracks a running ledger, not a spending limit.
func (s *Service) Contribute(ctx context.Context, uc UserContext, in ContributionInput) (*storage.Movement, error) {
	if err := required("fund", in.FundID); err != nil {
		return nil, err
	}
	if err := required("origin account", in.OriginAccountID); err != nil {
		return nil, err
	}
	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}
	if err := validateQuota(in.QuotaValue); err != nil {
		return nil, err
	}

	var movement *storage.Movement
	err := s.run(ctx, uc, "contribute", func(tx *storage.Tx) error {
		fund, err := loadFund(tx, in.FundID)
		if err != nil {
			return err
		}
		if fund.DeletingAt != nil {
			return ErrFundDeleting
		}
		acc, err := loadAccount(tx, in.OriginAccountID)
		if err != nil {
			return err
		}

		mv := &storage.Movement{
			FundID:          fund.ID,
			OriginAccountID: acc.ID,
			Amount:          in.Amount,
			Type:            storage.Buy,
			Date:            s.dateOrNow(in.Date),
			QuotaValue:      in.QuotaValue,
			Units:           units(in.Amount, in.QuotaValue),
		}
		mv.ID = uuid.NewString()

		entry := &storage.Transaction{
			Amount:      in.Amount,
			Type:        mv.JournalType(),
			Category:    InvestmentCategory,
			Date:        mv.Date,
			Description: movementDescription(fund, mv.Type),
			Source:      storage.SourceInvestment,
			SourceID:    mv.ID,
		}
		if err := postEntry(tx, acc, entry); err != nil {
			return err
		}

		fund.Balance = fund.Balance.Add(mv.FundEffect())
		fund.LastQuotaValue = in.QuotaValue
		if err := tx.UpdateFund(fund); err != nil {
			return err
		}

		mv.AccountTransactionID = entry.ID
		if err := tx.CreateMovement(mv); err != nil {
			return err
		}
		movement = mv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return movement, nil
}

// EditContribution rewrites a movement. The stored effect is undone and the
// new one applied to the fund and to the origin account; when the origin
// changes the old entry is reversed in the old account and a new entry is
// posted in the new one. Everything commits together.
func (s *Service) EditContribution(ctx context.Context, uc UserContext, movementID string, edit ContributionEdit) (*storage.Movement, error) {
	if err := validateAmount(edit.Amount); err != nil {
		return nil, err
	}
	if err := validateQuota(edit.QuotaValue); err != nil {
		return nil, err
	}

	var movement *storage.Movement
	err := s.run(ctx, uc, "edit_contribution", func(tx *storage.Tx) error {
		mv, err := loadMovement(tx, movementID)
		if err != nil {
			return err
		}
		fund, err := loadFund(tx, mv.FundID)
		if err != nil {
			return err
		}
		if fund.DeletingAt != nil {
			return ErrFundDeleting
		}
		oldAcc, err := loadAccount(tx, mv.OriginAccountID)
		if err != nil {
			return err
		}
		targetID := firstNonEmpty(edit.OriginAccountID, mv.OriginAccountID)
		newAcc := oldAcc
		if targetID != oldAcc.ID {
			if newAcc, err = loadAccount(tx, targetID); err != nil {
				return err
			}
		}
		var oldEntry *storage.Transaction
		if mv.AccountTransactionID != "" {
			oldEntry, err = tx.Transaction(oldAcc.ID, mv.AccountTransactionID)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return err
			}
		}

		date := mv.Date
		if !edit.Date.IsZero() {
			date = edit.Date.UTC()
		}
		newEntry := storage.Transaction{
			Amount:      edit.Amount,
			Type:        mv.JournalType(),
			Category:    InvestmentCategory,
			Date:        date,
			Description: movementDescription(fund, mv.Type),
			Source:      storage.SourceInvestment,
			SourceID:    mv.ID,
		}

		var entryID string
		if oldEntry != nil && newAcc == oldAcc {
			// Same origin: rewrite the paired entry in place.
			delta := newEntry.SignedEffect().Sub(oldEntry.SignedEffect())
			newEntry.ID = oldEntry.ID
			if err := tx.SaveTransaction(&newEntry); err != nil {
				return err
			}
			if err := tx.UpdateAccountBalance(oldAcc, oldAcc.Balance.Add(delta)); err != nil {
				return err
			}
			entryID = oldEntry.ID
		} else {
			if oldEntry != nil {
				if err := reverseEntry(tx, oldAcc, oldEntry); err != nil {
					return err
				}
			}
			if err := postEntry(tx, newAcc, &newEntry); err != nil {
				return err
			}
			entryID = newEntry.ID
		}

		fund.Balance = fund.Balance.Sub(mv.FundEffect()).Add(signedFundEffect(mv.Type, edit.Amount))
		if edit.QuotaValue.Valid {
			fund.LastQuotaValue = edit.QuotaValue
		}
		if err := tx.UpdateFund(fund); err != nil {
			return err
		}

		mv.Amount = edit.Amount
		mv.Date = date
		mv.QuotaValue = edit.QuotaValue
		mv.Units = units(edit.Amount, edit.QuotaValue)
		mv.OriginAccountID = newAcc.ID
		mv.AccountTransactionID = entryID
		if err := tx.SaveMovement(mv); err != nil {
			return err
		}
		movement = mv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return movement, nil
}

// reverseMovement undoes one movement: its paired entry is reversed in acc
// using the entry's own stored amount, the fund gives back the movement's
// effect, and the movement is deleted. A nil acc or a missing paired entry
// leaves account balances untouched.
func reverseMovement(tx *storage.Tx, fund *storage.Fund, acc *storage.Account, mv *storage.Movement) error {
	if acc != nil && mv.AccountTransactionID != "" {
		entry, err := tx.Transaction(acc.ID, mv.AccountTransactionID)
		switch {
		case err == nil:
			if err := reverseEntry(tx, acc, entry); err != nil {
				return err
			}
		case !errors.Is(err, storage.ErrNotFound):
			return err
		}
	}

	fund.Balance = fund.Balance.Sub(mv.FundEffect())
	if err := tx.UpdateFund(fund); err != nil {
		return err
	}
	return tx.DeleteMovement(mv.ID)
}

// DeleteContribution reverses and removes a single movement.
func (s *Service) DeleteContribution(ctx context.Context, uc UserContext, movementID string) error {
	return s.run(ctx, uc, "delete_contribution", func(tx *storage.Tx) error {
		mv, err := loadMovement(tx, movementID)
		if err != nil {
			return err
		}
		fund, err := loadFund(tx, mv.FundID)
		if err != nil {
			return err
		}
		acc, err := loadAccount(tx, mv.OriginAccountID)
		if err != nil {
			return err
		}
		return reverseMovement(tx, fund, acc, mv)
	})
}

// DeleteFund removes a fund after reversing every movement. Each reversal
// commits on its own, so the cascade is not all-or-nothing: the fund is
// flagged as deleting first (blocking new contributions), and the movements
// still stored are the cursor of pending work. On failure a *CascadeError
// lists what remains and calling DeleteFund again resumes from there.
func (s *Service) DeleteFund(ctx context.Context, uc UserContext, fundID string) error {
	start := time.Now()
	err := s.deleteFund(ctx, uc, fundID)
	metrics.Observe("delete_fund", outcome(err), start)
	return err
}

func (s *Service) deleteFund(ctx context.Context, uc UserContext, fundID string) error {
	var pending []storage.Movement
	err := s.run(ctx, uc, "begin_fund_deletion", func(tx *storage.Tx) error {
		fund, err := loadFund(tx, fundID)
		if err != nil {
			return err
		}
		if fund.DeletingAt == nil {
			now := s.now().UTC()
			fund.DeletingAt = &now
			if err := tx.UpdateFund(fund); err != nil {
				return err
			}
		}
		pending, err = tx.MovementsFor(fundID)
		return err
	})
	if err != nil {
		return err
	}

	for i := range pending {
		if err := s.reverseFundMovement(ctx, uc, fundID, pending[i].ID); err != nil {
			remaining := make([]string, 0, len(pending)-i)
			for _, mv := range pending[i:] {
				remaining = append(remaining, mv.ID)
			}
			log.Printf("fund %s: cascade stopped at movement %s, remaining %s: %v",
				fundID, pending[i].ID, joinIDs(remaining), err)
			return &CascadeError{FundID: fundID, Reversed: i, Remaining: remaining, Err: err}
		}
		metrics.CascadeReversals.Inc()
		if s.afterReversal != nil {
			s.afterReversal(pending[i].ID)
		}
	}

	return s.run(ctx, uc, "finish_fund_deletion", func(tx *storage.Tx) error {
		if _, err := loadFund(tx, fundID); err != nil {
			return err
		}
		left, err := tx.MovementsFor(fundID)
		if err != nil {
			return err
		}
		if len(left) > 0 {
			ids := make([]string, 0, len(left))
			for _, mv := range left {
				ids = append(ids, mv.ID)
			}
			return &CascadeError{FundID: fundID, Reversed: len(pending), Remaining: ids,
				Err: errors.New("movements were added during deletion")}
		}
		return tx.DeleteFund(fundID)
	})
}

// reverseFundMovement is one durable cascade step. A movement already gone
// was reversed by an earlier attempt; an origin account that no longer
// exists only skips the account side.
func (s *Service) reverseFundMovement(ctx context.Context, uc UserContext, fundID, movementID string) error {
	return s.run(ctx, uc, "reverse_fund_movement", func(tx *storage.Tx) error {
		mv, err := tx.Movement(movementID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		fund, err := loadFund(tx, fundID)
		if err != nil {
			return err
		}
		acc, err := tx.Account(mv.OriginAccountID)
		if errors.Is(err, storage.ErrNotFound) {
			acc = nil
		} else if err != nil {
			return err
		}
		fund.ReversedMovements++
		return reverseMovement(tx, fund, acc, mv)
	})
}

// ReconcileFund recomputes a fund balance from its movements.
func (s *Service) ReconcileFund(ctx context.Context, uc UserContext, id string) (*Reconciliation, error) {
	var r *Reconciliation
	err := s.run(ctx, uc, "reconcile_fund", func(tx *storage.Tx) error {
		fund, err := loadFund(tx, id)
		if err != nil {
			return err
		}
		r, err = reconcileFund(tx, fund)
		return err
	})
	return r, err
}

func reconcileFund(tx *storage.Tx, fund *storage.Fund) (*Reconciliation, error) {
	movements, err := tx.MovementsFor(fund.ID)
	if err != nil {
		return nil, err
	}
	computed := decimal.Zero
	for i := range movements {
		computed = computed.Add(movements[i].FundEffect())
	}
	return &Reconciliation{
		ID:         fund.ID,
		Name:       fund.Name,
		Cached:     fund.Balance,
		Computed:   computed,
		Consistent: computed.Equal(fund.Balance),
	}, nil
}
