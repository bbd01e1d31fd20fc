package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/NgigiN/finboard/internal/storage"
)

// TransactionInput carries the mutable fields of a journal entry.
type TransactionInput struct {
	Amount      decimal.Decimal
	Type        storage.TransactionType
	Category    string
	Date        time.Time // zero means now on post, unchanged on edit
	Description string
}

func (in *TransactionInput) validate() error {
	if err := validateAmount(in.Amount); err != nil {
		return err
	}
	if !in.Type.Valid() {
		return invalidf("transaction type must be income or expense, got %q", in.Type)
	}
	in.Category = strings.TrimSpace(in.Category)
	return required("category", in.Category)
}

// Posting is the result of a journal mutation: the entry and the account
// balance after commit.
type Posting struct {
	Transaction *storage.Transaction `json:"transaction,omitempty"`
	Balance     decimal.Decimal      `json:"balance"`
}

// Reconciliation compares a cached balance with one recomputed from history.
type Reconciliation struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Cached     decimal.Decimal `json:"cached"`
	Computed   decimal.Decimal `json:"computed"`
	Consistent bool            `json:"consistent"`
}

func loadAccount(tx *storage.Tx, id string) (*storage.Account, error) {
	a, err := tx.Account(id)
	if err != nil {
		return nil, notFound(err, ErrAccountNotFound, id)
	}
	return a, nil
}

func loadTransaction(tx *storage.Tx, accountID, id string) (*storage.Transaction, error) {
	t, err := tx.Transaction(accountID, id)
	if err != nil {
		return nil, notFound(err, ErrTransactionNotFound, id)
	}
	return t, nil
}

// postEntry writes entry to acc's journal and applies its signed effect.
func postEntry(tx *storage.Tx, acc *storage.Account, entry *storage.Transaction) error {
	entry.AccountID = acc.ID
	if err := tx.CreateTransaction(entry); err != nil {
		return err
	}
	return tx.UpdateAccountBalance(acc, acc.Balance.Add(entry.SignedEffect()))
}

// reverseEntry deletes entry and undoes its effect on acc.
func reverseEntry(tx *storage.Tx, acc *storage.Account, entry *storage.Transaction) error {
	if err := tx.DeleteTransaction(entry.ID); err != nil {
		return notFound(err, ErrTransactionNotFound, entry.ID)
	}
	return tx.UpdateAccountBalance(acc, acc.Balance.Sub(entry.SignedEffect()))
}

// CreateAccount opens an account whose balance starts at opening.
func (s *Service) CreateAccount(ctx context.Context, uc UserContext, name string, opening decimal.Decimal) (*storage.Account, error) {
	name = strings.TrimSpace(name)
	if err := required("account name", name); err != nil {
		return nil, err
	}
	if err := validateCents(opening); err != nil {
		return nil, err
	}

	var acc *storage.Account
	err := s.run(ctx, uc, "create_account", func(tx *storage.Tx) error {
		acc = &storage.Account{Name: name, InitialBalance: opening, Balance: opening}
		return tx.CreateAccount(acc)
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (s *Service) GetAccount(ctx context.Context, uc UserContext, id string) (*storage.Account, error) {
	var acc *storage.Account
	err := s.read(ctx, uc, func(tx *storage.Tx) error {
		var err error
		acc, err = loadAccount(tx, id)
		return err
	})
	return acc, err
}

func (s *Service) ListAccounts(ctx context.Context, uc UserContext) ([]storage.Account, error) {
	var list []storage.Account
	err := s.read(ctx, uc, func(tx *storage.Tx) error {
		var err error
		list, err = tx.Accounts()
		return err
	})
	return list, err
}

// ListTransactions returns an account's journal, newest first.
func (s *Service) ListTransactions(ctx context.Context, uc UserContext, accountID string) ([]storage.Transaction, error) {
	var list []storage.Transaction
	err := s.read(ctx, uc, func(tx *storage.Tx) error {
		if _, err := loadAccount(tx, accountID); err != nil {
			return err
		}
		var err error
		list, err = tx.TransactionsFor(accountID)
		return err
	})
	return list, err
}

// DeleteAccount removes an account together with its whole journal. Alerts
// paying from it lose their account link. Accounts that fund investments
// are refused.
func (s *Service) DeleteAccount(ctx context.Context, uc UserContext, id string) error {
	return s.run(ctx, uc, "delete_account", func(tx *storage.Tx) error {
		if _, err := loadAccount(tx, id); err != nil {
			return err
		}
		movements, err := tx.CountMovementsFrom(id)
		if err != nil {
			return err
		}
		funds, err := tx.CountFundsByCustodian(id)
		if err != nil {
			return err
		}
		if movements > 0 || funds > 0 {
			return ErrAccountInUse
		}
		if err := tx.DeleteTransactionsFor(id); err != nil {
			return err
		}
		if err := tx.UnlinkAlertsFrom(id); err != nil {
			return err
		}
		return tx.DeleteAccount(id)
	})
}

// PostTransaction appends a manual journal entry and applies its effect to
// the account balance.
func (s *Service) PostTransaction(ctx context.Context, uc UserContext, accountID string, in TransactionInput) (*Posting, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var p Posting
	err := s.run(ctx, uc, "post_transaction", func(tx *storage.Tx) error {
		acc, err := loadAccount(tx, accountID)
		if err != nil {
			return err
		}
		entry := &storage.Transaction{
			Amount:      in.Amount,
			Type:        in.Type,
			Category:    in.Category,
			Date:        s.dateOrNow(in.Date),
			Description: strings.TrimSpace(in.Description),
			Source:      storage.SourceManual,
		}
		if err := postEntry(tx, acc, entry); err != nil {
			return err
		}
		p = Posting{Transaction: entry, Balance: acc.Balance}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// EditTransaction overwrites a manual entry and moves the balance by the
// difference between the new and the stored effect, in one commit.
func (s *Service) EditTransaction(ctx context.Context, uc UserContext, accountID, transactionID string, in TransactionInput) (*Posting, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var p Posting
	err := s.run(ctx, uc, "edit_transaction", func(tx *storage.Tx) error {
		acc, err := loadAccount(tx, accountID)
		if err != nil {
			return err
		}
		entry, err := loadTransaction(tx, accountID, transactionID)
		if err != nil {
			return err
		}
		if entry.Source != storage.SourceManual {
			return ErrLinkedTransaction
		}

		oldEffect := entry.SignedEffect()
		entry.Amount = in.Amount
		entry.Type = in.Type
		entry.Category = in.Category
		entry.Description = strings.TrimSpace(in.Description)
		if !in.Date.IsZero() {
			entry.Date = in.Date.UTC()
		}
		netChange := entry.SignedEffect().Sub(oldEffect)

		if err := tx.SaveTransaction(entry); err != nil {
			return err
		}
		if err := tx.UpdateAccountBalance(acc, acc.Balance.Add(netChange)); err != nil {
			return err
		}
		p = Posting{Transaction: entry, Balance: acc.Balance}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteTransaction removes a manual entry and reverses its stored effect.
// It returns the balance after commit.
func (s *Service) DeleteTransaction(ctx context.Context, uc UserContext, accountID, transactionID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.run(ctx, uc, "delete_transaction", func(tx *storage.Tx) error {
		acc, err := loadAccount(tx, accountID)
		if err != nil {
			return err
		}
		entry, err := loadTransaction(tx, accountID, transactionID)
		if err != nil {
			return err
		}
		if entry.Source != storage.SourceManual {
			return ErrLinkedTransaction
		}
		if err := reverseEntry(tx, acc, entry); err != nil {
			return err
		}
		balance = acc.Balance
		return nil
	})
	return balance, err
}

// ReconcileAccount recomputes the balance from the opening balance and the
// journal and compares it with the cached value.
func (s *Service) ReconcileAccount(ctx context.Context, uc UserContext, id string) (*Reconciliation, error) {
	var r *Reconciliation
	err := s.run(ctx, uc, "reconcile_account", func(tx *storage.Tx) error {
		acc, err := loadAccount(tx, id)
		if err != nil {
			return err
		}
		r, err = reconcileAccount(tx, acc)
		return err
	})
	return r, err
}

func reconcileAccount(tx *storage.Tx, acc *storage.Account) (*Reconciliation, error) {
	entries, err := tx.TransactionsFor(acc.ID)
	if err != nil {
		return nil, err
	}
	computed := acc.InitialBalance
	for i := range entries {
		computed = computed.Add(entries[i].SignedEffect())
	}
	return &Reconciliation{
		ID:         acc.ID,
		Name:       acc.Name,
		Cached:     acc.Balance,
		Computed:   computed,
		Consistent: computed.Equal(acc.Balance),
	}, nil
}

// ReconcileAll checks every account and fund of the user in one snapshot.
func (s *Service) ReconcileAll(ctx context.Context, uc UserContext) (accounts, funds []Reconciliation, err error) {
	err = s.run(ctx, uc, "reconcile_all", func(tx *storage.Tx) error {
		accounts, funds = nil, nil
		accs, err := tx.Accounts()
		if err != nil {
			return err
		}
		for i := range accs {
			r, err := reconcileAccount(tx, &accs[i])
			if err != nil {
				return err
			}
			accounts = append(accounts, *r)
		}
		fs, err := tx.Funds()
		if err != nil {
			return err
		}
		for i := range fs {
			r, err := reconcileFund(tx, &fs[i])
			if err != nil {
				return err
			}
			funds = append(funds, *r)
		}
		return nil
	})
	return accounts, funds, err
}
