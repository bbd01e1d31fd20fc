package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Accounts ───────────────────────────────────────────────────────────────

func (t *Tx) Account(id string) (*Account, error) {
	var a Account
	if err := t.first(&a, id); err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *Tx) Accounts() ([]Account, error) {
	var accounts []Account
	if err := t.scoped().Order("created_at ASC, id ASC").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (t *Tx) CreateAccount(a *Account) error {
	a.UserID = t.userID
	return t.create(a)
}

// UpdateAccountBalance sets the balance of a previously read account. It
// fails with ErrConflict if the account changed since it was read.
func (t *Tx) UpdateAccountBalance(a *Account, balance decimal.Decimal) error {
	if err := t.compareAndSet(&Account{}, a.ID, a.Version, map[string]interface{}{
		"balance": balance,
	}); err != nil {
		return err
	}
	a.Balance = balance
	a.Version++
	return nil
}

func (t *Tx) DeleteAccount(id string) error {
	return t.deleteByID(&Account{}, id)
}

// ─── Transactions ───────────────────────────────────────────────────────────

func (t *Tx) Transaction(accountID, id string) (*Transaction, error) {
	var tr Transaction
	if err := t.scoped().Where("account_id = ? AND id = ?", accountID, id).First(&tr).Error; err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tr, nil
}

// TransactionsFor lists an account's journal, newest first.
func (t *Tx) TransactionsFor(accountID string) ([]Transaction, error) {
	var list []Transaction
	err := t.scoped().Where("account_id = ?", accountID).
		Order("date DESC, created_at DESC").
		Find(&list).Error
	return list, err
}

// TransactionsBetween lists every journal entry dated in [from, to).
func (t *Tx) TransactionsBetween(from, to time.Time) ([]Transaction, error) {
	var list []Transaction
	err := t.scoped().Where("date >= ? AND date < ?", from, to).
		Order("date ASC").
		Find(&list).Error
	return list, err
}

func (t *Tx) CreateTransaction(tr *Transaction) error {
	tr.UserID = t.userID
	if tr.Source == "" {
		tr.Source = SourceManual
	}
	return t.create(tr)
}

// SaveTransaction overwrites the mutable fields of an existing entry.
func (t *Tx) SaveTransaction(tr *Transaction) error {
	res := t.scoped().Model(&Transaction{}).Where("id = ?", tr.ID).Updates(map[string]interface{}{
		"amount":      tr.Amount,
		"type":        tr.Type,
		"category":    tr.Category,
		"date":        tr.Date,
		"description": tr.Description,
		"source":      tr.Source,
		"source_id":   tr.SourceID,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *Tx) DeleteTransaction(id string) error {
	return t.deleteByID(&Transaction{}, id)
}

func (t *Tx) DeleteTransactionsFor(accountID string) error {
	return t.scoped().Where("account_id = ?", accountID).Delete(&Transaction{}).Error
}

// DetachTransactions turns entries owned by sourceID into manual entries.
func (t *Tx) DetachTransactions(sourceID string) error {
	return t.scoped().Model(&Transaction{}).Where("source_id = ?", sourceID).
		Updates(map[string]interface{}{"source": SourceManual, "source_id": ""}).Error
}

// ─── Alerts ─────────────────────────────────────────────────────────────────

func (t *Tx) Alert(id string) (*Alert, error) {
	var a Alert
	if err := t.first(&a, id); err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *Tx) Alerts() ([]Alert, error) {
	var alerts []Alert
	err := t.scoped().Order("day_of_month ASC, title ASC").Find(&alerts).Error
	return alerts, err
}

func (t *Tx) CreateAlert(a *Alert) error {
	a.UserID = t.userID
	return t.create(a)
}

func (t *Tx) SaveAlert(a *Alert) error {
	return t.db.Save(a).Error
}

func (t *Tx) DeleteAlert(id string) error {
	return t.deleteByID(&Alert{}, id)
}

// UnlinkAlertsFrom clears the account reference of alerts paying from accountID.
func (t *Tx) UnlinkAlertsFrom(accountID string) error {
	return t.scoped().Model(&Alert{}).Where("account_id = ?", accountID).
		Updates(map[string]interface{}{"account_id": "", "transaction_id": nil}).Error
}

// ─── Funds ──────────────────────────────────────────────────────────────────

func (t *Tx) Fund(id string) (*Fund, error) {
	var f Fund
	if err := t.first(&f, id); err != nil {
		return nil, err
	}
	return &f, nil
}

func (t *Tx) Funds() ([]Fund, error) {
	var funds []Fund
	err := t.scoped().Order("created_at ASC, id ASC").Find(&funds).Error
	return funds, err
}

func (t *Tx) CreateFund(f *Fund) error {
	f.UserID = t.userID
	return t.create(f)
}

// UpdateFund writes the balance, quota and cascade fields of a previously
// read fund, failing with ErrConflict if it changed since.
func (t *Tx) UpdateFund(f *Fund) error {
	if err := t.compareAndSet(&Fund{}, f.ID, f.Version, map[string]interface{}{
		"balance":            f.Balance,
		"last_quota_value":   f.LastQuotaValue,
		"deleting_at":        f.DeletingAt,
		"reversed_movements": f.ReversedMovements,
	}); err != nil {
		return err
	}
	f.Version++
	return nil
}

func (t *Tx) DeleteFund(id string) error {
	return t.deleteByID(&Fund{}, id)
}

func (t *Tx) CountFundsByCustodian(accountID string) (int64, error) {
	var n int64
	err := t.scoped().Model(&Fund{}).Where("custodian_account_id = ?", accountID).Count(&n).Error
	return n, err
}

// ─── Movements ──────────────────────────────────────────────────────────────

func (t *Tx) Movement(id string) (*Movement, error) {
	var m Movement
	if err := t.first(&m, id); err != nil {
		return nil, err
	}
	return &m, nil
}

// MovementsFor lists a fund's movements in date order.
func (t *Tx) MovementsFor(fundID string) ([]Movement, error) {
	var list []Movement
	err := t.scoped().Where("fund_id = ?", fundID).
		Order("date ASC, created_at ASC, id ASC").
		Find(&list).Error
	return list, err
}

func (t *Tx) CountMovementsFrom(accountID string) (int64, error) {
	var n int64
	err := t.scoped().Model(&Movement{}).Where("origin_account_id = ?", accountID).Count(&n).Error
	return n, err
}

func (t *Tx) CreateMovement(m *Movement) error {
	m.UserID = t.userID
	return t.create(m)
}

func (t *Tx) SaveMovement(m *Movement) error {
	return t.db.Save(m).Error
}

func (t *Tx) DeleteMovement(id string) error {
	return t.deleteByID(&Movement{}, id)
}

// ─── Categories ─────────────────────────────────────────────────────────────

func (t *Tx) Categories() ([]Category, error) {
	var list []Category
	err := t.scoped().Order("name ASC").Find(&list).Error
	return list, err
}

func (t *Tx) CreateCategory(c *Category) error {
	c.UserID = t.userID
	return t.create(c)
}

func (t *Tx) DeleteCategory(id string) error {
	return t.deleteByID(&Category{}, id)
}
