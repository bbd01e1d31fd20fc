package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionType string

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

type MovementType string

const (
	Buy  MovementType = "buy"
	Sell MovementType = "sell"
)

type AlertType string

const (
	Payable    AlertType = "payable"
	Receivable AlertType = "receivable"
)

// Source identifies which feature owns a journal entry.
type Source string

const (
	SourceManual     Source = "manual"
	SourceAlert      Source = "alert"
	SourceInvestment Source = "investment"
)

// Document is embedded by every stored record. ID is a uuid assigned on
// create when the caller leaves it empty.
type Document struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"index;size:64;not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// Account holds a cached running balance. Balance must equal InitialBalance
// plus the signed effect of every Transaction stored under it.
type Account struct {
	Document
	Name           string          `gorm:"size:128;not null" json:"name"`
	InitialBalance decimal.Decimal `gorm:"type:varchar(40);not null" json:"initial_balance"`
	Balance        decimal.Decimal `gorm:"type:varchar(40);not null" json:"balance"`
	Version        int64           `gorm:"not null" json:"version"`
}

// Transaction is a journal entry against one account.
type Transaction struct {
	Document
	AccountID   string          `gorm:"index;size:36;not null" json:"account_id"`
	Amount      decimal.Decimal `gorm:"type:varchar(40);not null" json:"amount"`
	Type        TransactionType `gorm:"size:16;not null" json:"type"`
	Category    string          `gorm:"size:64;not null" json:"category"`
	Date        time.Time       `gorm:"index;not null" json:"date"`
	Description string          `gorm:"size:255" json:"description,omitempty"`
	Source      Source          `gorm:"size:16;not null;default:manual" json:"source"`
	SourceID    string          `gorm:"index;size:36" json:"source_id,omitempty"`
}

// SignedEffect is the change this entry applies to its account balance.
func (t *Transaction) SignedEffect() decimal.Decimal {
	if t.Type == Income {
		return t.Amount
	}
	return t.Amount.Neg()
}

// Alert is a recurring bill. LastPaidMonth and TransactionID are set
// together when paid and cleared together when unpaid.
type Alert struct {
	Document
	Title         string          `gorm:"size:128;not null" json:"title"`
	Description   string          `gorm:"size:255" json:"description,omitempty"`
	DayOfMonth    int             `gorm:"not null" json:"day_of_month"`
	Category      string          `gorm:"size:64;not null" json:"category"`
	Amount        decimal.Decimal `gorm:"type:varchar(40);not null" json:"amount"`
	AccountID     string          `gorm:"index;size:36" json:"account_id,omitempty"`
	Type          AlertType       `gorm:"size:16;not null;default:payable" json:"type"`
	LastPaidMonth *string         `gorm:"size:7" json:"last_paid_month"`
	TransactionID *string         `gorm:"size:36" json:"transaction_id"`
}

// Fund is an investment fund. Balance is the net of its movements.
// DeletingAt is set once a cascade deletion has started.
type Fund struct {
	Document
	Name               string              `gorm:"size:128;not null" json:"name"`
	CustodianAccountID string              `gorm:"index;size:36;not null" json:"custodian_account_id"`
	Balance            decimal.Decimal     `gorm:"type:varchar(40);not null" json:"balance"`
	LastQuotaValue     decimal.NullDecimal `gorm:"type:varchar(40)" json:"last_quota_value"`
	DeletingAt         *time.Time          `json:"deleting_at,omitempty"`
	ReversedMovements  int                 `gorm:"not null" json:"reversed_movements"`
	Version            int64               `gorm:"not null" json:"version"`
}

// Movement is a fund buy or sell paired with a journal entry in the origin
// account through AccountTransactionID.
type Movement struct {
	Document
	FundID               string              `gorm:"index;size:36;not null" json:"fund_id"`
	OriginAccountID      string              `gorm:"index;size:36;not null" json:"origin_account_id"`
	Amount               decimal.Decimal     `gorm:"type:varchar(40);not null" json:"amount"`
	Type                 MovementType        `gorm:"size:8;not null" json:"type"`
	Date                 time.Time           `gorm:"index;not null" json:"date"`
	QuotaValue           decimal.NullDecimal `gorm:"type:varchar(40)" json:"quota_value"`
	Units                decimal.NullDecimal `gorm:"type:varchar(40)" json:"units"`
	AccountTransactionID string              `gorm:"size:36" json:"account_transaction_id"`
}

// FundEffect is the change this movement applies to its fund balance.
func (m *Movement) FundEffect() decimal.Decimal {
	if m.Type == Sell {
		return m.Amount.Neg()
	}
	return m.Amount
}

// JournalType is the journal entry type paired with this movement.
func (m *Movement) JournalType() TransactionType {
	if m.Type == Sell {
		return Income
	}
	return Expense
}

type Category struct {
	Document
	Name string `gorm:"size:64;not null" json:"name"`
}

func allModels() []interface{} {
	return []interface{}{
		&Account{},
		&Transaction{},
		&Alert{},
		&Fund{},
		&Movement{},
		&Category{},
	}
}
