package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/NgigiN/finboard/internal/storage"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrAccountNotFound     = fmt.Errorf("account %w", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)
	ErrAlertNotFound       = fmt.Errorf("alert %w", ErrNotFound)
	ErrFundNotFound        = fmt.Errorf("fund %w", ErrNotFound)
	ErrMovementNotFound    = fmt.Errorf("movement %w", ErrNotFound)
	ErrCategoryNotFound    = fmt.Errorf("category %w", ErrNotFound)

	ErrInvalidInput = errors.New("invalid input")

	ErrAlreadyPaid            = errors.New("alert already paid for this month")
	ErrLinkedTransaction      = errors.New("transaction is managed by an alert or investment")
	ErrAccountInUse           = errors.New("account is referenced by investments")
	ErrFundDeleting           = errors.New("fund is being deleted")
	ErrCategoryExists         = errors.New("category already exists")
	ErrConflictRetryExhausted = errors.New("concurrent modification retry budget exhausted")
)

// CascadeError reports a fund deletion that stopped partway. Remaining holds
// the ids of movements not yet reversed; calling DeleteFund again resumes.
type CascadeError struct {
	FundID    string
	Reversed  int
	Remaining []string
	Err       error
}

func (e *CascadeError) Error() string {
	return fmt.Sprintf("fund %s deletion stopped after %d reversals (%d movements remain): %v",
		e.FundID, e.Reversed, len(e.Remaining), e.Err)
}

func (e *CascadeError) Unwrap() error { return e.Err }

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// notFound converts a store miss into the domain error for the document kind.
func notFound(err error, kind error, id string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", kind, id)
	}
	return err
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrRetriesExhausted) {
		return fmt.Errorf("%w: %v", ErrConflictRetryExhausted, err)
	}
	return err
}

// outcome is the metrics label for an operation result.
func outcome(err error) string {
	var cascade *CascadeError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &cascade):
		return "partial"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrLinkedTransaction):
		return "invalid"
	case errors.Is(err, ErrConflictRetryExhausted):
		return "conflict"
	case errors.Is(err, ErrAlreadyPaid), errors.Is(err, ErrAccountInUse),
		errors.Is(err, ErrFundDeleting), errors.Is(err, ErrCategoryExists):
		return "rejected"
	default:
		return "error"
	}
}

func joinIDs(ids []string) string {
	return strings.Join(ids, ",")
}
