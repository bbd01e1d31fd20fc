package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/NgigiN/finboard/internal/storage"
)

func (f *fixture) fund(t *testing.T, name, custodianID string) *storage.Fund {
	t.Helper()
	fund, err := f.svc.CreateFund(f.ctx, testUser, name, custodianID)
	if err != nil {
		t.Fatalf("CreateFund: %v", err)
	}
	return fund
}

func (f *fixture) contribute(t *testing.T, fundID, accountID, amount string) *storage.Movement {
	t.Helper()
	mv, err := f.svc.Contribute(f.ctx, testUser, ContributionInput{
		FundID:          fundID,
		OriginAccountID: accountID,
		Amount:          dec(amount),
	})
	if err != nil {
		t.Fatalf("Contribute: %v", err)
	}
	return mv
}

func TestContributeDebitsOriginAndCreditsFund(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "Conta", "1000")
	fund := f.fund(t, "Tesouro Selic", acc.ID)

	mv, err := f.svc.Contribute(f.ctx, testUser, ContributionInput{
		FundID:          fund.ID,
		OriginAccountID: acc.ID,
		Amount:          dec("250"),
		QuotaValue:      decimal.NewNullDecimal(dec("12.5")),
	})
	if err != nil {
		t.Fatalf("Contribute: %v", err)
	}
	if mv.Type != storage.Buy || !mv.Units.Valid || !mv.Units.Decimal.Equal(dec("20")) {
		t.Errorf("unexpected movement %+v", mv)
	}

	wantBalance(t, "account", f.balance(t, acc.ID), "750")
	wantBalance(t, "fund", f.fundBalance(t, fund.ID), "250")

	entries, _ := f.svc.ListTransactions(f.ctx, testUser, acc.ID)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.ID != mv.AccountTransactionID || e.Category != InvestmentCategory ||
		e.Source != storage.SourceInvestment || e.SourceID != mv.ID || e.Description != "Aporte em Tesouro Selic" {
		t.Errorf("unexpected paired entry %+v", e)
	}

	got, _ := f.svc.GetFund(f.ctx, testUser, fund.ID)
	if !got.LastQuotaValue.Valid || !got.LastQuotaValue.Decimal.Equal(dec("12.5")) {
		t.Errorf("last quota = %v, want 12.5", got.LastQuotaValue)
	}
	f.assertConsistent(t)
}

func TestContributeMayOverdraw(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "Conta", "10")
	fund := f.fund(t, "CDB", acc.ID)
	f.contribute(t, fund.ID, acc.ID, "30")
	wantBalance(t, "account", f.balance(t, acc.ID), "-20")
}

func TestEditContributionAcrossAccounts(t *testing.T) {
	f := newFixture(t)
	x := f.account(t, "X", "1000")
	y := f.account(t, "Y", "1000")
	fund := f.fund(t, "Ações", x.ID)
	mv := f.contribute(t, fund.ID, x.ID, "200")

	edited, err := f.svc.EditContribution(f.ctx, testUser, mv.ID, ContributionEdit{
		OriginAccountID: y.ID,
		Amount:          dec("150"),
	})
	if err != nil {
		t.Fatalf("EditContribution: %v", err)
	}

	wantBalance(t, "X", f.balance(t, x.ID), "1000")
	wantBalance(t, "Y", f.balance(t, y.ID), "850")
	wantBalance(t, "fund", f.fundBalance(t, fund.ID), "150")

	if edited.OriginAccountID != y.ID || !edited.Amount.Equal(dec("150")) {
		t.Errorf("movement not updated: %+v", edited)
	}
	xEntries, _ := f.svc.ListTransactions(f.ctx, testUser, x.ID)
	yEntries, _ := f.svc.ListTransactions(f.ctx, testUser, y.ID)
	if len(xEntries) != 0 || len(yEntries) != 1 {
		t.Fatalf("entries X=%d Y=%d, want 0 and 1", len(xEntries), len(yEntries))
	}
	if yEntries[0].ID != edited.AccountTransactionID || !yEntries[0].Amount.Equal(dec("150")) {
		t.Errorf("unexpected Y entry %+v", yEntries[0])
	}
	f.assertConsistent(t)
}

func TestEditContributionSameAccount(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "Conta", "1000")
	fund := f.fund(t, "FII", acc.ID)
	mv := f.contribute(t, fund.ID, acc.ID, "200")

	date := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	edited, err := f.svc.EditContribution(f.ctx, testUser, mv.ID, ContributionEdit{
		Amount: dec("320"),
		Date:   date,
	})
	if err != nil {
		t.Fatalf("EditContribution: %v", err)
	}

	wantBalance(t, "account", f.balance(t, acc.ID), "680")
	wantBalance(t, "fund", f.fundBalance(t, fund.ID), "320")
	if edited.AccountTransactionID != mv.AccountTransactionID {
		t.Errorf("paired entry replaced: %s -> %s", mv.AccountTransactionID, edited.AccountTransactionID)
	}
	entries, _ := f.svc.ListTransactions(f.ctx, testUser, acc.ID)
	if len(entries) != 1 || !entries[0].Amount.Equal(dec("320")) || !entries[0].Date.Equal(date) {
		t.Errorf("entry not rewritten: %+v", entries)
	}
	f.assertConsistent(t)
}

func TestEditContributionKeepsQuotaWhenOmitted(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "Conta", "1000")
	fund := f.fund(t, "FII", acc.ID)
	if _, err := f.svc.Contribute(f.ctx, testUser, ContributionInput{
		FundID: fund.ID, OriginAccountID: acc.ID, Amount: dec("100"),
		QuotaValue: decimal.NewNullDecimal(dec("10")),
	}); err != nil {
		t.Fatal(err)
	}
	list, _ := f.svc.ListMovements(f.ctx, testUser, fund.ID)
	if _, err := f.svc.EditContribution(f.ctx, testUser, list[0].ID, ContributionEdit{Amount: dec("50")}); err != nil {
		t.Fatal(err)
	}
	got, _ := f.svc.GetFund(f.ctx, testUser, fund.ID)
	if !got.LastQuotaValue.Valid || !got.LastQuotaValue.Decimal.Equal(dec("10")) {
		t.Errorf("last quota = %v, want 10", got.LastQuotaValue)
	}
}

func TestDeleteContribution(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "Conta", "500")
	fund := f.fund(t, "CDB", acc.ID)
	mv := f.contribute(t, fund.ID, acc.ID, "120")

	if err := f.svc.DeleteContribution(f.ctx, testUser, mv.ID); err != nil {
		t.Fatalf("DeleteContribution: %v", err)
	}
	wantBalance(t, "account", f.balance(t, acc.ID), "500")
	wantBalance(t, "fund", f.fundBalance(t, fund.ID), "0")
	if err := f.svc.DeleteContribution(f.ctx, testUser, mv.ID); !errors.Is(err, ErrMovementNotFound) {
		t.Errorf("second delete err = %v, want ErrMovementNotFound", err)
	}
	f.assertConsistent(t)
}

func TestDeleteContributionWithMissingPairedEntry(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "Conta", "500")
	fund := f.fund(t, "CDB", acc.ID)
	mv := f.contribute(t, fund.ID, acc.ID, "120")

	// the paired entry disappears out of band; the account keeps its debit
	err := f.db.RunInTransaction(f.ctx, testUser.UserID, func(tx *storage.Tx) error {
		return tx.DeleteTransaction(mv.AccountTransactionID)
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := f.svc.DeleteContribution(f.ctx, testUser, mv.ID); err != nil {
		t.Fatalf("DeleteContribution: %v", err)
	}
	wantBalance(t, "account", f.balance(t, acc.ID), "380")
	wantBalance(t, "fund", f.fundBalance(t, fund.ID), "0")
	list, _ := f.svc.ListMovements(f.ctx, testUser, fund.ID)
	if len(list) != 0 {
		t.Errorf("movement not removed")
	}
}

func TestDeleteSellMovementReversesIncome(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "Conta", "1000")
	fund := f.fund(t, "Ações", acc.ID)
	f.contribute(t, fund.ID, acc.ID, "400")

	// no operation creates sells yet; write one directly
	var sell storage.Movement
	err := f.db.RunInTransaction(f.ctx, testUser.UserID, func(tx *storage.Tx) error {
		a, err := tx.Account(acc.ID)
		if err != nil {
			return err
		}
		fd, err := tx.Fund(fund.ID)
		if err != nil {
			return err
		}
		sell = storage.Movement{FundID: fd.ID, OriginAccountID: a.ID, Amount: dec("150"), Type: storage.Sell, Date: testNow}
		sell.ID = "sell-1"
		entry := &storage.Transaction{
			Amount: sell.Amount, Type: sell.JournalType(), Category: InvestmentCategory,
			Date: testNow, Source: storage.SourceInvestment, SourceID: sell.ID,
		}
		if err := postEntry(tx, a, entry); err != nil {
			return err
		}
		fd.Balance = fd.Balance.Add(sell.FundEffect())
		if err := tx.UpdateFund(fd); err != nil {
			return err
		}
		sell.AccountTransactionID = entry.ID
		return tx.CreateMovement(&sell)
	})
	if err != nil {
		t.Fatal(err)
	}
	wantBalance(t, "account after sell", f.balance(t, acc.ID), "750")
	wantBalance(t, "fund after sell", f.fundBalance(t, fund.ID), "250")
	f.assertConsistent(t)

	if err := f.svc.DeleteContribution(f.ctx, testUser, sell.ID); err != nil {
		t.Fatalf("DeleteContribution: %v", err)
	}
	wantBalance(t, "account", f.balance(t, acc.ID), "600")
	wantBalance(t, "fund", f.fundBalance(t, fund.ID), "400")
	f.assertConsistent(t)
}

func TestDeleteFundCascade(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, "A", "1000")
	b := f.account(t, "B", "1000")
	fund := f.fund(t, "Multimercado", a.ID)
	f.contribute(t, fund.ID, a.ID, "300")
	f.contribute(t, fund.ID, b.ID, "200")
	wantBalance(t, "fund before", f.fundBalance(t, fund.ID), "500")

	if err := f.svc.DeleteFund(f.ctx, testUser, fund.ID); err != nil {
		t.Fatalf("DeleteFund: %v", err)
	}

	wantBalance(t, "A", f.balance(t, a.ID), "1000")
	wantBalance(t, "B", f.balance(t, b.ID), "1000")
	if _, err := f.svc.GetFund(f.ctx, testUser, fund.ID); !errors.Is(err, ErrFundNotFound) {
		t.Errorf("fund still present: %v", err)
	}
	movements, err := f.db.Conn(f.ctx, testUser.UserID).MovementsFor(fund.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(movements) != 0 {
		t.Errorf("%d movements left behind", len(movements))
	}
	for _, id := range []string{a.ID, b.ID} {
		entries, _ := f.svc.ListTransactions(f.ctx, testUser, id)
		if len(entries) != 0 {
			t.Errorf("account %s keeps %d entries", id, len(entries))
		}
	}
	f.assertConsistent(t)
}

func TestDeleteFundToleratesMissingOriginAccount(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, "A", "100")
	fund := f.fund(t, "CDB", a.ID)
	mv := f.contribute(t, fund.ID, a.ID, "40")

	// remove the origin account behind the ledger's back
	err := f.db.RunInTransaction(f.ctx, testUser.UserID, func(tx *storage.Tx) error {
		if err := tx.DeleteTransaction(mv.AccountTransactionID); err != nil {
			return err
		}
		return tx.DeleteAccount(a.ID)
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := f.svc.DeleteFund(f.ctx, testUser, fund.ID); err != nil {
		t.Fatalf("DeleteFund: %v", err)
	}
	if _, err := f.svc.GetFund(f.ctx, testUser, fund.ID); !errors.Is(err, ErrFundNotFound) {
		t.Errorf("fund still present: %v", err)
	}
}

func TestDeletingFundRejectsWritesAndResumes(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "Conta", "1000")
	fund := f.fund(t, "CDB", acc.ID)
	first := f.contribute(t, fund.ID, acc.ID, "100")
	f.contribute(t, fund.ID, acc.ID, "50")

	// leave the fund as an interrupted deletion would: flagged, with the
	// first movement already reversed
	err := f.db.RunInTransaction(f.ctx, testUser.UserID, func(tx *storage.Tx) error {
		fd, err := tx.Fund(fund.ID)
		if err != nil {
			return err
		}
		a, err := tx.Account(acc.ID)
		if err != nil {
			return err
		}
		mv, err := tx.Movement(first.ID)
		if err != nil {
			return err
		}
		flagged := testNow
		fd.DeletingAt = &flagged
		fd.ReversedMovements = 1
		return reverseMovement(tx, fd, a, mv)
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.svc.Contribute(f.ctx, testUser, ContributionInput{FundID: fund.ID, OriginAccountID: acc.ID, Amount: dec("10")})
	if !errors.Is(err, ErrFundDeleting) {
		t.Fatalf("Contribute err = %v, want ErrFundDeleting", err)
	}
	list, _ := f.svc.ListMovements(f.ctx, testUser, fund.ID)
	if len(list) != 1 {
		t.Fatalf("expected one pending movement, got %d", len(list))
	}
	if _, err := f.svc.EditContribution(f.ctx, testUser, list[0].ID, ContributionEdit{Amount: dec("5")}); !errors.Is(err, ErrFundDeleting) {
		t.Fatalf("EditContribution err = %v, want ErrFundDeleting", err)
	}

	if err := f.svc.DeleteFund(f.ctx, testUser, fund.ID); err != nil {
		t.Fatalf("resumed DeleteFund: %v", err)
	}
	wantBalance(t, "account", f.balance(t, acc.ID), "1000")
	f.assertConsistent(t)
}

func TestDeleteFundStopsAndResumes(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "Conta", "1000")
	fund := f.fund(t, "CDB", acc.ID)
	first := f.contribute(t, fund.ID, acc.ID, "100")
	second := f.contribute(t, fund.ID, acc.ID, "50")

	ctx, cancel := context.WithCancel(f.ctx)
	defer cancel()
	f.svc.afterReversal = func(string) { cancel() }

	err := f.svc.DeleteFund(ctx, testUser, fund.ID)
	var ce *CascadeError
	if !errors.As(err, &ce) {
		t.Fatalf("DeleteFund err = %v, want *CascadeError", err)
	}
	if ce.FundID != fund.ID || ce.Reversed != 1 || len(ce.Remaining) != 1 || ce.Remaining[0] != second.ID {
		t.Errorf("unexpected cascade error %+v", ce)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cause = %v, want context.Canceled", ce.Err)
	}

	list, _ := f.svc.ListMovements(f.ctx, testUser, fund.ID)
	if len(list) != 1 || list[0].ID != second.ID {
		t.Fatalf("movements after partial cascade = %+v", list)
	}
	if _, err := f.svc.GetFund(f.ctx, testUser, fund.ID); err != nil {
		t.Fatalf("fund gone after partial cascade: %v", err)
	}
	wantBalance(t, "account after first step", f.balance(t, acc.ID), "950")
	wantBalance(t, "fund after first step", f.fundBalance(t, fund.ID), "50")
	if _, err := f.db.Conn(f.ctx, testUser.UserID).Movement(first.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("first movement not reversed: %v", err)
	}
	f.assertConsistent(t)

	f.svc.afterReversal = nil
	if err := f.svc.DeleteFund(f.ctx, testUser, fund.ID); err != nil {
		t.Fatalf("resumed DeleteFund: %v", err)
	}
	if _, err := f.svc.GetFund(f.ctx, testUser, fund.ID); !errors.Is(err, ErrFundNotFound) {
		t.Errorf("fund still present: %v", err)
	}
	wantBalance(t, "account", f.balance(t, acc.ID), "1000")
	f.assertConsistent(t)
}

func TestCascadeErrorUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	var err error = &CascadeError{FundID: "f1", Reversed: 2, Remaining: []string{"m3", "m4"}, Err: cause}

	var ce *CascadeError
	if !errors.As(err, &ce) || len(ce.Remaining) != 2 {
		t.Fatalf("errors.As failed for %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("cause is not reachable through Unwrap")
	}
	if !strings.Contains(err.Error(), "2 movements remain") {
		t.Errorf("message %q does not report remaining movements", err.Error())
	}
}

func TestContributeValidation(t *testing.T) {
	f := newFixture(t)
	acc := f.account(t, "Conta", "100")
	fund := f.fund(t, "CDB", acc.ID)

	tests := []struct {
		name string
		in   ContributionInput
		want error
	}{
		{"zero amount", ContributionInput{FundID: fund.ID, OriginAccountID: acc.ID, Amount: dec("0")}, ErrInvalidInput},
		{"negative quota", ContributionInput{FundID: fund.ID, OriginAccountID: acc.ID, Amount: dec("1"),
			QuotaValue: decimal.NewNullDecimal(dec("-2"))}, ErrInvalidInput},
		{"no origin", ContributionInput{FundID: fund.ID, Amount: dec("1")}, ErrInvalidInput},
		{"unknown fund", ContributionInput{FundID: "nope", OriginAccountID: acc.ID, Amount: dec("1")}, ErrFundNotFound},
		{"unknown origin", ContributionInput{FundID: fund.ID, OriginAccountID: "nope", Amount: dec("1")}, ErrAccountNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Contribute(f.ctx, testUser, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	wantBalance(t, "account", f.balance(t, acc.ID), "100")
}
