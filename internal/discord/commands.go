package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/NgigiN/finboard/internal/ledger"
	"github.com/NgigiN/finboard/internal/metrics"
	"github.com/NgigiN/finboard/internal/mpesa"
	"github.com/NgigiN/finboard/internal/storage"
)

const usage = "Commands:\n" +
	"!balance - account and fund balances\n" +
	"!summary [YYYY-MM] - monthly totals by category\n" +
	"!bills - bills due and not yet paid\n" +
	"!pay <bill> / !unpay <bill> - mark a bill paid or unpaid\n" +
	"Paste M-PESA confirmations (with optional `c: <category>` and `r: <reason>` lines) to record them."

// respond handles one chat message and returns the reply, or "" when the
// message needs none.
func (b *Bot) respond(ctx context.Context, content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}

	if strings.HasPrefix(content, "!") {
		fields := strings.Fields(content)
		arg := strings.TrimSpace(strings.TrimPrefix(content, fields[0]))
		metrics.BotMessages.WithLabelValues("command").Inc()

		switch strings.ToLower(fields[0]) {
		case "!balance":
			return b.handleBalance(ctx)
		case "!summary":
			return b.handleSummary(ctx, arg)
		case "!bills":
			return b.handleBills(ctx)
		case "!pay":
			return b.handlePay(ctx, arg, true)
		case "!unpay":
			return b.handlePay(ctx, arg, false)
		case "!help":
			return usage
		default:
			return fmt.Sprintf("Unknown command %s\n%s", fields[0], usage)
		}
	}

	messages := mpesa.Split(content)
	if len(messages) == 0 {
		return ""
	}
	metrics.BotMessages.WithLabelValues("mpesa").Inc()
	return b.importMessages(ctx, messages)
}

func (b *Bot) handleBalance(ctx context.Context) string {
	accounts, err := b.svc.ListAccounts(ctx, b.user)
	if err != nil {
		return fmt.Sprintf("Failed to load accounts: %v", err)
	}
	funds, err := b.svc.ListFunds(ctx, b.user)
	if err != nil {
		return fmt.Sprintf("Failed to load funds: %v", err)
	}
	return formatBalances(accounts, funds)
}

func (b *Bot) handleSummary(ctx context.Context, month string) string {
	sum, err := b.svc.Summary(ctx, b.user, month)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidInput) {
			return "Usage: !summary [YYYY-MM]"
		}
		return fmt.Sprintf("Failed to get summary: %v", err)
	}
	return formatSummary(sum)
}

func (b *Bot) handleBills(ctx context.Context) string {
	due, err := b.svc.DueAlerts(ctx, b.user)
	if err != nil {
		return fmt.Sprintf("Failed to load bills: %v", err)
	}
	if len(due) == 0 {
		return "No bills due. 🎉"
	}
	return formatBills(due)
}

func (b *Bot) handlePay(ctx context.Context, name string, paid bool) string {
	if name == "" {
		return "Usage: !pay <bill> or !unpay <bill>"
	}
	alert, err := b.findAlert(ctx, name)
	if err != nil {
		return err.Error()
	}

	if !paid {
		if _, err := b.svc.MarkAlertUnpaid(ctx, b.user, alert.ID); err != nil {
			return fmt.Sprintf("Failed to unmark %s: %v", alert.Title, err)
		}
		return fmt.Sprintf("↩️ %s marked as unpaid", alert.Title)
	}

	updated, err := b.svc.MarkAlertPaid(ctx, b.user, alert.ID, ledger.PayOptions{})
	switch {
	case errors.Is(err, ledger.ErrAlreadyPaid):
		return fmt.Sprintf("%s is already paid this month", alert.Title)
	case err != nil:
		return fmt.Sprintf("Failed to pay %s: %v", alert.Title, err)
	}
	return fmt.Sprintf("✅ %s paid: %s", updated.Title, money(updated.Amount))
}

// findAlert resolves a bill by id or by case-insensitive title.
func (b *Bot) findAlert(ctx context.Context, name string) (*storage.Alert, error) {
	alerts, err := b.svc.ListAlerts(ctx, b.user)
	if err != nil {
		return nil, fmt.Errorf("failed to load bills: %v", err)
	}
	for i := range alerts {
		if alerts[i].ID == name || strings.EqualFold(alerts[i].Title, name) {
			return &alerts[i], nil
		}
	}
	return nil, fmt.Errorf("no bill named %q", name)
}

// importMessages records each confirmation as an expense on the default
// account. Failures are reported per message and do not stop the batch.
func (b *Bot) importMessages(ctx context.Context, messages []mpesa.Message) string {
	accountID := b.svc.DefaultAccount()
	if accountID == "" {
		return "No default account configured; set ledger.default_account to import M-PESA messages"
	}

	var (
		imported []string
		failures []string
	)
	for i, msg := range messages {
		line, err := b.importMessage(ctx, accountID, msg)
		if err != nil {
			failures = append(failures, fmt.Sprintf("Transaction %d: %v", i+1, err))
			continue
		}
		imported = append(imported, line)
	}

	if len(messages) == 1 && len(failures) == 0 {
		return imported[0]
	}

	var sb strings.Builder
	if len(messages) == 1 {
		sb.WriteString("Invalid M-PESA message\n")
	} else {
		sb.WriteString("📊 **Batch Processing Complete**\n")
		fmt.Fprintf(&sb, "✅ **Successfully processed**: %d transactions\n", len(imported))
	}
	if len(failures) > 0 {
		if len(messages) > 1 {
			fmt.Fprintf(&sb, "❌ **Failed**: %d transactions\n", len(failures))
		}
		for _, f := range failures {
			fmt.Fprintf(&sb, "• %s\n", f)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) importMessage(ctx context.Context, accountID string, msg mpesa.Message) (string, error) {
	parsed, err := mpesa.ParseMPesaMessage(msg.Text, b.loc)
	if err != nil {
		return "", err
	}

	category, reason := mpesa.ParseMetadata(msg.Metadata)
	if category == "" {
		category = "Outros"
	}
	canonical, ok, err := b.svc.MatchCategory(ctx, b.user, category)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("invalid category '%s'", category)
	}

	p, err := b.svc.PostTransaction(ctx, b.user, accountID, ledger.TransactionInput{
		Amount:      parsed.Total(),
		Type:        storage.Expense,
		Category:    canonical,
		Date:        parsed.DateTime,
		Description: parsed.Description(reason),
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Tracked %s: Ksh%s to %s in %s (balance %s)",
		parsed.TransactionID, parsed.Total().StringFixed(2), parsed.Recipient, canonical, money(p.Balance)), nil
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func formatBalances(accounts []storage.Account, funds []storage.Fund) string {
	if len(accounts) == 0 && len(funds) == 0 {
		return "No accounts yet."
	}
	var sb strings.Builder
	sb.WriteString("💰 **Balances**\n\n")
	total := decimal.Zero
	for _, a := range accounts {
		fmt.Fprintf(&sb, "**%s**: %s\n", a.Name, money(a.Balance))
		total = total.Add(a.Balance)
	}
	invested := decimal.Zero
	if len(funds) > 0 {
		sb.WriteString("\n📈 **Funds**\n")
		for _, f := range funds {
			fmt.Fprintf(&sb, "**%s**: %s\n", f.Name, money(f.Balance))
			invested = invested.Add(f.Balance)
		}
	}
	fmt.Fprintf(&sb, "\n**Total**: %s", money(total))
	if len(funds) > 0 {
		fmt.Fprintf(&sb, "\n**Invested**: %s", money(invested))
	}
	return sb.String()
}

func formatSummary(sum *ledger.Summary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 **Summary %s**\n\n", sum.Month)
	fmt.Fprintf(&sb, "Income: %s\nExpense: %s\nNet: %s\n", money(sum.Income), money(sum.Expense), money(sum.Net))
	if len(sum.ByCategory) > 0 {
		sb.WriteString("\n")
		for _, c := range sum.ByCategory {
			if c.Expense.IsZero() {
				continue
			}
			fmt.Fprintf(&sb, "**%s**: %s\n", c.Category, money(c.Expense))
		}
	}
	fmt.Fprintf(&sb, "\n**Total balance**: %s\n**Invested**: %s", money(sum.TotalBalance), money(sum.TotalInvested))
	return sb.String()
}

func formatBills(due []storage.Alert) string {
	var sb strings.Builder
	sb.WriteString("**Bills due**\n")
	for _, a := range due {
		amount := "amount not set"
		if a.Amount.IsPositive() {
			amount = money(a.Amount)
		}
		fmt.Fprintf(&sb, "• %s (day %d): %s\n", a.Title, a.DayOfMonth, amount)
	}
	return strings.TrimRight(sb.String(), "\n")
}
