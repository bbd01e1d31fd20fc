package mpesa

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNotMPesa = errors.New("not a valid outgoing M-PESA message")

// Tolerates the variants seen in real messages: optional periods, "for
// account ..." inside the recipient, M-PESA or business balance, no space
// before AM/PM or before "New", and trailing promotional text.
var (
	money        = `Ksh[\d,]+(?:\.\d+)?`
	confirmation = regexp.MustCompile(`(?i)(\w+)\s+Confirmed\.?\s+(` + money + `)\s+(sent|paid)\s+to\s+(.*?)\s*\.?\s+on\s+(\d{1,2}/\d{1,2}/\d{2})\s+at\s+(\d{1,2}:\d{2}\s?(AM|PM))\.?\s*New\s+(?:M-PESA|business)\s+balance\s+is\s+(` + money + `)\.\s*Transaction\s+cost,?\s*(` + money + `)(?:\.|\b)`)
)

type ParsedTransaction struct {
	TransactionID string
	Amount        decimal.Decimal
	Recipient     string
	DateTime      time.Time
	Balance       decimal.Decimal
	Cost          decimal.Decimal
}

// Total is what left the wallet: the amount plus the transaction cost.
func (p *ParsedTransaction) Total() decimal.Decimal {
	return p.Amount.Add(p.Cost)
}

func (p *ParsedTransaction) Description(reason string) string {
	desc := fmt.Sprintf("M-PESA %s to %s", p.TransactionID, p.Recipient)
	if reason != "" {
		desc += ": " + reason
	}
	return desc
}

// ParseMPesaMessage parses an outgoing confirmation. The timestamp is read in
// loc, or UTC when loc is nil.
func ParseMPesaMessage(msg string, loc *time.Location) (*ParsedTransaction, error) {
	matches := confirmation.FindStringSubmatch(msg)
	if len(matches) < 10 {
		return nil, ErrNotMPesa
	}
	if loc == nil {
		loc = time.UTC
	}

	amount, err := parseKsh(matches[2])
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}

	recipient := strings.TrimSpace(strings.TrimSuffix(matches[4], "."))
	recipient = strings.Join(strings.Fields(recipient), " ")

	dateParts := strings.Split(matches[5], "/")
	day, _ := strconv.Atoi(dateParts[0])
	month, _ := strconv.Atoi(dateParts[1])
	yy, _ := strconv.Atoi(dateParts[2])

	timePart := strings.ToUpper(strings.Join(strings.Fields(matches[6]), ""))
	timePart = strings.TrimSuffix(strings.TrimSuffix(timePart, "AM"), "PM") + " " + strings.ToUpper(matches[7])
	dateTimeStr := fmt.Sprintf("%d-%02d-%02d %s", 2000+yy, month, day, timePart)
	dateTime, err := time.ParseInLocation("2006-01-02 3:04 PM", dateTimeStr, loc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse date/time: %w", err)
	}

	balance, err := parseKsh(matches[8])
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance: %w", err)
	}
	cost, err := parseKsh(matches[9])
	if err != nil {
		return nil, fmt.Errorf("failed to parse cost: %w", err)
	}

	return &ParsedTransaction{
		TransactionID: matches[1],
		Amount:        amount,
		Recipient:     recipient,
		DateTime:      dateTime,
		Balance:       balance,
		Cost:          cost,
	}, nil
}

func parseKsh(s string) (decimal.Decimal, error) {
	if len(s) >= 3 && strings.EqualFold(s[:3], "ksh") {
		s = s[3:]
	}
	return decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
}
