package mpesa

import "strings"

// Message is one pasted confirmation with the metadata lines that follow it.
type Message struct {
	Text     string
	Metadata []string
}

// IsConfirmation reports whether line starts a new M-PESA confirmation.
func IsConfirmation(line string) bool {
	if !strings.Contains(line, "Confirmed.") {
		return false
	}
	return strings.Contains(line, "sent to") || strings.Contains(line, "paid to") || strings.Contains(line, "received")
}

// Split cuts pasted chat content into confirmations. Lines before the first
// confirmation are dropped; only c:/Category:/r:/Reason: lines are kept as
// metadata.
func Split(content string) []Message {
	var (
		messages []Message
		current  Message
		open     bool
	)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if IsConfirmation(line) {
			if open {
				messages = append(messages, current)
			}
			current = Message{Text: line}
			open = true
			continue
		}
		if open && isMetadata(line) {
			current.Metadata = append(current.Metadata, line)
		}
	}
	if open {
		messages = append(messages, current)
	}
	return messages
}

func isMetadata(line string) bool {
	for _, p := range []string{"c:", "Category:", "r:", "Reason:"} {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// ParseMetadata reads the category and reason from metadata lines. Missing
// values come back empty.
func ParseMetadata(lines []string) (category, reason string) {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Category:"):
			category = strings.TrimSpace(strings.TrimPrefix(line, "Category:"))
		case strings.HasPrefix(line, "c:"):
			category = strings.TrimSpace(strings.TrimPrefix(line, "c:"))
		case strings.HasPrefix(line, "Reason:"):
			reason = strings.TrimSpace(strings.TrimPrefix(line, "Reason:"))
		case strings.HasPrefix(line, "r:"):
			reason = strings.TrimSpace(strings.TrimPrefix(line, "r:"))
		}
	}
	return category, reason
}
