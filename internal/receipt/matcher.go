package receipt

import (
	"regexp"
	"strings"
)

// Signal is one of the textual markers a payment screenshot must show before
// it is accepted. All of them are literal or shape checks against the raw OCR
// blob, case-sensitive and order-independent.
type Signal string

const (
	SignalSentPhrase    Signal = "sent_phrase"
	SignalDateTime      Signal = "date_time"
	SignalFriendsFamily Signal = "friends_family"
	SignalAmount        Signal = "amount"
	SignalRecipient     Signal = "recipient"
	SignalTransactionID Signal = "transaction_id"
)

const (
	sentPhrase          = "Geld gesendet"
	friendsFamilyPhrase = "Freunde und Familie"
)

var (
	// Month is a free-form word (incl. umlauts), not validated against a
	// calendar. The rest of the shape is fixed: "Juli 11, 10:12 AM".
	dateTimePattern = regexp.MustCompile(`\p{L}+\s\d{1,2},\s\d{1,2}:\d{2}\s(AM|PM)`)

	// PayPal transaction ids: fixed prefix, 13 alphanumerics, fixed suffix.
	// Shape-checked only, no checksum.
	transactionIDPattern = regexp.MustCompile(`1WC[A-Z0-9]{13}G`)
)

// Expectation carries the creator-specific values a receipt must show. Amount
// is the exact configured price string; matching is literal containment of
// "-<amount>" with no currency or decimal normalization.
type Expectation struct {
	Amount    string
	Recipient string
}

// AllSignals returns every required signal in presentation order.
func AllSignals() []Signal {
	return []Signal{
		SignalSentPhrase,
		SignalDateTime,
		SignalFriendsFamily,
		SignalAmount,
		SignalRecipient,
		SignalTransactionID,
	}
}

// Missing returns the signals absent from the extracted text. An empty result
// means the screenshot is accepted.
func Missing(text string, exp Expectation) []Signal {
	var missing []Signal
	for _, sig := range AllSignals() {
		if !present(text, sig, exp) {
			missing = append(missing, sig)
		}
	}
	return missing
}

// IsValid reports whether all six required signals are present.
func IsValid(text string, exp Expectation) bool {
	return len(Missing(text, exp)) == 0
}

func present(text string, sig Signal, exp Expectation) bool {
	switch sig {
	case SignalSentPhrase:
		return strings.Contains(text, sentPhrase)
	case SignalDateTime:
		return dateTimePattern.MatchString(text)
	case SignalFriendsFamily:
		return strings.Contains(text, friendsFamilyPhrase)
	case SignalAmount:
		return exp.Amount != "" && strings.Contains(text, "-"+exp.Amount)
	case SignalRecipient:
		return exp.Recipient != "" && strings.Contains(text, exp.Recipient)
	case SignalTransactionID:
		return transactionIDPattern.MatchString(text)
	}
	return false
}
