package core

import (
	"math"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// LetterDateLayout renders dates as "January 5, 2024".
const LetterDateLayout = "January 2, 2006"

const maskPrefix = "****"

// FormatCurrency renders an amount as US dollars with two decimals and
// thousands separators, e.g. "$1,234.50".
func FormatCurrency(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return ""
	}
	p := message.NewPrinter(language.AmericanEnglish)
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return sign + "$" + p.Sprintf("%.2f", amount)
}

// FormatLetterDate renders t for letter bodies. Zero times render empty.
func FormatLetterDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(LetterDateLayout)
}

// MaskSSN always reduces an SSN to its last four digits, regardless of the
// source formatting.
func MaskSSN(ssn string) string {
	digits := digitsOnly(ssn)
	if len(digits) < 4 {
		return ""
	}
	return maskPrefix + digits[len(digits)-4:]
}

// MaskAccountNumber keeps the last four alphanumerics of an account number.
// Values that are already masked pass through unchanged.
func MaskAccountNumber(account string) string {
	account = strings.TrimSpace(account)
	if account == "" {
		return ""
	}
	if strings.ContainsAny(account, "*xX") && strings.IndexFunc(account, unicode.IsDigit) >= 0 {
		if isMasked(account) {
			return account
		}
	}

	var clean []rune
	for _, r := range account {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			clean = append(clean, r)
		}
	}
	if len(clean) <= 4 {
		return maskPrefix + string(clean)
	}
	return maskPrefix + string(clean[len(clean)-4:])
}

func isMasked(account string) bool {
	for _, r := range account {
		if r == '*' || r == 'x' || r == 'X' {
			continue
		}
		if r == '-' || r == ' ' || unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}

func digitsOnly(value string) string {
	var sb strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
