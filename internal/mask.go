package internal

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	minPhoneDigits = 10
	maxPhoneDigits = 15
)

// NormalizePhone strips every non-digit from phone and reports whether 10
// to 15 digits remain.
func NormalizePhone(phone string) (string, bool) {
	var b strings.Builder
	b.Grow(len(phone))
	for i := 0; i < len(phone); i++ {
		if c := phone[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	digits := b.String()
	return digits, len(digits) >= minPhoneDigits && len(digits) <= maxPhoneDigits
}

// NormalizeEmail trims email and reports whether it is a bare address.
func NormalizeEmail(email string) (string, bool) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return "", false
	}
	return email, true
}

// MaskPhone keeps the first 3 and last 4 digits: "5551234567" -> "555***4567".
func MaskPhone(digits string) string {
	if len(digits) < 7 {
		return "***"
	}
	return digits[:3] + "***" + digits[len(digits)-4:]
}

// MaskEmail keeps the first 2 and the last character of the local part and
// the whole domain: "alice@example.com" -> "al***e@example.com".
func MaskEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return "***"
	}
	local, domain := email[:at], email[at:]

	runes := []rune(local)
	head := runes
	if len(head) > 2 {
		head = head[:2]
	}
	last, _ := utf8.DecodeLastRuneInString(local)
	return string(head) + "***" + string(last) + domain
}
