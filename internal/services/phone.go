package services

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vouh/Course-corner-sub000/internal/reconcile"
)

var kenyanMobile = regexp.MustCompile(`^254[17]\d{8}$`)

// NormalizePhone turns 07XXXXXXXX, 01XXXXXXXX, +2547XXXXXXXX and bare
// 7XXXXXXXX forms into the 2547XXXXXXXX form the provider expects.
func NormalizePhone(raw string) (string, error) {
	phone := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '(' || r == ')' {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	phone = strings.TrimPrefix(phone, "+")

	switch {
	case len(phone) == 10 && strings.HasPrefix(phone, "0"):
		phone = "254" + phone[1:]
	case len(phone) == 9 && (phone[0] == '7' || phone[0] == '1'):
		phone = "254" + phone
	}

	if !kenyanMobile.MatchString(phone) {
		return "", fmt.Errorf("%w: phone %q is not a valid mobile number", reconcile.ErrInvalidInput, raw)
	}
	return phone, nil
}
