package orders

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/m3rciful/cardshop/shop/model"
)

const (
	maxIDLen     = 64
	maxEmailLen  = 254
	maxManualLen = 500
)

var phoneRe = regexp.MustCompile(`^\+[0-9]{7,15}$`)

// ErrInvalidInput marks input that does not fit the awaited delivery type.
var ErrInvalidInput = errors.New("orders: invalid input")

// InputError describes why input was rejected. It matches ErrInvalidInput.
type InputError struct {
	Delivery model.DeliveryType
	Reason   string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("orders: invalid %s input: %s", e.Delivery, e.Reason)
}

// Is lets errors.Is(err, ErrInvalidInput) match.
func (e *InputError) Is(target error) bool { return target == ErrInvalidInput }

// Code is the stable err_code used in logs.
func (e *InputError) Code() string { return "INVALID_" + strings.ToUpper(string(e.Delivery)) }

// ValidateInput checks text against the shape expected for d and returns the
// value to store: surrounding whitespace is trimmed, nothing else changes.
func ValidateInput(d model.DeliveryType, text string) (string, error) {
	v := strings.TrimSpace(text)
	fail := func(reason string) (string, error) {
		return "", &InputError{Delivery: d, Reason: reason}
	}
	if v == "" {
		return fail("empty")
	}

	switch d {
	case model.DeliveryID:
		if utf8.RuneCountInString(v) > maxIDLen {
			return fail("too long")
		}
		if strings.IndexFunc(v, unicode.IsSpace) >= 0 {
			return fail("must be a single token")
		}
	case model.DeliveryEmail:
		if len(v) > maxEmailLen || strings.IndexFunc(v, unicode.IsSpace) >= 0 {
			return fail("malformed address")
		}
		local, domain, ok := strings.Cut(v, "@")
		if !ok || local == "" || strings.Contains(domain, "@") {
			return fail("missing @")
		}
		dot := strings.LastIndex(domain, ".")
		if dot <= 0 || dot == len(domain)-1 || strings.Contains(domain, "..") {
			return fail("missing domain")
		}
	case model.DeliveryPhone:
		compact := strings.Map(func(r rune) rune {
			switch r {
			case ' ', '-', '(', ')':
				return -1
			}
			return r
		}, v)
		if !phoneRe.MatchString(compact) {
			return fail("expected + followed by 7 to 15 digits")
		}
	case model.DeliveryManual:
		if utf8.RuneCountInString(v) > maxManualLen {
			return fail("too long")
		}
	default:
		return fail("delivery type takes no input")
	}
	return v, nil
}
