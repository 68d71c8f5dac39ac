package service

import (
	"net/mail"
	"strings"

	"github.com/medimart/orders/internal/domain"
)

// ContactInfo is the checkout contact/delivery input. Phone is rewritten to
// its canonical form during validation.
type ContactInfo struct {
	Email          string
	Phone          string
	Address        string
	DeliveryMethod domain.DeliveryMethod
}

// defaultCountryPrefix replaces a leading 0 in local phone numbers.
const defaultCountryPrefix = "+234"

func validateContact(info *ContactInfo) error {
	if _, err := mail.ParseAddress(info.Email); err != nil {
		return &ValidationError{Field: "email", Reason: "not a valid email address"}
	}

	phone, err := normalizePhone(info.Phone)
	if err != nil {
		return err
	}
	info.Phone = phone

	switch info.DeliveryMethod {
	case domain.DeliveryMethodPickup, domain.DeliveryMethodDelivery:
	default:
		return &ValidationError{Field: "delivery_method", Reason: "unknown delivery method"}
	}
	if info.DeliveryMethod.RequiresAddress() && strings.TrimSpace(info.Address) == "" {
		return &ValidationError{Field: "address", Reason: "address is required for delivery"}
	}
	return nil
}

// normalizePhone canonicalizes a phone number to an E.164-like form: strip
// separators, replace a leading local 0 with the default country prefix and
// require 8 to 15 digits after the plus.
func normalizePhone(raw string) (string, error) {
	var digits strings.Builder
	plus := false
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == '+' && i == 0:
			plus = true
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "", &ValidationError{Field: "phone", Reason: "contains invalid characters"}
		}
	}

	number := digits.String()
	if !plus && strings.HasPrefix(number, "0") {
		number = strings.TrimPrefix(defaultCountryPrefix, "+") + number[1:]
	}
	if len(number) < 8 || len(number) > 15 {
		return "", &ValidationError{Field: "phone", Reason: "must have 8 to 15 digits"}
	}
	return "+" + number, nil
}
