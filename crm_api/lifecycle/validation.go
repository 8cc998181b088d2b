package lifecycle

import (
	"math"
	"net/mail"
	"strings"
	"unicode/utf8"

	"epic_events/crm_api/schema"

	"gorm.io/gorm"
)

const (
	minPhoneLength = 4
	maxPhoneLength = 15

	maxNameLength        = 25
	maxEmailLength       = 100
	maxCompanyNameLength = 250
)

func RequireField(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalid(field, "this field is required")
	}
	return nil
}

func ValidateName(field, value string) error {
	if err := RequireField(field, value); err != nil {
		return err
	}
	if utf8.RuneCountInString(value) > maxNameLength {
		return invalid(field, "must be at most %d characters", maxNameLength)
	}
	return nil
}

// ValidatePhone accepts an empty value since phone and mobile are optional.
func ValidatePhone(field, value string) error {
	if value == "" {
		return nil
	}
	if len(value) < minPhoneLength || len(value) > maxPhoneLength {
		return invalid(field, "must contain between %d and %d digits", minPhoneLength, maxPhoneLength)
	}
	for _, c := range value {
		if c < '0' || c > '9' {
			return invalid(field, "'%v' is not numeric", value)
		}
	}
	return nil
}

func ValidateEmail(field, value string) error {
	if err := RequireField(field, value); err != nil {
		return err
	}
	if utf8.RuneCountInString(value) > maxEmailLength {
		return invalid(field, "must be at most %d characters", maxEmailLength)
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return invalid(field, "'%v' is not a valid email address", value)
	}
	return nil
}

// ValidateAmount matches the decimal(10,2) column: at most 8 integer digits and 2 decimal
// places, so the store never has to round a value past its precision.
func ValidateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return invalid("amount", "must be a finite number")
	}
	if amount < 0 {
		return invalid("amount", "must not be negative")
	}
	cents := amount * 100
	if math.Abs(cents-math.Round(cents)) > 1e-4 {
		return invalid("amount", "must have at most 2 decimal places")
	}
	if math.Round(cents) >= 1e10 {
		return invalid("amount", "must have at most 8 digits before the decimal point")
	}
	return nil
}

func ValidateAttendees(attendees int) error {
	if attendees < 0 {
		return invalid("attendees", "must not be negative")
	}
	return nil
}

// RejectDerivedField is used for fields like contract status or client is_active that
// only change through lifecycle transitions.
func RejectDerivedField(field string) error {
	return invalid(field, "is derived from related records and cannot be set directly")
}

// ValidateCompanyName checks the name is present and unique ignoring case. excludeId is the
// company being updated, 0 on create.
func ValidateCompanyName(txn *gorm.DB, name string, excludeId uint) error {
	if err := RequireField("name", name); err != nil {
		return err
	}
	if utf8.RuneCountInString(name) > maxCompanyNameLength {
		return invalid("name", "must be at most %d characters", maxCompanyNameLength)
	}

	count, err := schema.CountRows(txn, &schema.Company{}, "lower(name) = ? AND id <> ?", strings.ToLower(name), excludeId)
	if err != nil {
		return err
	}
	if count > 0 {
		return conflict("a company named '%v' already exists", name)
	}
	return nil
}

func ValidateClientEmail(txn *gorm.DB, email string, excludeId uint) error {
	if err := ValidateEmail("email", email); err != nil {
		return err
	}

	count, err := schema.CountRows(txn, &schema.Client{}, "lower(email) = ? AND id <> ?", strings.ToLower(email), excludeId)
	if err != nil {
		return err
	}
	if count > 0 {
		return conflict("a client with email '%v' already exists", email)
	}
	return nil
}

// ValidateClient checks every client field except email uniqueness.
func ValidateClient(client schema.Client) error {
	if err := ValidateName("first_name", client.FirstName); err != nil {
		return err
	}
	if err := ValidateName("last_name", client.LastName); err != nil {
		return err
	}
	if err := ValidatePhone("phone", client.Phone); err != nil {
		return err
	}
	if err := ValidatePhone("mobile", client.Mobile); err != nil {
		return err
	}
	return nil
}
