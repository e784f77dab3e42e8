package delivery

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"

	"github.com/garnizeh/outreach/internal/models"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() { validate = validator.New() })
	return validate
}

// ValidEmail reports whether addr is a syntactically valid email address.
func ValidEmail(addr string) bool {
	return validatorInstance().Var(addr, "required,email") == nil
}

// NormalizePhone parses raw in the given default region and returns it in E.164
// form. Numbers that do not parse or are not valid for their region are
// rejected.
func NormalizePhone(raw, region string) (string, error) {
	if region == "" {
		region = "US"
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", fmt.Errorf("%w: parse phone: %v", ErrInvalidRecipient, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("%w: phone %q is not a valid number", ErrInvalidRecipient, raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// Recipient resolves where the lead's outreach goes. Email wins; a lead
// without an email is reached by SMS when it has a phone number.
func Recipient(l *models.Lead, region string) (string, Channel, error) {
	if email := strings.TrimSpace(l.Email); email != "" {
		if !ValidEmail(email) {
			return "", "", fmt.Errorf("%w: email %q", ErrInvalidRecipient, email)
		}
		return email, ChannelEmail, nil
	}

	if phone := strings.TrimSpace(l.Phone); phone != "" {
		e164, err := NormalizePhone(phone, region)
		if err != nil {
			return "", "", err
		}
		return e164, ChannelSMS, nil
	}

	return "", "", fmt.Errorf("%w: lead %d has no address", ErrInvalidRecipient, l.ID)
}
