// Package domain provides the core value types shared across the
// lead-qualification backend.
package domain

import (
	"fmt"
	"regexp"
	"time"
)

const (
	// DefaultCompany is used when the assistant did not collect a company name.
	DefaultCompany = "Empresa não informada"

	// DefaultNeed is used when the assistant did not collect a specific need.
	DefaultNeed = "Interesse em nossos serviços"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Lead is the value object handed to the CRM upsert client. It is immutable
// once constructed; email is the only stable identity key.
type Lead struct {
	Name              string
	Email             string
	Company           string
	Need              string
	InterestConfirmed bool

	// MeetingLink and MeetingDatetime are only set after a successful booking.
	MeetingLink     string
	MeetingDatetime *time.Time
}

// NewLead constructs a Lead, applying placeholder defaults for optional
// fields and validating the email format.
func NewLead(name, email, company, need string, interestConfirmed bool) (*Lead, error) {
	if email == "" {
		return nil, fmt.Errorf("lead email is required")
	}
	if !emailPattern.MatchString(email) {
		return nil, fmt.Errorf("invalid lead email %q", email)
	}
	if company == "" {
		company = DefaultCompany
	}
	if need == "" {
		need = DefaultNeed
	}
	return &Lead{
		Name:              name,
		Email:             email,
		Company:           company,
		Need:              need,
		InterestConfirmed: interestConfirmed,
	}, nil
}
