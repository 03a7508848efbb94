package service

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/iliyamo/address-book/internal/apperr"
	"github.com/iliyamo/address-book/internal/model"
)

// EntryInput is the client-supplied body for creating or updating an entry.
// Nil fields were absent from the request. Street is the legacy single-line
// address, accepted and split into the two address lines.
type EntryInput struct {
	Name         *string `json:"name"`
	AddressLine1 *string `json:"addressLine1"`
	AddressLine2 *string `json:"addressLine2"`
	Street       *string `json:"street"`
	Zipcode      *string `json:"zipcode"`
	City         *string `json:"city"`
	Floor        *string `json:"floor"`
	Door         *string `json:"door"`
	Telephone    *string `json:"telephone"`
	Email        *string `json:"email"`
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// maxLengths mirrors the column sizes of the entries table.
var maxLengths = map[string]int{
	"name":         191,
	"addressLine1": 191,
	"addressLine2": 191,
	"zipcode":      20,
	"city":         191,
	"floor":        32,
	"door":         32,
	"telephone":    32,
	"email":        254,
}

var fieldLabels = map[string]string{
	"name":         "Name",
	"addressLine1": "Address Line 1",
	"addressLine2": "Address Line 2",
	"zipcode":      "Zipcode",
	"city":         "City",
	"floor":        "Floor",
	"door":         "Door",
	"telephone":    "Telephone",
	"email":        "Email",
}

func trimmed(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func validEmail(s string) bool { return emailPattern.MatchString(s) }

func tooLong(field, v string) *apperr.FieldError {
	if max, ok := maxLengths[field]; ok && utf8.RuneCountInString(v) > max {
		return &apperr.FieldError{Field: field, Message: fieldLabels[field] + " is too long"}
	}
	return nil
}

// buildEntry validates a complete entry as required for creation. Values
// are trimmed and the email lowercased.
func buildEntry(in EntryInput) (model.Entry, []apperr.FieldError) {
	e := model.Entry{
		Name:         trimmed(in.Name),
		AddressLine1: trimmed(in.AddressLine1),
		AddressLine2: trimmed(in.AddressLine2),
		Zipcode:      trimmed(in.Zipcode),
		City:         trimmed(in.City),
		Floor:        trimmed(in.Floor),
		Door:         trimmed(in.Door),
		Telephone:    trimmed(in.Telephone),
		Email:        strings.ToLower(trimmed(in.Email)),
	}
	if e.AddressLine1 == "" && in.Street != nil {
		l1, l2 := model.SplitStreet(*in.Street)
		e.AddressLine1 = l1
		if e.AddressLine2 == "" {
			e.AddressLine2 = l2
		}
	}

	var errs []apperr.FieldError
	for _, f := range []struct{ field, value string }{
		{"name", e.Name},
		{"addressLine1", e.AddressLine1},
		{"zipcode", e.Zipcode},
		{"city", e.City},
		{"telephone", e.Telephone},
	} {
		if f.value == "" {
			errs = append(errs, apperr.FieldError{Field: f.field, Message: fieldLabels[f.field] + " is required"})
		}
	}
	if !validEmail(e.Email) {
		errs = append(errs, apperr.FieldError{Field: "email", Message: "Valid email is required"})
	}
	for _, f := range []struct{ field, value string }{
		{"name", e.Name}, {"addressLine1", e.AddressLine1}, {"addressLine2", e.AddressLine2},
		{"zipcode", e.Zipcode}, {"city", e.City}, {"floor", e.Floor}, {"door", e.Door},
		{"telephone", e.Telephone}, {"email", e.Email},
	} {
		if fe := tooLong(f.field, f.value); fe != nil {
			errs = append(errs, *fe)
		}
	}
	return e, errs
}
