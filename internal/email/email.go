// Package email provides common email address utility functions.
package email

import (
	"fmt"
	"net/mail"
	"strings"
)

// Normalize lowercases and trims an address, returning an error when it
// does not parse as a bare RFC 5322 address.
func Normalize(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return "", fmt.Errorf("invalid email address %q: %w", email, err)
	}
	if addr.Name != "" {
		return "", fmt.Errorf("invalid email address %q: display name not allowed", email)
	}
	return strings.ToLower(addr.Address), nil
}

// ExtractDomain extracts the domain part from an email address.
// Returns empty string if the email is invalid.
func ExtractDomain(email string) string {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		// Try simple extraction for malformed addresses
		at := strings.LastIndex(email, "@")
		if at <= 0 || at == len(email)-1 {
			return ""
		}
		return strings.ToLower(email[at+1:])
	}
	at := strings.LastIndex(addr.Address, "@")
	if at <= 0 || at == len(addr.Address)-1 {
		return ""
	}
	return strings.ToLower(addr.Address[at+1:])
}
