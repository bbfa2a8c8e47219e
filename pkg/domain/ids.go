// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"strings"

	dErrors "consentire/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing a UserID where a ConsentID is
// expected. All of them are lowercase hex SHA-256 digests except OrgID, which
// is the caller-supplied organization identifier, and DID, which carries the
// did:consentire scheme prefix.
type (
	UserID         string
	ConsentID      string
	ControllerRef  string
	ControllerHash string
	PurposeHash    string
	OrgID          string
	DID            string
)

const hashHexLen = 64

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseUserID(s string) (UserID, error) {
	if err := validateHashHex(s, "user ID"); err != nil {
		return "", err
	}
	return UserID(s), nil
}

func ParseConsentID(s string) (ConsentID, error) {
	if err := validateHashHex(s, "consent ID"); err != nil {
		return "", err
	}
	return ConsentID(s), nil
}

func ParseControllerHash(s string) (ControllerHash, error) {
	if err := validateHashHex(s, "controller hash"); err != nil {
		return "", err
	}
	return ControllerHash(s), nil
}

func ParseOrgID(s string) (OrgID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "organization ID cannot be empty")
	}
	return OrgID(s), nil
}

// String methods - for logging and debugging.

func (id UserID) String() string         { return string(id) }
func (id ConsentID) String() string      { return string(id) }
func (id ControllerRef) String() string  { return string(id) }
func (id ControllerHash) String() string { return string(id) }
func (id PurposeHash) String() string    { return string(id) }
func (id OrgID) String() string          { return string(id) }
func (id DID) String() string            { return string(id) }

// IsNil checks - used for service-layer validation.

func (id UserID) IsNil() bool         { return id == "" }
func (id ConsentID) IsNil() bool      { return id == "" }
func (id ControllerRef) IsNil() bool  { return id == "" }
func (id ControllerHash) IsNil() bool { return id == "" }
func (id PurposeHash) IsNil() bool    { return id == "" }
func (id OrgID) IsNil() bool          { return id == "" }

// validateHashHex is the shared validation logic for 64-char hex digests.
func validateHashHex(s, label string) error {
	if s == "" {
		return dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	if len(s) != hashHexLen {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
		}
	}
	return nil
}

// IsHashHex reports whether s looks like a lowercase hex SHA-256 digest.
func IsHashHex(s string) bool {
	return validateHashHex(s, "digest") == nil
}

// NormalizeHex lowercases a caller-supplied digest so lookups stay consistent.
func NormalizeHex(s string) string {
	return strings.ToLower(s)
}
