package registry

import (
	"time"

	"consentire/pkg/domain"
)

// ControllerRecord is the registered identity of a data controller
// (organization). Identity fields are immutable after registration; only
// Metadata may change.
type ControllerRecord struct {
	Ref            domain.ControllerRef
	OrgID          domain.OrgID
	OrgName        string
	ControllerHash domain.ControllerHash
	PublicKey      string
	// APISecretHash is the bcrypt hash of the controller's API secret. The
	// plaintext secret is returned exactly once, at registration.
	APISecretHash []byte
	Metadata      map[string]string
	RegisteredAt  time.Time
}

// RegistrationResult is returned from Register. Secret is the one-time
// plaintext API secret; it is never persisted.
type RegistrationResult struct {
	Ref            domain.ControllerRef  `json:"controllerRef"`
	ControllerHash domain.ControllerHash `json:"controllerHash"`
	Secret         string                `json:"apiSecret"`
	RegisteredAt   time.Time             `json:"registeredAt"`
}
