package models

// Audit action tags emitted on consent state transitions.
const (
	AuditActionConsentGranted  = "consent_granted"
	AuditActionConsentRevoked  = "consent_revoked"
	AuditActionConsentExpired  = "consent_expired"
	AuditActionConsentVerified = "consent_verified"
)

// Audit reasons.
const (
	AuditReasonUserInitiated = "user_initiated"
	AuditReasonLazyExpiry    = "lazy_expiry"
	AuditReasonSweep         = "expiry_sweep"
)
