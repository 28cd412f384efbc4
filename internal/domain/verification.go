package domain

// PendingVerification is the single live OTP entry for an identity.
// EntryID changes on every issue and, together with Attempts, is the
// compare-and-set token used by the stores.
// ExpiresAt is a Unix timestamp, also used as the DynamoDB TTL attribute.
type PendingVerification struct {
	IdentityID string `json:"identity_id" dynamodbav:"identity_id"`
	EntryID    string `json:"entry_id" dynamodbav:"entry_id"`
	CodeHash   string `json:"code_hash" dynamodbav:"code_hash"`
	ExpiresAt  int64  `json:"expires_at" dynamodbav:"expires_at"`
	Attempts   int    `json:"attempts" dynamodbav:"attempts"`
}

// SameGeneration reports whether v and other describe the same stored state.
func (v *PendingVerification) SameGeneration(other *PendingVerification) bool {
	if v == nil || other == nil {
		return v == other
	}
	return v.IdentityID == other.IdentityID && v.EntryID == other.EntryID && v.Attempts == other.Attempts
}
