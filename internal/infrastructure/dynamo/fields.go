package dynamo

// DynamoDB attribute names used in keys, conditions and update expressions.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	attrIdentityID = "identity_id"
	attrEmail      = "email"
	attrOwnerID    = "owner_id"
	attrEntryID    = "entry_id"
	attrAttempts   = "attempts"
	attrExpiresAt  = "expires_at"
	attrPK         = "pk"
	attrRevokedAt  = "revoked_at"

	fieldVerified  = "verified"
	fieldUpdatedAt = "updated_at"

	indexEmail = "email-index"
)
