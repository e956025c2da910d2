package messagequeue

// MediaMigratePayload is the schema for tasks.media.migrate messages.
type MediaMigratePayload struct {
	TenantID   string `json:"tenant_id"`
	EntityID   string `json:"entity_id"`
	RowID      string `json:"row_id"`
	PropertyID string `json:"property_id"`
}

// InvitationEmailPayload is the schema for tasks.invitations.email messages.
type InvitationEmailPayload struct {
	InvitationID string `json:"invitation_id"`
	TenantID     string `json:"tenant_id"`
}
