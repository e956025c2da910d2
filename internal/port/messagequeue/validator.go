package messagequeue

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch subject {
	case SubjectMediaMigrate:
		var p MediaMigratePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.RowID == "" || p.PropertyID == "" {
			return fmt.Errorf("schema validation failed for %s: %w", subject, errors.New("row_id and property_id are required"))
		}
	case SubjectInvitationEmail:
		var p InvitationEmailPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.InvitationID == "" {
			return fmt.Errorf("schema validation failed for %s: %w", subject, errors.New("invitation_id is required"))
		}
	}
	return nil
}
