package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
)

// ErrEmptyPayload is returned for a media file without inline data.
var ErrEmptyPayload = errors.New("media: empty payload")

// Decode returns the bytes and content type of an inline payload, either a
// data URL ("data:image/png;base64,...") or bare base64. fallbackType is
// used when the payload does not name one.
func Decode(payload, fallbackType string) ([]byte, string, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, "", ErrEmptyPayload
	}

	contentType := fallbackType
	if rest, ok := strings.CutPrefix(payload, "data:"); ok {
		meta, data, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", errors.New("media: malformed data URL")
		}
		params := strings.Split(meta, ";")
		if params[0] != "" {
			contentType = params[0]
		}
		if params[len(params)-1] != "base64" {
			return []byte(data), contentType, nil
		}
		payload = data
	}

	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if b, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, "", fmt.Errorf("media: decode base64: %w", err)
		}
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return b, contentType, nil
}

// ObjectKey builds the storage key of a media file:
// tenant/entity/row/id plus an extension from the name or content type.
func ObjectKey(tenantID, entityID, rowID, fileID, name, contentType string) string {
	ext := path.Ext(name)
	if ext == "" {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			ext = exts[0]
		}
	}
	return path.Join(RowPrefix(tenantID, entityID, rowID), fileID+strings.ToLower(ext))
}

// RowPrefix is the key prefix, ending in a slash, of every object stored
// for a row.
func RowPrefix(tenantID, entityID, rowID string) string {
	if tenantID == "" {
		tenantID = "system"
	}
	return path.Join(tenantID, entityID, rowID) + "/"
}
