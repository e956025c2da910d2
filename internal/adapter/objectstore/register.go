package objectstore

import (
	"context"
	"strconv"

	"github.com/Strob0t/backoffice/internal/port/storage"
)

func init() {
	storage.Register(supabaseName, func(cfg map[string]string) (storage.Provider, error) {
		return NewSupabase(cfg["url"], cfg["key"], nil)
	})
	storage.Register(s3Name, func(cfg map[string]string) (storage.Provider, error) {
		pathStyle, _ := strconv.ParseBool(cfg["path_style"])
		return NewS3(context.Background(), S3Options{
			Endpoint:        cfg["endpoint"],
			Region:          cfg["region"],
			AccessKeyID:     cfg["access_key_id"],
			SecretAccessKey: cfg["secret_access_key"],
			PublicURL:       cfg["public_url"],
			PathStyle:       pathStyle,
		}, nil)
	})
	storage.Register(noneName, func(map[string]string) (storage.Provider, error) {
		return None{}, nil
	})
}
