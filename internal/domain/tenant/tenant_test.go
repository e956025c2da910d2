package tenant

import "testing"

func TestCreateRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateRequest
		wantErr string
	}{
		{name: "valid", req: CreateRequest{Name: "Acme", Slug: "acme-corp"}},
		{name: "missing name", req: CreateRequest{Slug: "acme"}, wantErr: "name is required"},
		{name: "missing slug", req: CreateRequest{Name: "Acme"}, wantErr: "slug is required"},
		{name: "uppercase slug", req: CreateRequest{Name: "Acme", Slug: "Acme"}, wantErr: "slug must contain only lowercase letters, digits and single hyphens"},
		{name: "double hyphen", req: CreateRequest{Name: "Acme", Slug: "a--b"}, wantErr: "slug must contain only lowercase letters, digits and single hyphens"},
		{name: "reserved", req: CreateRequest{Name: "Admin", Slug: "admin"}, wantErr: "slug is reserved"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error %q, got nil", tt.wantErr)
			}
			if got := err.Error(); got != tt.wantErr {
				t.Fatalf("error = %q, want %q", got, tt.wantErr)
			}
		})
	}
}
