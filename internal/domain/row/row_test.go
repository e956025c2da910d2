package row

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Strob0t/backoffice/internal/domain"
	"github.com/Strob0t/backoffice/internal/domain/entity"
)

func ptr[T any](v T) *T { return &v }

func TestSetValueKeepsOnePerProperty(t *testing.T) {
	var r Row
	r.SetValue(Value{ID: "v1", PropertyID: "p1", Text: ptr("a")})
	r.SetValue(Value{PropertyID: "p1", Text: ptr("b")})
	r.SetValue(Value{PropertyID: "p2", Number: ptr(3.0)})

	if len(r.Values) != 2 {
		t.Fatalf("expected 2 values, got %d", len(r.Values))
	}
	v, ok := r.GetValue("p1")
	if !ok {
		t.Fatal("p1 not found")
	}
	if *v.Text != "b" || v.ID != "v1" {
		t.Errorf("p1 = %q (id %q), want b (id v1)", *v.Text, v.ID)
	}
	if _, ok := r.GetValue("missing"); ok {
		t.Error("expected missing property to be absent")
	}
}

func TestFolioFormat(t *testing.T) {
	tests := []struct {
		name   string
		f      FolioFormat
		prefix string
		folio  int
		want   string
	}{
		{"default", DefaultFolioFormat, "", 1, "#0001"},
		{"entity prefix", DefaultFolioFormat, "CAN", 42, "CAN-0042"},
		{"wider than pad", DefaultFolioFormat, "", 123456, "#123456"},
		{"no pad", FolioFormat{Prefix: "R"}, "", 7, "R7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Format(tt.prefix, tt.folio); got != tt.want {
				t.Errorf("Format = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMediaHrefPrefersPublicURL(t *testing.T) {
	m := Media{Name: "a.png", File: "data:image/png;base64,AAA"}
	if m.Href() != m.File {
		t.Errorf("Href = %q, want inline payload", m.Href())
	}
	if !m.NeedsMigration() {
		t.Error("inline-only media should need migration")
	}
	m.PublicURL = "https://cdn.example.com/a.png"
	if m.Href() != m.PublicURL {
		t.Errorf("Href = %q, want public URL", m.Href())
	}
	if m.NeedsMigration() {
		t.Error("migrated media should not need migration")
	}
}

func TestDecode(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	status := &entity.Property{ID: "s", Name: "status", Type: entity.TypeSelect,
		Options: []entity.PropertyOption{{Value: "open"}, {Value: "closed"}}}

	tests := []struct {
		name    string
		prop    *entity.Property
		raw     string
		want    Value
		wantErr bool
	}{
		{"text", &entity.Property{ID: "p", Type: entity.TypeText}, `"hi"`, Value{PropertyID: "p", Text: ptr("hi")}, false},
		{"number", &entity.Property{ID: "p", Type: entity.TypeNumber}, `1.5`, Value{PropertyID: "p", Number: ptr(1.5)}, false},
		{"number from string", &entity.Property{ID: "p", Type: entity.TypeNumber}, `"2"`, Value{PropertyID: "p", Number: ptr(2.0)}, false},
		{"bad number", &entity.Property{ID: "p", Type: entity.TypeNumber}, `"x"`, Value{}, true},
		{"date", &entity.Property{ID: "p", Type: entity.TypeDate}, `"2024-03-01"`, Value{PropertyID: "p", Date: &day}, false},
		{"boolean", &entity.Property{ID: "p", Type: entity.TypeBoolean}, `true`, Value{PropertyID: "p", Boolean: ptr(true)}, false},
		{"multi", &entity.Property{ID: "p", Type: entity.TypeMultiText}, `["a","b"]`, Value{PropertyID: "p", Multiple: []string{"a", "b"}}, false},
		{"null", &entity.Property{ID: "p", Type: entity.TypeText}, `null`, Value{PropertyID: "p"}, false},
		{"option", status, `"open"`, Value{PropertyID: "s", Text: ptr("open")}, false},
		{"unknown option", status, `"pending"`, Value{}, true},
		{"range", &entity.Property{ID: "p", Type: entity.TypeRangeNumber}, `{"min":1,"max":5}`,
			Value{PropertyID: "p", Range: &Range{NumberMin: ptr(1.0), NumberMax: ptr(5.0)}}, false},
		{"inverted range", &entity.Property{ID: "p", Type: entity.TypeRangeNumber}, `{"min":5,"max":1}`, Value{}, true},
		{"media without payload", &entity.Property{ID: "p", Type: entity.TypeMedia}, `[{"name":"a.png"}]`, Value{}, true},
		{"unknown type", &entity.Property{ID: "p", Type: "relation"}, `"x"`, Value{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.prop, json.RawMessage(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, domain.ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Decode mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValueString(t *testing.T) {
	day := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		v    *Value
		want string
	}{
		{nil, ""},
		{&Value{Text: ptr("x")}, "x"},
		{&Value{Number: ptr(2.50)}, "2.5"},
		{&Value{Date: &day}, "2024-03-01"},
		{&Value{Boolean: ptr(false)}, "false"},
		{&Value{Multiple: []string{"a", "b"}}, "a, b"},
		{&Value{Range: &Range{NumberMin: ptr(1.0), NumberMax: ptr(2.0)}}, "1 - 2"},
		{&Value{Media: []Media{{Name: "a.png"}, {Name: "b.pdf"}}}, "a.png, b.pdf"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
