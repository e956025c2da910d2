package postgres

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Strob0t/backoffice/internal/domain/entity"
	"github.com/Strob0t/backoffice/internal/domain/rowquery"
	"github.com/Strob0t/backoffice/internal/port/database"
)

func testEntity() *entity.Entity {
	return &entity.Entity{
		ID:     "e1",
		Name:   "Candidate",
		Prefix: "CAN",
		Properties: []entity.Property{
			{ID: "p-name", Name: "name", Type: entity.TypeText, IsSearchable: true},
			{ID: "p-age", Name: "age", Type: entity.TypeNumber},
			{ID: "p-stage", Name: "stage", Type: entity.TypeSelect},
		},
	}
}

func TestBuildRowListQuery_ScopeAndTenant(t *testing.T) {
	e := testEntity()
	scope := database.RowScope{TenantID: "t1", UserID: "u1", RoleIDs: []string{"r1"}}
	b := buildRowListQuery(e, rowquery.Query{}, "t1", scope)

	where := b.whereSQL()
	for _, want := range []string{
		"r.entity_id = $1",
		"r.tenant_id IS NOT DISTINCT FROM $2::uuid",
		"NOT EXISTS (SELECT 1 FROM row_permissions p WHERE p.row_id = r.id)",
		"p.role_id = ANY($4::uuid[])",
	} {
		if !strings.Contains(where, want) {
			t.Errorf("where clause missing %q:\n%s", want, where)
		}
	}
	if b.order != "r.created_at DESC NULLS LAST, r.folio ASC" {
		t.Errorf("default order = %q", b.order)
	}
	if len(b.args) != 6 {
		t.Errorf("args = %d, want 6", len(b.args))
	}
}

func TestBuildRowListQuery_BypassSkipsOverlay(t *testing.T) {
	b := buildRowListQuery(testEntity(), rowquery.Query{}, "", database.RowScope{Bypass: true})
	if strings.Contains(b.whereSQL(), "row_permissions") {
		t.Errorf("bypass scope should not apply grants: %s", b.whereSQL())
	}
	if b.args[1] != (*string)(nil) {
		t.Errorf("system scope tenant arg = %v, want nil", b.args[1])
	}
}

func TestBuildRowListQuery_Filters(t *testing.T) {
	e := testEntity()
	q := rowquery.Query{Filters: []rowquery.FilterableProperty{
		{Name: "stage", PropertyID: "p-stage", Manual: true, Value: "Hired, Offer"},
		{Name: "name", PropertyID: "p-name", IsSearchTerm: true, Value: "50%"},
		{Name: "age", PropertyID: "p-age", Value: "42"},
		{Name: rowquery.KeyFolio, Value: "CAN-0007"},
		{Name: "unused"},
	}}
	b := buildRowListQuery(e, q, "t1", database.RowScope{Bypass: true})

	want := []any{"e1", ptr("t1"),
		[]string{"hired", "offer"}, "p-stage",
		`%50\%%`, "p-name",
		"42", "p-age",
		7,
	}
	if diff := cmp.Diff(want, b.args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
	if n := strings.Count(b.whereSQL(), "EXISTS (SELECT 1 FROM row_values v"); n != 3 {
		t.Errorf("value filters = %d, want 3", n)
	}
}

func TestBuildRowListQuery_Search(t *testing.T) {
	b := buildRowListQuery(testEntity(), rowquery.Query{Q: "ann"}, "t1", database.RowScope{Bypass: true})
	where := b.whereSQL()
	if !strings.Contains(where, "v.property_id = ANY(") {
		t.Errorf("search should be restricted to searchable properties: %s", where)
	}
	if diff := cmp.Diff([]any{"e1", ptr("t1"), "%ann%", "CAN-", []string{"p-name"}}, b.args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildRowListQuery_SortByProperty(t *testing.T) {
	tests := []struct {
		name string
		by   string
		desc bool
		want string
	}{
		{"folio asc", rowquery.KeyFolio, false, "r.folio ASC NULLS FIRST, r.folio ASC"},
		{"created desc", rowquery.KeyCreatedAt, true, "r.created_at DESC NULLS LAST, r.folio ASC"},
		{"number property", "age", false, "(SELECT v.number_value FROM row_values v WHERE v.row_id = r.id AND v.property_id = $3::uuid) ASC NULLS FIRST, r.folio ASC"},
		{"unknown falls back", "missing", false, "r.created_at DESC NULLS LAST, r.folio ASC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := buildRowListQuery(testEntity(), rowquery.Query{SortBy: tt.by, SortDesc: tt.desc}, "t1", database.RowScope{Bypass: true})
			if b.order != tt.want {
				t.Errorf("order = %q, want %q", b.order, tt.want)
			}
		})
	}
}

func TestParseFolio(t *testing.T) {
	tests := []struct {
		prefix, in string
		want       int
		ok         bool
	}{
		{"", "42", 42, true},
		{"", "#0042", 42, true},
		{"CAN", "can-0042", 42, true},
		{"CAN", "#0001", 1, true},
		{"", "abc", 0, false},
		{"", "#0000", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseFolio(tt.prefix, tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseFolio(%q, %q) = %d, %v; want %d, %v", tt.prefix, tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func ptr(s string) *string { return &s }
