package owner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_ResolveOwner(t *testing.T) {
	fallback := "99"
	r := NewResolver(MappingFile{
		DefaultOwnerID: &fallback,
		Mappings: map[string]string{
			" rep001 ": "123",
			"REP002":   "456",
			"EMPTY":    " ",
		},
	})

	tests := []struct {
		code   string
		want   string
		wantOK bool
	}{
		{code: "REP001", want: "123", wantOK: true},
		{code: "rep002", want: "456", wantOK: true},
		{code: "  Rep001", want: "123", wantOK: true},
		{code: "UNKNOWN", want: "99", wantOK: true},
		{code: "EMPTY", want: "99", wantOK: true},
		{code: "", want: "", wantOK: false},
		{code: "   ", want: "", wantOK: false},
	}
	for _, tt := range tests {
		got, ok := r.ResolveOwner(tt.code)
		assert.Equal(t, tt.wantOK, ok, tt.code)
		assert.Equal(t, tt.want, got, tt.code)
	}
	assert.Equal(t, 2, r.Len())
}

func TestResolver_NoDefault(t *testing.T) {
	r := NewResolver(MappingFile{Mappings: map[string]string{"A": "1"}})

	_, ok := r.ResolveOwner("B")
	assert.False(t, ok)
}

func TestLoad(t *testing.T) {
	t.Run("reads a mapping file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sales_rep_mapping.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"default_owner_id": null, "mappings": {"JD": "777"}}`), 0o600))

		r, err := Load(path, nil)
		require.NoError(t, err)
		owner, ok := r.ResolveOwner("jd")
		assert.True(t, ok)
		assert.Equal(t, "777", owner)
		_, ok = r.ResolveOwner("XX")
		assert.False(t, ok)
	})

	t.Run("missing file assigns no owners", func(t *testing.T) {
		r, err := Load(filepath.Join(t.TempDir(), "missing.json"), nil)
		require.NoError(t, err)
		_, ok := r.ResolveOwner("JD")
		assert.False(t, ok)
	})

	t.Run("malformed file is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"mappings": [`), 0o600))

		_, err := Load(path, nil)
		require.Error(t, err)
	})
}

func TestBuildTemplate(t *testing.T) {
	reps := []Rep{
		{Code: "JD", Email: "Jane@Example.com"},
		{Code: "ZZ", Email: "nobody@example.com"},
		{Code: "AB"},
		{Code: " "},
	}
	owners := []CRMOwner{
		{ID: "101", Email: "jane@example.com"},
		{ID: "102"},
	}

	tmpl := BuildTemplate(reps, owners)
	assert.Equal(t, map[string]string{"JD": "101"}, tmpl.Mappings)
	assert.Equal(t, []string{"AB", "ZZ"}, tmpl.Unmatched)

	path := filepath.Join(t.TempDir(), "config", "template.json")
	require.NoError(t, WriteTemplate(path, tmpl))

	// the written template loads as a mapping file
	r, err := Load(path, nil)
	require.NoError(t, err)
	owner, ok := r.ResolveOwner("jd")
	assert.True(t, ok)
	assert.Equal(t, "101", owner)
}
