package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ppiankov/corroborate/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func holders(names ...string) []model.Holder {
	out := make([]model.Holder, 0, len(names))
	for _, n := range names {
		out = append(out, model.Holder{Name: n})
	}
	return out
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New([]model.SourceRecord{
		{ID: "acme-daily", Owner: "Acme", InstitutionalHolders: holders("Vanguard", "BlackRock")},
		{ID: "acme-tv", Owner: "Acme"},
		{ID: "civic", Owner: "Civic", InstitutionalHolders: holders("Vanguard")},
		{ID: "heavy", Owner: "Heavy Media", InstitutionalHolders: holders("Vanguard", "BlackRock", "State Street")},
		{ID: "public", Owner: "Public Trust"},
	}, 2)
	require.NoError(t, err)
	return r
}

func TestRegistry_Unrelated(t *testing.T) {
	r := testRegistry(t)

	tests := []struct {
		desc     string
		a, b     string
		expected bool
	}{
		{"same owner", "acme-daily", "acme-tv", false},
		{"different owner, one shared holder", "acme-daily", "civic", true},
		{"different owner, two shared holders", "acme-daily", "heavy", false},
		{"no holders at all", "civic", "public", true},
		{"unknown first id", "nope", "civic", false},
		{"unknown second id", "civic", "nope", false},
		{"both unknown", "nope", "nada", false},
		{"self", "civic", "civic", false},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			assert.Equal(t, tt.expected, r.Unrelated(tt.a, tt.b))
		})
	}
}

func TestRegistry_UnrelatedIsSymmetric(t *testing.T) {
	r := testRegistry(t)
	ids := []string{"acme-daily", "acme-tv", "civic", "heavy", "public", "unknown"}

	for _, a := range ids {
		assert.False(t, r.Unrelated(a, a), "source %s must not corroborate itself", a)
		for _, b := range ids {
			assert.Equal(t, r.Unrelated(a, b), r.Unrelated(b, a), "%s vs %s", a, b)
		}
	}
}

func TestRegistry_SharedHolders(t *testing.T) {
	r := testRegistry(t)
	assert.Equal(t, []string{"BlackRock", "Vanguard"}, r.SharedHolders("acme-daily", "heavy"))
	assert.Empty(t, r.SharedHolders("civic", "public"))
}

func TestNew_RejectsDuplicateIDs(t *testing.T) {
	_, err := New([]model.SourceRecord{{ID: "a", Owner: "x"}, {ID: "a", Owner: "y"}}, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateSource))
}

func TestNew_RejectsMissingID(t *testing.T) {
	_, err := New([]model.SourceRecord{{Name: "nameless"}}, 2)
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	content := `sources:
  - id: wire
    name: Wire Service
    owner: Wire Co
    rss: https://wire.example/rss
    ratings:
      accuracy: 9.5
    institutional_holders:
      - name: Vanguard
        percent: 7.2
  - id: paper
    name: City Paper
    owner: Paper Group
    url: https://paper.example
    scrape_selector: h2.headline
    ratings:
      accuracy: 8.1
`
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	r, err := Load(path, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	wire, ok := r.Get("wire")
	require.True(t, ok)
	assert.Equal(t, "Wire Service", wire.Name)
	assert.Equal(t, 9.5, wire.Ratings.Accuracy)
	assert.Equal(t, "https://wire.example/rss", wire.RSS)

	ids := []string{}
	for _, s := range r.Sources() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"wire", "paper"}, ids)
	assert.True(t, r.Unrelated("wire", "paper"))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), 2)
	assert.Error(t, err)
}
