package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/quarry/internal/core/services"
)

// fakeConfig is an in-memory config store for wiring tests.
type fakeConfig struct {
	strings map[string]string
	ints    map[string]int
	floats  map[string]float64
}

func (f *fakeConfig) Get(key string) (any, bool) {
	if v, ok := f.strings[key]; ok {
		return v, true
	}
	if v, ok := f.ints[key]; ok {
		return v, true
	}
	if v, ok := f.floats[key]; ok {
		return v, true
	}
	return nil, false
}

func (f *fakeConfig) GetString(key string) string { return f.strings[key] }

func (f *fakeConfig) GetInt(key string) int { return f.ints[key] }

func (f *fakeConfig) GetFloat(key string) float64 { return f.floats[key] }

func (f *fakeConfig) GetBool(string) bool { return false }

func (f *fakeConfig) GetStringSlice(string) []string { return nil }

func (f *fakeConfig) Set(string, any) error { return nil }

func (f *fakeConfig) Save() error { return nil }

func (f *fakeConfig) Load() error { return nil }

func (f *fakeConfig) Path() string { return "" }

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")

	require.NoError(t, err)
	assert.Contains(t, out, "quarry version dev")
}

func TestSkipsServices(t *testing.T) {
	assert.True(t, skipsServices(versionCmd))
	assert.False(t, skipsServices(queryCmd))
	assert.False(t, skipsServices(ingestCmd))
}

func TestQueryConfig_Defaults(t *testing.T) {
	cfg := queryConfig(&fakeConfig{})

	assert.Equal(t, services.DefaultTopK, cfg.DefaultTopK)
	assert.InDelta(t, 0.6, cfg.Fusion.VectorWeight, 1e-9)
	assert.InDelta(t, 0.4, cfg.Fusion.KeywordWeight, 1e-9)
	assert.Equal(t, 60, cfg.Fusion.RRFK)
}

func TestQueryConfig_Overrides(t *testing.T) {
	cfg := queryConfig(&fakeConfig{
		ints:   map[string]int{"query.top_k": 25, "query.rrf_k": 30},
		floats: map[string]float64{"query.vector_weight": 0.7, "query.keyword_weight": 0.3},
	})

	assert.Equal(t, 25, cfg.DefaultTopK)
	assert.Equal(t, 30, cfg.Fusion.RRFK)
	assert.InDelta(t, 0.7, cfg.Fusion.VectorWeight, 1e-9)
	assert.InDelta(t, 0.3, cfg.Fusion.KeywordWeight, 1e-9)
}

func TestDataRoot_FlagOverride(t *testing.T) {
	prev := dataDir
	dataDir = t.TempDir()
	defer func() { dataDir = prev }()

	root, err := dataRoot()

	require.NoError(t, err)
	assert.Equal(t, dataDir, root)
}

func TestDataRoot_DefaultUnderHome(t *testing.T) {
	prev := dataDir
	dataDir = ""
	defer func() { dataDir = prev }()

	root, err := dataRoot()

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(".quarry", "data"), filepath.Join(filepath.Base(filepath.Dir(root)), filepath.Base(root)))
}

func TestBuildEmbedder_NoneConfigured(t *testing.T) {
	assert.Nil(t, buildEmbedder(&fakeConfig{}))
	assert.Nil(t, buildEmbedder(&fakeConfig{strings: map[string]string{"embedding.provider": "none"}}))
}

func TestBuildEmbedder_UnknownProvider(t *testing.T) {
	cfg := &fakeConfig{strings: map[string]string{"embedding.provider": "acme"}}

	assert.Nil(t, buildEmbedder(cfg))
}
