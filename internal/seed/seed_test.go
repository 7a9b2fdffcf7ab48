package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitor-router/internal/domain"
	"visitor-router/internal/engine"
	"visitor-router/internal/storage"
)

const doc = `
targets:
  - id: "1"
    url: http://example.com
    value: "0.50"
    maxAcceptsPerDay: "10"
    accept:
      geoState:
        $in: [ca, ny]
      hour:
        $in: ["13", "14"]
  - id: "2"
    url: http://example.org
    value: "1.25"
    maxAcceptsPerDay: "5"
    accept:
      geoState: {$in: [tx]}
      hour: {$in: ["0"]}
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	targets, err := Load(writeFile(t, doc))
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "1", targets[0].ID)
	assert.Equal(t, []string{"ca", "ny"}, targets[0].Accept.GeoState.In)
	assert.Equal(t, []string{"13", "14"}, targets[0].Accept.Hour.In)
	assert.Equal(t, "1.25", targets[1].Value)

	_, err = Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "targets: [oops"))
	assert.Error(t, err)
}

func TestApply_CreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	eng := engine.NewEngine(storage.NewMemory())
	targets, err := Load(writeFile(t, doc))
	require.NoError(t, err)

	res, err := Apply(ctx, eng.Targets(), targets)
	require.NoError(t, err)
	assert.Equal(t, Result{Created: 2}, res)

	targets[1].Accept.GeoState.In = []string{"fl"}
	res, err = Apply(ctx, eng.Targets(), targets)
	require.NoError(t, err)
	assert.Equal(t, Result{Updated: 2}, res)

	ids, err := eng.Index().Candidates(ctx, "tx", "0")
	require.NoError(t, err)
	assert.Empty(t, ids)
	ids, err = eng.Index().Candidates(ctx, "fl", "0")
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, ids)
}

func TestApply_StopsOnInvalid(t *testing.T) {
	eng := engine.NewEngine(storage.NewMemory())
	res, err := Apply(context.Background(), eng.Targets(), []domain.Target{{ID: "bad"}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, Result{}, res)
}
