package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/infrastructure/persistence/memory"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "directory.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAndApply(t *testing.T) {
	path := writeFile(t, `{
		"users": [
			{"id": "artisan-1", "role": "artisan", "display_name": "Aigerim"},
			{"id": "applicant-x", "role": "APPLICANT"}
		],
		"programs": [
			{"id": "program-p", "artisan_id": "artisan-1", "title": "Felt making", "is_open": true, "duration_weeks": 8}
		]
	}`)

	f, err := Load(path)
	require.NoError(t, err)

	store := memory.NewStore()
	res, err := f.Apply(context.Background(), store.Directory())
	require.NoError(t, err)
	assert.Equal(t, Result{Users: 2, Programs: 1}, res)

	prog, err := store.Directory().GetProgram(context.Background(), "program-p")
	require.NoError(t, err)
	assert.Equal(t, 8, prog.DurationWeeks)
	assert.True(t, prog.IsOpen)

	users, err := store.Directory().GetUsers(context.Background(), []string{"artisan-1"})
	require.NoError(t, err)
	assert.Equal(t, "ARTISAN", users["artisan-1"].Role)
}

func TestLoadRejectsInvalidRecords(t *testing.T) {
	path := writeFile(t, `{
		"users": [{"id": "", "role": "admin"}],
		"programs": [{"id": "p", "duration_weeks": -1}]
	}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "users[0]: id is required")
	assert.Contains(t, err.Error(), "programs[0]: artisan_id is required")
	assert.Contains(t, err.Error(), "duration_weeks")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
