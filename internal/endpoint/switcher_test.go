package endpoint

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestSwitch_RewritesOnlyTheEndpointLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	writeFile(t, path, `# application settings
SECRET_KEY=abc123
DATABASE_URL=postgres://app:pw@db1:5432/app
REDIS_URL=redis://cache:6379/0
`)

	err := NewSwitcher(path).Switch("postgres://app:pw@db2:5432/app")
	require.NoError(t, err)

	assert.Equal(t, `# application settings
SECRET_KEY=abc123
DATABASE_URL=postgres://app:pw@db2:5432/app
REDIS_URL=redis://cache:6379/0
`, readFile(t, path))
}

func TestSwitch_PreservesExportPrefix(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	writeFile(t, path, "export DATABASE_URL=postgres://db1/app\n")

	err := NewSwitcher(path).Switch("postgres://db2/app")
	require.NoError(t, err)

	assert.Equal(t, "export DATABASE_URL=postgres://db2/app\n", readFile(t, path))
}

func TestSwitch_AppendsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	writeFile(t, path, "SECRET_KEY=abc123\n")

	err := NewSwitcher(path).Switch("postgres://db2/app")
	require.NoError(t, err)

	assert.Equal(t, "SECRET_KEY=abc123\nDATABASE_URL=postgres://db2/app\n", readFile(t, path))
}

func TestSwitch_CreatesFreshFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")

	err := NewSwitcher(path).Switch("postgres://db2/app")
	require.NoError(t, err)

	assert.Equal(t, "DATABASE_URL=postgres://db2/app\n", readFile(t, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSwitch_PreservesFileMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	writeFile(t, path, "DATABASE_URL=postgres://db1/app\n")
	require.NoError(t, os.Chmod(path, 0o640))

	err := NewSwitcher(path).Switch("postgres://db2/app")
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}

func TestSwitch_FailureBetweenTempWriteAndRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	original := "DATABASE_URL=postgres://db1/app\nOTHER=1\n"
	writeFile(t, path, original)

	s := NewSwitcher(path)
	s.commit = func(_, _ string) error {
		return errors.New("killed before rename")
	}

	err := s.Switch("postgres://db2/app")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigWrite), "got: %v", err)

	// original file untouched, no torn value visible to readers
	assert.Equal(t, original, readFile(t, path))

	// temp file cleaned up
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".env", entries[0].Name())
}

func TestSwitch_UnwritableLocation(t *testing.T) {
	// parent "directory" is a regular file, so any temp-file creation fails
	base := filepath.Join(t.TempDir(), "not-a-dir")
	writeFile(t, base, "plain file\n")

	err := NewSwitcher(filepath.Join(base, ".env")).Switch("postgres://db2/app")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigWrite), "got: %v", err)
}

func TestReplaceVar(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		value    string
		expected string
	}{
		{
			name:     "no trailing newline preserved",
			content:  "DATABASE_URL=old",
			value:    "new",
			expected: "DATABASE_URL=new",
		},
		{
			name:     "indented line is still matched",
			content:  "  DATABASE_URL=old\n",
			value:    "new",
			expected: "DATABASE_URL=new\n",
		},
		{
			name:     "only first occurrence rewritten",
			content:  "DATABASE_URL=a\nDATABASE_URL=b\n",
			value:    "new",
			expected: "DATABASE_URL=new\nDATABASE_URL=b\n",
		},
		{
			name:     "empty file",
			content:  "",
			value:    "new",
			expected: "DATABASE_URL=new\n",
		},
		{
			name:     "similar key is not touched",
			content:  "DATABASE_URL_RO=ro\n",
			value:    "new",
			expected: "DATABASE_URL_RO=ro\nDATABASE_URL=new\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, replaceVar(tt.content, Key, tt.value))
		})
	}
}
