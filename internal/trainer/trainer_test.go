package trainer

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topicmine/platform/internal/analyzer"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

func writeInputFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docs.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadTokenFile(t *testing.T) {
	an, err := analyzer.New(analyzer.Config{})
	require.NoError(t, err)

	content := "alpha-1\tThe quick brown fox jumps over the lazy dog\n" +
		"Databases store structured information for retrieval\n" +
		"\n" +
		"\tTabbed line without an identifier\n" +
		"to be or not to be\n"
	mem, err := LoadTokenFile(writeInputFile(t, content), an)
	require.NoError(t, err)

	// Line three is blank and line five is all stop-words; both vanish.
	require.Equal(t, uint32(3), mem.NumDocs())

	id0, err := mem.ExternalID(0)
	require.NoError(t, err)
	assert.Equal(t, "alpha-1", id0)

	// Generated ids carry the one-based line number.
	id1, err := mem.ExternalID(1)
	require.NoError(t, err)
	assert.Equal(t, "doc-000002", id1)
	id2, err := mem.ExternalID(2)
	require.NoError(t, err)
	assert.Equal(t, "doc-000004", id2)

	assert.Greater(t, mem.TotalTokens(), uint64(0))
	assert.Greater(t, mem.Vocab().Len(), 0)
}

func TestLoadTokenFileNoUsableDocuments(t *testing.T) {
	an, err := analyzer.New(analyzer.Config{})
	require.NoError(t, err)

	_, err = LoadTokenFile(writeInputFile(t, "\n\nto be or not to be\n"), an)
	assert.ErrorContains(t, err, "no usable documents")
}

func TestLoadTokenFileMissing(t *testing.T) {
	an, err := analyzer.New(analyzer.Config{})
	require.NoError(t, err)

	_, err = LoadTokenFile(filepath.Join(t.TempDir(), "absent.txt"), an)
	assert.Error(t, err)
}

func TestNewRunID(t *testing.T) {
	pattern := regexp.MustCompile(`^run-\d{8}-\d{6}-[0-9a-f]{8}$`)
	a := NewRunID()
	b := NewRunID()
	assert.Regexp(t, pattern, a)
	assert.Regexp(t, pattern, b)
	assert.NotEqual(t, a, b)
}

func TestResolveSeed(t *testing.T) {
	assert.Equal(t, int64(42), ResolveSeed(42))
	assert.Equal(t, int64(-7), ResolveSeed(-7))

	resolved := ResolveSeed(0)
	assert.NotZero(t, resolved)
	assert.NotEqual(t, resolved, ResolveSeed(0))
}
