package corpus

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

func TestEngineRejectsBadThreshold(t *testing.T) {
	_, err := NewEngine(t.TempDir(), 0)
	assert.Error(t, err)
	_, err = NewEngine(t.TempDir(), -1)
	assert.Error(t, err)
}

func TestEngineFlushesAtThreshold(t *testing.T) {
	dir := t.TempDir()
	e, err := NewEngine(dir, 2)
	require.NoError(t, err)

	require.NoError(t, e.AddDocument("d1", []string{"one", "two"}))
	assert.False(t, e.NeedsFlush())
	stats := e.Stats()
	assert.Equal(t, 1, stats.BufferedDocs)
	assert.Equal(t, 0, stats.Segments)

	// The second document crosses the threshold and flushes inline.
	require.NoError(t, e.AddDocument("d2", []string{"two", "three"}))
	stats = e.Stats()
	assert.Equal(t, 0, stats.BufferedDocs)
	assert.Equal(t, 1, stats.Segments)
	assert.Equal(t, uint64(2), stats.TotalDocs)
	assert.Equal(t, uint64(4), stats.TotalTokens)
	assert.Equal(t, 3, stats.VocabTerms)

	segs, err := filepath.Glob(filepath.Join(dir, "*"+SegmentSuffix))
	require.NoError(t, err)
	assert.Len(t, segs, 1)
	_, err = os.Stat(filepath.Join(dir, VocabFileName))
	assert.NoError(t, err)
}

func TestEngineFlushEmptyBufferIsNoop(t *testing.T) {
	e, err := NewEngine(t.TempDir(), 10)
	require.NoError(t, err)

	info, err := e.Flush()
	require.NoError(t, err)
	assert.Nil(t, info)
	assert.Equal(t, 0, e.Stats().Segments)
}

func TestEngineManualFlushReportsSegment(t *testing.T) {
	dir := t.TempDir()
	e, err := NewEngine(dir, 100)
	require.NoError(t, err)

	require.NoError(t, e.AddDocument("d1", []string{"alpha", "alpha", "beta"}))
	info, err := e.Flush()
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, uint32(1), info.Docs)
	assert.Equal(t, uint32(2), info.Terms)
	assert.Equal(t, uint64(3), info.Tokens)
	assert.Equal(t, dir, filepath.Dir(info.Path))

	// The flushed directory must load as a complete corpus.
	disk, err := OpenDir(dir)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), disk.NumDocs())
	assert.Equal(t, uint64(3), disk.TotalTokens())
}

func TestEngineRecoversAcrossRestarts(t *testing.T) {
	dir := t.TempDir()

	e1, err := NewEngine(dir, 100)
	require.NoError(t, err)
	require.NoError(t, e1.AddDocument("d1", []string{"stable", "ids"}))
	_, err = e1.Flush()
	require.NoError(t, err)

	// A fresh engine over the same directory picks up the vocabulary and the
	// existing segment.
	e2, err := NewEngine(dir, 100)
	require.NoError(t, err)
	stats := e2.Stats()
	assert.Equal(t, 1, stats.Segments)
	assert.Equal(t, uint64(1), stats.TotalDocs)
	assert.Equal(t, uint64(2), stats.TotalTokens)
	assert.Equal(t, 2, stats.VocabTerms)

	require.NoError(t, e2.AddDocument("d2", []string{"ids", "forever"}))
	_, err = e2.Flush()
	require.NoError(t, err)

	disk, err := OpenDir(dir)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), disk.NumDocs())

	// "ids" must keep the id it was assigned before the restart.
	id, ok := disk.Vocab().ID("ids")
	require.True(t, ok)
	assert.Equal(t, TermID(1), id)
}

func TestEngineFlushHookFiresOnThreshold(t *testing.T) {
	e, err := NewEngine(t.TempDir(), 2)
	require.NoError(t, err)

	var infos []SegmentInfo
	e.SetOnFlush(func(info SegmentInfo) {
		infos = append(infos, info)
	})

	require.NoError(t, e.AddDocument("d1", []string{"one"}))
	assert.Empty(t, infos)

	// Crossing the threshold flushes inline and must fire the hook.
	require.NoError(t, e.AddDocument("d2", []string{"two"}))
	require.Len(t, infos, 1)
	assert.Equal(t, uint32(2), infos[0].Docs)

	// A manual flush of an empty buffer writes nothing and stays silent.
	_, err = e.Flush()
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

func TestEngineFlushLoopFinalFlush(t *testing.T) {
	e, err := NewEngine(t.TempDir(), 100)
	require.NoError(t, err)
	require.NoError(t, e.AddDocument("d1", []string{"drain", "me"}))

	flushed := make(chan SegmentInfo, 1)
	e.SetOnFlush(func(info SegmentInfo) {
		flushed <- info
	})
	ctx, cancel := context.WithCancel(context.Background())
	e.StartFlushLoop(ctx, time.Hour)
	cancel()

	select {
	case info := <-flushed:
		assert.Equal(t, uint32(1), info.Docs)
	case <-time.After(5 * time.Second):
		t.Fatal("flush loop did not drain the buffer on shutdown")
	}
	assert.Equal(t, 0, e.Stats().BufferedDocs)
}
