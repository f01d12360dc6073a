package acquire

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasa-jpl/dualread/linepair"
	"github.com/nasa-jpl/dualread/rawfile"
)

func capture(fill byte) rawfile.Frame {
	data := bytes.Repeat([]byte{fill}, 24)
	return rawfile.Frame{
		Geometry: linepair.Geometry{Width: 8, Height: 2},
		Format:   linepair.Packed12,
		Time:     time.Unix(1700000000, 0),
		Data:     data,
	}
}

func writeCaptures(t *testing.T, fills ...byte) []string {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for i, fill := range fills {
		p := filepath.Join(dir, string(rune('a'+i))+rawfile.Ext)
		require.NoError(t, rawfile.WriteFile(p, capture(fill)))
		paths = append(paths, p)
	}
	return paths
}

func TestPlaybackCycles(t *testing.T) {
	p, err := NewPlayback(writeCaptures(t, 1, 2)...)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())
	want := []byte{1, 2, 1}
	for i, fill := range want {
		rf, err := p.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, fill, rf.Data[0], "frame %d", i)
		assert.Equal(t, uint64(i), rf.Seq)
		assert.Equal(t, linepair.Packed12, rf.Mode.Format)
	}
}

func TestPlaybackEmpty(t *testing.T) {
	p, err := NewPlayback()
	require.NoError(t, err)
	_, err = p.Next(context.Background())
	assert.Equal(t, ErrNoFrame, err)
}

func TestPlaybackRejectsBadGeometry(t *testing.T) {
	f := capture(0)
	f.Geometry.Width = 16
	p := filepath.Join(t.TempDir(), "bad"+rawfile.Ext)
	require.NoError(t, rawfile.WriteFile(p, f))
	_, err := NewPlayback(p)
	assert.True(t, errors.Is(err, linepair.ErrGeometryMismatch), "got %v", err)
}

func TestPlaybackCanceled(t *testing.T) {
	p, err := NewPlayback(writeCaptures(t, 1)...)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Next(ctx)
	assert.Equal(t, context.Canceled, err)
}

func nextWithin(t *testing.T, s *Spool, d time.Duration) ([]byte, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	rf, err := s.Next(ctx)
	return rf.Data, err
}

func TestSpoolPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSpool(dir)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, rawfile.WriteFile(filepath.Join(dir, "one"+rawfile.Ext), capture(7)))
	data, err := nextWithin(t, s, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, byte(7), data[0])
}

func TestSpoolIgnoresOtherExtensions(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSpool(dir)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))
	_, err = nextWithin(t, s, 100*time.Millisecond)
	assert.Equal(t, context.DeadlineExceeded, err)
}

func TestSpoolWaitsForPartialWrite(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSpool(dir, WithRetryBudget(2*time.Second))
	require.NoError(t, err)
	defer s.Close()

	var buf bytes.Buffer
	require.NoError(t, rawfile.Write(&buf, capture(9)))
	full := buf.Bytes()
	path := filepath.Join(dir, "slow"+rawfile.Ext)
	require.NoError(t, os.WriteFile(path, full[:20], 0o644))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, full, 0o644))

	data, err := nextWithin(t, s, 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, byte(9), data[0])

	// later write events on the same file do not produce a second frame
	_, err = nextWithin(t, s, 100*time.Millisecond)
	assert.Equal(t, context.DeadlineExceeded, err)
}

func TestSpoolFullQueueDropsOldest(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSpool(dir, WithQueue(1))
	require.NoError(t, err)
	defer s.Close()

	for i, fill := range []byte{1, 2, 3} {
		name := filepath.Join(dir, string(rune('a'+i))+rawfile.Ext)
		require.NoError(t, rawfile.WriteFile(name, capture(fill)))
	}
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.seq == 3
	}, 3*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	rf, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(3), rf.Data[0])
	assert.Equal(t, uint64(2), rf.Seq)

	_, err = nextWithin(t, s, 100*time.Millisecond)
	assert.Equal(t, context.DeadlineExceeded, err)
}

func TestSpoolClose(t *testing.T) {
	s, err := NewSpool(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err = s.Next(context.Background())
	assert.Equal(t, ErrNoFrame, err)
}

func TestSpoolMissingDir(t *testing.T) {
	_, err := NewSpool(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
