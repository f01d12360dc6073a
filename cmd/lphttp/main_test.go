package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasa-jpl/dualread/camera"
	"github.com/nasa-jpl/dualread/imgrec"
	"github.com/nasa-jpl/dualread/rawfile"
)

func TestBuildSimSource(t *testing.T) {
	src, closer, err := buildSource(source{Type: "sim", Width: 16, Height: 4, Format: "packed12", Stride: 30, Pattern: "counter"})
	require.NoError(t, err)
	defer closer()
	rf, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30, rf.Stride)
	assert.Len(t, rf.Data, 120)
}

func TestBuildSourceErrors(t *testing.T) {
	cases := []source{
		{Type: "sim", Width: 16, Height: 4, Format: "yuv"},
		{Type: "sim", Width: 12, Height: 4, Format: "packed12"},
		{Type: "sim", Width: 16, Height: 4, Format: "packed12", Stride: 10},
		{Type: "playback", Files: []string{"does-not-exist.lpr"}},
		{Type: "spool", Dir: "does-not-exist"},
		{Type: "v4l2"},
	}
	for _, c := range cases {
		_, _, err := buildSource(c)
		assert.Error(t, err, "%+v", c)
	}
}

func TestRawTapRecordsCaptures(t *testing.T) {
	src, _, err := buildSource(source{Type: "sim", Width: 8, Height: 2, Format: "direct16", Stride: 20})
	require.NoError(t, err)
	rec := &imgrec.Recorder{Root: t.TempDir(), Prefix: "raw", Ext: rawfile.Ext, Enabled: true}
	c := camera.New(src, camera.WithTap(rawTap(rec)))
	img, err := c.GetFrame(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, rec.Last())
	assert.Equal(t, rawfile.Ext, filepath.Ext(rec.Last()))
	f, err := rawfile.ReadFile(rec.Last())
	require.NoError(t, err)
	assert.Len(t, f.Data, 32, "padding stripped")
	assert.Equal(t, img.Mode.Geometry, f.Geometry)
}
