package audio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/soyeahso/colloquy/internal/config"
	"github.com/soyeahso/colloquy/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func sampleDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("RIFF"), 0o644))
	}
	return dir
}

func TestFindSample(t *testing.T) {
	dir := sampleDir(t, "notes.txt", "b.MP3", "a.wav")
	got, err := FindSample(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a.wav"), got)

	empty := sampleDir(t, "readme.md")
	got, err = FindSample(empty)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = FindSample(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPlayWelcome_NoSample(t *testing.T) {
	p := NewPlayer(config.AudioConfig{Enabled: true, Player: "true"}, silentLog())
	ctx := context.Background()

	assert.Equal(t, NoSample, p.PlayWelcome(ctx, "").Status)
	assert.Equal(t, NoSample, p.PlayWelcome(ctx, filepath.Join(t.TempDir(), "nope")).Status)
	assert.Equal(t, NoSample, p.PlayWelcome(ctx, sampleDir(t, "x.ogg")).Status)
}

func TestPlayWelcome_Disabled(t *testing.T) {
	p := NewPlayer(config.AudioConfig{Enabled: false, Player: "true"}, silentLog())
	res := p.PlayWelcome(context.Background(), sampleDir(t, "hello.wav"))
	assert.Equal(t, Unavailable, res.Status)
	assert.NoError(t, res.Err)
}

func TestPlayWelcome_PlayerMissing(t *testing.T) {
	p := NewPlayer(config.AudioConfig{Enabled: true, Player: "no-such-player-xyz-123"}, silentLog())
	res := p.PlayWelcome(context.Background(), sampleDir(t, "hello.wav"))
	assert.Equal(t, Unavailable, res.Status)
	assert.Error(t, res.Err)
}

func TestPlayWelcome_Played(t *testing.T) {
	p := NewPlayer(config.AudioConfig{Enabled: true, Player: "true"}, silentLog())
	dir := sampleDir(t, "hello.wav")

	res := p.PlayWelcome(context.Background(), dir)
	require.Equal(t, Played, res.Status, "err: %v", res.Err)
	assert.Equal(t, filepath.Join(dir, "hello.wav"), res.File)

	assert.Eventually(t, func() bool { return p.Running() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestPlayWelcome_FailedOnUnreadableDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	p := NewPlayer(config.AudioConfig{Enabled: true, Player: "true"}, silentLog())
	res := p.PlayWelcome(context.Background(), file)
	assert.Equal(t, Failed, res.Status)
	assert.Error(t, res.Err)
}

func TestClose_StopsPlayers(t *testing.T) {
	// The sample path lands in $1 and is ignored.
	p := NewPlayer(config.AudioConfig{
		Enabled: true,
		Player:  "sh",
		Args:    []string{"-c", "sleep 30", "sh"},
	}, silentLog())

	res := p.PlayWelcome(context.Background(), sampleDir(t, "hello.wav"))
	require.Equal(t, Played, res.Status, "err: %v", res.Err)
	assert.Equal(t, 1, p.Running())

	require.NoError(t, p.Close())
	assert.Eventually(t, func() bool { return p.Running() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "played", Played.String())
	assert.Equal(t, "no_sample", NoSample.String())
	assert.Equal(t, "unavailable", Unavailable.String())
	assert.Equal(t, "failed", Failed.String())
}
