package moderation

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	f := NewFilter()

	tests := []struct {
		in, want string
	}{
		{"Smart Garden Sensor", "Smart Garden Sensor"},
		{"this is SHIT", "this is ****"},
		{"Fucking great idea", "******* great idea"},
		{"classic assessment", "classic assessment"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.Clean(tt.in), tt.in)
	}
}

func TestNewFilter_Extra(t *testing.T) {
	f := NewFilter("Brocolli")
	assert.Equal(t, "I hate ********", f.Clean("I hate brocolli"))
	assert.Contains(t, f.Words(), "brocolli")
}

func TestParseWordList(t *testing.T) {
	words, err := ParseWordList(strings.NewReader("# comment\nfoo\n\n  bar  \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"foo", "bar"}, words)
}

func TestLoadFile_ErrorKeepsList(t *testing.T) {
	f := NewFilter("keepme")
	err := f.LoadFile(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.Contains(t, f.Words(), "keepme")
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "words.txt")
	require.NoError(t, os.WriteFile(path, []byte("alpha\n"), 0o644))

	f := NewFilter()
	require.NoError(t, f.LoadFile(path))
	assert.Equal(t, "*****", f.Clean("alpha"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reloads atomic.Int32
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, f, path, logger, func() { reloads.Add(1) }) }()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("beta\n"), 0o644))

	require.Eventually(t, func() bool { return reloads.Load() > 0 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "****", f.Clean("beta"))
	assert.Equal(t, "alpha", f.Clean("alpha"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
