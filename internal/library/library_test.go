package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"legato/internal/database"
	"legato/internal/metadata"
	"legato/pkg/models"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExtractor accepts .mp3 files and fails on names containing "broken".
type fakeExtractor struct{}

func (fakeExtractor) IsAudioFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".mp3")
}

func (fakeExtractor) ExtractFromFile(path string) (models.Sound, error) {
	if strings.Contains(path, "broken") {
		return models.Sound{}, errors.New("unreadable")
	}
	hash := metadata.SoundHash(path)
	return models.Sound{
		Hash:     hash,
		Title:    filepath.Base(path),
		PlayURL:  metadata.StreamPrefix + hash,
		Type:     models.SoundTrack,
		FilePath: path,
	}, nil
}

type memCatalog struct {
	mutex  sync.Mutex
	sounds map[string]models.Sound
}

func newMemCatalog() *memCatalog {
	return &memCatalog{sounds: make(map[string]models.Sound)}
}

func (c *memCatalog) InsertSound(s models.Sound) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.sounds[s.FilePath] = s
	return nil
}

func (c *memCatalog) SoundExists(path string) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	_, ok := c.sounds[path]
	return ok, nil
}

func (c *memCatalog) RemoveSoundByPath(path string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.sounds, path)
	return nil
}

func (c *memCatalog) has(path string) bool {
	ok, _ := c.SoundExists(path)
	return ok
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestScanner_Scan(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.mp3"))
	touch(t, filepath.Join(root, "album", "b.MP3"))
	touch(t, filepath.Join(root, "album", "deep", "c.mp3"))
	touch(t, filepath.Join(root, "album", "broken.mp3"))
	touch(t, filepath.Join(root, "cover.jpg"))

	logger, hook := logtest.NewNullLogger()
	catalog := newMemCatalog()
	scanner := NewScanner(catalog, fakeExtractor{}, 3, logger)

	n, err := scanner.Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.True(t, catalog.has(filepath.Join(root, "album", "deep", "c.mp3")))
	assert.False(t, catalog.has(filepath.Join(root, "cover.jpg")))

	var errored bool
	for _, e := range hook.AllEntries() {
		if e.Message == "Error extracting metadata" {
			errored = true
		}
	}
	assert.True(t, errored)
}

func TestScanner_ScanCancelled(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.mp3"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	logger, _ := logtest.NewNullLogger()
	_, err := NewScanner(newMemCatalog(), fakeExtractor{}, 1, logger).Scan(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanner_MissingRoot(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	_, err := NewScanner(newMemCatalog(), fakeExtractor{}, 2, logger).Scan(context.Background(), "/definitely/not/here")
	assert.Error(t, err)
}

func TestScanner_IntoDatabase(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "one.mp3"))
	touch(t, filepath.Join(root, "two.mp3"))

	logger, _ := logtest.NewNullLogger()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "lib.db"), logger)
	require.NoError(t, err)
	defer db.Close()

	scanner := NewScanner(db, fakeExtractor{}, 2, logger)
	_, err = scanner.Scan(context.Background(), root)
	require.NoError(t, err)

	// rescanning upserts instead of duplicating
	_, err = scanner.Scan(context.Background(), root)
	require.NoError(t, err)

	sounds, err := db.GetAllSounds()
	require.NoError(t, err)
	assert.Len(t, sounds, 2)

	scanner.Remove(filepath.Join(root, "one.mp3"))
	sounds, err = db.GetAllSounds()
	require.NoError(t, err)
	assert.Len(t, sounds, 1)
}

func TestWatcher_FollowsFiles(t *testing.T) {
	root := t.TempDir()
	logger, _ := logtest.NewNullLogger()
	catalog := newMemCatalog()
	scanner := NewScanner(catalog, fakeExtractor{}, 1, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWatcher(scanner, root, 10*time.Millisecond)
	require.NoError(t, w.Start(ctx))
	defer w.Close()

	song := filepath.Join(root, "new.mp3")
	touch(t, song)
	require.Eventually(t, func() bool { return catalog.has(song) }, 5*time.Second, 20*time.Millisecond)

	hidden := filepath.Join(root, ".hidden.mp3")
	touch(t, hidden)

	nested := filepath.Join(root, "later")
	require.NoError(t, os.Mkdir(nested, 0755))
	time.Sleep(100 * time.Millisecond)
	deep := filepath.Join(nested, "deep.mp3")
	touch(t, deep)
	require.Eventually(t, func() bool { return catalog.has(deep) }, 5*time.Second, 20*time.Millisecond)
	assert.False(t, catalog.has(hidden))

	require.NoError(t, os.Remove(song))
	require.Eventually(t, func() bool { return !catalog.has(song) }, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_StopsWithContext(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	scanner := NewScanner(newMemCatalog(), fakeExtractor{}, 1, logger)

	ctx, cancel := context.WithCancel(context.Background())
	w := NewWatcher(scanner, t.TempDir(), DefaultSettle)
	require.NoError(t, w.Start(ctx))

	cancel()
	done := make(chan struct{})
	go func() {
		w.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
