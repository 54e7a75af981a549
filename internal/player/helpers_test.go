package player

import (
	"errors"
	"sync"

	"legato/pkg/models"
)

func sound(hash string) models.Sound {
	return models.Sound{
		Hash:    hash,
		Title:   "Sound " + hash,
		PlayURL: "/stream/" + hash,
		Type:    models.SoundTrack,
	}
}

func sounds(hashes ...string) []models.Sound {
	out := make([]models.Sound, 0, len(hashes))
	for _, h := range hashes {
		out = append(out, sound(h))
	}
	return out
}

func hashes(list []models.Sound) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, s.Hash)
	}
	return out
}

func list(hash string, soundHashes ...string) models.List {
	return models.List{Hash: hash, Sounds: sounds(soundHashes...)}
}

// reverse is a deterministic stand-in for a shuffle.
func reverse(in []models.Sound) []models.Sound {
	out := make([]models.Sound, len(in))
	for i, s := range in {
		out[len(in)-1-i] = s
	}
	return out
}

type fakeStorage struct {
	mutex   sync.Mutex
	saved   *State
	saves   int
	loadErr error
	saveErr error
	flushed int
}

func (f *fakeStorage) Load() (*State, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.saved == nil {
		return nil, nil
	}
	s := f.saved.Clone()
	return &s, nil
}

func (f *fakeStorage) Save(s State) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	c := s.Clone()
	f.saved = &c
	return nil
}

func (f *fakeStorage) Flush() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.flushed++
	return nil
}

func (f *fakeStorage) last() *State {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.saved
}

var errDisk = errors.New("disk on fire")
