// Package library keeps the sound catalog in step with the music directory.
package library

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"
	"sync/atomic"

	"legato/pkg/models"

	"github.com/sirupsen/logrus"
)

// Catalog is where scanned sounds end up.
type Catalog interface {
	InsertSound(sound models.Sound) error
	SoundExists(filePath string) (bool, error)
	RemoveSoundByPath(filePath string) error
}

// Extractor turns a file into a sound.
type Extractor interface {
	ExtractFromFile(path string) (models.Sound, error)
	IsAudioFile(path string) bool
}

// Scanner walks a directory and upserts every audio file it finds.
type Scanner struct {
	catalog   Catalog
	extractor Extractor
	workers   int
	logger    logrus.FieldLogger
}

// NewScanner creates a scanner running workers extractions at once.
func NewScanner(catalog Catalog, extractor Extractor, workers int, logger logrus.FieldLogger) *Scanner {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scanner{
		catalog:   catalog,
		extractor: extractor,
		workers:   workers,
		logger:    logger.WithField("component", "scanner"),
	}
}

// Scan walks root and returns how many sounds were stored. Files that fail
// to extract or insert are logged and skipped.
func (s *Scanner) Scan(ctx context.Context, root string) (int, error) {
	s.logger.WithField("root", root).Info("Scanning music library")

	var (
		wg    sync.WaitGroup
		count atomic.Int64
		jobs  = make(chan string, 100)
	)

	for range s.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				if s.Add(path) {
					count.Add(1)
				}
			}
		}()
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !d.IsDir() && s.extractor.IsAudioFile(path) {
			select {
			case jobs <- path:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	close(jobs)
	wg.Wait()

	s.logger.WithFields(logrus.Fields{
		"root":   root,
		"sounds": count.Load(),
	}).Info("Library scan finished")
	return int(count.Load()), walkErr
}

// Add extracts and stores a single file. It reports whether the sound was
// stored.
func (s *Scanner) Add(path string) bool {
	log := s.logger.WithField("path", path)

	sound, err := s.extractor.ExtractFromFile(path)
	if err != nil {
		log.WithError(err).Error("Error extracting metadata")
		return false
	}
	if err := s.catalog.InsertSound(sound); err != nil {
		log.WithError(err).Error("Error inserting sound")
		return false
	}

	log.WithFields(logrus.Fields{
		"hash":   sound.Hash,
		"author": sound.AuthorName,
		"title":  sound.Title,
	}).Debug("Added sound")
	return true
}

// Remove drops the sound stored for path.
func (s *Scanner) Remove(path string) {
	if err := s.catalog.RemoveSoundByPath(path); err != nil {
		s.logger.WithError(err).WithField("path", path).Error("Error removing sound")
		return
	}
	s.logger.WithField("path", path).Info("Removed sound")
}
