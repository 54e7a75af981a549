// Package metadata turns audio files on disk into playable sounds.
package metadata

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"legato/internal/cache"
	"legato/pkg/models"

	"github.com/dhowden/tag"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	unknownAuthor = "Unknown Artist"

	// StreamPrefix and ArtworkPrefix are the URL paths sounds point at.
	StreamPrefix  = "/stream/"
	ArtworkPrefix = "/artwork/"
)

var (
	soundNamespace  = uuid.MustParse("6f1d6c3e-5a0b-4b8e-9a53-3c1e2d7f9b10")
	authorNamespace = uuid.MustParse("0c8f2a51-7d4e-4f0a-8c2b-91e5d6a3b7f4")
)

// SoundHash returns the stable identity of the file at path.
func SoundHash(path string) string {
	return uuid.NewSHA1(soundNamespace, []byte(filepath.Clean(path))).String()
}

// AuthorHash returns the stable identity of an author name.
func AuthorHash(name string) string {
	return uuid.NewSHA1(authorNamespace, []byte(strings.ToLower(strings.TrimSpace(name)))).String()
}

// Extractor reads tags and durations from audio files.
type Extractor struct {
	formats []string
	logger  logrus.FieldLogger
	artwork *cache.Cache[[]byte]
}

// NewExtractor creates an extractor accepting the given extensions.
func NewExtractor(formats []string, logger logrus.FieldLogger) *Extractor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Extractor{
		formats: formats,
		logger:  logger.WithField("component", "metadata"),
		artwork: cache.New[[]byte](0, 0),
	}
}

// ExtractFromFile builds a Sound for the file at path. Missing tags fall
// back to the file name; an unreadable duration is recorded as zero.
func (e *Extractor) ExtractFromFile(path string) (models.Sound, error) {
	start := time.Now()
	log := e.logger.WithField("path", path)

	file, err := os.Open(path)
	if err != nil {
		return models.Sound{}, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	duration, err := Duration(path)
	if err != nil {
		log.WithError(err).Warn("Failed to calculate duration, setting to 0")
		duration = 0
	}

	hash := SoundHash(path)
	sound := models.Sound{
		Hash:       hash,
		Title:      titleFromName(path),
		AuthorName: unknownAuthor,
		AuthorHash: AuthorHash(unknownAuthor),
		PlayURL:    StreamPrefix + hash,
		Type:       models.SoundTrack,
		Duration:   duration,
		FilePath:   path,
	}

	meta, err := tag.ReadFrom(file)
	if err != nil {
		log.WithError(err).Debug("No readable tags, using file name")
		return sound, nil
	}

	if title := strings.TrimSpace(meta.Title()); title != "" {
		sound.Title = title
	}
	if author := firstNonEmpty(meta.Artist(), meta.AlbumArtist(), meta.Composer()); author != "" {
		sound.AuthorName = author
		sound.AuthorHash = AuthorHash(author)
	}
	if strings.EqualFold(strings.TrimSpace(meta.Genre()), "podcast") {
		sound.Type = models.SoundEpisode
	}
	if id, ok := e.storeArtwork(meta.Picture()); ok {
		sound.Image = ArtworkPrefix + id
	}

	log.WithFields(logrus.Fields{
		"title":          sound.Title,
		"author":         sound.AuthorName,
		"duration":       sound.Duration,
		"hasArtwork":     sound.Image != "",
		"processingTime": time.Since(start),
	}).Debug("Extracted metadata")

	return sound, nil
}

func (e *Extractor) storeArtwork(picture *tag.Picture) (string, bool) {
	if picture == nil || len(picture.Data) == 0 {
		return "", false
	}
	sum := md5.Sum(picture.Data)
	id := hex.EncodeToString(sum[:])
	e.artwork.Set(id, picture.Data)
	return id, true
}

// Artwork returns embedded artwork seen during extraction.
func (e *Extractor) Artwork(id string) ([]byte, bool) {
	return e.artwork.Get(id)
}

// IsAudioFile reports whether path has one of the accepted extensions.
func (e *Extractor) IsAudioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext != "" && slices.Contains(e.formats, ext)
}

// ContentType returns the MIME type served for an audio file.
func ContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}

// ImageType sniffs the MIME type of artwork bytes.
func ImageType(data []byte) string {
	switch {
	case len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8:
		return "image/jpeg"
	case len(data) >= 4 && data[0] == 0x89 && string(data[1:4]) == "PNG":
		return "image/png"
	case len(data) >= 3 && string(data[:3]) == "GIF":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}

func titleFromName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

var errUnsupported = errors.New("unsupported format")

// readAtLeast reads exactly len(buf) bytes or fails.
func readAtLeast(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}
