package server

import (
	"bytes"
	"net/http"
	"os"
	"time"

	"legato/internal/metadata"

	"github.com/sirupsen/logrus"
)

// handleStreamSound serves a sound's file. Range requests, conditional
// requests and HEAD are handled by http.ServeContent.
func (ms *MusicServer) handleStreamSound(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	if verr := validateHash("sound_hash", hash); verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return
	}

	sound, err := ms.db.GetSound(hash)
	if err != nil {
		ms.respondWithLookupError(w, r, "Sound", err)
		return
	}

	file, err := os.Open(sound.FilePath)
	if err != nil {
		ms.logger.WithError(err).WithFields(logrus.Fields{
			"hash": hash,
			"path": sound.FilePath,
		}).Warn("Sound file is gone")
		ms.respondWithError(w, r, http.StatusNotFound, "Sound file not found", nil)
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error reading sound file", err)
		return
	}

	w.Header().Set("Content-Type", metadata.ContentType(sound.FilePath))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeContent(w, r, stat.Name(), stat.ModTime(), file)
}

// handleArtwork serves cover art extracted while scanning.
func (ms *MusicServer) handleArtwork(w http.ResponseWriter, r *http.Request) {
	data, ok := ms.extractor.Artwork(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", metadata.ImageType(data))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(data))
}
