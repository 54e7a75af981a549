package server

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"legato/internal/metadata"

	"github.com/sirupsen/logrus"
)

const uploadField = "file"

// handleUploadSound stores an uploaded audio file under the caller's upload
// folder and adds it to the library.
func (ms *MusicServer) handleUploadSound(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)
	maxSize := int64(ms.cfg.Music.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+maxBodyBytes)
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		ms.respondWithError(w, r, http.StatusBadRequest, "Failed to parse upload form", err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		ms.respondWithError(w, r, http.StatusBadRequest, "No file provided", err)
		return
	}
	defer file.Close()

	if header.Size > maxSize {
		ms.respondWithError(w, r, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("File too large (max %d MB)", ms.cfg.Music.MaxUploadMB), nil)
		return
	}
	if !ms.extractor.IsAudioFile(header.Filename) {
		ms.respondWithError(w, r, http.StatusBadRequest,
			"Invalid file type. Supported formats: "+strings.Join(ms.cfg.Music.SupportedFormats, ", "), nil)
		return
	}

	dir := filepath.Join(ms.cfg.Music.UploadPath, owner)
	if err := os.MkdirAll(dir, 0755); err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Failed to create upload folder", err)
		return
	}

	dest := uniquePath(dir, filepath.Base(header.Filename))
	if verr := validateFilePath(dir, dest); verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return
	}
	if err := saveUpload(dest, file); err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Failed to save file", err)
		return
	}

	log := ms.logger.WithFields(logrus.Fields{
		"owner": owner,
		"path":  dest,
	})
	if !ms.scanner.Add(dest) {
		log.Warn("Uploaded file could not be added to the library")
	}

	sound, err := ms.db.GetSound(metadata.SoundHash(dest))
	if err != nil {
		os.Remove(dest)
		ms.respondWithError(w, r, http.StatusUnprocessableEntity, "Uploaded file is not readable audio", err)
		return
	}

	log.WithField("hash", sound.Hash).Info("Sound uploaded")
	ms.respondJSON(w, http.StatusCreated, sound)
}

// uniquePath returns dir/name, numbering the name when it is taken.
func uniquePath(dir, name string) string {
	if name == "." || name == string(filepath.Separator) {
		name = "upload"
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	dest := filepath.Join(dir, name)
	for n := 1; ; n++ {
		if _, err := os.Stat(dest); os.IsNotExist(err) {
			return dest
		}
		dest = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
	}
}

// saveUpload writes src to a temporary name first so the library watcher
// never sees a partial file under its final name.
func saveUpload(dest string, src io.Reader) error {
	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}
