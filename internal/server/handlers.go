package server

import (
	"errors"
	"net/http"

	"legato/internal/database"
	"legato/internal/player"
	"legato/pkg/models"
)

// handleGetSounds returns the library, filtered by ?search= when present.
func (ms *MusicServer) handleGetSounds(w http.ResponseWriter, r *http.Request) {
	query := sanitizeInput(r.URL.Query().Get("search"))
	if verr := validateSearchQuery(query); verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return
	}

	var (
		sounds []models.Sound
		err    error
	)
	if query != "" {
		sounds, err = ms.db.SearchSounds(query)
	} else {
		sounds, err = ms.db.GetAllSounds()
	}
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving sounds", err)
		return
	}
	if sounds == nil {
		sounds = []models.Sound{}
	}
	ms.respondJSON(w, http.StatusOK, sounds)
}

func (ms *MusicServer) handleGetSound(w http.ResponseWriter, r *http.Request) {
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
	ms.respondJSON(w, http.StatusOK, sound)
}

func (ms *MusicServer) handleGetLists(w http.ResponseWriter, r *http.Request) {
	lists, err := ms.db.GetAllLists()
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving lists", err)
		return
	}
	if lists == nil {
		lists = []database.ListSummary{}
	}
	ms.respondJSON(w, http.StatusOK, lists)
}

func (ms *MusicServer) handleCreateList(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !ms.decodeBody(w, r, &req) {
		return
	}
	req.Name = sanitizeInput(req.Name)
	req.Description = sanitizeInput(req.Description)

	var errs []ValidationError
	for _, verr := range []*ValidationError{validateListName(req.Name), validateListDescription(req.Description)} {
		if verr != nil {
			errs = append(errs, *verr)
		}
	}
	if len(errs) > 0 {
		ms.respondWithValidationError(w, r, errs...)
		return
	}

	list, err := ms.db.CreateList(req.Name, req.Description)
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error creating list", err)
		return
	}
	ms.respondJSON(w, http.StatusCreated, list)
}

// list loads a list through the cache.
func (ms *MusicServer) list(hash string) (*models.List, error) {
	return ms.lists.GetOrLoad(hash, func() (*models.List, error) {
		return ms.db.GetList(hash)
	})
}

func (ms *MusicServer) listHash(w http.ResponseWriter, r *http.Request) (string, bool) {
	hash := r.PathValue("hash")
	if verr := validateHash("list_hash", hash); verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return "", false
	}
	return hash, true
}

func (ms *MusicServer) handleGetList(w http.ResponseWriter, r *http.Request) {
	hash, ok := ms.listHash(w, r)
	if !ok {
		return
	}
	list, err := ms.list(hash)
	if err != nil {
		ms.respondWithLookupError(w, r, "List", err)
		return
	}
	ms.respondJSON(w, http.StatusOK, list)
}

func (ms *MusicServer) handleDeleteList(w http.ResponseWriter, r *http.Request) {
	hash, ok := ms.listHash(w, r)
	if !ok {
		return
	}
	if err := ms.db.DeleteList(hash); err != nil {
		ms.respondWithLookupError(w, r, "List", err)
		return
	}
	ms.lists.Delete(hash)
	w.WriteHeader(http.StatusNoContent)
}

type listSoundRequest struct {
	SoundHash string `json:"soundHash"`
}

func (ms *MusicServer) listSoundRequest(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	hash, ok := ms.listHash(w, r)
	if !ok {
		return "", "", false
	}
	var req listSoundRequest
	if !ms.decodeBody(w, r, &req) {
		return "", "", false
	}
	if verr := validateHash("sound_hash", req.SoundHash); verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return "", "", false
	}
	return hash, req.SoundHash, true
}

func (ms *MusicServer) handleAddSoundToList(w http.ResponseWriter, r *http.Request) {
	listHash, soundHash, ok := ms.listSoundRequest(w, r)
	if !ok {
		return
	}
	if err := ms.db.AddSoundToList(listHash, soundHash); err != nil {
		ms.respondWithLookupError(w, r, "List or sound", err)
		return
	}
	ms.lists.Delete(listHash)
	ms.respondListAfterChange(w, r, listHash)
}

func (ms *MusicServer) handleRemoveSoundFromList(w http.ResponseWriter, r *http.Request) {
	listHash, soundHash, ok := ms.listSoundRequest(w, r)
	if !ok {
		return
	}
	if err := ms.db.RemoveSoundFromList(listHash, soundHash); err != nil {
		ms.respondWithLookupError(w, r, "List or sound", err)
		return
	}
	ms.lists.Delete(listHash)
	ms.respondListAfterChange(w, r, listHash)
}

func (ms *MusicServer) respondListAfterChange(w http.ResponseWriter, r *http.Request, hash string) {
	list, err := ms.list(hash)
	if err != nil {
		ms.respondWithLookupError(w, r, "List", err)
		return
	}
	ms.respondJSON(w, http.StatusOK, list)
}

// handlePlayList loads a stored list into the caller's player, starting at
// ?sound= when given.
func (ms *MusicServer) handlePlayList(w http.ResponseWriter, r *http.Request) {
	hash, ok := ms.listHash(w, r)
	if !ok {
		return
	}
	s, ok := ms.playerSession(w, r)
	if !ok || !ms.allowCommand(w, r, s) {
		return
	}

	list, err := ms.list(hash)
	if err != nil {
		ms.respondWithLookupError(w, r, "List", err)
		return
	}

	cmd := player.PlayList{List: *list}
	if soundHash := r.URL.Query().Get("sound"); soundHash != "" {
		i := list.IndexOf(soundHash)
		if i < 0 {
			ms.respondWithError(w, r, http.StatusNotFound, "Sound not in list", nil)
			return
		}
		cmd.Sound = &list.Sounds[i]
	}

	s.Player().Emit(cmd)
	ms.respondJSON(w, http.StatusAccepted, s.Player().Store.Read())
}

func (ms *MusicServer) respondWithLookupError(w http.ResponseWriter, r *http.Request, what string, err error) {
	if errors.Is(err, database.ErrNotFound) {
		ms.respondWithError(w, r, http.StatusNotFound, what+" not found", nil)
		return
	}
	ms.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving "+what, err)
}
