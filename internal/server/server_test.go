package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"legato/internal/auth"
	"legato/internal/config"
	"legato/internal/database"
	"legato/internal/metadata"
	"legato/internal/player"
	"legato/internal/session"
	"legato/internal/storage"
	"legato/pkg/models"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*MusicServer
	handler http.Handler
	db      *database.Database
	dir     string
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Music.LibraryPath = filepath.Join(dir, "music")
	cfg.Music.UploadPath = filepath.Join(dir, "music", "uploads")
	cfg.Server.StaticDir = filepath.Join(dir, "static")
	cfg.Logging.RequestLogging = false
	cfg.Auth.UsersFile = filepath.Join(dir, "users.toml")
	if mutate != nil {
		mutate(cfg)
	}

	logger, _ := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	db, err := database.NewDatabase(filepath.Join(dir, "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sessions := session.NewManager(func(string) (player.Storage, error) {
		return storage.NewMemory(), nil
	}, session.Config{
		DefaultVolume: lo.ToPtr(player.DefaultVolume),
		CommandRate:   cfg.Server.CommandRate,
		CommandBurst:  cfg.Server.CommandBurst,
	}, logger)
	t.Cleanup(func() { sessions.Close() })

	authService, err := auth.NewService(cfg.Auth, logger)
	require.NoError(t, err)
	t.Cleanup(authService.Close)

	ms := NewMusicServer(Options{
		Config:   cfg,
		DB:       db,
		Sessions: sessions,
		Auth:     authService,
		Logger:   logger,
	})
	t.Cleanup(func() { ms.lists.Close() })

	return &testServer{MusicServer: ms, handler: ms.Handler(), db: db, dir: dir}
}

func (ts *testServer) do(t *testing.T, method, target string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

// addSound writes a file into the library and records it in the database.
func (ts *testServer) addSound(t *testing.T, name string, content []byte) models.Sound {
	t.Helper()

	path := filepath.Join(ts.cfg.Music.LibraryPath, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, content, 0644))

	hash := metadata.SoundHash(path)
	sound := models.Sound{
		Hash:       hash,
		Title:      strings.TrimSuffix(name, filepath.Ext(name)),
		AuthorName: "Tester",
		AuthorHash: metadata.AuthorHash("Tester"),
		PlayURL:    metadata.StreamPrefix + hash,
		Type:       models.SoundTrack,
		Duration:   120,
		FilePath:   path,
	}
	require.NoError(t, ts.db.InsertSound(sound))
	return sound
}

func (ts *testServer) createSession(t *testing.T) string {
	t.Helper()

	rec := ts.do(t, http.MethodPost, "/api/sessions", map[string]string{"deviceName": "laptop"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Session struct {
			ID         string `json:"id"`
			DeviceName string `json:"deviceName"`
		} `json:"session"`
		State player.State `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Session.ID)
	assert.Equal(t, "laptop", resp.Session.DeviceName)
	assert.Equal(t, player.NoPosition, resp.State.Position)
	return resp.Session.ID
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) player.State {
	t.Helper()
	var st player.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st), rec.Body.String())
	return st
}

func command(tag player.CommandTag, payload any) map[string]any {
	cmd := map[string]any{"type": tag}
	if payload != nil {
		cmd["payload"] = payload
	}
	return cmd
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.addSound(t, "a.mp3", []byte("a"))

	rec := ts.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "ok", health.Database)
	assert.Equal(t, 1, health.Sounds)
	assert.Empty(t, health.PublicURL)
}

func TestPlayerCommandFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	first := ts.addSound(t, "first.mp3", []byte("1"))
	second := ts.addSound(t, "second.mp3", []byte("2"))
	id := ts.createSession(t)
	hdr := map[string]string{sessionHeader: id}

	list := models.List{Hash: "11111111-1111-1111-1111-111111111111", Sounds: []models.Sound{first, second}}
	rec := ts.do(t, http.MethodPost, "/api/player/commands", command(player.TagPlayList, map[string]any{"list": list}), hdr)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	st := decodeState(t, rec)
	assert.True(t, st.IsPlaying)
	assert.Equal(t, 0, st.Position)
	assert.Len(t, st.SoundList, 2)
	assert.Equal(t, list.Hash, st.ListHash)

	rec = ts.do(t, http.MethodPost, "/api/player/commands", command(player.TagSkipNext, nil), hdr)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, decodeState(t, rec).Position)

	rec = ts.do(t, http.MethodPost, "/api/player/commands", command(player.TagPausePlayer, nil), hdr)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.False(t, decodeState(t, rec).IsPlaying)

	rec = ts.do(t, http.MethodGet, "/api/player/state", nil, hdr)
	require.Equal(t, http.StatusOK, rec.Code)
	st = decodeState(t, rec)
	assert.False(t, st.IsPlaying)
	assert.Equal(t, 1, st.Position)
}

func TestPlayerCommandErrors(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.createSession(t)
	hdr := map[string]string{sessionHeader: id}

	tests := []struct {
		name     string
		body     any
		wantCode string
	}{
		{name: "unknown tag", body: command("SELF_DESTRUCT", nil), wantCode: "UNKNOWN_COMMAND"},
		{name: "missing payload", body: command(player.TagSetVolume, nil), wantCode: "INVALID_PAYLOAD"},
		{name: "not an object", body: []int{1, 2}, wantCode: "INVALID_COMMAND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/player/commands", tt.body, hdr)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var result ValidationResult
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
			require.Len(t, result.Errors, 1)
			assert.Equal(t, tt.wantCode, result.Errors[0].Code)
		})
	}
}

func TestPlayerRequiresSession(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/player/state", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/player/state", nil, map[string]string{sessionHeader: "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	id := ts.createSession(t)
	rec = ts.do(t, http.MethodGet, "/api/player/state?session="+id, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPlayerCommandRateLimit(t *testing.T) {
	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"command", "/api/player/commands", command(player.TagClearQueue, nil), http.StatusAccepted},
		{"sync", "/api/player/sync", map[string]any{"volume": 35}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, func(cfg *config.Config) {
				cfg.Server.CommandRate = 0.001
				cfg.Server.CommandBurst = 2
			})
			hdr := map[string]string{sessionHeader: ts.createSession(t)}

			for range 2 {
				rec := ts.do(t, http.MethodPost, tt.path, tt.body, hdr)
				require.Equal(t, tt.want, rec.Code, rec.Body.String())
			}
			rec := ts.do(t, http.MethodPost, tt.path, tt.body, hdr)
			assert.Equal(t, http.StatusTooManyRequests, rec.Code)
			assert.Equal(t, "1", rec.Header().Get("Retry-After"))

			// Position reports are not rate limited.
			rec = ts.do(t, http.MethodPost, "/api/player/times", map[string]any{"currentTime": 1.5, "duration": 10}, hdr)
			assert.Equal(t, http.StatusNoContent, rec.Code)
		})
	}
}

func TestSyncAndTimes(t *testing.T) {
	ts := newTestServer(t, nil)
	hdr := map[string]string{sessionHeader: ts.createSession(t)}

	rec := ts.do(t, http.MethodPost, "/api/player/sync", map[string]any{"volume": 35, "isShuffled": true}, hdr)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decodeState(t, rec)
	assert.Equal(t, 35, st.Volume)
	assert.True(t, st.IsShuffled)

	rec = ts.do(t, http.MethodPost, "/api/player/times", map[string]any{"duration": 10}, hdr)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/player/times", map[string]any{"currentTime": 65, "duration": 200}, hdr)
	require.Equal(t, http.StatusNoContent, rec.Code)

	st = decodeState(t, ts.do(t, http.MethodGet, "/api/player/state", nil, hdr))
	assert.InDelta(t, 65, st.CurrentTime, 0.001)
	assert.Equal(t, "01.05", st.Elapsed)
}

func TestSessionsAreSharedPerOwner(t *testing.T) {
	ts := newTestServer(t, nil)
	a := ts.createSession(t)
	b := ts.createSession(t)

	rec := ts.do(t, http.MethodPost, "/api/player/commands",
		command(player.TagSetVolume, map[string]any{"volume": 12}), map[string]string{sessionHeader: a})
	require.Equal(t, http.StatusAccepted, rec.Code)

	st := decodeState(t, ts.do(t, http.MethodGet, "/api/player/state", nil, map[string]string{sessionHeader: b}))
	assert.Equal(t, 12, st.Volume)

	rec = ts.do(t, http.MethodGet, "/api/sessions", nil, map[string]string{sessionHeader: a})
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []struct {
		ID      string `json:"id"`
		Current bool   `json:"current"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 2)
	for _, s := range listed {
		assert.Equal(t, s.ID == a, s.Current)
	}

	rec = ts.do(t, http.MethodDelete, "/api/sessions/"+a, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/api/sessions/"+a, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	st = decodeState(t, ts.do(t, http.MethodGet, "/api/player/state", nil, map[string]string{sessionHeader: b}))
	assert.Equal(t, 12, st.Volume)
}

func TestSounds(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.addSound(t, "blue in green.mp3", []byte("x"))
	ts.addSound(t, "so what.mp3", []byte("y"))

	rec := ts.do(t, http.MethodGet, "/api/sounds", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sounds []models.Sound
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sounds))
	assert.Len(t, sounds, 2)
	assert.NotContains(t, rec.Body.String(), ts.cfg.Music.LibraryPath)

	rec = ts.do(t, http.MethodGet, "/api/sounds?search=green", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sounds))
	require.Len(t, sounds, 1)
	assert.Equal(t, "blue in green", sounds[0].Title)

	rec = ts.do(t, http.MethodGet, "/api/sounds/"+sounds[0].Hash, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/sounds/123", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/sounds/"+metadata.SoundHash("/nowhere.mp3"), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)
	first := ts.addSound(t, "first.mp3", []byte("1"))
	second := ts.addSound(t, "second.mp3", []byte("2"))

	rec := ts.do(t, http.MethodPost, "/api/lists", map[string]string{"name": ""}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/lists", map[string]string{"name": "Evening", "description": "slow"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var list models.List
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.NotEmpty(t, list.Hash)

	for _, s := range []models.Sound{first, second} {
		rec = ts.do(t, http.MethodPost, "/api/lists/"+list.Hash+"/sounds", map[string]string{"soundHash": s.Hash}, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Sounds, 2)

	rec = ts.do(t, http.MethodGet, "/api/lists", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summaries []database.ListSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, 2, summaries[0].SoundCount)

	// Play from the second sound.
	hdr := map[string]string{sessionHeader: ts.createSession(t)}
	rec = ts.do(t, http.MethodPost, "/api/lists/"+list.Hash+"/play?sound="+second.Hash, nil, hdr)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	st := decodeState(t, rec)
	assert.True(t, st.IsPlaying)
	assert.Equal(t, list.Hash, st.ListHash)
	assert.Equal(t, second.Hash, st.CurrentSound().Hash)

	rec = ts.do(t, http.MethodPost, "/api/lists/"+list.Hash+"/play?sound="+metadata.SoundHash("/x.mp3"), nil, hdr)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/lists/"+list.Hash+"/sounds", map[string]string{"soundHash": first.Hash}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Sounds, 1)
	assert.Equal(t, second.Hash, list.Sounds[0].Hash)

	rec = ts.do(t, http.MethodDelete, "/api/lists/"+list.Hash, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/lists/"+list.Hash, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/api/lists/"+list.Hash, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamSound(t *testing.T) {
	ts := newTestServer(t, nil)
	sound := ts.addSound(t, "tone.mp3", []byte("0123456789"))

	rec := ts.do(t, http.MethodGet, "/stream/"+sound.Hash, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "0123456789", rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/stream/"+sound.Hash, nil, map[string]string{"Range": "bytes=2-5"})
	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "2345", rec.Body.String())
	assert.Equal(t, "bytes 2-5/10", rec.Header().Get("Content-Range"))

	require.NoError(t, os.Remove(sound.FilePath))
	rec = ts.do(t, http.MethodGet, "/stream/"+sound.Hash, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/artwork/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func uploadRequest(t *testing.T, name string, content []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(uploadField, name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadSound(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, uploadRequest(t, "notes.txt", []byte("hello")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for range 2 {
		rec = httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, uploadRequest(t, "../../evil.mp3", bytes.Repeat([]byte{0}, 4096)))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	var sound models.Sound
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sound))
	assert.Equal(t, "evil_1", sound.Title)

	dir := filepath.Join(ts.cfg.Music.UploadPath, auth.Anonymous)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"evil.mp3", "evil_1.mp3"}, names)

	sounds, err := ts.db.GetAllSounds()
	require.NoError(t, err)
	assert.Len(t, sounds, 2)
}

func TestPlayerEvents(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.createSession(t)

	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/player/events?session="+id, nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() player.State {
		t.Helper()
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		require.Equal(t, "event: state\n", line)
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(line, "data: "))
		var st player.State
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &st))
		_, err = reader.ReadString('\n')
		require.NoError(t, err)
		return st
	}

	assert.Equal(t, player.DefaultVolume, readEvent().Volume)

	rec := ts.do(t, http.MethodPost, "/api/player/commands",
		command(player.TagSetVolume, map[string]any{"volume": 40}), map[string]string{sessionHeader: id})
	require.Equal(t, http.StatusAccepted, rec.Code)

	assert.Equal(t, 40, readEvent().Volume)
}

func TestPlayerEventsEndWithSession(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.createSession(t)

	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/api/player/events?session="+id, nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "event: state\n", line)

	rec := ts.do(t, http.MethodDelete, "/api/sessions/"+id, nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// the rest of the first event, then the server closes the stream
	_, err = io.ReadAll(reader)
	assert.NoError(t, err)
}

func TestAuthEnabled(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.Enabled = true
		cfg.Auth.AllowRegistering = false
		require.NoError(t, os.WriteFile(cfg.Auth.UsersFile, []byte(`[[users]]
username = "alice"
password = "secret1"
role = "user"
`), 0600))
	})

	rec := ts.do(t, http.MethodGet, "/api/sounds", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = ts.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/auth/register", credentials{Username: "bob", Password: "hunter22"}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/auth/login", credentials{Username: "alice", Password: "wrong!"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/auth/login", credentials{Username: "alice", Password: "secret1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.CookieName, cookies[0].Name)
	withCookie := map[string]string{"Cookie": cookies[0].Name + "=" + cookies[0].Value}

	rec = ts.do(t, http.MethodGet, "/api/auth/me", nil, withCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var me map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "alice", me["username"])
	assert.Equal(t, auth.RoleUser, me["role"])

	rec = ts.do(t, http.MethodPost, "/api/sessions", nil, withCookie)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, ts.sessions.Sessions(), 1)
	assert.Equal(t, "alice", ts.sessions.Sessions()[0].Owner)

	rec = ts.do(t, http.MethodPost, "/api/auth/logout", nil, withCookie)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, ts.sessions.Sessions())

	rec = ts.do(t, http.MethodGet, "/api/auth/me", nil, withCookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodOptions, "/api/player/commands", nil, map[string]string{
		"Origin":                        "http://localhost:5173",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), sessionHeader)
}
