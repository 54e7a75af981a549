package player

import (
	"testing"

	"legato/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name string
		json string
		want Command
	}{
		{
			name: "play list with sound",
			json: `{"type":"PLAY_LIST","payload":{"list":{"hash":"p1","sounds":[{"hash":"a"}]},"sound":{"hash":"a"}}}`,
			want: PlayList{List: models.List{Hash: "p1", Sounds: []models.Sound{{Hash: "a"}}}, Sound: &models.Sound{Hash: "a"}},
		},
		{
			name: "play list without sound",
			json: `{"type":"PLAY_LIST","payload":{"list":{"hash":"p1","sounds":[]}}}`,
			want: PlayList{List: models.List{Hash: "p1", Sounds: []models.Sound{}}},
		},
		{
			name: "pause player without payload",
			json: `{"type":"PAUSE_PLAYER"}`,
			want: PausePlayer{},
		},
		{
			name: "play next",
			json: `{"type":"PLAY_NEXT","payload":{"soundList":[{"hash":"n"}]}}`,
			want: PlayNext{Sounds: []models.Sound{{Hash: "n"}}},
		},
		{
			name: "add to queue",
			json: `{"type":"ADD_TO_QUEUE","payload":{"soundList":[]}}`,
			want: AddToQueue{Sounds: []models.Sound{}},
		},
		{
			name: "set repeat",
			json: `{"type":"SET_REPEAT","payload":{"mode":"all"}}`,
			want: SetRepeat{Mode: models.RepeatAll},
		},
		{
			name: "set volume zero",
			json: `{"type":"SET_VOLUME","payload":{"volume":0}}`,
			want: SetVolume{Volume: 0},
		},
		{
			name: "reset",
			json: `{"type":"RESET_PLAYER","payload":null}`,
			want: ResetPlayer{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCommand([]byte(tt.json))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeCommand_SyncKeepsPatch(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{"type":"SYNC_PLAYER_STATE","payload":{"volume":70,"skin":"retro"}}`))
	require.NoError(t, err)

	sync, ok := cmd.(SyncPlayerState)
	require.True(t, ok)
	require.NotNil(t, sync.Patch.Volume)
	assert.Equal(t, 70, *sync.Patch.Volume)
	assert.JSONEq(t, `"retro"`, string(sync.Patch.Extra["skin"]))
}

func TestDecodeCommand_Errors(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr error
	}{
		{"unknown tag", `{"type":"EJECT"}`, ErrUnknownCommand},
		{"missing type", `{"payload":{}}`, ErrUnknownCommand},
		{"play sound without payload", `{"type":"PLAY_SOUND"}`, ErrInvalidPayload},
		{"play sound without hash", `{"type":"PLAY_SOUND","payload":{"sound":{}}}`, ErrInvalidPayload},
		{"play list without hash", `{"type":"PLAY_LIST","payload":{"list":{"sounds":[]}}}`, ErrInvalidPayload},
		{"play next without list", `{"type":"PLAY_NEXT","payload":{}}`, ErrInvalidPayload},
		{"bad repeat", `{"type":"SET_REPEAT","payload":{"mode":"SOMETIMES"}}`, ErrInvalidPayload},
		{"volume missing", `{"type":"SET_VOLUME","payload":{}}`, ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCommand([]byte(tt.json))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := DecodeCommand([]byte(`not json`))
	assert.Error(t, err)
}

func TestEncodeCommand_RoundTrip(t *testing.T) {
	a := sound("a")
	commands := []Command{
		PlayList{List: list("p1", "a", "b"), Sound: &a},
		PausePlayer{},
		PlaySound{Sound: a},
		PlayNext{Sounds: sounds("x")},
		AddToQueue{Sounds: sounds("y", "z")},
		SetShuffle{Enabled: true},
		SetVolume{Volume: 15},
		SoundEnded{},
	}

	for _, cmd := range commands {
		data, err := EncodeCommand(cmd)
		require.NoError(t, err)

		back, err := DecodeCommand(data)
		require.NoError(t, err, string(data))
		assert.Equal(t, cmd, back)
	}
}
