package player

import (
	"encoding/json"
	"errors"
	"fmt"

	"legato/internal/bus"
	"legato/pkg/models"
)

// CommandTag names a playback command on the bus.
type CommandTag = bus.Tag

const (
	TagPlayList        CommandTag = "PLAY_LIST"
	TagPausePlayer     CommandTag = "PAUSE_PLAYER"
	TagResumeList      CommandTag = "RESUME_LIST"
	TagPlaySound       CommandTag = "PLAY_SOUND"
	TagPauseSound      CommandTag = "PAUSE_SOUND"
	TagResumeSound     CommandTag = "RESUME_SOUND"
	TagPlayNext        CommandTag = "PLAY_NEXT"
	TagAddToQueue      CommandTag = "ADD_TO_QUEUE"
	TagSyncPlayerState CommandTag = "SYNC_PLAYER_STATE"

	TagSkipNext     CommandTag = "SKIP_NEXT"
	TagSkipPrevious CommandTag = "SKIP_PREVIOUS"
	TagSoundEnded   CommandTag = "SOUND_ENDED"
	TagSetRepeat    CommandTag = "SET_REPEAT"
	TagSetShuffle   CommandTag = "SET_SHUFFLE"
	TagSetVolume    CommandTag = "SET_VOLUME"
	TagClearQueue   CommandTag = "CLEAR_QUEUE"
	TagResetPlayer  CommandTag = "RESET_PLAYER"
)

// AllTags lists every command the controller handles.
var AllTags = []CommandTag{
	TagPlayList, TagPausePlayer, TagResumeList, TagPlaySound, TagPauseSound,
	TagResumeSound, TagPlayNext, TagAddToQueue, TagSyncPlayerState,
	TagSkipNext, TagSkipPrevious, TagSoundEnded, TagSetRepeat, TagSetShuffle,
	TagSetVolume, TagClearQueue, TagResetPlayer,
}

var (
	// ErrUnknownCommand is returned for tags or variants outside the vocabulary.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrInvalidPayload is wrapped by DecodeCommand when a payload fails validation.
	ErrInvalidPayload = errors.New("invalid command payload")
)

// Command is a playback command. The set of variants is closed.
type Command interface {
	bus.Event
	isCommand()
}

// PlayList loads a list and starts playing it, optionally at Sound.
type PlayList struct {
	List  models.List   `json:"list"`
	Sound *models.Sound `json:"sound,omitempty"`
}

type PausePlayer struct{}

type ResumeList struct{}

type PlaySound struct {
	Sound models.Sound `json:"sound"`
}

type PauseSound struct{}

type ResumeSound struct{}

// PlayNext inserts sounds right after the current position.
type PlayNext struct {
	Sounds []models.Sound `json:"soundList"`
}

// AddToQueue appends sounds to the queue without touching the sound list.
type AddToQueue struct {
	Sounds []models.Sound `json:"soundList"`
}

// SyncPlayerState merges a client-side patch as-is.
type SyncPlayerState struct {
	Patch Patch
}

type SkipNext struct{}

type SkipPrevious struct{}

// SoundEnded is reported by the audio driver when the current sound finishes.
type SoundEnded struct{}

type SetRepeat struct {
	Mode models.RepeatMode `json:"mode"`
}

type SetShuffle struct {
	Enabled bool `json:"enabled"`
}

type SetVolume struct {
	Volume int `json:"volume"`
}

type ClearQueue struct{}

// ResetPlayer returns the player to its defaults, e.g. on logout.
type ResetPlayer struct{}

func (PlayList) Tag() CommandTag        { return TagPlayList }
func (PausePlayer) Tag() CommandTag     { return TagPausePlayer }
func (ResumeList) Tag() CommandTag      { return TagResumeList }
func (PlaySound) Tag() CommandTag       { return TagPlaySound }
func (PauseSound) Tag() CommandTag      { return TagPauseSound }
func (ResumeSound) Tag() CommandTag     { return TagResumeSound }
func (PlayNext) Tag() CommandTag        { return TagPlayNext }
func (AddToQueue) Tag() CommandTag      { return TagAddToQueue }
func (SyncPlayerState) Tag() CommandTag { return TagSyncPlayerState }
func (SkipNext) Tag() CommandTag        { return TagSkipNext }
func (SkipPrevious) Tag() CommandTag    { return TagSkipPrevious }
func (SoundEnded) Tag() CommandTag      { return TagSoundEnded }
func (SetRepeat) Tag() CommandTag       { return TagSetRepeat }
func (SetShuffle) Tag() CommandTag      { return TagSetShuffle }
func (SetVolume) Tag() CommandTag       { return TagSetVolume }
func (ClearQueue) Tag() CommandTag      { return TagClearQueue }
func (ResetPlayer) Tag() CommandTag     { return TagResetPlayer }

func (PlayList) isCommand()        {}
func (PausePlayer) isCommand()     {}
func (ResumeList) isCommand()      {}
func (PlaySound) isCommand()       {}
func (PauseSound) isCommand()      {}
func (ResumeSound) isCommand()     {}
func (PlayNext) isCommand()        {}
func (AddToQueue) isCommand()      {}
func (SyncPlayerState) isCommand() {}
func (SkipNext) isCommand()        {}
func (SkipPrevious) isCommand()    {}
func (SoundEnded) isCommand()      {}
func (SetRepeat) isCommand()       {}
func (SetShuffle) isCommand()      {}
func (SetVolume) isCommand()       {}
func (ClearQueue) isCommand()      {}
func (ResetPlayer) isCommand()     {}

// envelope is the wire form of a command.
type envelope struct {
	Type    CommandTag      `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeCommand parses {"type": TAG, "payload": {...}} into a Command.
func DecodeCommand(data []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode command: %w", err)
	}

	var cmd Command
	switch env.Type {
	case TagPlayList:
		var c PlayList
		if err := decodePayload(env, &c); err != nil {
			return nil, err
		}
		if c.List.Hash == "" {
			return nil, fmt.Errorf("%w: %s requires list.hash", ErrInvalidPayload, env.Type)
		}
		cmd = c
	case TagPlaySound:
		var c PlaySound
		if err := decodePayload(env, &c); err != nil {
			return nil, err
		}
		if c.Sound.Hash == "" {
			return nil, fmt.Errorf("%w: %s requires sound.hash", ErrInvalidPayload, env.Type)
		}
		cmd = c
	case TagPlayNext, TagAddToQueue:
		var body struct {
			Sounds *[]models.Sound `json:"soundList"`
		}
		if err := decodePayload(env, &body); err != nil {
			return nil, err
		}
		if body.Sounds == nil {
			return nil, fmt.Errorf("%w: %s requires soundList", ErrInvalidPayload, env.Type)
		}
		if env.Type == TagPlayNext {
			cmd = PlayNext{Sounds: *body.Sounds}
		} else {
			cmd = AddToQueue{Sounds: *body.Sounds}
		}
	case TagSyncPlayerState:
		var p Patch
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		cmd = SyncPlayerState{Patch: p}
	case TagSetRepeat:
		var c SetRepeat
		if err := decodePayload(env, &c); err != nil {
			return nil, err
		}
		cmd = c
	case TagSetShuffle:
		var c SetShuffle
		if err := decodePayload(env, &c); err != nil {
			return nil, err
		}
		cmd = c
	case TagSetVolume:
		var body struct {
			Volume *int `json:"volume"`
		}
		if err := decodePayload(env, &body); err != nil {
			return nil, err
		}
		if body.Volume == nil {
			return nil, fmt.Errorf("%w: %s requires volume", ErrInvalidPayload, env.Type)
		}
		cmd = SetVolume{Volume: *body.Volume}
	case TagPausePlayer:
		cmd = PausePlayer{}
	case TagResumeList:
		cmd = ResumeList{}
	case TagPauseSound:
		cmd = PauseSound{}
	case TagResumeSound:
		cmd = ResumeSound{}
	case TagSkipNext:
		cmd = SkipNext{}
	case TagSkipPrevious:
		cmd = SkipPrevious{}
	case TagSoundEnded:
		cmd = SoundEnded{}
	case TagClearQueue:
		cmd = ClearQueue{}
	case TagResetPlayer:
		cmd = ResetPlayer{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, env.Type)
	}
	return cmd, nil
}

func decodePayload(env envelope, v any) error {
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return fmt.Errorf("%w: %s requires a payload", ErrInvalidPayload, env.Type)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidPayload, env.Type, err)
	}
	return nil
}

// EncodeCommand is the inverse of DecodeCommand.
func EncodeCommand(cmd Command) ([]byte, error) {
	if cmd == nil {
		return nil, ErrUnknownCommand
	}
	env := envelope{Type: cmd.Tag()}

	var payload any
	switch c := cmd.(type) {
	case SyncPlayerState:
		payload = c.Patch
	case PlayList, PlaySound, PlayNext, AddToQueue, SetRepeat, SetShuffle, SetVolume:
		payload = c
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", env.Type, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}
