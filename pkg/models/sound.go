package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// SoundType distinguishes music tracks from spoken episodes
type SoundType string

const (
	SoundTrack   SoundType = "track"
	SoundEpisode SoundType = "episode"
)

// Sound is a single playable unit with a stable hash identity
type Sound struct {
	Hash       string    `json:"hash"`
	Title      string    `json:"title"`
	Image      string    `json:"image"`
	AuthorName string    `json:"author_name"`
	AuthorHash string    `json:"author_hash"`
	PlayURL    string    `json:"play_url"`
	Type       SoundType `json:"type"`
	Duration   int       `json:"duration,omitempty"` // in seconds
	FilePath   string    `json:"-"`                  // don't expose file path to client
}

// List is a named, ordered collection of sounds playable as a unit
type List struct {
	Hash        string  `json:"hash"`
	Name        string  `json:"name,omitempty"`
	Description string  `json:"description,omitempty"`
	Sounds      []Sound `json:"sounds"`
}

// IndexOf returns the position of the sound with the given hash, or -1
func (l List) IndexOf(hash string) int {
	return IndexOfSound(l.Sounds, hash)
}

// IndexOfSound returns the position of the sound with the given hash in
// sounds, or -1
func IndexOfSound(sounds []Sound, hash string) int {
	_, idx, ok := lo.FindIndexOf(sounds, func(s Sound) bool { return s.Hash == hash })
	if !ok {
		return -1
	}
	return idx
}

// Public returns a copy of the sound without server-local fields
func (s Sound) Public() Sound {
	s.FilePath = ""
	return s
}

// PublicSounds returns copies of sounds without server-local fields
func PublicSounds(sounds []Sound) []Sound {
	return lo.Map(sounds, func(s Sound, _ int) Sound { return s.Public() })
}

// RepeatMode controls what happens when the current sound ends
type RepeatMode int

const (
	RepeatNone RepeatMode = iota // stop at the end of the list
	RepeatOne                    // loop the current sound
	RepeatAll                    // loop the whole list
)

// String returns the wire name of the repeat mode.
func (m RepeatMode) String() string {
	switch m {
	case RepeatOne:
		return "ONE"
	case RepeatAll:
		return "ALL"
	default:
		return "NONE"
	}
}

// ParseRepeatMode converts a wire name to a RepeatMode.
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NONE", "":
		return RepeatNone, nil
	case "ONE":
		return RepeatOne, nil
	case "ALL":
		return RepeatAll, nil
	default:
		return RepeatNone, fmt.Errorf("unknown repeat mode %q", s)
	}
}

func (m RepeatMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *RepeatMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRepeatMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
