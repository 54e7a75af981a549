package player

import (
	"encoding/json"
	"maps"
	"slices"

	"legato/pkg/models"

	"github.com/samber/lo"
)

const (
	// NoPosition marks the absence of a selection when the sound list is empty.
	NoPosition = -1

	DefaultVolume = 80
	MaxVolume     = 100
)

// State is the single source of truth for playback UI state.
// Values are snapshots: the store hands out deep copies.
type State struct {
	Volume      int               `json:"volume"`
	IsPlaying   bool              `json:"isPlaying"`
	Repeat      models.RepeatMode `json:"repeat"`
	Position    int               `json:"position"`
	Elapsed     string            `json:"elapsed"`  // "MM.SS"
	Duration    string            `json:"duration"` // "MM.SS"
	CurrentTime float64           `json:"currentTime"`
	OnRepeat    bool              `json:"onRepeat"`
	IsShuffled  bool              `json:"isShuffled"`
	Action      CommandTag        `json:"action,omitempty"`
	ListHash    string            `json:"listHash,omitempty"`
	SoundList   []models.Sound    `json:"soundList"`
	QueueList   []models.Sound    `json:"queueList"`

	// Extra holds fields this version does not know about. They are kept
	// and persisted so that newer clients can round-trip through older servers.
	Extra map[string]json.RawMessage `json:"-"`
}

// DefaultState returns the state used when nothing was persisted.
func DefaultState() State {
	return State{
		Volume:    DefaultVolume,
		Repeat:    models.RepeatNone,
		Position:  NoPosition,
		Elapsed:   FormatClock(0),
		Duration:  FormatClock(0),
		SoundList: []models.Sound{},
		QueueList: []models.Sound{},
	}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	c := s
	if s.SoundList != nil {
		c.SoundList = slices.Clone(s.SoundList)
	}
	if s.QueueList != nil {
		c.QueueList = slices.Clone(s.QueueList)
	}
	if s.Extra != nil {
		c.Extra = maps.Clone(s.Extra)
	}
	return c
}

// CurrentSound returns the sound at Position, or nil when nothing is selected.
func (s State) CurrentSound() *models.Sound {
	if s.Position < 0 || s.Position >= len(s.SoundList) {
		return nil
	}
	sound := s.SoundList[s.Position]
	return &sound
}

// normalize restores the invariants that every merge must preserve.
func (s *State) normalize() {
	s.Volume = lo.Clamp(s.Volume, 0, MaxVolume)
	if s.SoundList == nil {
		s.SoundList = []models.Sound{}
	}
	if s.QueueList == nil {
		s.QueueList = []models.Sound{}
	}
	if len(s.SoundList) == 0 {
		s.Position = NoPosition
		s.IsPlaying = false
		return
	}
	s.Position = lo.Clamp(s.Position, 0, len(s.SoundList)-1)
}

// merge applies p over s. Only fields set in p change.
func (s *State) merge(p Patch) {
	if p.Volume != nil {
		s.Volume = *p.Volume
	}
	if p.IsPlaying != nil {
		s.IsPlaying = *p.IsPlaying
	}
	if p.Repeat != nil {
		s.Repeat = *p.Repeat
		if p.OnRepeat == nil {
			s.OnRepeat = *p.Repeat != models.RepeatNone
		}
	}
	if p.Position != nil {
		s.Position = *p.Position
	}
	if p.Elapsed != nil {
		s.Elapsed = *p.Elapsed
	}
	if p.Duration != nil {
		s.Duration = *p.Duration
	}
	if p.CurrentTime != nil {
		s.CurrentTime = *p.CurrentTime
	}
	if p.OnRepeat != nil {
		s.OnRepeat = *p.OnRepeat
	}
	if p.IsShuffled != nil {
		s.IsShuffled = *p.IsShuffled
	}
	if p.Action != nil {
		s.Action = *p.Action
	}
	if p.ListHash != nil {
		s.ListHash = *p.ListHash
	}
	if p.SoundList != nil {
		s.SoundList = slices.Clone(*p.SoundList)
		if s.SoundList == nil {
			s.SoundList = []models.Sound{}
		}
	}
	if p.QueueList != nil {
		s.QueueList = slices.Clone(*p.QueueList)
		if s.QueueList == nil {
			s.QueueList = []models.Sound{}
		}
	}
	if len(p.Extra) > 0 {
		if s.Extra == nil {
			s.Extra = make(map[string]json.RawMessage, len(p.Extra))
		}
		maps.Copy(s.Extra, p.Extra)
	}
}

// stateFields has the same layout as State without its JSON methods.
type stateFields State

var knownStateFields = map[string]bool{
	"volume": true, "isPlaying": true, "repeat": true, "position": true,
	"elapsed": true, "duration": true, "currentTime": true, "onRepeat": true,
	"isShuffled": true, "action": true, "listHash": true, "soundList": true,
	"queueList": true,
}

// MarshalJSON writes the known fields followed by any preserved extras.
func (s State) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(stateFields(s))
	if err != nil || len(s.Extra) == 0 {
		return base, err
	}
	return mergeExtra(base, s.Extra)
}

// UnmarshalJSON reads known fields and keeps unknown ones in Extra.
func (s *State) UnmarshalJSON(data []byte) error {
	var fields stateFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	extra, err := unknownFields(data)
	if err != nil {
		return err
	}
	fields.Extra = extra
	*s = State(fields)
	return nil
}

func mergeExtra(base []byte, extra map[string]json.RawMessage) ([]byte, error) {
	merged := make(map[string]json.RawMessage)
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, known := merged[k]; !known && !knownStateFields[k] {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

func unknownFields(data []byte) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	var extra map[string]json.RawMessage
	for k, v := range raw {
		if knownStateFields[k] {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = v
	}
	return extra, nil
}
