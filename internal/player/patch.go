package player

import (
	"encoding/json"

	"legato/pkg/models"

	"github.com/samber/lo"
)

// Patch is a partial State. Nil fields are left untouched by a merge.
type Patch struct {
	Volume      *int               `json:"volume,omitempty"`
	IsPlaying   *bool              `json:"isPlaying,omitempty"`
	Repeat      *models.RepeatMode `json:"repeat,omitempty"`
	Position    *int               `json:"position,omitempty"`
	Elapsed     *string            `json:"elapsed,omitempty"`
	Duration    *string            `json:"duration,omitempty"`
	CurrentTime *float64           `json:"currentTime,omitempty"`
	OnRepeat    *bool              `json:"onRepeat,omitempty"`
	IsShuffled  *bool              `json:"isShuffled,omitempty"`
	Action      *CommandTag        `json:"action,omitempty"`
	ListHash    *string            `json:"listHash,omitempty"`
	SoundList   *[]models.Sound    `json:"soundList,omitempty"`
	QueueList   *[]models.Sound    `json:"queueList,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// IsEmpty reports whether applying p would change nothing.
func (p Patch) IsEmpty() bool {
	return p.Volume == nil && p.IsPlaying == nil && p.Repeat == nil &&
		p.Position == nil && p.Elapsed == nil && p.Duration == nil &&
		p.CurrentTime == nil && p.OnRepeat == nil && p.IsShuffled == nil &&
		p.Action == nil && p.ListHash == nil && p.SoundList == nil &&
		p.QueueList == nil && len(p.Extra) == 0
}

// PatchFrom returns a patch that sets every field of s.
func PatchFrom(s State) Patch {
	s = s.Clone()
	return Patch{
		Volume:      lo.ToPtr(s.Volume),
		IsPlaying:   lo.ToPtr(s.IsPlaying),
		Repeat:      lo.ToPtr(s.Repeat),
		Position:    lo.ToPtr(s.Position),
		Elapsed:     lo.ToPtr(s.Elapsed),
		Duration:    lo.ToPtr(s.Duration),
		CurrentTime: lo.ToPtr(s.CurrentTime),
		OnRepeat:    lo.ToPtr(s.OnRepeat),
		IsShuffled:  lo.ToPtr(s.IsShuffled),
		Action:      lo.ToPtr(s.Action),
		ListHash:    lo.ToPtr(s.ListHash),
		SoundList:   lo.ToPtr(s.SoundList),
		QueueList:   lo.ToPtr(s.QueueList),
		Extra:       s.Extra,
	}
}

type patchFields Patch

func (p Patch) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(patchFields(p))
	if err != nil || len(p.Extra) == 0 {
		return base, err
	}
	return mergeExtra(base, p.Extra)
}

// UnmarshalJSON accepts unknown fields into Extra so they are stored as-is.
func (p *Patch) UnmarshalJSON(data []byte) error {
	var fields patchFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	extra, err := unknownFields(data)
	if err != nil {
		return err
	}
	fields.Extra = extra
	*p = Patch(fields)
	return nil
}

// resetTimes returns p with the playback clock rewound to zero.
func (p Patch) resetTimes(duration int) Patch {
	p.CurrentTime = lo.ToPtr(0.0)
	p.Elapsed = lo.ToPtr(FormatClock(0))
	p.Duration = lo.ToPtr(FormatClock(float64(duration)))
	return p
}
