package player

import (
	"fmt"
	"slices"

	"legato/pkg/models"

	"github.com/samber/lo"
)

// restartThreshold is how far into a sound SKIP_PREVIOUS restarts it
// instead of stepping back.
const restartThreshold = 3.0

// Reducer translates commands into state patches. It holds no state of its own.
type Reducer struct {
	shuffle func([]models.Sound) []models.Sound
}

// NewReducer creates a reducer that shuffles with lo.Shuffle
func NewReducer() *Reducer {
	return &Reducer{shuffle: func(sounds []models.Sound) []models.Sound {
		return lo.Shuffle(sounds)
	}}
}

// NewReducerWithShuffle creates a reducer with a deterministic shuffle, for tests and replays
func NewReducerWithShuffle(shuffle func([]models.Sound) []models.Sound) *Reducer {
	return &Reducer{shuffle: shuffle}
}

// Reduce returns the patch cmd produces against s. applied is false when the
// command's precondition does not hold, in which case the patch is empty.
func (r *Reducer) Reduce(s State, cmd Command) (Patch, bool, error) {
	var (
		p       Patch
		applied bool
	)

	switch c := cmd.(type) {
	case PlayList:
		p, applied = r.playList(s, c)
	case PausePlayer, PauseSound:
		if s.IsPlaying {
			p, applied = Patch{IsPlaying: lo.ToPtr(false)}, true
		}
	case ResumeList, ResumeSound:
		if !s.IsPlaying && len(s.SoundList) > 0 {
			p, applied = Patch{IsPlaying: lo.ToPtr(true)}, true
		}
	case PlaySound:
		p = Patch{
			SoundList: lo.ToPtr([]models.Sound{c.Sound.Public()}),
			Position:  lo.ToPtr(0),
			IsPlaying: lo.ToPtr(true),
			ListHash:  lo.ToPtr(""),
		}.resetTimes(c.Sound.Duration)
		applied = true
	case PlayNext:
		if len(s.SoundList) > 0 && len(c.Sounds) > 0 {
			list := slices.Insert(slices.Clone(s.SoundList), s.Position+1, models.PublicSounds(c.Sounds)...)
			p, applied = Patch{SoundList: &list}, true
		}
	case AddToQueue:
		if len(c.Sounds) > 0 {
			queue := append(slices.Clone(s.QueueList), models.PublicSounds(c.Sounds)...)
			p, applied = Patch{QueueList: &queue}, true
		}
	case SyncPlayerState:
		if !c.Patch.IsEmpty() {
			p, applied = c.Patch, true
			if p.Action != nil {
				return p, true, nil
			}
		}
	case SoundEnded:
		p, applied = r.advance(s, true)
	case SkipNext:
		p, applied = r.advance(s, false)
	case SkipPrevious:
		p, applied = r.previous(s)
	case SetRepeat:
		if c.Mode != s.Repeat || s.OnRepeat != (c.Mode != models.RepeatNone) {
			p, applied = Patch{Repeat: lo.ToPtr(c.Mode)}, true
		}
	case SetShuffle:
		p, applied = r.setShuffle(s, c.Enabled)
	case SetVolume:
		if v := lo.Clamp(c.Volume, 0, MaxVolume); v != s.Volume {
			p, applied = Patch{Volume: lo.ToPtr(v)}, true
		}
	case ClearQueue:
		if len(s.QueueList) > 0 {
			p, applied = Patch{QueueList: lo.ToPtr([]models.Sound{})}, true
		}
	case ResetPlayer:
		p, applied = PatchFrom(DefaultState()), true
	default:
		return Patch{}, false, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}

	if !applied {
		return Patch{}, false, nil
	}
	p.Action = lo.ToPtr(cmd.Tag())
	return p, true, nil
}

func (r *Reducer) playList(s State, c PlayList) (Patch, bool) {
	sameList := c.List.Hash != "" && c.List.Hash == s.ListHash && len(s.SoundList) > 0
	if sameList {
		current := s.CurrentSound()
		if c.Sound == nil || (current != nil && current.Hash == c.Sound.Hash) {
			if s.IsPlaying {
				// Already playing what was asked for
				return Patch{}, true
			}
			return Patch{IsPlaying: lo.ToPtr(true)}, true
		}
		if idx := models.IndexOfSound(s.SoundList, c.Sound.Hash); idx >= 0 {
			return Patch{
				Position:  lo.ToPtr(idx),
				IsPlaying: lo.ToPtr(true),
			}.resetTimes(s.SoundList[idx].Duration), true
		}
	}

	list := models.PublicSounds(c.List.Sounds)
	position := 0
	if c.Sound != nil {
		position = max(models.IndexOfSound(list, c.Sound.Hash), 0)
	}
	if s.IsShuffled && len(list) > 1 {
		first := list[position]
		rest := r.shuffle(slices.Delete(slices.Clone(list), position, position+1))
		list = append([]models.Sound{first}, rest...)
		position = 0
	}

	duration := 0
	if len(list) > 0 {
		duration = list[position].Duration
	}
	return Patch{
		SoundList: &list,
		Position:  lo.ToPtr(position),
		IsPlaying: lo.ToPtr(true),
		ListHash:  lo.ToPtr(c.List.Hash),
	}.resetTimes(duration), true
}

// advance moves to whatever plays after the current sound: the sound itself
// under repeat ONE (only when it ended on its own), then the head of the
// queue, then the next sound in the list.
func (r *Reducer) advance(s State, ended bool) (Patch, bool) {
	if len(s.SoundList) == 0 {
		if len(s.QueueList) == 0 {
			return Patch{}, false
		}
		head := s.QueueList[0]
		return Patch{
			SoundList: lo.ToPtr([]models.Sound{head}),
			QueueList: lo.ToPtr(slices.Clone(s.QueueList[1:])),
			Position:  lo.ToPtr(0),
			IsPlaying: lo.ToPtr(true),
			ListHash:  lo.ToPtr(""),
		}.resetTimes(head.Duration), true
	}

	if ended && s.Repeat == models.RepeatOne {
		return Patch{IsPlaying: lo.ToPtr(true)}.resetTimes(s.SoundList[s.Position].Duration), true
	}

	if len(s.QueueList) > 0 {
		head := s.QueueList[0]
		list := slices.Insert(slices.Clone(s.SoundList), s.Position+1, head)
		return Patch{
			SoundList: &list,
			QueueList: lo.ToPtr(slices.Clone(s.QueueList[1:])),
			Position:  lo.ToPtr(s.Position + 1),
			IsPlaying: lo.ToPtr(true),
		}.resetTimes(head.Duration), true
	}

	next := s.Position + 1
	if next < len(s.SoundList) {
		p := Patch{Position: lo.ToPtr(next)}.resetTimes(s.SoundList[next].Duration)
		if ended {
			p.IsPlaying = lo.ToPtr(true)
		}
		return p, true
	}

	if s.Repeat == models.RepeatAll || (!ended && s.Repeat == models.RepeatOne) {
		p := Patch{Position: lo.ToPtr(0)}.resetTimes(s.SoundList[0].Duration)
		if ended {
			p.IsPlaying = lo.ToPtr(true)
		}
		return p, true
	}

	if !ended {
		return Patch{}, false
	}
	// End of the list: stop on the last sound, rewound
	return Patch{IsPlaying: lo.ToPtr(false)}.resetTimes(s.SoundList[s.Position].Duration), true
}

func (r *Reducer) previous(s State) (Patch, bool) {
	if len(s.SoundList) == 0 {
		return Patch{}, false
	}

	prev := s.Position - 1
	if prev < 0 && s.Repeat == models.RepeatAll {
		prev = len(s.SoundList) - 1
	}
	if s.CurrentTime >= restartThreshold || prev < 0 {
		return Patch{}.resetTimes(s.SoundList[s.Position].Duration), true
	}
	return Patch{Position: lo.ToPtr(prev)}.resetTimes(s.SoundList[prev].Duration), true
}

// setShuffle shuffles only the sounds after the current one so the playing
// sound and the history before it stay in place. Turning shuffle off keeps
// the current order.
func (r *Reducer) setShuffle(s State, enabled bool) (Patch, bool) {
	if enabled == s.IsShuffled {
		return Patch{}, false
	}
	p := Patch{IsShuffled: lo.ToPtr(enabled)}
	if enabled && s.Position+1 < len(s.SoundList)-1 {
		list := slices.Clone(s.SoundList)
		upcoming := r.shuffle(slices.Clone(list[s.Position+1:]))
		list = append(list[:s.Position+1], upcoming...)
		p.SoundList = &list
	}
	return p, true
}
