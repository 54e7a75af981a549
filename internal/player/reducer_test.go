package player

import (
	"encoding/json"
	"math/rand/v2"
	"testing"

	"legato/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reduce applies cmd to s the way the store does and returns the result.
func reduce(t *testing.T, r *Reducer, s State, cmd Command) (State, bool) {
	t.Helper()
	p, applied, err := r.Reduce(s, cmd)
	require.NoError(t, err)
	next := s.Clone()
	next.merge(p)
	next.normalize()
	return next, applied
}

func playing(l models.List, position int) State {
	s := DefaultState()
	s.SoundList = l.Sounds
	s.ListHash = l.Hash
	s.Position = position
	s.IsPlaying = true
	return s
}

func TestReduce_PlayList(t *testing.T) {
	r := NewReducerWithShuffle(reverse)
	p1 := list("p1", "s1", "s2", "s3")

	t.Run("loads list at first sound", func(t *testing.T) {
		s, applied := reduce(t, r, DefaultState(), PlayList{List: p1})
		require.True(t, applied)
		assert.True(t, s.IsPlaying)
		assert.Equal(t, 0, s.Position)
		assert.Equal(t, []string{"s1", "s2", "s3"}, hashes(s.SoundList))
		assert.Equal(t, "p1", s.ListHash)
		assert.Equal(t, TagPlayList, s.Action)
	})

	t.Run("starts at the requested sound", func(t *testing.T) {
		s2 := sound("s2")
		s, _ := reduce(t, r, DefaultState(), PlayList{List: p1, Sound: &s2})
		assert.Equal(t, 1, s.Position)
	})

	t.Run("sound missing from list falls back to zero", func(t *testing.T) {
		other := sound("zz")
		s, _ := reduce(t, r, DefaultState(), PlayList{List: p1, Sound: &other})
		assert.Equal(t, 0, s.Position)
		assert.True(t, s.IsPlaying)
	})

	t.Run("replaying the playing list is idempotent", func(t *testing.T) {
		start := playing(p1, 2)
		start.Elapsed = "01.05"
		start.CurrentTime = 65

		s, applied := reduce(t, r, start, PlayList{List: p1})
		require.True(t, applied)
		assert.Equal(t, 2, s.Position)
		assert.Equal(t, "01.05", s.Elapsed)
		assert.Equal(t, 65.0, s.CurrentTime)
		assert.True(t, s.IsPlaying)
	})

	t.Run("replaying with the current sound is idempotent", func(t *testing.T) {
		start := playing(p1, 1)
		start.CurrentTime = 12
		current := sound("s2")

		s, _ := reduce(t, r, start, PlayList{List: p1, Sound: &current})
		assert.Equal(t, 1, s.Position)
		assert.Equal(t, 12.0, s.CurrentTime)
	})

	t.Run("same list with another sound jumps to it", func(t *testing.T) {
		start := playing(p1, 0)
		start.CurrentTime = 40
		target := sound("s3")

		s, _ := reduce(t, r, start, PlayList{List: p1, Sound: &target})
		assert.Equal(t, 2, s.Position)
		assert.Equal(t, 0.0, s.CurrentTime)
		assert.Equal(t, "00.00", s.Elapsed)
	})

	t.Run("same list paused resumes in place", func(t *testing.T) {
		start := playing(p1, 1)
		start.IsPlaying = false
		start.CurrentTime = 30

		s, applied := reduce(t, r, start, PlayList{List: p1})
		require.True(t, applied)
		assert.True(t, s.IsPlaying)
		assert.Equal(t, 1, s.Position)
		assert.Equal(t, 30.0, s.CurrentTime)
	})

	t.Run("another list resets", func(t *testing.T) {
		start := playing(p1, 2)
		start.CurrentTime = 30

		s, _ := reduce(t, r, start, PlayList{List: list("p2", "a", "b")})
		assert.Equal(t, "p2", s.ListHash)
		assert.Equal(t, 0, s.Position)
		assert.Equal(t, 0.0, s.CurrentTime)
		assert.Equal(t, []string{"a", "b"}, hashes(s.SoundList))
	})

	t.Run("shuffled player keeps the chosen sound first", func(t *testing.T) {
		start := DefaultState()
		start.IsShuffled = true
		s2 := sound("s2")

		s, _ := reduce(t, r, start, PlayList{List: p1, Sound: &s2})
		assert.Equal(t, 0, s.Position)
		assert.Equal(t, []string{"s2", "s3", "s1"}, hashes(s.SoundList))
	})

	t.Run("empty list loads but does not play", func(t *testing.T) {
		s, applied := reduce(t, r, DefaultState(), PlayList{List: models.List{Hash: "empty"}})
		require.True(t, applied)
		assert.False(t, s.IsPlaying)
		assert.Equal(t, NoPosition, s.Position)
	})
}

func TestReduce_DropsFilePath(t *testing.T) {
	r := NewReducer()
	local := func(hash string) models.Sound {
		s := sound(hash)
		s.FilePath = "/music/" + hash + ".mp3"
		return s
	}
	start := playing(list("p1", "s1", "s2"), 0)

	tests := []struct {
		name string
		cmd  Command
	}{
		{"play list", PlayList{List: models.List{Hash: "p2", Sounds: []models.Sound{local("a"), local("b")}}}},
		{"play sound", PlaySound{Sound: local("a")}},
		{"play next", PlayNext{Sounds: []models.Sound{local("a")}}},
		{"add to queue", AddToQueue{Sounds: []models.Sound{local("a")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, applied := reduce(t, r, start, tt.cmd)
			require.True(t, applied)
			for _, snd := range append(s.SoundList, s.QueueList...) {
				assert.Empty(t, snd.FilePath, snd.Hash)
			}
		})
	}
}

func TestReduce_PauseResume(t *testing.T) {
	r := NewReducer()
	p1 := list("p1", "s1", "s2")

	tests := []struct {
		name        string
		start       State
		cmd         Command
		wantApplied bool
		wantPlaying bool
	}{
		{"pause player while playing", playing(p1, 0), PausePlayer{}, true, false},
		{"pause sound while playing", playing(p1, 0), PauseSound{}, true, false},
		{"pause while paused", DefaultState(), PausePlayer{}, false, false},
		{"resume list while paused", func() State { s := playing(p1, 1); s.IsPlaying = false; return s }(), ResumeList{}, true, true},
		{"resume sound while paused", func() State { s := playing(p1, 1); s.IsPlaying = false; return s }(), ResumeSound{}, true, true},
		{"resume with empty list", DefaultState(), ResumeList{}, false, false},
		{"resume while playing", playing(p1, 0), ResumeSound{}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, applied := reduce(t, r, tt.start, tt.cmd)
			assert.Equal(t, tt.wantApplied, applied)
			assert.Equal(t, tt.wantPlaying, s.IsPlaying)
			assert.Equal(t, hashes(tt.start.SoundList), hashes(s.SoundList))
			assert.Equal(t, tt.start.Position, s.Position)
		})
	}
}

func TestReduce_PlaySound(t *testing.T) {
	r := NewReducer()
	start := playing(list("p1", "s1", "s2"), 1)
	one := sound("x")
	one.Duration = 125

	s, applied := reduce(t, r, start, PlaySound{Sound: one})
	require.True(t, applied)
	assert.Equal(t, []string{"x"}, hashes(s.SoundList))
	assert.Equal(t, 0, s.Position)
	assert.True(t, s.IsPlaying)
	assert.Empty(t, s.ListHash)
	assert.Equal(t, "02.05", s.Duration)
}

func TestReduce_PlayNext(t *testing.T) {
	r := NewReducer()

	t.Run("inserts after current position", func(t *testing.T) {
		s, applied := reduce(t, r, playing(list("p1", "s1", "s2", "s3"), 1), PlayNext{Sounds: sounds("n1", "n2")})
		require.True(t, applied)
		assert.Equal(t, []string{"s1", "s2", "n1", "n2", "s3"}, hashes(s.SoundList))
		assert.Equal(t, 1, s.Position)
	})

	t.Run("at the last sound appends", func(t *testing.T) {
		s, _ := reduce(t, r, playing(list("p1", "s1", "s2"), 1), PlayNext{Sounds: sounds("n1")})
		assert.Equal(t, []string{"s1", "s2", "n1"}, hashes(s.SoundList))
	})

	t.Run("empty sound list is not applied", func(t *testing.T) {
		s, applied := reduce(t, r, DefaultState(), PlayNext{Sounds: sounds("n1")})
		assert.False(t, applied)
		assert.Empty(t, s.SoundList)
	})
}

func TestReduce_AddToQueue(t *testing.T) {
	r := NewReducer()
	start := playing(list("p1", "s1"), 0)

	s, applied := reduce(t, r, start, AddToQueue{Sounds: sounds("a", "b")})
	require.True(t, applied)
	s, _ = reduce(t, r, s, AddToQueue{Sounds: sounds("c")})

	assert.Equal(t, []string{"a", "b", "c"}, hashes(s.QueueList))
	assert.Equal(t, []string{"s1"}, hashes(s.SoundList))

	_, applied = reduce(t, r, s, AddToQueue{})
	assert.False(t, applied)

	s, applied = reduce(t, r, s, ClearQueue{})
	require.True(t, applied)
	assert.Empty(t, s.QueueList)
}

func TestReduce_Advance(t *testing.T) {
	r := NewReducer()
	p1 := list("p1", "s1", "s2", "s3")

	t.Run("next sound", func(t *testing.T) {
		start := playing(p1, 0)
		start.CurrentTime = 99
		s, applied := reduce(t, r, start, SoundEnded{})
		require.True(t, applied)
		assert.Equal(t, 1, s.Position)
		assert.Equal(t, 0.0, s.CurrentTime)
		assert.True(t, s.IsPlaying)
	})

	t.Run("queue head plays before the list continues", func(t *testing.T) {
		start := playing(p1, 0)
		start.QueueList = sounds("q1", "q2")
		s, _ := reduce(t, r, start, SoundEnded{})
		assert.Equal(t, []string{"s1", "q1", "s2", "s3"}, hashes(s.SoundList))
		assert.Equal(t, 1, s.Position)
		assert.Equal(t, []string{"q2"}, hashes(s.QueueList))
	})

	t.Run("queue feeds an empty player", func(t *testing.T) {
		start := DefaultState()
		start.QueueList = sounds("q1")
		s, applied := reduce(t, r, start, SkipNext{})
		require.True(t, applied)
		assert.Equal(t, []string{"q1"}, hashes(s.SoundList))
		assert.True(t, s.IsPlaying)
		assert.Empty(t, s.QueueList)
	})

	t.Run("repeat one restarts on end", func(t *testing.T) {
		start := playing(p1, 1)
		start.Repeat = models.RepeatOne
		start.CurrentTime = 50
		s, _ := reduce(t, r, start, SoundEnded{})
		assert.Equal(t, 1, s.Position)
		assert.Equal(t, 0.0, s.CurrentTime)
	})

	t.Run("skip ignores repeat one", func(t *testing.T) {
		start := playing(p1, 1)
		start.Repeat = models.RepeatOne
		s, _ := reduce(t, r, start, SkipNext{})
		assert.Equal(t, 2, s.Position)
	})

	t.Run("repeat all wraps", func(t *testing.T) {
		start := playing(p1, 2)
		start.Repeat = models.RepeatAll
		s, _ := reduce(t, r, start, SoundEnded{})
		assert.Equal(t, 0, s.Position)
		assert.True(t, s.IsPlaying)
	})

	t.Run("end of list stops", func(t *testing.T) {
		s, applied := reduce(t, r, playing(p1, 2), SoundEnded{})
		require.True(t, applied)
		assert.False(t, s.IsPlaying)
		assert.Equal(t, 2, s.Position)
	})

	t.Run("skip at end without repeat is ignored", func(t *testing.T) {
		_, applied := reduce(t, r, playing(p1, 2), SkipNext{})
		assert.False(t, applied)
	})
}

func TestReduce_SkipPrevious(t *testing.T) {
	r := NewReducer()
	p1 := list("p1", "s1", "s2", "s3")

	start := playing(p1, 2)
	start.CurrentTime = 10
	s, _ := reduce(t, r, start, SkipPrevious{})
	assert.Equal(t, 2, s.Position, "restarts when past the threshold")
	assert.Equal(t, 0.0, s.CurrentTime)

	s, _ = reduce(t, r, s, SkipPrevious{})
	assert.Equal(t, 1, s.Position)

	first := playing(p1, 0)
	s, _ = reduce(t, r, first, SkipPrevious{})
	assert.Equal(t, 0, s.Position)

	first.Repeat = models.RepeatAll
	s, _ = reduce(t, r, first, SkipPrevious{})
	assert.Equal(t, 2, s.Position)
}

func TestReduce_Modes(t *testing.T) {
	r := NewReducerWithShuffle(reverse)

	s, applied := reduce(t, r, DefaultState(), SetRepeat{Mode: models.RepeatAll})
	require.True(t, applied)
	assert.Equal(t, models.RepeatAll, s.Repeat)
	assert.True(t, s.OnRepeat)

	_, applied = reduce(t, r, s, SetRepeat{Mode: models.RepeatAll})
	assert.False(t, applied)

	s, _ = reduce(t, r, s, SetRepeat{Mode: models.RepeatNone})
	assert.False(t, s.OnRepeat)

	s, _ = reduce(t, r, DefaultState(), SetVolume{Volume: 140})
	assert.Equal(t, MaxVolume, s.Volume)
	s, _ = reduce(t, r, s, SetVolume{Volume: -3})
	assert.Equal(t, 0, s.Volume)

	start := playing(list("p1", "s1", "s2", "s3", "s4"), 1)
	s, applied = reduce(t, r, start, SetShuffle{Enabled: true})
	require.True(t, applied)
	assert.True(t, s.IsShuffled)
	assert.Equal(t, []string{"s1", "s2", "s4", "s3"}, hashes(s.SoundList))
	assert.Equal(t, 1, s.Position)

	s, _ = reduce(t, r, s, SetShuffle{Enabled: false})
	assert.False(t, s.IsShuffled)
	assert.Equal(t, []string{"s1", "s2", "s4", "s3"}, hashes(s.SoundList))
}

func TestReduce_SyncPlayerState(t *testing.T) {
	r := NewReducer()
	vol := 12
	p := Patch{Volume: &vol, Extra: map[string]json.RawMessage{"theme": json.RawMessage(`"dark"`)}}

	s, applied := reduce(t, r, DefaultState(), SyncPlayerState{Patch: p})
	require.True(t, applied)
	assert.Equal(t, 12, s.Volume)
	assert.Equal(t, TagSyncPlayerState, s.Action)
	assert.JSONEq(t, `"dark"`, string(s.Extra["theme"]))

	_, applied = reduce(t, r, s, SyncPlayerState{})
	assert.False(t, applied)
}

type bogusCommand struct{}

func (bogusCommand) Tag() CommandTag { return "BOGUS" }
func (bogusCommand) isCommand()      {}

func TestReduce_UnknownCommand(t *testing.T) {
	_, applied, err := NewReducer().Reduce(DefaultState(), bogusCommand{})
	assert.False(t, applied)
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestReduce_InvariantsHoldForRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	r := NewReducerWithShuffle(reverse)
	pool := sounds("a", "b", "c", "d", "e")

	randomSounds := func() []models.Sound {
		n := rng.IntN(4)
		out := make([]models.Sound, n)
		for i := range out {
			out[i] = pool[rng.IntN(len(pool))]
		}
		return out
	}
	commands := []func() Command{
		func() Command { return PlayList{List: models.List{Hash: "l" + string(rune('0'+rng.IntN(3))), Sounds: randomSounds()}} },
		func() Command { return PausePlayer{} },
		func() Command { return ResumeList{} },
		func() Command { return PlaySound{Sound: pool[rng.IntN(len(pool))]} },
		func() Command { return PauseSound{} },
		func() Command { return ResumeSound{} },
		func() Command { return PlayNext{Sounds: randomSounds()} },
		func() Command { return AddToQueue{Sounds: randomSounds()} },
		func() Command { return SkipNext{} },
		func() Command { return SkipPrevious{} },
		func() Command { return SoundEnded{} },
		func() Command { return SetRepeat{Mode: models.RepeatMode(rng.IntN(3))} },
		func() Command { return SetShuffle{Enabled: rng.IntN(2) == 0} },
		func() Command { return ClearQueue{} },
		func() Command {
			pos := rng.IntN(10) - 3
			return SyncPlayerState{Patch: Patch{Position: &pos}}
		},
		func() Command {
			l := randomSounds()
			return SyncPlayerState{Patch: Patch{SoundList: &l}}
		},
	}

	s := DefaultState()
	for i := range 5000 {
		cmd := commands[rng.IntN(len(commands))]()
		s, _ = reduce(t, r, s, cmd)

		if len(s.SoundList) == 0 {
			require.Equal(t, NoPosition, s.Position, "step %d after %s", i, cmd.Tag())
			require.False(t, s.IsPlaying, "step %d after %s", i, cmd.Tag())
		} else {
			require.GreaterOrEqual(t, s.Position, 0, "step %d after %s", i, cmd.Tag())
			require.Less(t, s.Position, len(s.SoundList), "step %d after %s", i, cmd.Tag())
		}
		require.Equal(t, s.Repeat != models.RepeatNone, s.OnRepeat)
	}
}
