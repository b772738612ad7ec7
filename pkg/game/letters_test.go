package game

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSource struct {
	v   uint32
	err error
}

func (s fixedSource) Uint32() (uint32, error) {
	return s.v, s.err
}

func TestCoinFlip(t *testing.T) {
	tests := []struct {
		name string
		v    uint32
		want int
	}{
		{name: "zero", v: 0x00000000, want: 0},
		{name: "just below midpoint", v: 0x7FFFFFFF, want: 0},
		{name: "midpoint", v: 0x80000000, want: 1},
		{name: "max", v: 0xFFFFFFFF, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CoinFlip(fixedSource{v: tt.v})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoinFlip_SourceError(t *testing.T) {
	_, err := CoinFlip(fixedSource{err: errors.New("entropy exhausted")})
	assert.Error(t, err)
}

func TestCryptoSource(t *testing.T) {
	seen := map[int]bool{}
	for i := 0; i < 256 && len(seen) < 2; i++ {
		slot, err := CoinFlip(CryptoSource{})
		require.NoError(t, err)
		seen[slot] = true
	}
	assert.Len(t, seen, 2)
}

func TestSpell(t *testing.T) {
	assert.Equal(t, "", Spell(0))
	assert.Equal(t, "SKA", Spell(3))
	assert.Equal(t, "SKATE", Spell(7))
	assert.Equal(t, "", Spell(-1))
}

func TestRules_Score(t *testing.T) {
	tests := []struct {
		name  string
		rules Rules
		x     Exchange
		want  Score
	}{
		{
			name: "defender lands",
			x:    Exchange{Setter: "a", Defender: "b"},
			want: Score{NextSetter: "a"},
		},
		{
			name:  "defender lands with swap",
			rules: Rules{SwapTurnOnLand: true},
			x:     Exchange{Setter: "a", Defender: "b"},
			want:  Score{NextSetter: "b"},
		},
		{
			name: "defender misses",
			x:    Exchange{Setter: "a", Defender: "b", Failed: "b"},
			want: Score{LetterTo: "b", NextSetter: "a"},
		},
		{
			name: "setter bails own trick",
			x:    Exchange{Setter: "a", Defender: "b", Failed: "a"},
			want: Score{LetterTo: "a", NextSetter: "b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rules.Score(tt.x))
		})
	}
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeConflict, CodeOf(Conflict("x")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	wrapped := Unavailable(errors.New("dial tcp: refused"), "store unavailable")
	assert.Equal(t, CodeUnavailable, CodeOf(wrapped))
	assert.Contains(t, wrapped.Error(), "refused")
}
