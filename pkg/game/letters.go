package game

const (
	// MaxLetters is the elimination threshold.
	MaxLetters = 5
	// Word is spelled out one letter per miss.
	Word = "SKATE"
)

// Spell returns the first n letters of Word.
func Spell(n int) string {
	if n < 0 {
		n = 0
	}
	if n > MaxLetters {
		n = MaxLetters
	}
	return Word[:n]
}

// Board is a two-seat letter tally.
type Board interface {
	Letters(uid string) int
	SetLetters(uid string, n int)
}

// AddLetter gives uid one more letter and reports whether uid is now eliminated.
// The tally never exceeds MaxLetters.
func AddLetter(b Board, uid string) bool {
	n := b.Letters(uid)
	if n < MaxLetters {
		n++
		b.SetLetters(uid, n)
	}
	return n >= MaxLetters
}

// Rules holds house-rule switches shared by both variants.
type Rules struct {
	// SwapTurnOnLand passes the setter role to the defender after a successful defense.
	SwapTurnOnLand bool
}

// Exchange describes how one set/respond exchange ended.
type Exchange struct {
	Setter   string
	Defender string
	// Failed is the participant who missed, or empty when the defender landed.
	Failed string
}

// Score is the effect of an exchange.
type Score struct {
	// LetterTo receives a letter, or is empty if nobody missed.
	LetterTo   string
	NextSetter string
}

// Score computes the letter and the next setter for an exchange.
// A missing defender takes a letter and the setter keeps control. A setter
// bailing their own trick takes the letter and loses the turn.
func (r Rules) Score(x Exchange) Score {
	switch x.Failed {
	case "":
		if r.SwapTurnOnLand {
			return Score{NextSetter: x.Defender}
		}
		return Score{NextSetter: x.Setter}
	case x.Defender:
		return Score{LetterTo: x.Defender, NextSetter: x.Setter}
	default:
		return Score{LetterTo: x.Setter, NextSetter: x.Defender}
	}
}
