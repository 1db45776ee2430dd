package dpos

import (
	"encoding/binary"
	"fmt"
)

const (
	// HintLen is the fixed size of an encoded hint:
	//   magic(1) | version(1) | behaviour(1) | reserved(1) |
	//   term(8) | round(8) | round id(32)
	HintLen     = 52
	HintVersion = 1

	hintMagic = 0xD5
)

// Hint is the compact descriptor of the behaviour a block represents. It
// names the round the behaviour acts on, so peers can reject a block that
// was built against a round they have already moved past without decoding
// its transactions.
type Hint struct {
	Behaviour   Behaviour
	TermNumber  uint64
	RoundNumber uint64
	RoundID     Hash
}

// HintFor describes behaviour b acting on round r
func HintFor(b Behaviour, r *Round) Hint {
	if r == nil {
		return Hint{Behaviour: b}
	}
	return Hint{
		Behaviour:   b,
		TermNumber:  r.TermNumber,
		RoundNumber: r.RoundNumber,
		RoundID:     r.RoundID,
	}
}

// MarshalBinary encodes the hint into its fixed layout
func (h Hint) MarshalBinary() ([]byte, error) {
	return h.Encode(), nil
}

func (h Hint) Encode() []byte {
	b := make([]byte, HintLen)
	b[0] = hintMagic
	b[1] = HintVersion
	b[2] = byte(h.Behaviour)
	binary.BigEndian.PutUint64(b[4:12], h.TermNumber)
	binary.BigEndian.PutUint64(b[12:20], h.RoundNumber)
	copy(b[20:], h.RoundID[:])
	return b
}

func (h *Hint) UnmarshalBinary(b []byte) error {
	d, err := DecodeHint(b)
	if err != nil {
		return err
	}
	*h = d
	return nil
}

// DecodeHint decodes and sanity checks an encoded hint
func DecodeHint(b []byte) (Hint, error) {
	if len(b) != HintLen {
		return Hint{}, fmt.Errorf("hint must be %d bytes not %d", HintLen, len(b))
	}
	if b[0] != hintMagic {
		return Hint{}, fmt.Errorf("hint magic %x invalid", b[0])
	}
	if b[1] != HintVersion {
		return Hint{}, fmt.Errorf("hint version %d not supported", b[1])
	}
	h := Hint{
		Behaviour:   Behaviour(b[2]),
		TermNumber:  binary.BigEndian.Uint64(b[4:12]),
		RoundNumber: binary.BigEndian.Uint64(b[12:20]),
	}
	if !h.Behaviour.Valid() {
		return Hint{}, fmt.Errorf("hint behaviour %d invalid", b[2])
	}
	copy(h.RoundID[:], b[20:])
	return h, nil
}

// Check pre-validates the hint against the round the receiving node holds.
func (h Hint) Check(r *Round) error {
	if h.Behaviour == InitialConsensus {
		if r != nil {
			return newErr(KindInvalidRound, "initial consensus hinted but round %d exists", r.RoundNumber)
		}
		return nil
	}
	if r == nil {
		return ErrRoundNotFound
	}
	if h.RoundID != r.RoundID || h.TermNumber != r.TermNumber || h.RoundNumber != r.RoundNumber {
		return newErr(KindRoundIDMismatch,
			"hint names term %d round %d (%s), have term %d round %d (%s)",
			h.TermNumber, h.RoundNumber, h.RoundID.HexShort(),
			r.TermNumber, r.RoundNumber, r.RoundID.HexShort())
	}
	return nil
}
