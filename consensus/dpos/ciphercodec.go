package dpos

import (
	"crypto/ecdsa"
	"errors"
)

var (
	ErrSignedDecodeSignedFailed = errors.New("decoding signed consensus encoding failed")
)

// General serialisation support for consensus types that need recording in
// the chain state or in transactions. The encoding is supplied by the caller
// (see the rlpcodec package) so the consensus itself has no dependency on a
// particular wire format.

type BytesEncoder interface {
	EncodeToBytes(val interface{}) ([]byte, error)
}
type BytesDecoder interface {
	DecodeBytes(b []byte, val interface{}) error
}

type BytesCodec interface {
	BytesEncoder
	BytesDecoder
}

// CipherCodec pairs a CipherSuite with a BytesCodec. Everything that needs to
// hash, sign or recover consensus data goes through here.
type CipherCodec struct {
	c  CipherSuite
	ed BytesCodec
}

func NewCodec(c CipherSuite, ed BytesCodec) *CipherCodec {
	return &CipherCodec{c: c, ed: ed}
}

func (codec *CipherCodec) Suite() CipherSuite {
	return codec.c
}

func (codec *CipherCodec) EncodeToBytes(val interface{}) ([]byte, error) {
	return codec.ed.EncodeToBytes(val)
}

func (codec *CipherCodec) DecodeBytes(b []byte, val interface{}) error {
	return codec.ed.DecodeBytes(b, val)
}

func (codec *CipherCodec) Keccak256Hash(b ...[]byte) Hash {
	return Keccak256Hash(codec.c, b...)
}

func (codec *CipherCodec) BytesToPublic(pub []byte) (*ecdsa.PublicKey, error) {
	return BytesToPublic(codec.c, pub)
}

func (codec *CipherCodec) NodeIDFromPubBytes(pub []byte) (Hash, error) {
	return NodeIDFromPubBytes(codec.c, pub)
}

func (codec *CipherCodec) NodeIDFromPub(pub *ecdsa.PublicKey) Hash {
	return NodeIDFromPub(codec.c, pub)
}

func (codec *CipherCodec) PubMarshal(pub *ecdsa.PublicKey) []byte {
	return PubMarshal(codec.c, pub)
}

// VerifyNodeSig verifies that sig over digest was produced by the
// public key for the node identified by nodeID.
func (codec *CipherCodec) VerifyNodeSig(
	nodeID Hash, digest, sig []byte) bool {
	return VerifyNodeSig(codec.c, nodeID, digest, sig)
}

type signedEncoding struct {
	Encoded []byte
	Sig     [65]byte
}

// SignedEncode encodes v, signs the Keccak256 of the encoding and returns the
// signature along with the encoding of both.
func (codec *CipherCodec) SignedEncode(k *ecdsa.PrivateKey, v interface{}) ([65]byte, []byte, error) {
	var err error

	se := &signedEncoding{}
	var b []byte

	if se.Encoded, err = codec.EncodeToBytes(v); err != nil {
		return [65]byte{}, nil, err
	}

	h := codec.c.Keccak256(se.Encoded)

	if b, err = codec.c.Sign(h, k); err != nil {
		return [65]byte{}, nil, err
	}

	copy(se.Sig[:], b)

	if b, err = codec.EncodeToBytes(se); err != nil {
		return [65]byte{}, nil, err
	}
	return se.Sig, b, nil
}

// DecodeSigned decodes a signed encoding and recovers the public key of the
// signer. The recovered key is the miner identity, so the sender of a
// consensus transaction never needs to be stated separately.
func (codec *CipherCodec) DecodeSigned(msg []byte) ([65]byte, []byte, []byte, error) {

	var err error
	var pub []byte

	se := &signedEncoding{}
	if err = codec.DecodeBytes(msg, se); err != nil {
		return [65]byte{}, nil, nil, err
	}

	h := codec.c.Keccak256(se.Encoded)

	// recover the public key
	pub, err = codec.c.Ecrecover(h, se.Sig[:])
	if err != nil {
		return [65]byte{}, nil, nil, err
	}

	return se.Sig, pub, se.Encoded, nil
}

// roundSchedule is the immutable part of a Round. Its hash is the round id.
type roundSchedule struct {
	TermNumber     uint64
	RoundNumber    uint64
	MiningInterval uint64
	Seed           Hash
	TermStartTime  uint64
	Slots          []scheduleSlot
}

type scheduleSlot struct {
	NodeID             Hash
	Order              uint64
	ExpectedMiningTime uint64
}

// RoundID returns the fingerprint of the rounds schedule. Committing values
// into the round does not change it.
func (codec *CipherCodec) RoundID(r *Round) (Hash, error) {
	s := roundSchedule{
		TermNumber:     r.TermNumber,
		RoundNumber:    r.RoundNumber,
		MiningInterval: r.MiningInterval,
		Seed:           r.Seed,
		TermStartTime:  r.TermStartTime,
		Slots:          make([]scheduleSlot, len(r.Miners)),
	}
	for i := range r.Miners {
		s.Slots[i] = scheduleSlot{
			NodeID:             r.Miners[i].NodeID,
			Order:              r.Miners[i].Order,
			ExpectedMiningTime: r.Miners[i].ExpectedMiningTime,
		}
	}
	b, err := codec.EncodeToBytes(&s)
	if err != nil {
		return Hash{}, err
	}
	return codec.Keccak256Hash(b), nil
}
