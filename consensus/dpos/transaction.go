package dpos

import (
	"crypto/ecdsa"
	"fmt"
)

// UpdateValueInput is the payload of an UpdateValue transaction. RoundID pins
// it to the round the miner observed. PreviousInValueProof is the VRF proof
// for a revealed in-value, empty if the in-value was not VRF derived.
type UpdateValueInput struct {
	RoundID              Hash
	ActualMiningTime     uint64
	OutValue             Hash
	Signature            Hash
	PreviousInValue      Hash
	ProducedBlocks       uint64
	PreviousInValueProof []byte
}

// Transaction is the body of a consensus transaction. Payload is the
// encoding of an UpdateValueInput or, for the other behaviours, of the full
// new Round.
type Transaction struct {
	Behaviour Behaviour
	Payload   []byte
}

// SignedTransaction is a transaction ready to broadcast. The sender is
// recovered from the signature when it is decoded.
type SignedTransaction struct {
	Behaviour Behaviour
	Hint      Hint
	Sig       [65]byte
	Raw       []byte
}

// DecodedTx is a verified consensus transaction
type DecodedTx struct {
	Behaviour Behaviour
	Sender    []byte
	SenderID  Hash

	Update *UpdateValueInput
	Round  *Round
}

// EncodeSignTransaction encodes the payload for behaviour b and signs it
// with k.
func (codec *CipherCodec) EncodeSignTransaction(
	k *ecdsa.PrivateKey, b Behaviour, payload interface{}, hint Hint) (*SignedTransaction, error) {

	body, err := codec.EncodeToBytes(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %v payload: %w", b, err)
	}
	sig, raw, err := codec.SignedEncode(k, &Transaction{Behaviour: b, Payload: body})
	if err != nil {
		return nil, err
	}
	return &SignedTransaction{Behaviour: b, Hint: hint, Sig: sig, Raw: raw}, nil
}

// DecodeTransaction decodes raw and recovers its sender. Any failure is an
// ErrInvalidTransaction.
func (codec *CipherCodec) DecodeTransaction(raw []byte) (*DecodedTx, error) {

	_, pub, body, err := codec.DecodeSigned(raw)
	if err != nil {
		return nil, newErr(KindInvalidTransaction, "%v: %v", ErrSignedDecodeSignedFailed, err)
	}
	tx := &Transaction{}
	if err := codec.DecodeBytes(body, tx); err != nil {
		return nil, newErr(KindInvalidTransaction, "body: %v", err)
	}

	d := &DecodedTx{Behaviour: tx.Behaviour, Sender: pub}
	if d.SenderID, err = codec.NodeIDFromPubBytes(pub); err != nil {
		return nil, newErr(KindInvalidTransaction, "sender: %v", err)
	}

	switch tx.Behaviour {
	case UpdateValue:
		d.Update = &UpdateValueInput{}
		err = codec.DecodeBytes(tx.Payload, d.Update)
	case InitialConsensus, NextRound, NextTerm:
		d.Round = &Round{}
		err = codec.DecodeBytes(tx.Payload, d.Round)
	default:
		return nil, newErr(KindInvalidTransaction, "behaviour %d", tx.Behaviour)
	}
	if err != nil {
		return nil, newErr(KindInvalidTransaction, "%v payload: %v", tx.Behaviour, err)
	}
	return d, nil
}
