package dpos

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	ecvrf "github.com/vechain/go-ecvrf"
)

// TriggerInput is the node supplied material for a behaviour. InValue is the
// fresh pre-image committed to by UpdateValue, PreviousInValue the pre-image
// of the commitment carried into the round. ReferenceTime is the block time
// for UpdateValue and the start of the new round for NextRound and NextTerm.
type TriggerInput struct {
	Pub             []byte
	Behaviour       Behaviour
	InValue         Hash
	PreviousInValue Hash
	ReferenceTime   uint64

	// VRFProof is set when InValue was derived by the VRF, PreviousVRFProof
	// when PreviousInValue was.
	VRFProof         []byte
	PreviousVRFProof []byte
}

type inValueKey struct {
	term, round uint64
}

type cachedInValue struct {
	in    Hash
	proof []byte
}

// InValueCache remembers the in-values this node committed to, and their VRF
// proofs, keyed by the term and round of the commitment until they are
// revealed.
type InValueCache struct {
	arc *lru.ARCCache
}

func NewInValueCache(size int) (*InValueCache, error) {
	arc, err := lru.NewARC(size)
	if err != nil {
		return nil, err
	}
	return &InValueCache{arc: arc}, nil
}

func (c *InValueCache) Put(term, round uint64, in Hash, proof []byte) {
	c.arc.Add(inValueKey{term, round}, cachedInValue{in: in, proof: proof})
}

// Get returns the in-value committed in term, round and its proof, which is
// nil for random in-values.
func (c *InValueCache) Get(term, round uint64) (Hash, []byte, bool) {
	v, ok := c.arc.Get(inValueKey{term, round})
	if !ok {
		return Hash{}, nil, false
	}
	cached := v.(cachedInValue)
	return cached.in, cached.proof, true
}

// Triggers makes TriggerInputs for the local miner. In-values are either
// random or, when a VRF is configured, the VRF output over the chain id and
// the term and round being committed to. The proof travels with the reveal so
// the validator can check the in-value was not chosen by the miner.
type Triggers struct {
	codec   *CipherCodec
	key     *ecdsa.PrivateKey
	pub     []byte
	chainID []byte
	vrf     ecvrf.VRF
	cache   *InValueCache
}

type TriggersOption func(t *Triggers)

// WithVRF derives in-values with the secp256k1 VRF instead of crypto/rand
func WithVRF() TriggersOption {
	return func(t *Triggers) {
		t.vrf = ecvrf.NewSecp256k1Sha256Tai()
	}
}

func NewTriggers(
	codec *CipherCodec, key *ecdsa.PrivateKey, config *Config, opts ...TriggersOption) (*Triggers, error) {

	cache, err := NewInValueCache(config.InValueCacheSize)
	if err != nil {
		return nil, err
	}
	t := &Triggers{
		codec:   codec,
		key:     key,
		pub:     codec.PubMarshal(&key.PublicKey),
		chainID: []byte(config.ChainID),
		cache:   cache,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Cache exposes the in-value cache
func (t *Triggers) Cache() *InValueCache {
	return t.cache
}

// Trigger builds the input for cmd against round r at now. For UpdateValue a
// new in-value is generated and remembered, and the in-value for the
// commitment carried into r is looked up for reveal.
func (t *Triggers) Trigger(r *Round, cmd ConsensusCommand, now uint64) (*TriggerInput, error) {

	in := &TriggerInput{
		Pub:           t.pub,
		Behaviour:     cmd.Behaviour,
		ReferenceTime: now,
	}

	switch cmd.Behaviour {
	case InitialConsensus:
		return in, nil
	case NextRound, NextTerm:
		in.ReferenceTime = NewRoundTime(r).NextRoundStart(now)
		return in, nil
	case UpdateValue:
	default:
		return nil, fmt.Errorf("no trigger for %v", cmd.Behaviour)
	}

	slot := r.SlotByPub(t.pub)
	if slot == nil {
		return nil, ErrUnknownMiner
	}

	var err error
	if in.InValue, in.VRFProof, err = t.newInValue(r); err != nil {
		return nil, err
	}
	t.cache.Put(r.TermNumber, r.RoundNumber, in.InValue, in.VRFProof)

	if !slot.PreviousOutValue.IsZero() {
		if prev, proof, ok := t.cache.Get(slot.CommitTerm, slot.CommitRound); ok {
			in.PreviousInValue = prev
			in.PreviousVRFProof = proof
		}
	}
	return in, nil
}

func (t *Triggers) newInValue(r *Round) (Hash, []byte, error) {
	if t.vrf == nil {
		var h Hash
		if _, err := rand.Read(h[:]); err != nil {
			return Hash{}, nil, err
		}
		return h, nil, nil
	}
	beta, pi, err := t.vrf.Prove(t.key, VRFAlpha(t.chainID, r.TermNumber, r.RoundNumber))
	if err != nil {
		return Hash{}, nil, fmt.Errorf("vrf prove: %w", err)
	}
	return t.codec.Keccak256Hash(beta), pi, nil
}

// VRFAlpha is the VRF input for an in-value committed in term, round. It
// leaves out the round id so the proof can be checked at reveal time from the
// commit term and round carried in the slot.
func VRFAlpha(chainID []byte, term, round uint64) []byte {
	alpha := make([]byte, 0, len(chainID)+16)
	alpha = append(alpha, chainID...)
	var n [16]byte
	binary.BigEndian.PutUint64(n[:8], term)
	binary.BigEndian.PutUint64(n[8:], round)
	return append(alpha, n[:]...)
}

// VerifyVRFInValue checks that in was derived by the miner with public key
// pub for term, round using proof pi.
func VerifyVRFInValue(codec *CipherCodec, chainID []byte, term, round uint64, pub []byte, in Hash, pi []byte) error {
	pk, err := codec.BytesToPublic(pub)
	if err != nil {
		return err
	}
	beta, err := ecvrf.NewSecp256k1Sha256Tai().Verify(pk, VRFAlpha(chainID, term, round), pi)
	if err != nil {
		return err
	}
	if codec.Keccak256Hash(beta) != in {
		return ErrInvalidReveal
	}
	return nil
}
