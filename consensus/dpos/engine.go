package dpos

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/event"
)

// TxStatus is the outcome recorded by the block executor for a consensus
// transaction
type TxStatus int

const (
	TxMined TxStatus = iota
	TxFailed
)

func (s TxStatus) String() string {
	if s == TxMined {
		return "Mined"
	}
	return "Failed"
}

// TxResult is the failed-or-mined record of applying a transaction. A failed
// transaction leaves the round untouched.
type TxResult struct {
	Status    TxStatus
	Behaviour Behaviour
	Kind      ErrorKind
	Error     string
}

// Engine ties the selector, generator and validator to a RoundStore. Decisions
// read a fresh snapshot from the store every time. Transactions are applied
// by a single writer and committed with the stores compare-and-swap.
type Engine struct {
	codec  *CipherCodec
	config *Config
	logger Logger
	store  RoundStore

	pred      TermPredicate
	builder   *RoundBuilder
	gen       *Generator
	validator *Validator

	// held for the read-validate-swap sequence of ApplyTransaction
	applyMu sync.Mutex

	termFeed event.Feed
	scope    event.SubscriptionScope
}

type engineOptions struct {
	logger        Logger
	pred          TermPredicate
	elector       Elector
	initialMiners [][]byte
}

type EngineOption func(o *engineOptions)

func WithLogger(logger Logger) EngineOption {
	return func(o *engineOptions) { o.logger = logger }
}

// WithTermPredicate overrides the predicate derived from the config
func WithTermPredicate(pred TermPredicate) EngineOption {
	return func(o *engineOptions) { o.pred = pred }
}

// WithElector supplies the miner sets for new terms. Without one the miner
// set carries over unchanged.
func WithElector(elector Elector) EngineOption {
	return func(o *engineOptions) { o.elector = elector }
}

// WithInitialMiners sets the genesis miner set. InitialConsensus is built
// from it and only accepted when it carries exactly this set.
func WithInitialMiners(miners [][]byte) EngineOption {
	return func(o *engineOptions) { o.initialMiners = miners }
}

func NewEngine(config *Config, codec *CipherCodec, store RoundStore, opts ...EngineOption) *Engine {

	o := &engineOptions{logger: nopLogger{}}
	for _, opt := range opts {
		opt(o)
	}
	if o.pred == nil {
		o.pred = config.TermPredicate()
	}

	builder := NewRoundBuilder(codec)
	return &Engine{
		codec:     codec,
		config:    config,
		logger:    o.logger,
		store:     store,
		pred:      o.pred,
		builder:   builder,
		gen:       NewGenerator(codec, builder, config.MiningInterval, o.initialMiners, o.elector),
		validator: NewValidator(codec, builder, o.pred, o.elector, o.initialMiners, config),
	}
}

func (e *Engine) Codec() *CipherCodec {
	return e.codec
}

// CurrentRound returns the latest persisted round or ErrRoundNotFound
func (e *Engine) CurrentRound(ctx context.Context) (*Round, error) {
	return e.store.CurrentRound(ctx)
}

// CurrentTerm returns the miner set record of the current term
func (e *Engine) CurrentTerm(ctx context.Context) (*Term, error) {
	return e.store.CurrentTerm(ctx)
}

// RoundByNumber returns an archived round
func (e *Engine) RoundByNumber(ctx context.Context, term, round uint64) (*Round, error) {
	return e.store.RoundByNumber(ctx, term, round)
}

// latest is CurrentRound with "not found" reported as a nil round
func (e *Engine) latest(ctx context.Context) (*Round, error) {
	r, err := e.store.CurrentRound(ctx)
	if errors.Is(err, ErrRoundNotFound) {
		return nil, nil
	}
	return r, err
}

// GetConsensusCommand selects the behaviour for the miner with public key
// pub at now. ok is false if the node is not a miner of the current round.
func (e *Engine) GetConsensusCommand(ctx context.Context, pub []byte, now uint64) (ConsensusCommand, bool, error) {
	nodeID, err := e.codec.NodeIDFromPubBytes(pub)
	if err != nil {
		return ConsensusCommand{}, false, err
	}
	r, err := e.latest(ctx)
	if err != nil {
		return ConsensusCommand{}, false, err
	}
	cmd, ok := SelectCommand(r, nodeID, now, e.pred)
	if cmd.Behaviour == InitialConsensus {
		cmd.LimitOfMiningBlock = e.config.MiningInterval
	}
	e.logger.Trace("DPoS GetConsensusCommand", "node", nodeID.HexShort(), "ok", ok,
		"behaviour", cmd.Behaviour, "left", cmd.NextBlockMiningLeft, "limit", cmd.LimitOfMiningBlock)
	return cmd, ok, nil
}

// GetNewConsensusInformation materialises what the behaviour in the trigger
// would produce without applying it.
func (e *Engine) GetNewConsensusInformation(ctx context.Context, in *TriggerInput) (*ConsensusInformation, error) {
	r, err := e.latest(ctx)
	if err != nil {
		return nil, err
	}
	return e.gen.NewConsensusInformation(r, in)
}

// GenerateConsensusTransactions returns the transactions the node should
// broadcast for the behaviour in the trigger, signed with key.
func (e *Engine) GenerateConsensusTransactions(
	ctx context.Context, in *TriggerInput, key *ecdsa.PrivateKey) ([]*SignedTransaction, error) {
	r, err := e.latest(ctx)
	if err != nil {
		return nil, err
	}
	return e.gen.GenerateTransactions(r, in, key)
}

// ApplyTransaction validates raw against the persisted round and commits the
// result. Errors are *ConsensusError for rejected transactions.
func (e *Engine) ApplyTransaction(ctx context.Context, raw []byte, blockTime uint64) error {
	_, err := e.apply(ctx, raw, blockTime)
	return err
}

func (e *Engine) apply(ctx context.Context, raw []byte, blockTime uint64) (Behaviour, error) {

	tx, err := e.codec.DecodeTransaction(raw)
	if err != nil {
		return Nothing, err
	}

	e.applyMu.Lock()
	defer e.applyMu.Unlock()

	current, err := e.latest(ctx)
	if err != nil {
		return tx.Behaviour, err
	}

	next, term, err := e.validator.Apply(current, tx, blockTime)
	if err != nil {
		e.logger.Debug("DPoS rejected consensus transaction", "behaviour", tx.Behaviour,
			"sender", tx.SenderID.HexShort(), "err", err)
		return tx.Behaviour, err
	}

	if err := e.store.SwapRound(ctx, current, next, term); err != nil {
		if errors.Is(err, ErrRoundConflict) {
			return tx.Behaviour, newErr(KindRoundIDMismatch, "%v", err)
		}
		return tx.Behaviour, fmt.Errorf("persisting round %d: %w", next.RoundNumber, err)
	}

	e.logger.Info("DPoS applied consensus transaction", "behaviour", tx.Behaviour,
		"sender", tx.SenderID.HexShort(), "t", next.TermNumber, "r", next.RoundNumber,
		"rid", next.RoundID.HexShort(), "rev", next.Revision)

	if term != nil {
		e.termFeed.Send(TermChangedEvent{
			TermNumber: term.Number,
			StartTime:  term.StartTime,
			Miners:     term.Miners,
			RoundID:    next.RoundID,
		})
	}
	return tx.Behaviour, nil
}

// Execute applies raw and records the outcome. It never panics: the block
// executor keeps going whatever the transaction contained.
func (e *Engine) Execute(ctx context.Context, raw []byte, blockTime uint64) (result TxResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("DPoS consensus transaction panicked", "err", r)
			result = TxResult{Status: TxFailed, Kind: KindUnknown, Error: fmt.Sprint(r)}
		}
	}()

	b, err := e.apply(ctx, raw, blockTime)
	if err != nil {
		return TxResult{Status: TxFailed, Behaviour: b, Kind: KindOf(err), Error: err.Error()}
	}
	return TxResult{Status: TxMined, Behaviour: b}
}

// SubscribeTermChanged registers ch for term transitions
func (e *Engine) SubscribeTermChanged(ch chan<- TermChangedEvent) event.Subscription {
	return e.scope.Track(e.termFeed.Subscribe(ch))
}

// Close ends all subscriptions. The store is owned by the caller.
func (e *Engine) Close() {
	e.scope.Close()
}
