package roundstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/RobustRoundRobin/go-dpos/consensus/dpos"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

var (
	currentRoundKey = []byte("dpos-current-round")
	currentTermKey  = []byte("dpos-current-term")
	roundKeyPrefix  = []byte("dpos-round-")
)

// LevelDB is a RoundStore persisted in a goleveldb database. Swaps are
// written as a single batch.
type LevelDB struct {
	db    *leveldb.DB
	codec dpos.BytesCodec

	// serialises the read-compare-write of SwapRound
	swapLock sync.Mutex
}

// OpenLevelDB opens (creating if necessary) the database at path
func OpenLevelDB(path string, codec dpos.BytesCodec) (*LevelDB, error) {
	options := &opt.Options{
		BlockCacheCapacity: 8 * opt.MiB,
		WriteBuffer:        4 * opt.MiB,
	}
	db, err := leveldb.OpenFile(path, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open round database: %w", err)
	}
	return NewLevelDB(db, codec), nil
}

// NewLevelDB uses an already open database. Close closes it.
func NewLevelDB(db *leveldb.DB, codec dpos.BytesCodec) *LevelDB {
	return &LevelDB{db: db, codec: codec}
}

func historyKey(term, round uint64) []byte {
	k := make([]byte, len(roundKeyPrefix)+16)
	n := copy(k, roundKeyPrefix)
	binary.BigEndian.PutUint64(k[n:], term)
	binary.BigEndian.PutUint64(k[n+8:], round)
	return k
}

func (s *LevelDB) getRound(key []byte) (*dpos.Round, error) {
	data, err := s.db.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, dpos.ErrRoundNotFound
		}
		return nil, fmt.Errorf("failed to read round: %w", err)
	}
	r := &dpos.Round{}
	if err := s.codec.DecodeBytes(data, r); err != nil {
		return nil, fmt.Errorf("failed to decode round: %w", err)
	}
	return r, nil
}

func (s *LevelDB) CurrentRound(ctx context.Context) (*dpos.Round, error) {
	return s.getRound(currentRoundKey)
}

func (s *LevelDB) CurrentTerm(ctx context.Context) (*dpos.Term, error) {
	data, err := s.db.Get(currentTermKey, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, dpos.ErrTermNotFound
		}
		return nil, fmt.Errorf("failed to read term: %w", err)
	}
	t := &dpos.Term{}
	if err := s.codec.DecodeBytes(data, t); err != nil {
		return nil, fmt.Errorf("failed to decode term: %w", err)
	}
	return t, nil
}

func (s *LevelDB) RoundByNumber(ctx context.Context, term, round uint64) (*dpos.Round, error) {
	return s.getRound(historyKey(term, round))
}

func (s *LevelDB) SwapRound(ctx context.Context, prev, next *dpos.Round, term *dpos.Term) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := s.codec.EncodeToBytes(next)
	if err != nil {
		return fmt.Errorf("failed to encode round: %w", err)
	}

	batch := new(leveldb.Batch)
	batch.Put(currentRoundKey, data)
	batch.Put(historyKey(next.TermNumber, next.RoundNumber), data)
	if term != nil {
		t, err := s.codec.EncodeToBytes(term)
		if err != nil {
			return fmt.Errorf("failed to encode term: %w", err)
		}
		batch.Put(currentTermKey, t)
	}

	s.swapLock.Lock()
	defer s.swapLock.Unlock()

	stored, err := s.getRound(currentRoundKey)
	if err != nil && !errors.Is(err, dpos.ErrRoundNotFound) {
		return err
	}
	if err := dpos.CheckSwap(stored, prev); err != nil {
		return err
	}

	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("failed to write round: %w", err)
	}
	return nil
}

func (s *LevelDB) Close() error {
	return s.db.Close()
}
