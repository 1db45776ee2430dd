package roundstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/RobustRoundRobin/go-dpos/consensus/dpos"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS rounds (
	term     INTEGER NOT NULL,
	round    INTEGER NOT NULL,
	revision INTEGER NOT NULL,
	round_id BLOB NOT NULL,
	data     BLOB NOT NULL,
	PRIMARY KEY (term, round)
);
CREATE TABLE IF NOT EXISTS head (
	id    INTEGER PRIMARY KEY CHECK (id = 0),
	term  INTEGER NOT NULL,
	round INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS terms (
	id   INTEGER PRIMARY KEY CHECK (id = 0),
	data BLOB NOT NULL
);
`

// SQLite is a RoundStore kept in a sqlite database. The compare and the
// writes of SwapRound happen in one transaction.
type SQLite struct {
	db    *sql.DB
	codec dpos.BytesCodec
}

// OpenSQLite opens the database named by dsn, for example "rounds.db" or
// "file::memory:?cache=shared", and creates the schema.
func OpenSQLite(dsn string, codec dpos.BytesCodec) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open round database: %w", err)
	}
	// sqlite allows one writer, and in memory databases are per connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create round schema: %w", err)
	}
	return &SQLite{db: db, codec: codec}, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *SQLite) loadRound(ctx context.Context, q queryer, query string, args ...interface{}) (*dpos.Round, error) {
	var data []byte
	err := q.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dpos.ErrRoundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read round: %w", err)
	}
	r := &dpos.Round{}
	if err := s.codec.DecodeBytes(data, r); err != nil {
		return nil, fmt.Errorf("failed to decode round: %w", err)
	}
	return r, nil
}

const selectCurrent = `SELECT r.data FROM rounds r JOIN head h ON r.term = h.term AND r.round = h.round WHERE h.id = 0`

func (s *SQLite) CurrentRound(ctx context.Context) (*dpos.Round, error) {
	return s.loadRound(ctx, s.db, selectCurrent)
}

func (s *SQLite) CurrentTerm(ctx context.Context) (*dpos.Term, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM terms WHERE id = 0`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dpos.ErrTermNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read term: %w", err)
	}
	t := &dpos.Term{}
	if err := s.codec.DecodeBytes(data, t); err != nil {
		return nil, fmt.Errorf("failed to decode term: %w", err)
	}
	return t, nil
}

func (s *SQLite) RoundByNumber(ctx context.Context, term, round uint64) (*dpos.Round, error) {
	return s.loadRound(ctx, s.db,
		`SELECT data FROM rounds WHERE term = ? AND round = ?`, int64(term), int64(round))
}

func (s *SQLite) SwapRound(ctx context.Context, prev, next *dpos.Round, term *dpos.Term) (err error) {
	data, err := s.codec.EncodeToBytes(next)
	if err != nil {
		return fmt.Errorf("failed to encode round: %w", err)
	}
	var termData []byte
	if term != nil {
		if termData, err = s.codec.EncodeToBytes(term); err != nil {
			return fmt.Errorf("failed to encode term: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin swap: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stored, err := s.loadRound(ctx, tx, selectCurrent)
	if err != nil && !errors.Is(err, dpos.ErrRoundNotFound) {
		return err
	}
	if err = dpos.CheckSwap(stored, prev); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO rounds (term, round, revision, round_id, data) VALUES (?, ?, ?, ?, ?)`,
		int64(next.TermNumber), int64(next.RoundNumber), int64(next.Revision), next.RoundID[:], data,
	); err != nil {
		return fmt.Errorf("failed to write round: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO head (id, term, round) VALUES (0, ?, ?)`,
		int64(next.TermNumber), int64(next.RoundNumber),
	); err != nil {
		return fmt.Errorf("failed to write head: %w", err)
	}
	if termData != nil {
		if _, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO terms (id, data) VALUES (0, ?)`, termData,
		); err != nil {
			return fmt.Errorf("failed to write term: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit swap: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
