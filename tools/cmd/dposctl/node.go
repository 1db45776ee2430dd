package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/RobustRoundRobin/go-dpos/consensus/dpos"
	"github.com/RobustRoundRobin/go-dpos/rlpcodec"
	"github.com/RobustRoundRobin/go-dpos/roundstore"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/urfave/cli.v1"
)

// node is the engine and store one command works against
type node struct {
	config *dposctlConfig
	codec  *dpos.CipherCodec
	store  dpos.RoundStore
	engine *dpos.Engine
	logger dpos.Logger
}

func openStore(ctx *cli.Context, cfg *dpos.Config) (dpos.RoundStore, error) {
	dataDir := ctx.GlobalString(dataDirFlag.Name)
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0700); err != nil {
			return nil, err
		}
	}

	var store dpos.RoundStore
	var err error
	switch kind := ctx.GlobalString(storeFlag.Name); kind {
	case "memory":
		store = roundstore.NewMemory()
	case "leveldb":
		store, err = roundstore.OpenLevelDB(resolvePath(dataDir, "rounds"), &rlpcodec.BytesCodec{})
	case "sqlite":
		store, err = roundstore.OpenSQLite(resolvePath(dataDir, "rounds.sqlite"), &rlpcodec.BytesCodec{})
	default:
		return nil, fmt.Errorf("unknown store `%s', use memory, leveldb or sqlite", kind)
	}
	if err != nil {
		return nil, err
	}
	if cfg.RoundCacheSize <= 0 {
		return store, nil
	}
	cached, err := roundstore.NewCached(context.Background(), store, cfg.RoundCacheSize)
	if err != nil {
		store.Close()
		return nil, err
	}
	return cached, nil
}

func openNode(ctx *cli.Context, opts ...dpos.EngineOption) (*node, error) {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return nil, err
	}
	codec := rlpcodec.NewCodec()
	store, err := openStore(ctx, &cfg.DPoS)
	if err != nil {
		return nil, err
	}
	logger := Logger{L: log.New("pkg", "dpos")}
	opts = append([]dpos.EngineOption{dpos.WithLogger(logger)}, opts...)
	return &node{
		config: cfg,
		codec:  codec,
		store:  store,
		engine: dpos.NewEngine(&cfg.DPoS, codec, store, opts...),
		logger: logger,
	}, nil
}

func (n *node) Close() {
	n.engine.Close()
	if err := n.store.Close(); err != nil {
		log.Warn("closing round store", "err", err)
	}
}

func loadKey(ctx *cli.Context, name string) (*ecdsa.PrivateKey, error) {
	return crypto.LoadECDSA(resolvePath(ctx.GlobalString(dataDirFlag.Name), name))
}

// minerPub accepts either a 0x hex public key or the name of a key file
func minerPub(ctx *cli.Context, codec *dpos.CipherCodec, arg string) ([]byte, error) {
	if strings.HasPrefix(arg, "0x") {
		pub, err := hexutil.Decode(arg)
		if err != nil {
			return nil, err
		}
		if _, err := codec.BytesToPublic(pub); err != nil {
			return nil, fmt.Errorf("public key `%s': %w", arg, err)
		}
		return pub, nil
	}
	key, err := loadKey(ctx, arg)
	if err != nil {
		return nil, err
	}
	return codec.PubMarshal(&key.PublicKey), nil
}

func timeArg(ctx *cli.Context) uint64 {
	if at := ctx.Uint64(atFlag.Name); at != 0 {
		return at
	}
	return dpos.UnixMilli(time.Now())
}
