package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RobustRoundRobin/go-dpos/consensus/dpos"
	"gopkg.in/urfave/cli.v1"
)

var mineCommand = cli.Command{
	Name:      "mine",
	Usage:     "Run every given miner against one store, producing blocks when their commands are due",
	ArgsUsage: "<keyfile>...",
	Action:    mine,
	Flags: []cli.Flag{
		cli.Uint64Flag{Name: "rounds", Value: 3, Usage: "Stop after this many rounds, 0 runs until interrupted"},
		vrfFlag,
	},
}

const retryDelay = 10 * time.Millisecond

// localMiner is one of the miners run by the mine command
type localMiner struct {
	key      *ecdsa.PrivateKey
	pub      []byte
	triggers *dpos.Triggers
}

func mine(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		return fmt.Errorf("provide the key files of the miners to run")
	}
	n, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer n.Close()

	var opts []dpos.TriggersOption
	if ctx.Bool(vrfFlag.Name) {
		opts = append(opts, dpos.WithVRF())
	}
	var miners []*localMiner
	var pubs [][]byte
	for _, name := range ctx.Args() {
		key, err := loadKey(ctx, name)
		if err != nil {
			return err
		}
		t, err := dpos.NewTriggers(n.codec, key, &n.config.DPoS, opts...)
		if err != nil {
			return err
		}
		m := &localMiner{key: key, pub: n.codec.PubMarshal(&key.PublicKey), triggers: t}
		miners = append(miners, m)
		pubs = append(pubs, m.pub)
	}

	// A fresh store is started with the miners being run
	n.engine.Close()
	n.engine = dpos.NewEngine(&n.config.DPoS, n.codec, n.store,
		dpos.WithLogger(n.logger), dpos.WithInitialMiners(pubs))

	c, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runMiners(c, n, miners, ctx.Uint64("rounds"), func() uint64 { return dpos.UnixMilli(time.Now()) })
}

// runMiners repeatedly waits for the earliest due command among miners and
// produces its block. It returns once rounds rounds have been completed.
func runMiners(c context.Context, n *node, miners []*localMiner, rounds uint64, now func() uint64) error {

	var timer dpos.MiningTimer
	completed := uint64(0)

	for rounds == 0 || completed < rounds {

		next, cmd, err := nextDue(c, n, miners, now())
		if err != nil {
			return err
		}
		if next == nil {
			return fmt.Errorf("none of the miners are in the current round")
		}

		if timer.Ticker == nil {
			timer.Start(cmd)
		} else {
			timer.Stop()
			timer.Reset(cmd)
		}
		select {
		case <-c.Done():
			timer.Stop()
			return nil
		case <-timer.Ticker.C:
		}

		at := now()
		r, err := n.engine.CurrentRound(c)
		if errors.Is(err, dpos.ErrRoundNotFound) {
			r, err = nil, nil
		}
		if err != nil {
			return err
		}
		// The behaviour may have changed while waiting
		cmd, ok, err := n.engine.GetConsensusCommand(c, next.pub, at)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		in, err := next.triggers.Trigger(r, cmd, at)
		if err != nil {
			return err
		}
		res, err := generateAndExecute(c, n, next.key, in, at)
		if err != nil {
			return err
		}
		if res.Status != dpos.TxMined {
			n.logger.Warn("DPoS block failed", "behaviour", res.Behaviour, "kind", res.Kind, "err", res.Error)
			select {
			case <-c.Done():
				return nil
			case <-time.After(retryDelay):
			}
			continue
		}
		if cmd.Behaviour == dpos.NextRound || cmd.Behaviour == dpos.NextTerm {
			completed++
		}
	}
	return nil
}

// nextDue picks the miner whose command is due first at now
func nextDue(c context.Context, n *node, miners []*localMiner, now uint64) (*localMiner, dpos.ConsensusCommand, error) {
	var next *localMiner
	var due dpos.ConsensusCommand
	for _, m := range miners {
		cmd, ok, err := n.engine.GetConsensusCommand(c, m.pub, now)
		if err != nil {
			return nil, dpos.ConsensusCommand{}, err
		}
		if !ok {
			continue
		}
		if next == nil || cmd.NextBlockMiningLeft < due.NextBlockMiningLeft {
			next, due = m, cmd
		}
	}
	return next, due, nil
}
