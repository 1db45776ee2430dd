package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/RobustRoundRobin/go-dpos/api"
	"github.com/RobustRoundRobin/go-dpos/consensus/dpos"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/urfave/cli.v1"
)

var genkeyCommand = cli.Command{
	Name:      "genkey",
	Usage:     "Generate a miner key and print its public key",
	ArgsUsage: "<keyfile>",
	Action:    genkey,
}

var genesisCommand = cli.Command{
	Name:      "genesis",
	Usage:     "Build and store the first round (InitialConsensus)",
	ArgsUsage: "<pub|keyfile>...",
	Action:    genesis,
	Flags:     []cli.Flag{keyFlag, atFlag},
}

var roundCommand = cli.Command{
	Name:   "round",
	Usage:  "Print the current round",
	Action: showRound,
	Flags: []cli.Flag{
		cli.Uint64Flag{Name: "term", Usage: "Show an earlier round of this term"},
		cli.Uint64Flag{Name: "round", Usage: "Show this round of --term"},
	},
}

var commandCommand = cli.Command{
	Name:   "command",
	Usage:  "Print the consensus command for a miner",
	Action: command,
	Flags: []cli.Flag{
		keyFlag,
		cli.StringFlag{Name: "pub", Usage: "0x hex public key, instead of --key"},
		atFlag,
	},
}

var updateCommand = cli.Command{
	Name:   "update",
	Usage:  "Commit a fresh in-value for the current round (UpdateValue)",
	Action: update,
	Flags:  []cli.Flag{keyFlag, atFlag, vrfFlag},
}

var nextRoundCommand = cli.Command{
	Name:   "nextround",
	Usage:  "Move to the next round, or the next term when it is due",
	Action: nextRound,
	Flags:  []cli.Flag{keyFlag, atFlag},
}

var serveCommand = cli.Command{
	Name:   "serve",
	Usage:  "Serve the consensus state over http",
	Action: serve,
	Flags: []cli.Flag{
		cli.StringFlag{Name: "addr", Value: "127.0.0.1:8645", Usage: "Listen address"},
	},
}

func genkey(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("provide the key file to create")
	}
	path := resolvePath(ctx.GlobalString(dataDirFlag.Name), ctx.Args().First())
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("key file `%s' already exists", path)
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveECDSA(path, key); err != nil {
		return err
	}
	fmt.Fprintln(ctx.App.Writer, hexutil.Encode(crypto.FromECDSAPub(&key.PublicKey)))
	return nil
}

func genesis(ctx *cli.Context) error {
	n, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer n.Close()

	if ctx.NArg() == 0 {
		return fmt.Errorf("provide the public keys, or key files, of the genesis miners")
	}
	var miners [][]byte
	for _, arg := range ctx.Args() {
		pub, err := minerPub(ctx, n.codec, arg)
		if err != nil {
			return err
		}
		miners = append(miners, pub)
	}
	key, err := loadKey(ctx, ctx.String(keyFlag.Name))
	if err != nil {
		return err
	}

	// The engine needs the genesis miners to build the first round
	n.engine.Close()
	n.engine = dpos.NewEngine(&n.config.DPoS, n.codec, n.store,
		dpos.WithLogger(n.logger), dpos.WithInitialMiners(miners))

	at := timeArg(ctx)
	res, err := generateAndExecute(context.Background(), n, key, &dpos.TriggerInput{
		Pub:           n.codec.PubMarshal(&key.PublicKey),
		Behaviour:     dpos.InitialConsensus,
		ReferenceTime: at,
	}, at)
	if err != nil {
		return err
	}
	return printResult(ctx, n, res)
}

func showRound(ctx *cli.Context) error {
	n, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer n.Close()

	var r *dpos.Round
	if ctx.IsSet("term") || ctx.IsSet("round") {
		r, err = n.engine.RoundByNumber(context.Background(), ctx.Uint64("term"), ctx.Uint64("round"))
	} else {
		r, err = n.engine.CurrentRound(context.Background())
	}
	if err != nil {
		return err
	}
	printRound(ctx, r)
	return nil
}

func command(ctx *cli.Context) error {
	n, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer n.Close()

	var pub []byte
	if p := ctx.String("pub"); p != "" {
		pub, err = minerPub(ctx, n.codec, p)
	} else {
		pub, err = minerPub(ctx, n.codec, ctx.String(keyFlag.Name))
	}
	if err != nil {
		return err
	}

	cmd, ok, err := n.engine.GetConsensusCommand(context.Background(), pub, timeArg(ctx))
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(struct {
		Miner               bool
		Behaviour           string
		NextBlockMiningLeft int64
		LimitOfMiningBlock  uint64
		ExpectedMiningTime  uint64
		Hint                hexutil.Bytes
	}{ok, cmd.Behaviour.String(), cmd.NextBlockMiningLeft, cmd.LimitOfMiningBlock,
		cmd.ExpectedMiningTime, cmd.Hint.Encode()}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.App.Writer, string(out))
	return nil
}

func update(ctx *cli.Context) error {
	n, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer n.Close()

	key, err := loadKey(ctx, ctx.String(keyFlag.Name))
	if err != nil {
		return err
	}
	var opts []dpos.TriggersOption
	if ctx.Bool(vrfFlag.Name) {
		opts = append(opts, dpos.WithVRF())
	}
	// In-values are not kept between invocations, so nothing is revealed
	triggers, err := dpos.NewTriggers(n.codec, key, &n.config.DPoS, opts...)
	if err != nil {
		return err
	}

	r, err := n.engine.CurrentRound(context.Background())
	if err != nil {
		return err
	}
	at := timeArg(ctx)
	in, err := triggers.Trigger(r, dpos.ConsensusCommand{Behaviour: dpos.UpdateValue}, at)
	if err != nil {
		return err
	}
	res, err := generateAndExecute(context.Background(), n, key, in, at)
	if err != nil {
		return err
	}
	return printResult(ctx, n, res)
}

func nextRound(ctx *cli.Context) error {
	n, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer n.Close()

	key, err := loadKey(ctx, ctx.String(keyFlag.Name))
	if err != nil {
		return err
	}
	pub := n.codec.PubMarshal(&key.PublicKey)
	at := timeArg(ctx)

	c := context.Background()
	cmd, ok, err := n.engine.GetConsensusCommand(c, pub, at)
	if err != nil {
		return err
	}
	if !ok {
		return dpos.ErrUnknownMiner
	}
	if cmd.Behaviour != dpos.NextRound && cmd.Behaviour != dpos.NextTerm {
		return fmt.Errorf("%v is due at %d, the current round has not expired", cmd.Behaviour, cmd.ExpectedMiningTime)
	}
	r, err := n.engine.CurrentRound(c)
	if err != nil {
		return err
	}
	res, err := generateAndExecute(c, n, key, &dpos.TriggerInput{
		Pub:           pub,
		Behaviour:     cmd.Behaviour,
		ReferenceTime: dpos.NewRoundTime(r).NextRoundStart(at),
	}, at)
	if err != nil {
		return err
	}
	return printResult(ctx, n, res)
}

func serve(ctx *cli.Context) error {
	n, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer n.Close()

	ln, err := net.Listen("tcp", ctx.String("addr"))
	if err != nil {
		return err
	}
	n.logger.Info("DPoS api listening", "addr", ln.Addr())

	c, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	api.NewHTTPServer(c, n.logger, api.HTTPServerConfig{Listener: ln, Engine: n.engine}).Wait()
	return nil
}

// generateAndExecute signs the transaction for the trigger and applies it as
// the block at blockTime would.
func generateAndExecute(
	c context.Context, n *node, key *ecdsa.PrivateKey, in *dpos.TriggerInput, blockTime uint64) (dpos.TxResult, error) {

	txs, err := n.engine.GenerateConsensusTransactions(c, in, key)
	if err != nil {
		return dpos.TxResult{}, err
	}
	var res dpos.TxResult
	for _, tx := range txs {
		if res = n.engine.Execute(c, tx.Raw, blockTime); res.Status != dpos.TxMined {
			break
		}
	}
	return res, nil
}

func printResult(ctx *cli.Context, n *node, res dpos.TxResult) error {
	if res.Status != dpos.TxMined {
		return fmt.Errorf("%v %v: %s", res.Behaviour, res.Status, res.Error)
	}
	r, err := n.engine.CurrentRound(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.Writer, "%v %v\n", res.Behaviour, res.Status)
	printRound(ctx, r)
	return nil
}

func printRound(ctx *cli.Context, r *dpos.Round) {
	w := ctx.App.Writer
	fmt.Fprintf(w, "term %d round %d id %s rev %d start %d expiry %d ebp %d\n",
		r.TermNumber, r.RoundNumber, r.RoundID.Hex(), r.Revision,
		r.StartTime(), r.ExpiryTime(), r.ExtraBlockProducer())
	for _, s := range r.Miners {
		committed := "-"
		if s.Committed() {
			committed = s.OutValue.HexShort()
		}
		fmt.Fprintf(w, "%02d %s expected %d produced %d missed %d out %s\n",
			s.Order, s.NodeID.Address().Hex(), s.ExpectedMiningTime,
			s.ProducedBlocks, s.MissedTimeSlots, committed)
	}
}
