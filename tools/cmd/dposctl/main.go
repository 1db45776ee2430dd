package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"gopkg.in/urfave/cli.v1"
)

var (
	// Git information set by linker when building with ci.go.
	gitCommit string
	gitDate   string
)

var (
	dataDirFlag   = cli.StringFlag{Name: "datadir", Usage: "Directory for the round store and relative key paths"}
	storeFlag     = cli.StringFlag{Name: "store", Value: "leveldb", Usage: "Round store backend: memory, leveldb or sqlite"}
	configFlag    = cli.StringFlag{Name: "config", Usage: "TOML configuration file"}
	verbosityFlag = cli.IntFlag{Name: "verbosity", Value: int(log.LvlInfo), Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=trace"}
	intervalFlag  = cli.Uint64Flag{Name: "interval", Usage: "Mining interval in milliseconds, overrides the config file"}

	keyFlag = cli.StringFlag{Name: "key", Value: "key", Usage: "Miner key file name, relative to datadir"}
	atFlag  = cli.Uint64Flag{Name: "at", Usage: "Time in unix milliseconds, defaults to now"}
	vrfFlag = cli.BoolFlag{Name: "vrf", Usage: "Derive in-values with the VRF"}
)

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = filepath.Base(os.Args[0])
	app.Usage = "DPoS round based mining consensus tool"
	app.Version = params.VersionWithCommit(gitCommit, gitDate)
	app.Writer = os.Stdout
	app.HideVersion = true
	app.Flags = []cli.Flag{
		dataDirFlag,
		storeFlag,
		configFlag,
		verbosityFlag,
		intervalFlag,
	}
	app.Before = func(ctx *cli.Context) error {
		setupLogging(ctx.GlobalInt(verbosityFlag.Name))
		return nil
	}
	app.CommandNotFound = func(ctx *cli.Context, cmd string) {
		fmt.Fprintf(os.Stderr, "No such command: %s\n", cmd)
		os.Exit(1)
	}
	app.Commands = []cli.Command{
		genkeyCommand,
		genesisCommand,
		roundCommand,
		commandCommand,
		updateCommand,
		nextRoundCommand,
		mineCommand,
		serveCommand,
		dumpConfigCommand,
	}
	return app
}

func resolvePath(dataDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if dataDir != "" {
		return filepath.Join(dataDir, path)
	}
	return path
}

func main() {
	exit(newApp().Run(os.Args))
}

func exit(err interface{}) {
	if err == nil {
		os.Exit(0)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
