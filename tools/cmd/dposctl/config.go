package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"

	"github.com/RobustRoundRobin/go-dpos/consensus/dpos"
	"github.com/naoina/toml"
	"gopkg.in/urfave/cli.v1"
)

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

type dposctlConfig struct {
	DPoS dpos.Config
}

var dumpConfigCommand = cli.Command{
	Name:   "dumpconfig",
	Usage:  "Show configuration values",
	Action: dumpConfig,
}

func loadConfig(file string, cfg *dposctlConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// makeConfig starts from the defaults, applies the config file and then the
// command line flags.
func makeConfig(ctx *cli.Context) (*dposctlConfig, error) {
	cfg := &dposctlConfig{DPoS: *dpos.DefaultConfig}

	if file := ctx.GlobalString(configFlag.Name); file != "" {
		if err := loadConfig(file, cfg); err != nil {
			return nil, err
		}
	}
	if ctx.GlobalIsSet(intervalFlag.Name) {
		cfg.DPoS.MiningInterval = ctx.GlobalUint64(intervalFlag.Name)
	}
	if cfg.DPoS.MiningInterval == 0 {
		return nil, fmt.Errorf("mining interval must be positive")
	}
	return cfg, nil
}

func dumpConfig(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	out, err := tomlSettings.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = ctx.App.Writer.Write(out)
	return err
}
