package main

import (
	"os"

	"github.com/ethereum/go-ethereum/log"
)

// Logger adapts the go-ethereum logger for dpos so we can provide LazyValue
type Logger struct {
	L log.Logger
}

func (l Logger) LazyValue(fn func() string) interface{} {
	return log.Lazy{Fn: fn}
}
func (l Logger) Trace(msg string, ctx ...interface{}) {
	l.L.Trace(msg, ctx...)
}
func (l Logger) Debug(msg string, ctx ...interface{}) {
	l.L.Debug(msg, ctx...)
}
func (l Logger) Info(msg string, ctx ...interface{}) {
	l.L.Info(msg, ctx...)
}
func (l Logger) Warn(msg string, ctx ...interface{}) {
	l.L.Warn(msg, ctx...)
}
func (l Logger) Crit(msg string, ctx ...interface{}) {
	l.L.Crit(msg, ctx...)
}

func setupLogging(verbosity int) {
	log.Root().SetHandler(log.LvlFilterHandler(
		log.Lvl(verbosity), log.StreamHandler(os.Stderr, log.TerminalFormat(false))))
}
