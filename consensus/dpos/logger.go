package dpos

// Logger is the go-ethereum compatible logging interface used in dpos
type Logger interface {
	LazyValue(func() string) interface{}
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})
}

type nopLogger struct{}

func (nopLogger) LazyValue(func() string) interface{} { return nil }
func (nopLogger) Trace(string, ...interface{})        {}
func (nopLogger) Debug(string, ...interface{})        {}
func (nopLogger) Info(string, ...interface{})         {}
func (nopLogger) Warn(string, ...interface{})         {}
func (nopLogger) Crit(string, ...interface{})         {}
