package log

import "context"

type nopLogger struct{}

// NewNop returns a logger that discards every entry.
func NewNop() Logger {
	return nopLogger{}
}

func (nopLogger) Debug(string, ...Field)               {}
func (nopLogger) Info(string, ...Field)                {}
func (nopLogger) Warn(string, ...Field)                {}
func (nopLogger) Error(string, ...Field)               {}
func (nopLogger) Fatal(string, ...Field)               {}
func (n nopLogger) With(...Field) Logger               { return n }
func (n nopLogger) WithContext(context.Context) Logger { return n }
