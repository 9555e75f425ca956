// Package sssplog wraps zap for the communication core's diagnostics —
// round starts, capacity aborts, dropped sentinels — generalizing the
// teacher's prefix-plus-error call-site shape (DropError(prefix, err)) into
// a structured zap.Logger wrapper with the same ergonomics: a short prefix
// names the call site, an error or a field set carries the detail.
package sssplog

import (
	"go.uber.org/zap"
)

// Logger is a thin, round-aware wrapper over *zap.Logger.
type Logger struct {
	z *zap.Logger
}

// New builds a production zap.Logger (JSON encoding, info level) wrapped as
// a Logger. debug, when true, switches to a development encoder at debug
// level — the runtime counterpart of the teacher's compile-time DEBUG flag.
func New(debug bool) (*Logger, error) {
	var z *zap.Logger
	var err error
	if debug {
		z, err = zap.NewDevelopment()
	} else {
		z, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return &Logger{z: z}, nil
}

// Sync flushes any buffered log entries. Callers should defer it at
// process exit.
func (l *Logger) Sync() error {
	return l.z.Sync()
}

// WithRound returns a child Logger with the round number attached to every
// subsequent entry — the structured equivalent of prefixing every DropError
// call with "round N: ".
func (l *Logger) WithRound(round int) *Logger {
	return &Logger{z: l.z.With(zap.Int("round", round))}
}

// DropError logs err at warn level under prefix, mirroring the teacher's
// cold-path DropError(prefix, err) call-site shape. A nil err still emits
// the prefix at debug level, matching the teacher's "no error case" branch.
func (l *Logger) DropError(prefix string, err error) {
	if err == nil {
		l.z.Debug(prefix)
		return
	}
	l.z.Warn(prefix, zap.Error(err))
}

// Debug, Info, Warn, Error forward to the underlying zap.Logger with
// arbitrary structured fields.
func (l *Logger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }
