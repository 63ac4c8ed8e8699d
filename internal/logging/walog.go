package logging

import (
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// WALogger adapts a zap logger to the whatsmeow logging interface.
type WALogger struct {
	s *zap.SugaredLogger
}

var _ waLog.Logger = (*WALogger)(nil)

// NewWALogger returns a whatsmeow logger writing through l, dropping entries
// below minLevel. An unknown minLevel keeps l's own level.
func NewWALogger(l *zap.Logger, minLevel string) *WALogger {
	opts := []zap.Option{zap.AddCallerSkip(1)}
	if lvl, err := zapcore.ParseLevel(minLevel); err == nil {
		opts = append(opts, zap.IncreaseLevel(lvl))
	}
	return &WALogger{s: l.WithOptions(opts...).Sugar()}
}

func (w *WALogger) Warnf(msg string, args ...interface{})  { w.s.Warnf(msg, args...) }
func (w *WALogger) Errorf(msg string, args ...interface{}) { w.s.Errorf(msg, args...) }
func (w *WALogger) Infof(msg string, args ...interface{})  { w.s.Infof(msg, args...) }
func (w *WALogger) Debugf(msg string, args ...interface{}) { w.s.Debugf(msg, args...) }

func (w *WALogger) Sub(module string) waLog.Logger {
	return &WALogger{s: w.s.Named(module)}
}
