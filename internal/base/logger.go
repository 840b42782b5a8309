// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "go.uber.org/zap"

// Logger defines an interface for writing log messages.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// DefaultLogger logs through a production zap logger.
var DefaultLogger Logger = NewLogger(newProductionLogger())

// NoopLogger discards all messages except fatal ones, which still exit.
var NoopLogger Logger = NewLogger(zap.NewNop())

func newProductionLogger() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// NewLogger adapts a zap logger to the Logger interface.
func NewLogger(l *zap.Logger) Logger {
	return zapLogger{s: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// Infof implements the Logger.Infof interface.
func (l zapLogger) Infof(format string, args ...interface{}) {
	l.s.Infof(format, args...)
}

// Errorf implements the Logger.Errorf interface.
func (l zapLogger) Errorf(format string, args ...interface{}) {
	l.s.Errorf(format, args...)
}

// Fatalf implements the Logger.Fatalf interface.
func (l zapLogger) Fatalf(format string, args ...interface{}) {
	l.s.Fatalf(format, args...)
}
