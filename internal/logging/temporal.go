package logging

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"go.temporal.io/sdk/log"
)

// TemporalLogger adapts a logrus entry to the Temporal SDK logger.
type TemporalLogger struct {
	entry *logrus.Entry
}

var _ log.Logger = (*TemporalLogger)(nil)

// NewTemporalLogger wraps entry for use in client.Options.Logger.
func NewTemporalLogger(entry *logrus.Entry) *TemporalLogger {
	return &TemporalLogger{entry: entry}
}

func (l *TemporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.entry.WithFields(fields(keyvals)).Debug(msg)
}

func (l *TemporalLogger) Info(msg string, keyvals ...interface{}) {
	l.entry.WithFields(fields(keyvals)).Info(msg)
}

func (l *TemporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.entry.WithFields(fields(keyvals)).Warn(msg)
}

func (l *TemporalLogger) Error(msg string, keyvals ...interface{}) {
	l.entry.WithFields(fields(keyvals)).Error(msg)
}

// With returns a logger carrying keyvals on every line.
func (l *TemporalLogger) With(keyvals ...interface{}) log.Logger {
	return &TemporalLogger{entry: l.entry.WithFields(fields(keyvals))}
}

// fields turns alternating key/value pairs into logrus fields.  A
// dangling key is kept under "extra".
func fields(keyvals []interface{}) logrus.Fields {
	out := make(logrus.Fields, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		if i+1 == len(keyvals) {
			out["extra"] = keyvals[i]
			break
		}
		out[fmt.Sprint(keyvals[i])] = keyvals[i+1]
	}
	return out
}
