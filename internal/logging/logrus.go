package logging

import "github.com/sirupsen/logrus"

// logrusLogger adapts a *logrus.Entry to Logger, the production backend
// named in SPEC_FULL.md §2.1.
type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogrus wraps entry as a Logger. Pass logrus.NewEntry(logrus.StandardLogger())
// for the package default.
func NewLogrus(entry *logrus.Entry) Logger {
	if entry == nil {
		entry = logrus.NewEntry(logrus.StandardLogger())
	}
	return logrusLogger{entry: entry}
}

func (l logrusLogger) fields(fs []Field) logrus.Fields {
	if len(fs) == 0 {
		return nil
	}
	out := make(logrus.Fields, len(fs))
	for _, f := range fs {
		out[f.Key] = f.Value
	}
	return out
}

func (l logrusLogger) Debug(msg string, fields ...Field) {
	l.entry.WithFields(l.fields(fields)).Debug(msg)
}

func (l logrusLogger) Info(msg string, fields ...Field) {
	l.entry.WithFields(l.fields(fields)).Info(msg)
}

func (l logrusLogger) Warn(msg string, fields ...Field) {
	l.entry.WithFields(l.fields(fields)).Warn(msg)
}

func (l logrusLogger) Error(msg string, fields ...Field) {
	l.entry.WithFields(l.fields(fields)).Error(msg)
}

func (l logrusLogger) With(fields ...Field) Logger {
	return logrusLogger{entry: l.entry.WithFields(l.fields(fields))}
}

var _ Logger = logrusLogger{}
