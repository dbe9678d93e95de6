package log

import (
	"fmt"

	"github.com/sirupsen/logrus"
	waLog "go.mau.fi/whatsmeow/util/log"
)

type waLogger struct {
	entry *logrus.Entry
}

// WhatsApp adapts logrus to whatsmeow's logger interface. Warnings and errors
// matching a benign transport error are demoted to debug.
func WhatsApp(module string) waLog.Logger {
	return &waLogger{entry: logger.WithField("module", module)}
}

func (l *waLogger) Errorf(msg string, args ...interface{}) {
	text := fmt.Sprintf(msg, args...)
	if isBenignText(text) {
		l.entry.Debug(text)
		return
	}
	l.entry.Error(text)
}

func (l *waLogger) Warnf(msg string, args ...interface{}) {
	text := fmt.Sprintf(msg, args...)
	if isBenignText(text) {
		l.entry.Debug(text)
		return
	}
	l.entry.Warn(text)
}

func (l *waLogger) Infof(msg string, args ...interface{}) {
	l.entry.Infof(msg, args...)
}

func (l *waLogger) Debugf(msg string, args ...interface{}) {
	l.entry.Debugf(msg, args...)
}

func (l *waLogger) Sub(module string) waLog.Logger {
	parent, _ := l.entry.Data["module"].(string)
	if parent != "" {
		module = parent + "/" + module
	}
	return &waLogger{entry: logger.WithField("module", module)}
}
