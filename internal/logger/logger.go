// Package logger builds the process logrus logger.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ellenzeng3/lda-filing-bot/internal/config"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// New returns a logger writing to stdout and, when cfg.File is set, to a rotated file.
// The returned closer releases the file; it is a no-op without one.
func New(cfg config.LogConfig, service string) (*logrus.Entry, io.Closer) {
	return build(cfg, service, os.Stdout)
}

func build(cfg config.LogConfig, service string, stdout io.Writer) (*logrus.Entry, io.Closer) {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if cfg.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: timestampFormat})
	}

	var closer io.Closer = nopCloser{}
	out := stdout
	if cfg.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(stdout, rotated)
		closer = rotated
	}
	l.SetOutput(out)

	return l.WithField("service", service), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
