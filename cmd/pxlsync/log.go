package main

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"pxlsync.dev/internal/config"
)

// setupLogging builds the process logger. With a file configured, output
// goes to stderr and to a size-rotated file.
func setupLogging(c config.Log) (*logrus.Logger, func(), error) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, nil, err
	}
	l := logrus.New()
	l.SetLevel(level)
	if c.JSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if c.File == "" {
		l.SetOutput(os.Stderr)
		return l, func() {}, nil
	}

	lj := &lumberjack.Logger{
		Filename:   c.File,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		Compress:   true,
	}
	l.SetOutput(io.MultiWriter(os.Stderr, lj))
	return l, func() { _ = lj.Close() }, nil
}
