// Package logger configures logrus for the process: console plus an optional rotating file.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger is the process-wide instance; packages usually log through logrus.WithField("module", ...).
	Logger *logrus.Logger

	logMu       sync.Mutex
	currentFile string
	fileWriter  io.Writer
	level       = logrus.InfoLevel
)

// Config for Init.
type Config struct {
	Level      string // debug, info, warn, error
	OutputFile string // empty means console only
	MaxSize    int    // MB before rotation
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

func formatter() logrus.Formatter {
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "06-01-02 15:04:05", // yy-mm-dd HH:MM:ss
	}
}

// Init sets up Logger and the global logrus output. An unknown level falls back to info.
func Init(config Config) error {
	logMu.Lock()
	defer logMu.Unlock()

	lvl, err := logrus.ParseLevel(config.Level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	level = lvl

	fileWriter, currentFile = nil, ""
	if config.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.OutputFile), 0o755); err != nil {
			return err
		}
		fileWriter = &lumberjack.Logger{
			Filename:   config.OutputFile,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}
		currentFile = config.OutputFile
	}

	writers := []io.Writer{os.Stdout}
	if fileWriter != nil {
		writers = append(writers, fileWriter)
	}
	apply(io.MultiWriter(writers...))
	return nil
}

// Quiet stops console output so a terminal UI owns the screen. Logs keep going to the file,
// or nowhere when no file is configured.
func Quiet() {
	logMu.Lock()
	defer logMu.Unlock()
	if fileWriter != nil {
		apply(fileWriter)
		return
	}
	apply(io.Discard)
}

func apply(w io.Writer) {
	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(formatter())
	l.SetOutput(w)

	// module loggers are built from the standard logger, so it must follow too
	logrus.SetOutput(w)
	logrus.SetLevel(level)
	logrus.SetFormatter(formatter())

	Logger = l
}

// CurrentLogFile returns the file being written, empty when console only.
func CurrentLogFile() string {
	logMu.Lock()
	defer logMu.Unlock()
	return currentFile
}

func Debugf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Debugf(format, args...)
	}
}

func Infof(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Infof(format, args...)
	}
}

func Warnf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Warnf(format, args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Errorf(format, args...)
	}
}

// WithField adds a field to a new entry.
func WithField(key string, value interface{}) *logrus.Entry {
	if Logger != nil {
		return Logger.WithField(key, value)
	}
	return logrus.WithField(key, value)
}

// WithFields adds fields to a new entry.
func WithFields(fields logrus.Fields) *logrus.Entry {
	if Logger != nil {
		return Logger.WithFields(fields)
	}
	return logrus.WithFields(fields)
}
