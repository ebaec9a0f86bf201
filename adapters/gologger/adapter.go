package gologger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewLogrus builds a text logrus logger. With a file path set, output goes to
// stderr and a rotating file.
func NewLogrus(level string, file FileConfig) *logrus.Logger {
	var out io.Writer = os.Stderr
	if path := strings.TrimSpace(file.Path); path != "" {
		maxSize := file.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 50
		}
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSize, // megabytes
			MaxBackups: file.MaxBackups,
			MaxAge:     file.MaxAgeDays,
			Compress:   file.Compress,
		})
	}
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339Nano,
	})
	l.SetOutput(out)
	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)
	return l
}

// Logger exposes a logrus entry through the glog contracts.
type Logger struct {
	entry *logrus.Entry
}

func NewLogger(base *logrus.Logger) *Logger {
	if base == nil {
		base = logrus.New()
		base.SetOutput(io.Discard)
	}
	return &Logger{entry: logrus.NewEntry(base)}
}

func (l *Logger) Trace(msg string, args ...any) { l.withArgs(args).Trace(msg) }
func (l *Logger) Debug(msg string, args ...any) { l.withArgs(args).Debug(msg) }
func (l *Logger) Info(msg string, args ...any)  { l.withArgs(args).Info(msg) }
func (l *Logger) Warn(msg string, args ...any)  { l.withArgs(args).Warn(msg) }
func (l *Logger) Error(msg string, args ...any) { l.withArgs(args).Error(msg) }

// Fatal logs at fatal level without exiting the process.
func (l *Logger) Fatal(msg string, args ...any) {
	l.withArgs(args).Log(logrus.FatalLevel, msg)
}

func (l *Logger) WithContext(ctx context.Context) glog.Logger {
	if ctx == nil {
		return l
	}
	return &Logger{entry: l.entry.WithContext(ctx)}
}

func (l *Logger) WithFields(fields map[string]any) glog.Logger {
	if len(fields) == 0 {
		return l
	}
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// withArgs reads args as key/value pairs. A trailing key without a value is
// kept under "arg".
func (l *Logger) withArgs(args []any) *logrus.Entry {
	if len(args) == 0 {
		return l.entry
	}
	fields := logrus.Fields{}
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok || strings.TrimSpace(key) == "" {
			key = "arg"
		}
		if i+1 >= len(args) {
			fields["arg"] = args[i]
			break
		}
		fields[key] = args[i+1]
	}
	return l.entry.WithFields(fields)
}

type Provider struct {
	root *Logger
}

func NewProvider(base *logrus.Logger) *Provider {
	return &Provider{root: NewLogger(base)}
}

func (p *Provider) GetLogger(name string) glog.Logger {
	if p == nil || p.root == nil {
		return glog.Nop()
	}
	if name = strings.TrimSpace(name); name == "" {
		return p.root
	}
	return &Logger{entry: p.root.entry.WithField("logger", name)}
}

var (
	_ glog.Logger         = (*Logger)(nil)
	_ glog.FieldsLogger   = (*Logger)(nil)
	_ glog.LoggerProvider = (*Provider)(nil)
)
