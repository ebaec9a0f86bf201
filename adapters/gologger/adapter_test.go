package gologger

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/sirupsen/logrus"
)

func TestResolveDeterministicFallback(t *testing.T) {
	loggerOnly := &capturingLogger{id: "logger"}
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	var resolvedProvider glog.LoggerProvider
	_, resolved := Resolve("oauthlink", provider, loggerOnly)
	got := resolved.(*capturingLogger)
	if got.id != "provider" {
		t.Fatalf("expected provider logger precedence, got %q", got.id)
	}

	resolvedProvider, resolved = Resolve("oauthlink", nil, loggerOnly)
	got = resolved.(*capturingLogger)
	if got.id != "logger" {
		t.Fatalf("expected direct logger when provider is nil, got %q", got.id)
	}
	if resolvedProvider == nil {
		t.Fatalf("expected provider wrapper from logger")
	}

	_, resolved = Resolve("oauthlink", nil, nil)
	if resolved == nil {
		t.Fatalf("expected nop logger fallback")
	}
}

func TestLogger_WritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)
	base.SetLevel(logrus.DebugLevel)
	base.SetFormatter(&logrus.TextFormatter{DisableColors: true, DisableTimestamp: true})

	provider := NewProvider(base)
	logger := provider.GetLogger("oauthlink.cli")
	fields, ok := logger.(glog.FieldsLogger)
	if !ok {
		t.Fatalf("expected fields logger")
	}
	fields.WithFields(map[string]any{"flow_id": "f1"}).
		WithContext(context.Background()).
		Info("start succeeded", "flow_status", "pending", "dangling")

	line := buf.String()
	for _, want := range []string{"start succeeded", "flow_id=f1", "flow_status=pending", "logger=oauthlink.cli", "arg=dangling"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in log line %q", want, line)
		}
	}

	buf.Reset()
	logger.Trace("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected trace to be filtered at debug level, got %q", buf.String())
	}
}

func TestNewLogrus_LevelAndFileRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oauthlink.log")
	l := NewLogrus("warn", FileConfig{Path: path})
	if l.GetLevel() != logrus.WarnLevel {
		t.Fatalf("expected warn level, got %s", l.GetLevel())
	}
	if NewLogrus("bogus", FileConfig{}).GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info fallback for unknown level")
	}
}

func TestNewLogger_NilBaseDiscards(t *testing.T) {
	logger := NewLogger(nil)
	logger.Info("dropped")
	logger.Fatal("not exiting")
}

var (
	_ glog.Logger         = (*capturingLogger)(nil)
	_ glog.LoggerProvider = (*capturingProvider)(nil)
)

type capturingProvider struct {
	logger *capturingLogger
}

func (p *capturingProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type capturingLogger struct {
	id string
}

func (l *capturingLogger) Trace(string, ...any) {}
func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Info(string, ...any)  {}
func (l *capturingLogger) Warn(string, ...any)  {}
func (l *capturingLogger) Error(string, ...any) {}
func (l *capturingLogger) Fatal(string, ...any) {}

func (l *capturingLogger) WithContext(context.Context) glog.Logger {
	return l
}
