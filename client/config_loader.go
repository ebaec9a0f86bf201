package client

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/goliatone/go-oauthlink/core"
)

// durationKeys are read as Go duration strings ("30s") or as integer seconds.
var durationKeys = []string{"operation_timeout", "client.timeout"}

// FileConfigLoader reads a JSON config file for core.CfgxConfigProvider. A
// missing file yields an empty config unless Required is set.
type FileConfigLoader struct {
	Path     string
	Required bool
}

func NewFileConfigLoader(path string) *FileConfigLoader {
	return &FileConfigLoader{Path: strings.TrimSpace(path)}
}

func (l *FileConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if l == nil || strings.TrimSpace(l.Path) == "" {
		return map[string]any{}, nil
	}
	raw, err := os.ReadFile(l.Path)
	if err != nil {
		if os.IsNotExist(err) && !l.Required {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("client: read config file %s: %w", l.Path, err)
	}
	return ParseConfig(raw)
}

// ParseConfig decodes raw JSON config through koanf and normalizes duration
// fields so cfgx can decode them.
func ParseConfig(raw []byte) (map[string]any, error) {
	k := koanf.New(".")
	if len(strings.TrimSpace(string(raw))) == 0 {
		return map[string]any{}, nil
	}
	if err := k.Load(rawbytes.Provider(raw), json.Parser()); err != nil {
		return nil, fmt.Errorf("client: parse config: %w", err)
	}
	for _, key := range durationKeys {
		if !k.Exists(key) {
			continue
		}
		value, err := parseDuration(k.Get(key))
		if err != nil {
			return nil, fmt.Errorf("client: config %s: %w", key, err)
		}
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("client: config %s: %w", key, err)
		}
	}
	return k.Raw(), nil
}

func parseDuration(value any) (time.Duration, error) {
	switch typed := value.(type) {
	case string:
		return time.ParseDuration(strings.TrimSpace(typed))
	case float64:
		return time.Duration(typed * float64(time.Second)), nil
	case int:
		return time.Duration(typed) * time.Second, nil
	case int64:
		return time.Duration(typed) * time.Second, nil
	case time.Duration:
		return typed, nil
	default:
		return 0, fmt.Errorf("unsupported duration value %v", value)
	}
}

var _ core.RawConfigLoader = (*FileConfigLoader)(nil)
