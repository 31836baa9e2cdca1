package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"gopkg.in/yaml.v3"
)

// settings resolves a key from the process environment first and then from
// the flattened config file picked by CONFIG_PHASE or CONFIG_FILE.
type settings struct {
	file   map[string]string
	source ConfigSource
}

var (
	settingsOnce sync.Once
	settingsVal  *settings
	settingsErr  error
)

func runtimeSettings() (*settings, error) {
	settingsOnce.Do(func() {
		settingsVal, settingsErr = loadSettings(os.Getenv("CONFIG_PHASE"), os.Getenv("CONFIG_FILE"))
	})
	return settingsVal, settingsErr
}

func loadSettings(phase, path string) (*settings, error) {
	phase = strings.TrimSpace(phase)
	if phase == "" {
		phase = "local"
	}
	s := &settings{file: map[string]string{}, source: ConfigSource{Phase: phase}}

	path = strings.TrimSpace(path)
	explicit := path != ""
	if !explicit {
		path = filepath.Join("config", "config-"+phase+".yaml")
	}
	body, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !explicit:
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	if s.file, err = flattenYAML(body); err != nil {
		return nil, fmt.Errorf("config file %q: %w", path, err)
	}
	s.source.Loaded = true
	s.source.Path = path
	if abs, err := filepath.Abs(path); err == nil {
		s.source.Path = abs
	}
	return s, nil
}

func (s *settings) lookup(key string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	if s == nil {
		return ""
	}
	return s.file[key]
}

// lookup reads key from the runtime settings. A broken config file reads as
// empty; Load*Config surfaces the error before any lookup.
func lookup(key string) string {
	s, _ := runtimeSettings()
	return s.lookup(key)
}

// flattenYAML turns nested mappings into SECTION_KEY entries, so
// keeper: {poll_interval: 5s} is read as KEEPER_POLL_INTERVAL. Sequences of
// scalars join with commas.
func flattenYAML(body []byte) (map[string]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	out := map[string]string{}
	if len(doc.Content) == 0 {
		return out, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("top level must be a mapping")
	}
	if err := flattenNode("", root, out); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenNode(prefix string, node *yaml.Node, out map[string]string) error {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			segment := envSegment(node.Content[i].Value)
			if segment == "" {
				continue
			}
			key := segment
			if prefix != "" {
				key = prefix + "_" + segment
			}
			if err := flattenNode(key, node.Content[i+1], out); err != nil {
				return err
			}
		}
	case yaml.SequenceNode:
		parts := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("%s: list items must be scalars (line %d)", prefix, item.Line)
			}
			if v := strings.TrimSpace(item.Value); v != "" {
				parts = append(parts, v)
			}
		}
		out[prefix] = strings.Join(parts, ",")
	case yaml.ScalarNode:
		if node.Tag != "!!null" {
			out[prefix] = strings.TrimSpace(node.Value)
		}
	}
	return nil
}

// envSegment upper-cases a YAML key and collapses every run of other
// characters into a single underscore.
func envSegment(raw string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.TrimSpace(raw) {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			pending = b.Len() > 0
			continue
		}
		if pending {
			b.WriteByte('_')
			pending = false
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// parsed returns fallback for an unset key and wraps parse failures with
// the key name.
func parsed[T any](key string, fallback T, parse func(string) (T, error)) (T, error) {
	raw := lookup(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := parse(raw)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envOrDefault(key, fallback string) string {
	if v := lookup(key); v != "" {
		return v
	}
	return fallback
}

func envPubkey(key string, fallback solana.PublicKey) (solana.PublicKey, error) {
	return parsed(key, fallback, solana.PublicKeyFromBase58)
}

func envCommitment(key string, fallback rpc.CommitmentType) (rpc.CommitmentType, error) {
	return parsed(key, fallback, func(raw string) (rpc.CommitmentType, error) {
		switch c := rpc.CommitmentType(strings.ToLower(raw)); c {
		case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
			return c, nil
		}
		return "", fmt.Errorf("%q (expected processed|confirmed|finalized)", raw)
	})
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	return parsed(key, fallback, func(raw string) (time.Duration, error) {
		d, err := time.ParseDuration(raw)
		if err == nil && d <= 0 {
			err = errors.New("must be > 0")
		}
		return d, err
	})
}

func envInt(key string, fallback int) (int, error) {
	return parsed(key, fallback, func(raw string) (int, error) {
		v, err := strconv.Atoi(raw)
		if err == nil && v <= 0 {
			err = errors.New("must be > 0")
		}
		return v, err
	})
}

func envUint64(key string, fallback uint64) (uint64, error) {
	return parsed(key, fallback, func(raw string) (uint64, error) {
		return strconv.ParseUint(raw, 10, 64)
	})
}

func envUint32(key string, fallback uint32) (uint32, error) {
	return parsed(key, fallback, func(raw string) (uint32, error) {
		v, err := strconv.ParseUint(raw, 10, 32)
		return uint32(v), err
	})
}

// envOptionalUint distinguishes unset (nil) from an explicit zero.
func envOptionalUint(key string) (*uint, error) {
	return parsed(key, (*uint)(nil), func(raw string) (*uint, error) {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		out := uint(v)
		return &out, nil
	})
}

func envBool(key string, fallback bool) (bool, error) {
	return parsed(key, fallback, strconv.ParseBool)
}

// envList splits a comma-separated value, dropping blanks. An unset or
// all-blank value yields fallback.
func envList(key string, fallback []string) []string {
	var out []string
	for _, part := range strings.Split(lookup(key), ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

// buildLogConfig reads <PREFIX>_LOG_* with the unprefixed LOG_* keys as the
// shared default.
func buildLogConfig(prefix, serviceName string) LogConfig {
	get := func(suffix, fallback string) string {
		return envOrDefault(prefix+"_LOG_"+suffix, envOrDefault("LOG_"+suffix, fallback))
	}
	return LogConfig{
		Level:    get("LEVEL", "info"),
		Format:   get("FORMAT", "text"),
		Output:   get("OUTPUT", "console"),
		FilePath: get("FILE", filepath.Join(".docker", serviceName, serviceName+".log")),
	}
}

func expandHomePath(path string) (string, error) {
	rest, ok := strings.CutPrefix(path, "~")
	if !ok || (rest != "" && !strings.HasPrefix(rest, "/")) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(rest, "/")), nil
}
