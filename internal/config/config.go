package config

import (
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/fantap/fantap/internal/dialer"
	"github.com/fantap/fantap/internal/hook"
	"github.com/fantap/fantap/internal/proxy"
	"github.com/fantap/fantap/internal/trace"
)

// File is the YAML document root. Entries stay raw nodes so one malformed
// entry can be skipped without failing the whole document.
type File struct {
	Proxies map[string]yaml.Node `yaml:"proxies"`
}

// Entry is one proxy definition, keyed by its source port.
type Entry struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Targets     []TargetSpec `yaml:"targets"`
	Echo        EchoSpec     `yaml:"echo"`
	Format      string       `yaml:"format"`
	AutoStart   bool         `yaml:"autostart"`
	TraceFile   string       `yaml:"trace_file"`
}

// TargetSpec accepts either a bare integer (a port on loopback) or a string
// ("host:port", ":port", or a bare port).
type TargetSpec struct {
	Host string
	Port int
}

func (t *TargetSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("target must be a port or \"host:port\", got %s", node.Tag)
	}

	if node.Tag == "!!int" {
		port, err := strconv.Atoi(node.Value)
		if err != nil {
			return fmt.Errorf("target port: %w", err)
		}
		t.Host = "127.0.0.1"
		t.Port = port
		return nil
	}

	raw := strings.TrimSpace(node.Value)
	if !strings.Contains(raw, ":") {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("target %q: not a port or host:port", raw)
		}
		t.Host = "127.0.0.1"
		t.Port = port
		return nil
	}

	host, portStr, err := net.SplitHostPort(raw)
	if err != nil {
		return fmt.Errorf("target %q: %w", raw, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("target %q: bad port: %w", raw, err)
	}
	if host == "" {
		host = "127.0.0.1"
	}
	t.Host = host
	t.Port = port
	return nil
}

// EchoSpec accepts the overloaded echo field: absent (echo first target),
// boolean (all or none), or a list of target indices. The zero value means
// "echo first".
type EchoSpec struct {
	Policy proxy.EchoPolicy
}

func (e *EchoSpec) UnmarshalYAML(node *yaml.Node) error {
	switch {
	case node.Kind == yaml.ScalarNode && node.Tag == "!!bool":
		var all bool
		if err := node.Decode(&all); err != nil {
			return err
		}
		if all {
			e.Policy = proxy.EchoPolicy{Mode: proxy.EchoAll}
		} else {
			e.Policy = proxy.EchoPolicy{Mode: proxy.EchoNone}
		}
		return nil
	case node.Kind == yaml.ScalarNode && node.Tag == "!!null":
		e.Policy = proxy.EchoPolicy{Mode: proxy.EchoFirst}
		return nil
	case node.Kind == yaml.SequenceNode:
		var indices []int
		if err := node.Decode(&indices); err != nil {
			return fmt.Errorf("echo index list: %w", err)
		}
		e.Policy = proxy.EchoIndexSet(indices...)
		return nil
	default:
		return fmt.Errorf("echo must be a bool or an index list, got %s", node.Tag)
	}
}

// Defaults carries process-wide settings merged into every proxy config.
type Defaults struct {
	Dialer    dialer.Dialer
	KeepAlive net.KeepAliveConfig
}

// Load reads the YAML file at path and returns one proxy.Config per valid
// entry, sorted by listen port. Invalid entries are skipped with a warning.
func Load(path string, defaults Defaults) ([]proxy.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, defaults)
}

// Parse is Load for in-memory config bytes.
func Parse(data []byte, defaults Defaults) ([]proxy.Config, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	keys := make([]string, 0, len(f.Proxies))
	for key := range f.Proxies {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	configs := make([]proxy.Config, 0, len(keys))
	seen := make(map[int]string, len(keys))
	for _, key := range keys {
		node := f.Proxies[key]
		var entry Entry
		if err := node.Decode(&entry); err != nil {
			logrus.WithError(err).Warnf("skipping proxy entry %q", key)
			continue
		}
		cfg, err := buildConfig(key, entry, defaults)
		if err != nil {
			logrus.WithError(err).Warnf("skipping proxy entry %q", key)
			continue
		}
		// Keys like "9000" and " 9000" resolve to the same port; only the
		// first (in sorted key order) is kept.
		if prev, dup := seen[cfg.ListenPort]; dup {
			logrus.Warnf("skipping proxy entry %q: port %d already defined by %q", key, cfg.ListenPort, prev)
			continue
		}
		seen[cfg.ListenPort] = key
		configs = append(configs, cfg)
	}

	sort.Slice(configs, func(i, j int) bool {
		return configs[i].ListenPort < configs[j].ListenPort
	})
	return configs, nil
}

func buildConfig(key string, entry Entry, defaults Defaults) (proxy.Config, error) {
	port, err := strconv.Atoi(strings.TrimSpace(key))
	if err != nil {
		return proxy.Config{}, fmt.Errorf("bad port key: %w", err)
	}
	if port <= 0 || port > 65535 {
		return proxy.Config{}, fmt.Errorf("port %d out of range", port)
	}
	if len(entry.Targets) == 0 {
		return proxy.Config{}, fmt.Errorf("no targets")
	}

	format, err := trace.ParseFormat(entry.Format)
	if err != nil {
		return proxy.Config{}, err
	}

	targets := make([]proxy.Target, len(entry.Targets))
	for i, t := range entry.Targets {
		targets[i] = proxy.Target{Host: t.Host, Port: t.Port}
	}

	cfg := proxy.Config{
		Name:        entry.Name,
		Description: entry.Description,
		ListenPort:  port,
		Targets:     targets,
		Echo:        entry.Echo.Policy,
		Format:      format,
		AutoStart:   entry.AutoStart,
		Dialer:      defaults.Dialer,
		KeepAlive:   defaults.KeepAlive,
	}

	if entry.TraceFile != "" {
		cfg.Writer = &hook.FileWriter{Path: entry.TraceFile, Format: format}
	}

	return cfg, nil
}
