// Package config loads node configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	TransportTCP       = "tcp"
	TransportQUIC      = "quic"
	TransportWebSocket = "websocket"
)

const (
	RegistryStatic = "static"
	RegistryNATS   = "nats"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Log       LogConfig       `json:"log" yaml:"log"`
	Heartbeat HeartbeatConfig `json:"heartbeat" yaml:"heartbeat"`
	Transport TransportConfig `json:"transport" yaml:"transport"`
	Workers   WorkerConfig    `json:"workers" yaml:"workers"`
	Registry  RegistryConfig  `json:"registry" yaml:"registry"`
	Publish   PublishConfig   `json:"publish" yaml:"publish"`
	Account   AccountConfig   `json:"account" yaml:"account"`
}

type LogConfig struct {
	Level   string   `json:"level" yaml:"level"`
	Format  string   `json:"format" yaml:"format"`
	Outputs []string `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// HeartbeatConfig sets the probe interval. The liveness timeout is always
// twice the interval.
type HeartbeatConfig struct {
	Interval time.Duration `json:"interval" yaml:"interval"`
}

type TransportConfig struct {
	Kind          string          `json:"kind" yaml:"kind"`
	DialTimeout   time.Duration   `json:"dial_timeout" yaml:"dial_timeout"`
	SendQueueSize int             `json:"send_queue_size" yaml:"send_queue_size"`
	MaxPayload    int             `json:"max_payload" yaml:"max_payload"`
	QUIC          QUICConfig      `json:"quic" yaml:"quic"`
	WebSocket     WebSocketConfig `json:"websocket" yaml:"websocket"`
}

type QUICConfig struct {
	MaxIdleTimeout  time.Duration `json:"max_idle_timeout" yaml:"max_idle_timeout"`
	KeepAlivePeriod time.Duration `json:"keep_alive_period" yaml:"keep_alive_period"`
}

type WebSocketConfig struct {
	Path string `json:"path" yaml:"path"`
}

type WorkerConfig struct {
	Size  int `json:"size" yaml:"size"`
	Queue int `json:"queue" yaml:"queue"`
}

// RegistryConfig selects where service addresses live. The static kind is
// seeded from File, then from inline Services. The nats kind keeps them in a
// JetStream KV bucket shared by every node; inline Services are written to
// it at startup.
type RegistryConfig struct {
	Kind     string            `json:"kind" yaml:"kind"`
	File     string            `json:"file,omitempty" yaml:"file,omitempty"`
	Services map[string]string `json:"services,omitempty" yaml:"services,omitempty"`
	NATS     NATSConfig        `json:"nats" yaml:"nats"`
}

type NATSConfig struct {
	URL    string        `json:"url" yaml:"url"`
	Bucket string        `json:"bucket" yaml:"bucket"`
	TTL    time.Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// PublishConfig describes the service a provider node exposes. An empty
// Service disables publishing.
type PublishConfig struct {
	Service    string `json:"service,omitempty" yaml:"service,omitempty"`
	Host       string `json:"host,omitempty" yaml:"host,omitempty"`
	Broadcast  string `json:"broadcast,omitempty" yaml:"broadcast,omitempty"`
	ListenHost string `json:"listen_host,omitempty" yaml:"listen_host,omitempty"`
	Port       int    `json:"port" yaml:"port"`
}

type AccountConfig struct {
	SessionTTL time.Duration `json:"session_ttl" yaml:"session_ttl"`
}

func Default() *Config {
	return &Config{
		Log:       LogConfig{Level: "info", Format: "json"},
		Heartbeat: HeartbeatConfig{Interval: 3 * time.Second},
		Transport: TransportConfig{
			Kind:          TransportTCP,
			DialTimeout:   5 * time.Second,
			SendQueueSize: 256,
			MaxPayload:    16 << 20,
			QUIC: QUICConfig{
				MaxIdleTimeout:  30 * time.Second,
				KeepAlivePeriod: 15 * time.Second,
			},
			WebSocket: WebSocketConfig{Path: "/rpc"},
		},
		Workers: WorkerConfig{Size: 8, Queue: 1024},
		Registry: RegistryConfig{
			Kind: RegistryStatic,
			NATS: NATSConfig{URL: "nats://127.0.0.1:4222", Bucket: "zeusrpc-services"},
		},
		Publish: PublishConfig{Port: 7001},
		Account: AccountConfig{SessionTTL: 24 * time.Hour},
	}
}

// Load decodes a YAML document over the defaults and validates the result.
func Load(r io.Reader) (*Config, error) {
	c := Default()
	if err := yaml.NewDecoder(r).Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}

func (c *Config) Validate() error {
	var errs []error
	if c.Heartbeat.Interval <= 0 {
		errs = append(errs, fmt.Errorf("heartbeat.interval must be positive, got %s", c.Heartbeat.Interval))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	switch c.Transport.Kind {
	case TransportTCP, TransportQUIC, TransportWebSocket:
	default:
		errs = append(errs, fmt.Errorf("unknown transport.kind %q", c.Transport.Kind))
	}
	if c.Transport.DialTimeout <= 0 {
		errs = append(errs, errors.New("transport.dial_timeout must be positive"))
	}
	if c.Transport.SendQueueSize <= 0 {
		errs = append(errs, errors.New("transport.send_queue_size must be positive"))
	}
	if c.Transport.MaxPayload <= 0 {
		errs = append(errs, errors.New("transport.max_payload must be positive"))
	}
	switch c.Registry.Kind {
	case RegistryStatic:
	case RegistryNATS:
		if c.Registry.NATS.URL == "" {
			errs = append(errs, errors.New("registry.nats.url is required for the nats registry"))
		}
		if c.Registry.File != "" {
			errs = append(errs, errors.New("registry.file is only read by the static registry"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown registry.kind %q", c.Registry.Kind))
	}
	if c.Workers.Size <= 0 || c.Workers.Queue <= 0 {
		errs = append(errs, errors.New("workers.size and workers.queue must be positive"))
	}
	if c.Publish.Service != "" {
		if c.Publish.Host == "" && c.Publish.Broadcast == "" {
			errs = append(errs, errors.New("publish.host or publish.broadcast is required"))
		}
		if c.Publish.Port < 0 || c.Publish.Port > 65535 {
			errs = append(errs, fmt.Errorf("publish.port out of range: %d", c.Publish.Port))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
