// Package config builds clients from a configuration file and the environment.
//
// Values are read, lowest precedence first, from the defaults below, an optional config
// file in any format viper understands, a .env file in the working directory and
// JSONRPC_-prefixed environment variables (JSONRPC_ENDPOINT, JSONRPC_TIMEOUT, ...).
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/spf13/viper"

	"mini-jsonrpc/client"
	"mini-jsonrpc/codec"
	"mini-jsonrpc/loadbalance"
	"mini-jsonrpc/message"
	"mini-jsonrpc/middleware"
	"mini-jsonrpc/registry"
	"mini-jsonrpc/transport"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "JSONRPC"

// Transport names.
const (
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
	TransportStream    = "stream"
)

// Config describes one JSON-RPC peer and how to reach it.
type Config struct {
	Transport   string        `mapstructure:"transport"`
	Endpoint    string        `mapstructure:"endpoint"`
	Version     string        `mapstructure:"version"`
	Timeout     time.Duration `mapstructure:"timeout"`
	StrictCodec bool          `mapstructure:"strict_codec"`

	RateLimit float64 `mapstructure:"rate_limit"` // requests per second, 0 disables
	RateBurst int     `mapstructure:"rate_burst"`

	Heartbeat time.Duration `mapstructure:"heartbeat"` // stream transport only

	// Service discovery.  When Service is set the endpoint of each call is picked among the
	// instances registered for it.
	Service       string   `mapstructure:"service"`
	Balancer      string   `mapstructure:"balancer"`
	Registry      string   `mapstructure:"registry"` // "etcd" or "memory"
	EtcdEndpoints []string `mapstructure:"etcd_endpoints"`

	LogLevel string `mapstructure:"log_level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("transport", TransportHTTP)
	v.SetDefault("endpoint", "")
	v.SetDefault("version", string(message.V2))
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("strict_codec", false)
	v.SetDefault("rate_limit", 0.0)
	v.SetDefault("rate_burst", 1)
	v.SetDefault("heartbeat", 30*time.Second)
	v.SetDefault("service", "")
	v.SetDefault("balancer", "round_robin")
	v.SetDefault("registry", "etcd")
	v.SetDefault("etcd_endpoints", []string{"127.0.0.1:2379"})
	v.SetDefault("log_level", "info")
}

// Load reads the configuration.  path may be empty, in which case only the defaults, .env
// and the environment are used.
func Load(path string) (*Config, error) {
	// A missing .env file is not an error.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that Load cannot check by type alone.  The version is
// normalized to "1.0" or "2.0".
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportHTTP, TransportWebSocket, TransportStream:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	version, err := message.ParseVersion(c.Version)
	if err != nil {
		return err
	}
	c.Version = string(version)
	if _, ok := loadbalance.New(c.Balancer); !ok {
		return fmt.Errorf("unknown balancer %q", c.Balancer)
	}
	if c.Service == "" && c.Endpoint == "" {
		return fmt.Errorf("either endpoint or service must be set")
	}
	if c.Service != "" && c.Transport == TransportStream {
		return fmt.Errorf("the stream transport is bound to one endpoint and cannot use service discovery")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Logger returns a console logger writing to out at the configured level.
func (c *Config) Logger(out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: `2006-01-02 15:04:05`}).
		Level(level).With().Timestamp().Logger()
}

// SetupLogging installs the configured logger as the global and context default logger.
func (c *Config) SetupLogging(out io.Writer) {
	log := c.Logger(out)
	zlog.Logger = log
	zerolog.DefaultContextLogger = &log
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
}

// OpenRegistry connects to the configured registry.
func (c *Config) OpenRegistry() (registry.Registry, error) {
	switch c.Registry {
	case "etcd":
		return registry.NewEtcdRegistry(c.EtcdEndpoints)
	case "memory":
		return registry.NewMemoryRegistry(), nil
	}
	return nil, fmt.Errorf("unknown registry %q", c.Registry)
}

// NewTransport builds the configured transport wrapped in the logging, timeout and rate
// limiting middlewares.  The returned closer releases its connection.
func (c *Config) NewTransport(ctx context.Context, logger *zerolog.Logger) (transport.Transport, io.Closer, error) {
	var (
		base   transport.Transport
		closer io.Closer = nopCloser{}
	)
	switch c.Transport {
	case TransportHTTP:
		base = transport.NewHTTP(&http.Client{})
	case TransportWebSocket:
		ws := transport.NewWebSocket(nil)
		base, closer = ws, ws
	case TransportStream:
		opts := []transport.StreamOption{transport.WithHeartbeat(c.Heartbeat)}
		if c.StrictCodec {
			opts = append(opts, transport.WithStrictCodec())
		}
		st, err := transport.DialStream(ctx, c.Endpoint, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("dialing %s: %w", c.Endpoint, err)
		}
		base, closer = st, st
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", c.Transport)
	}

	mws := []middleware.Middleware{middleware.Logging(logger)}
	if c.Timeout > 0 {
		mws = append(mws, middleware.Timeout(c.Timeout))
	}
	if c.RateLimit > 0 {
		mws = append(mws, middleware.RateLimit(c.RateLimit, c.RateBurst))
	}
	return middleware.Wrap(base, mws...), closer, nil
}

// NewClient builds a client for the configured peer.  When a service is configured its
// instances are looked up in reg, or in the configured registry when reg is nil, and kept
// current until ctx is done.
func (c *Config) NewClient(ctx context.Context, logger *zerolog.Logger, reg registry.Registry) (*client.Client, io.Closer, error) {
	version, err := message.ParseVersion(c.Version)
	if err != nil {
		return nil, nil, err
	}
	tr, closer, err := c.NewTransport(ctx, logger)
	if err != nil {
		return nil, nil, err
	}
	closers := multiCloser{closer}

	cl := client.New(tr, c.Endpoint)
	cl.Version = version
	if c.StrictCodec {
		cl.Codec = codec.StrictJSONCodec{}
	}

	if c.Service != "" {
		if reg == nil {
			if reg, err = c.OpenRegistry(); err != nil {
				_ = closers.Close()
				return nil, nil, err
			}
			if rc, ok := reg.(io.Closer); ok {
				closers = append(closers, rc)
			}
		}
		bal, _ := loadbalance.New(c.Balancer)
		resolver := loadbalance.NewResolver(reg, c.Service, bal)
		if err := resolver.Watch(ctx); err != nil {
			_ = closers.Close()
			return nil, nil, fmt.Errorf("watching %s: %w", c.Service, err)
		}
		cl.Resolver = resolver
	}
	return cl, closers, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var errs []error
	for _, c := range m {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
