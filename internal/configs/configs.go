/*
Package configs is responsible for loading and parsing the application's configuration settings.

Settings are layered: built-in defaults, then an optional YAML file, then operating system
environment variables (a .env file in the working directory is loaded into the environment
first). The chat backend's REST URL is the only required setting; the WebSocket endpoint is
derived from it unless configured explicitly.
*/
package configs

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"stompchat/internal/pkg/errs"
)

// DefaultWSPath is the raw WebSocket endpoint of the backend's SockJS-enabled STOMP broker.
const DefaultWSPath = "/ws/websocket"

// Connection and messaging defaults.
const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultHeartBeat      = 4 * time.Second
	DefaultConnectTimeout = 15 * time.Second
	DefaultSendRate       = 5
	DefaultSendBurst      = 10
)

// AppConfig contains all configuration parameters required for the application to run.
type AppConfig struct {
	// General Settings
	Environment string

	// Backend Endpoints
	APIURL string
	WSURL  string

	// Local State
	SessionFile string

	// Connection Policy
	RequireToken          bool
	ReRegisterOnReconnect bool
	ReconnectDelay        time.Duration
	MaxReconnects         int
	HeartBeat             time.Duration
	ConnectTimeout        time.Duration

	// Messaging
	DedupEchoes bool
	SendRate    float64
	SendBurst   int

	// Status Server; an empty address disables it.
	StatusAddr     string
	AllowedOrigins []string
}

// fileConfig is the YAML shape. Pointers distinguish unset keys from zero values.
type fileConfig struct {
	Environment           string   `yaml:"environment"`
	APIURL                string   `yaml:"api_url"`
	WSURL                 string   `yaml:"ws_url"`
	SessionFile           string   `yaml:"session_file"`
	RequireToken          *bool    `yaml:"require_token"`
	ReRegisterOnReconnect *bool    `yaml:"reregister_on_reconnect"`
	ReconnectDelay        string   `yaml:"reconnect_delay"`
	MaxReconnects         *int     `yaml:"max_reconnects"`
	HeartBeat             string   `yaml:"heartbeat"`
	ConnectTimeout        string   `yaml:"connect_timeout"`
	DedupEchoes           *bool    `yaml:"dedup_echoes"`
	SendRate              *float64 `yaml:"send_rate"`
	SendBurst             *int     `yaml:"send_burst"`
	StatusAddr            string   `yaml:"status_addr"`
	AllowedOrigins        []string `yaml:"allowed_origins"`
}

// defaultConfig returns the settings used when nothing overrides them.
func defaultConfig() *AppConfig {
	return &AppConfig{
		Environment:           "production",
		ReRegisterOnReconnect: true,
		ReconnectDelay:        DefaultReconnectDelay,
		MaxReconnects:         -1,
		HeartBeat:             DefaultHeartBeat,
		ConnectTimeout:        DefaultConnectTimeout,
		SendRate:              DefaultSendRate,
		SendBurst:             DefaultSendBurst,
		AllowedOrigins:        []string{},
	}
}

// LoadConfig reads the configuration. path names an optional YAML file; an empty path skips it,
// but a named file that does not exist is an error.
func LoadConfig(path string) (*AppConfig, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errs.Wrap(errs.ErrConfigInvalid, err, ".env file could not be parsed")
	}

	cfg := defaultConfig()

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment reports whether the application runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *AppConfig) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errs.Wrap(errs.ErrConfigInvalid, err, "failed to read config file "+path)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return errs.Wrap(errs.ErrConfigInvalid, err, "failed to parse config file "+path)
	}

	setString(&c.Environment, fc.Environment)
	setString(&c.APIURL, fc.APIURL)
	setString(&c.WSURL, fc.WSURL)
	setString(&c.SessionFile, fc.SessionFile)
	setString(&c.StatusAddr, fc.StatusAddr)

	if fc.RequireToken != nil {
		c.RequireToken = *fc.RequireToken
	}
	if fc.ReRegisterOnReconnect != nil {
		c.ReRegisterOnReconnect = *fc.ReRegisterOnReconnect
	}
	if fc.MaxReconnects != nil {
		c.MaxReconnects = *fc.MaxReconnects
	}
	if fc.DedupEchoes != nil {
		c.DedupEchoes = *fc.DedupEchoes
	}
	if fc.SendRate != nil {
		c.SendRate = *fc.SendRate
	}
	if fc.SendBurst != nil {
		c.SendBurst = *fc.SendBurst
	}
	if len(fc.AllowedOrigins) > 0 {
		c.AllowedOrigins = trimAll(fc.AllowedOrigins)
	}

	for key, d := range map[string]struct {
		raw string
		dst *time.Duration
	}{
		"reconnect_delay": {fc.ReconnectDelay, &c.ReconnectDelay},
		"heartbeat":       {fc.HeartBeat, &c.HeartBeat},
		"connect_timeout": {fc.ConnectTimeout, &c.ConnectTimeout},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return errs.Wrap(errs.ErrConfigInvalid, err, "invalid "+key+" in "+path)
		}
		*d.dst = v
	}

	return nil
}

func (c *AppConfig) applyEnv() error {
	setString(&c.Environment, os.Getenv("ENVIRONMENT"))
	setString(&c.APIURL, os.Getenv("CHAT_API_URL"))
	setString(&c.WSURL, os.Getenv("CHAT_WS_URL"))
	setString(&c.SessionFile, os.Getenv("CHAT_SESSION_FILE"))
	setString(&c.StatusAddr, os.Getenv("CHAT_STATUS_ADDR"))

	if originsStr := os.Getenv("ALLOWED_ORIGINS"); originsStr != "" {
		c.AllowedOrigins = trimAll(strings.Split(originsStr, ","))
	}

	var err error
	if c.RequireToken, err = envBool("CHAT_REQUIRE_TOKEN", c.RequireToken); err != nil {
		return err
	}
	if c.ReRegisterOnReconnect, err = envBool("CHAT_REREGISTER_ON_RECONNECT", c.ReRegisterOnReconnect); err != nil {
		return err
	}
	if c.DedupEchoes, err = envBool("CHAT_DEDUP_ECHOES", c.DedupEchoes); err != nil {
		return err
	}
	if c.MaxReconnects, err = envInt("CHAT_MAX_RECONNECTS", c.MaxReconnects); err != nil {
		return err
	}
	if c.SendBurst, err = envInt("CHAT_SEND_BURST", c.SendBurst); err != nil {
		return err
	}
	if c.ReconnectDelay, err = envDuration("CHAT_RECONNECT_DELAY", c.ReconnectDelay); err != nil {
		return err
	}
	if c.HeartBeat, err = envDuration("CHAT_HEARTBEAT", c.HeartBeat); err != nil {
		return err
	}
	if c.ConnectTimeout, err = envDuration("CHAT_CONNECT_TIMEOUT", c.ConnectTimeout); err != nil {
		return err
	}

	if s := os.Getenv("CHAT_SEND_RATE"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return errs.Wrap(errs.ErrConfigInvalid, err, "invalid CHAT_SEND_RATE environment variable")
		}
		c.SendRate = v
	}

	return nil
}

// finalize validates the merged settings and derives the WebSocket URL.
func (c *AppConfig) finalize() error {
	c.APIURL = strings.TrimRight(strings.TrimSpace(c.APIURL), "/")
	if c.APIURL == "" {
		return errs.NewError(errs.ErrConfigMissingAPIURL)
	}

	if c.WSURL == "" {
		ws, err := DeriveWSURL(c.APIURL)
		if err != nil {
			return err
		}
		c.WSURL = ws
	}

	switch {
	case c.ReconnectDelay < 0:
		return errs.NewError(errs.ErrConfigInvalid, "reconnect delay must not be negative")
	case c.HeartBeat < 0:
		return errs.NewError(errs.ErrConfigInvalid, "heartbeat must not be negative")
	case c.ConnectTimeout < 0:
		return errs.NewError(errs.ErrConfigInvalid, "connect timeout must not be negative")
	case c.SendRate < 0 || c.SendBurst < 0:
		return errs.NewError(errs.ErrConfigInvalid, "send rate and burst must not be negative")
	}

	return nil
}

// DeriveWSURL maps an http(s) API URL to the broker's ws(s) endpoint on the same host.
func DeriveWSURL(apiURL string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil || u.Host == "" {
		return "", errs.NewError(errs.ErrConfigInvalid, fmt.Sprintf("invalid CHAT_API_URL %q", apiURL))
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", errs.NewError(errs.ErrConfigInvalid, fmt.Sprintf("CHAT_API_URL must use http or https, got %q", u.Scheme))
	}

	u.Path = DefaultWSPath
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return def, errs.Wrap(errs.ErrConfigInvalid, err, "invalid "+key+" environment variable")
	}
	return v, nil
}

func envInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def, errs.Wrap(errs.ErrConfigInvalid, err, "invalid "+key+" environment variable")
	}
	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return def, errs.Wrap(errs.ErrConfigInvalid, err, "invalid "+key+" environment variable")
	}
	return v, nil
}
