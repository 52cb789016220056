// Package config loads the engine configuration from a TOML file.
//
// A file only has to name the keys it changes; everything else keeps the
// value from Default.
//
//	mode = "relay"
//	log_level = "debug"
//
//	[tls]
//	version = "TLS1.2"
//	suites = ["RSA_WITH_AES_128_CBC_SHA"]
//	certificate = "server.pem"
//	key = "server.key"
//
//	[network]
//	listen = ":4433"
//	connect = "example.com:443"
//	timeout = "5s"
package config

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"log/slog"
	"os"
	"strings"
	"time"

	"tlsflow/session/tls/common"
	"tlsflow/session/tls/common/ciphersuite"
	"tlsflow/session/tls/state"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

type Mode string

const (
	ModeClient Mode = "client"
	ModeServer Mode = "server"
	ModeRelay  Mode = "relay"
)

// Role is the side whose perspective the mode's trace is written from.
// Relays read their trace as the client does.
func (m Mode) Role() common.Role {
	if m == ModeServer {
		return common.RoleServer
	}
	return common.RoleClient
}

type Config struct {
	Mode     Mode
	LogLevel string
	// TraceFile is a YAML trace document replacing the default trace.
	TraceFile string

	Version string
	Suites  []string
	// PEM files holding the server identity.
	CertificateFile string
	KeyFile         string
	// ApplicationData is exchanged once after the handshake when not empty.
	ApplicationData string

	Listen  string
	Connect string
	// Timeout bounds every read from a peer.
	Timeout     time.Duration
	DialTimeout time.Duration
}

func Default() Config {
	return Config{
		Mode:     ModeClient,
		LogLevel: "info",
		Version:  "TLS1.2",
		Suites: []string{
			"TLS_RSA_WITH_AES_128_CBC_SHA",
			"TLS_RSA_WITH_AES_128_GCM_SHA256",
		},
		Listen:      "127.0.0.1:4433",
		Timeout:     5 * time.Second,
		DialTimeout: 5 * time.Second,
	}
}

type fileConfig struct {
	Mode      string `toml:"mode"`
	LogLevel  string `toml:"log_level"`
	TraceFile string `toml:"trace"`

	TLS struct {
		Version         string   `toml:"version"`
		Suites          []string `toml:"suites"`
		Certificate     string   `toml:"certificate"`
		Key             string   `toml:"key"`
		ApplicationData string   `toml:"application_data"`
	} `toml:"tls"`

	Network struct {
		Listen      string `toml:"listen"`
		Connect     string `toml:"connect"`
		Timeout     string `toml:"timeout"`
		DialTimeout string `toml:"dial_timeout"`
	} `toml:"network"`
}

// Load reads path over the defaults. It does not validate the result.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, errors.Wrapf(common.ErrConfiguration, "loading %s: %s", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.Wrapf(common.ErrConfiguration, "%s: unknown key %s", path, undecoded[0])
	}

	return merge(Default(), raw, meta)
}

// Parse is Load for a document in memory.
func Parse(doc string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(doc, &raw)
	if err != nil {
		return Config{}, errors.Wrapf(common.ErrConfiguration, "parsing config: %s", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.Wrapf(common.ErrConfiguration, "unknown key %s", undecoded[0])
	}

	return merge(Default(), raw, meta)
}

func merge(cfg Config, raw fileConfig, meta toml.MetaData) (Config, error) {
	str := func(key, v string, dst *string) {
		if meta.IsDefined(strings.Split(key, ".")...) {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(key, v string, dst *time.Duration) error {
		if !meta.IsDefined(strings.Split(key, ".")...) {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return errors.Wrapf(common.ErrConfiguration, "parsing %s: %s", key, err)
		}
		*dst = d
		return nil
	}

	if meta.IsDefined("mode") {
		cfg.Mode = Mode(strings.ToLower(strings.TrimSpace(raw.Mode)))
	}
	str("log_level", raw.LogLevel, &cfg.LogLevel)
	str("trace", raw.TraceFile, &cfg.TraceFile)

	str("tls.version", raw.TLS.Version, &cfg.Version)
	if meta.IsDefined("tls", "suites") {
		cfg.Suites = normalize(raw.TLS.Suites)
	}
	str("tls.certificate", raw.TLS.Certificate, &cfg.CertificateFile)
	str("tls.key", raw.TLS.Key, &cfg.KeyFile)
	if meta.IsDefined("tls", "application_data") {
		cfg.ApplicationData = raw.TLS.ApplicationData
	}

	str("network.listen", raw.Network.Listen, &cfg.Listen)
	str("network.connect", raw.Network.Connect, &cfg.Connect)
	if err := dur("network.timeout", raw.Network.Timeout, &cfg.Timeout); err != nil {
		return Config{}, err
	}
	if err := dur("network.dial_timeout", raw.Network.DialTimeout, &cfg.DialTimeout); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if v := strings.TrimSpace(s); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Validate checks everything the mode needs without touching the file
// system.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeClient, ModeServer, ModeRelay:
	default:
		return errors.Wrapf(common.ErrConfiguration, "unknown mode %q", c.Mode)
	}

	if _, err := c.Level(); err != nil {
		return err
	}
	if _, err := c.HighestVersion(); err != nil {
		return err
	}
	if _, err := c.CipherSuites(); err != nil {
		return err
	}

	if c.Timeout <= 0 {
		return errors.Wrapf(common.ErrConfiguration, "timeout must be positive, got %s", c.Timeout)
	}
	if c.DialTimeout <= 0 {
		return errors.Wrapf(common.ErrConfiguration, "dial timeout must be positive, got %s", c.DialTimeout)
	}

	needListen := c.Mode == ModeServer || c.Mode == ModeRelay
	needConnect := c.Mode == ModeClient || c.Mode == ModeRelay
	if needListen && c.Listen == "" {
		return errors.Wrapf(common.ErrConfiguration, "%s mode needs a listen address", c.Mode)
	}
	if needConnect && c.Connect == "" {
		return errors.Wrapf(common.ErrConfiguration, "%s mode needs a connect address", c.Mode)
	}

	if (c.CertificateFile == "") != (c.KeyFile == "") {
		return errors.Wrap(common.ErrConfiguration, "certificate and key go together")
	}
	return nil
}

func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, errors.Wrapf(common.ErrConfiguration, "unknown log level %q", c.LogLevel)
	}
	return lvl, nil
}

func (c Config) HighestVersion() (common.Version, error) {
	return common.ParseVersion(c.Version)
}

// CipherSuites resolves the configured names in preference order.
func (c Config) CipherSuites() ([]ciphersuite.ID, error) {
	if len(c.Suites) == 0 {
		return nil, errors.Wrap(common.ErrConfiguration, "no cipher suites")
	}

	ids := make([]ciphersuite.ID, 0, len(c.Suites))
	for _, name := range c.Suites {
		s, ok := ciphersuite.ByName(name)
		if !ok {
			return nil, errors.Wrapf(common.ErrConfiguration, "unknown cipher suite %q", name)
		}
		ids = append(ids, s.ID())
	}
	return ids, nil
}

// Identity reads the PEM certificate chain and private key. Both are nil
// when no identity is configured.
func (c Config) Identity() (certs [][]byte, key crypto.PrivateKey, err error) {
	if c.CertificateFile == "" {
		return nil, nil, nil
	}

	b, err := os.ReadFile(c.CertificateFile)
	if err != nil {
		return nil, nil, errors.Wrap(common.ErrConfiguration, err.Error())
	}
	for {
		var block *pem.Block
		block, b = pem.Decode(b)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			certs = append(certs, block.Bytes)
		}
	}
	if len(certs) == 0 {
		return nil, nil, errors.Wrapf(common.ErrConfiguration, "no certificate in %s", c.CertificateFile)
	}

	b, err = os.ReadFile(c.KeyFile)
	if err != nil {
		return nil, nil, errors.Wrap(common.ErrConfiguration, err.Error())
	}
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, nil, errors.Wrapf(common.ErrConfiguration, "no key in %s", c.KeyFile)
	}
	key, err = parseKey(block)
	if err != nil {
		return nil, nil, errors.Wrapf(common.ErrConfiguration, "%s: %s", c.KeyFile, err)
	}
	return certs, key, nil
}

func parseKey(block *pem.Block) (crypto.PrivateKey, error) {
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	}
	return x509.ParsePKCS8PrivateKey(block.Bytes)
}

// State builds the context configuration for one connection end.
func (c Config) State(role common.Role) (state.Config, error) {
	version, err := c.HighestVersion()
	if err != nil {
		return state.Config{}, err
	}
	suites, err := c.CipherSuites()
	if err != nil {
		return state.Config{}, err
	}

	cfg := state.Config{Role: role, HighestVersion: version, Suites: suites}
	if role == common.RoleServer {
		if cfg.Certificates, cfg.PrivateKey, err = c.Identity(); err != nil {
			return state.Config{}, err
		}
	}
	return cfg, nil
}
