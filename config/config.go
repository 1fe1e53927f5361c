// Package config loads node settings from .env, an optional YAML file and EHR_* variables,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ehrchain/core/genesis"
	"ehrchain/core/record"
	"ehrchain/core/storage"
	"ehrchain/core/wallet"
)

// Config is the node configuration.
type Config struct {
	DBPath     string `yaml:"dbPath"`
	Backend    string `yaml:"backend"`
	ListenAddr string `yaml:"listenAddr"`

	DEK       string        `yaml:"dek"` // base64, 32 bytes; empty stores record bodies unsealed
	JWTSecret string        `yaml:"jwtSecret"`
	TokenTTL  time.Duration `yaml:"tokenTTL"`

	ChainID        string    `yaml:"chainId"`
	GenesisTime    time.Time `yaml:"genesisTime"`
	GenesisMessage string    `yaml:"genesisMessage"`

	CacheSize      int    `yaml:"cacheSize"`
	AppendRetries  int    `yaml:"appendRetries"`
	KeyAlgorithm   string `yaml:"keyAlgorithm"`
	AuditRetention int    `yaml:"auditRetention"`

	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`

	AdminName     string `yaml:"adminName"`
	AdminPassword string `yaml:"adminPassword"`

	TLSCert         string        `yaml:"tlsCert"`
	TLSKey          string        `yaml:"tlsKey"`
	RateLimitPerMin int           `yaml:"rateLimitPerMin"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		DBPath:          "./ehrchain_db",
		Backend:         storage.KindLevelDB,
		ListenAddr:      ":8080",
		TokenTTL:        12 * time.Hour,
		ChainID:         "ehrchain",
		GenesisTime:     genesis.DefaultTime,
		GenesisMessage:  genesis.DefaultMessage,
		CacheSize:       1024,
		AppendRetries:   3,
		KeyAlgorithm:    wallet.AlgEd25519,
		AuditRetention:  10000,
		LogLevel:        "info",
		LogFormat:       "json",
		RateLimitPerMin: 600,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
	}
}

// Load reads envFiles (missing files are skipped), then the YAML file named by EHR_CONFIG,
// then EHR_* variables.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	cfg := Default()
	if path := os.Getenv("EHR_CONFIG"); path != "" {
		if err := cfg.mergeYAML(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) mergeYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
		return nil
	}

	str("EHR_DB_PATH", &c.DBPath)
	str("EHR_BACKEND", &c.Backend)
	str("EHR_LISTEN_ADDR", &c.ListenAddr)
	str("EHR_DEK", &c.DEK)
	str("EHR_JWT_SECRET", &c.JWTSecret)
	str("EHR_CHAIN_ID", &c.ChainID)
	str("EHR_GENESIS_MESSAGE", &c.GenesisMessage)
	str("EHR_KEY_ALGORITHM", &c.KeyAlgorithm)
	str("EHR_LOG_LEVEL", &c.LogLevel)
	str("EHR_LOG_FORMAT", &c.LogFormat)
	str("EHR_ADMIN_NAME", &c.AdminName)
	str("EHR_ADMIN_PASSWORD", &c.AdminPassword)
	str("EHR_TLS_CERT", &c.TLSCert)
	str("EHR_TLS_KEY", &c.TLSKey)
	if v, ok := lookup("EHR_GENESIS_TIME"); ok && v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fmt.Errorf("EHR_GENESIS_TIME: %w", err)
		}
		c.GenesisTime = t
	}
	for key, dst := range map[string]*int{
		"EHR_CACHE_SIZE":         &c.CacheSize,
		"EHR_APPEND_RETRIES":     &c.AppendRetries,
		"EHR_AUDIT_RETENTION":    &c.AuditRetention,
		"EHR_RATE_LIMIT_PER_MIN": &c.RateLimitPerMin,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	for key, dst := range map[string]*time.Duration{
		"EHR_TOKEN_TTL":     &c.TokenTTL,
		"EHR_READ_TIMEOUT":  &c.ReadTimeout,
		"EHR_WRITE_TIMEOUT": &c.WriteTimeout,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate rejects settings the node cannot run with.
func (c Config) Validate() error {
	var problems []string
	switch strings.ToLower(c.Backend) {
	case storage.KindLevelDB, storage.KindBadger, storage.KindMemory:
	default:
		problems = append(problems, fmt.Sprintf("unknown backend %q", c.Backend))
	}
	if c.Backend != storage.KindMemory && c.DBPath == "" {
		problems = append(problems, "dbPath is required")
	}
	if c.DEK != "" {
		if _, err := record.ParseDEK(c.DEK); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if c.TokenTTL <= 0 {
		problems = append(problems, "tokenTTL must be positive")
	}
	if c.CacheSize <= 0 {
		problems = append(problems, "cacheSize must be positive")
	}
	if c.AppendRetries <= 0 {
		problems = append(problems, "appendRetries must be positive")
	}
	if _, err := wallet.NormalizeAlgorithm(c.KeyAlgorithm); err != nil {
		problems = append(problems, err.Error())
	}
	if f := strings.ToLower(c.LogFormat); f != "json" && f != "console" {
		problems = append(problems, fmt.Sprintf("unknown log format %q", c.LogFormat))
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		problems = append(problems, "tlsCert and tlsKey must be set together")
	}
	if c.AdminName != "" && c.AdminPassword == "" {
		problems = append(problems, "adminPassword is required with adminName")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Genesis returns the genesis configuration.
func (c Config) Genesis() genesis.Config {
	return genesis.Config{ChainID: c.ChainID, Time: c.GenesisTime, Message: c.GenesisMessage}
}

// Sealer returns the record sealer, or nil when no data key is configured.
func (c Config) Sealer() (*record.Sealer, error) {
	if c.DEK == "" {
		return nil, nil
	}
	dek, err := record.ParseDEK(c.DEK)
	if err != nil {
		return nil, err
	}
	return record.NewSealer(dek)
}
