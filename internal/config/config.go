package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/basket/fastgtp/internal/transport"
)

// CORSConfig controls the optional cross-origin wrapper around the REST
// adapter. It is never an authentication mechanism.
type CORSConfig struct {
	Enabled        bool
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// Config holds everything fastgtpd needs to start: the launch command
// for engine subprocesses plus ambient settings (bind address, log
// level, turn timeout, reaper idle TTL, audit DB path, OTel exporter,
// CORS).
type Config struct {
	DefaultEngine []string
	BindAddr      string
	LogLevel      string
	TurnTimeout   time.Duration
	ReaperIdle    time.Duration
	AuditDB       string
	OTelExporter  string
	OTelEndpoint  string
	CORS          CORSConfig

	HomeDir string
}

type yamlDefaults struct {
	BindAddr     string   `yaml:"bind_addr"`
	LogLevel     string   `yaml:"log_level"`
	TurnTimeout  string   `yaml:"turn_timeout"`
	ReaperIdle   string   `yaml:"reaper_idle"`
	AuditDB      string   `yaml:"audit_db"`
	OTelExporter string   `yaml:"otel_exporter"`
	OTelEndpoint string   `yaml:"otel_endpoint"`
	CORSOrigins  []string `yaml:"cors_origins"`
}

// ErrNoEngine is returned by Load when neither FASTGTP_ENGINE nor
// FASTGTP_DEFAULT_ENGINE names a launch command. fastgtpd treats this as
// fatal at startup (§6): a session manager with no way to spawn engines
// is useless.
var ErrNoEngine = fmt.Errorf("config: no engine launch command configured (set FASTGTP_ENGINE or FASTGTP_DEFAULT_ENGINE)")

// Load builds a Config from the process environment, layered over any
// defaults found in homeDir/config.yaml (env wins on every field it sets).
func Load(homeDir string) (Config, error) {
	cfg := Config{
		BindAddr:   ":8080",
		LogLevel:   "info",
		ReaperIdle: 30 * time.Minute,
		AuditDB:    filepath.Join(homeDir, "audit.db"),
		HomeDir:    homeDir,
		CORS:       CORSConfig{Enabled: false},
	}

	if def, err := loadYAMLDefaults(filepath.Join(homeDir, "config.yaml")); err == nil {
		applyYAMLDefaults(&cfg, def)
	}

	engine, err := engineCommand()
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultEngine = engine

	if v, ok := os.LookupEnv("FASTGTP_BIND_ADDR"); ok {
		cfg.BindAddr = v
	}
	if v, ok := os.LookupEnv("FASTGTP_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("FASTGTP_TURN_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: FASTGTP_TURN_TIMEOUT: %w", err)
		}
		cfg.TurnTimeout = d
	}
	if v, ok := os.LookupEnv("FASTGTP_REAPER_IDLE"); ok {
		if v == "0" {
			cfg.ReaperIdle = 0
		} else {
			d, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, fmt.Errorf("config: FASTGTP_REAPER_IDLE: %w", err)
			}
			cfg.ReaperIdle = d
		}
	}
	if v, ok := os.LookupEnv("FASTGTP_AUDIT_DB"); ok {
		cfg.AuditDB = v
	}
	if v, ok := os.LookupEnv("FASTGTP_OTEL_EXPORTER"); ok {
		cfg.OTelExporter = v
	} else if cfg.OTelExporter == "" {
		cfg.OTelExporter = "none"
	}
	if v, ok := os.LookupEnv("FASTGTP_OTEL_ENDPOINT"); ok {
		cfg.OTelEndpoint = v
	}
	if v, ok := os.LookupEnv("FASTGTP_CORS_ORIGINS"); ok {
		origins := splitCommaList(v)
		cfg.CORS.Enabled = len(origins) > 0
		cfg.CORS.AllowedOrigins = origins
	}

	return cfg, nil
}

// engineCommand resolves the engine launch argv. FASTGTP_ENGINE takes
// precedence over FASTGTP_DEFAULT_ENGINE; each may be a JSON array
// (`["/usr/bin/gnugo", "--mode", "gtp"]`) or a shell-style string
// (`/usr/bin/gnugo --mode gtp`), tried in that order. No environment
// variable expansion is performed in the shell form (§4.C).
func engineCommand() ([]string, error) {
	for _, name := range []string{"FASTGTP_ENGINE", "FASTGTP_DEFAULT_ENGINE"} {
		v, ok := os.LookupEnv(name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		return parseEngineSpec(v)
	}
	return nil, ErrNoEngine
}

func parseEngineSpec(v string) ([]string, error) {
	trimmed := strings.TrimSpace(v)
	if strings.HasPrefix(trimmed, "[") {
		var argv []string
		if err := json.Unmarshal([]byte(trimmed), &argv); err != nil {
			return nil, fmt.Errorf("config: parsing engine spec as JSON array: %w", err)
		}
		if len(argv) == 0 {
			return nil, fmt.Errorf("config: engine spec JSON array is empty")
		}
		return argv, nil
	}
	argv, err := transport.ShellTokenize(trimmed)
	if err != nil {
		return nil, fmt.Errorf("config: tokenizing engine spec: %w", err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("config: engine spec is empty")
	}
	return argv, nil
}

func loadYAMLDefaults(path string) (yamlDefaults, error) {
	var def yamlDefaults
	data, err := os.ReadFile(path)
	if err != nil {
		return def, err
	}
	if err := yaml.Unmarshal(data, &def); err != nil {
		return def, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return def, nil
}

func applyYAMLDefaults(cfg *Config, def yamlDefaults) {
	if def.BindAddr != "" {
		cfg.BindAddr = def.BindAddr
	}
	if def.LogLevel != "" {
		cfg.LogLevel = def.LogLevel
	}
	if def.TurnTimeout != "" {
		if d, err := time.ParseDuration(def.TurnTimeout); err == nil {
			cfg.TurnTimeout = d
		}
	}
	if def.ReaperIdle != "" {
		if d, err := time.ParseDuration(def.ReaperIdle); err == nil {
			cfg.ReaperIdle = d
		}
	}
	if def.AuditDB != "" {
		cfg.AuditDB = def.AuditDB
	}
	if def.OTelExporter != "" {
		cfg.OTelExporter = def.OTelExporter
	}
	if def.OTelEndpoint != "" {
		cfg.OTelEndpoint = def.OTelEndpoint
	}
	if len(def.CORSOrigins) > 0 {
		cfg.CORS.Enabled = true
		cfg.CORS.AllowedOrigins = def.CORSOrigins
	}
}

func splitCommaList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Reload re-reads homeDir/config.yaml and applies the subset of fields
// safe to change while fastgtpd is running: log level and reaper idle
// TTL. The bind address is deliberately left alone (the listener is
// already bound) and the engine spec is not re-read (open sessions keep
// whatever engine spawned them).
func Reload(cfg *Config) error {
	def, err := loadYAMLDefaults(filepath.Join(cfg.HomeDir, "config.yaml"))
	if err != nil {
		return err
	}
	if def.LogLevel != "" {
		cfg.LogLevel = def.LogLevel
	}
	if def.ReaperIdle != "" {
		if v := def.ReaperIdle; v == "0" {
			cfg.ReaperIdle = 0
		} else if d, err := time.ParseDuration(v); err == nil {
			cfg.ReaperIdle = d
		}
	}
	return nil
}

// ParseBool is a small helper used by the REST adapter's query-parameter
// handling; it is here rather than in gateway because config already
// owns "interpret an environment-style string as a bool".
func ParseBool(v string, def bool) bool {
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
