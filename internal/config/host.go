package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	commoncfg "github.com/Techcyte/context-sync/core/config"
)

// HostConfig holds configuration for the reference context-sync host.
type HostConfig struct {
	ConfigFile     string        `yaml:"-"`
	LogLevel       string        `yaml:"log_level"`
	Port           int           `yaml:"port"`
	WSPath         string        `yaml:"ws_path"`
	MetricsAddr    string        `yaml:"metrics_addr"`
	RedisAddr      string        `yaml:"redis_addr"`
	Application    string        `yaml:"application"`
	Timeout        time.Duration `yaml:"timeout"`
	StartingCase   string        `yaml:"starting_case"`
	AutoAccept     bool          `yaml:"auto_accept"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// BindFlags populates the struct with defaults from environment variables and
// binds command line flags so main can call flag.Parse().
func (c *HostConfig) BindFlags() { c.BindFlagSet(flag.CommandLine) }

// BindFlagSet is BindFlags on an explicit flag set.
func (c *HostConfig) BindFlagSet(fs *flag.FlagSet) {
	c.ConfigFile = commoncfg.GetEnv("CONFIG_FILE", commoncfg.DefaultConfigPath("host.yaml"))
	c.LogLevel = commoncfg.GetEnv("LOG_LEVEL", "info")
	port, err := strconv.Atoi(commoncfg.GetEnv("PORT", "4002"))
	if err != nil {
		port = 4002
	}
	c.Port = port
	c.WSPath = commoncfg.GetEnv("WS_PATH", "/cm")
	c.MetricsAddr = commoncfg.GetEnv("METRICS_ADDR", "")
	c.RedisAddr = commoncfg.GetEnv("REDIS_ADDR", "")
	c.Application = commoncfg.GetEnv("APPLICATION", "techcyte-context-sync")
	if d, err := time.ParseDuration(commoncfg.GetEnv("SESSION_TIMEOUT", "30s")); err == nil {
		c.Timeout = d
	} else {
		c.Timeout = 30 * time.Second
	}
	c.StartingCase = commoncfg.GetEnv("STARTING_CASE", "N123456")
	c.AutoAccept = envBool("AUTO_ACCEPT", false)
	c.AllowedOrigins = splitComma(commoncfg.GetEnv("ALLOWED_ORIGINS", ""))

	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "host config file path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.IntVar(&c.Port, "port", c.Port, "HTTP listen port for the websocket endpoint and control API")
	fs.StringVar(&c.WSPath, "ws-path", c.WSPath, "path clients use to open the context-sync channel")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "separate Prometheus listen address; empty serves /metrics on --port")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis connection URL for the shared context store")
	fs.StringVar(&c.Application, "application", c.Application, "application name announced to clients")
	fs.DurationVar(&c.Timeout, "timeout", c.Timeout, "session timeout announced to clients")
	fs.StringVar(&c.StartingCase, "case", c.StartingCase, "starting case number")
	fs.BoolVar(&c.AutoAccept, "auto-accept", c.AutoAccept, "accept client context change requests without a vote")
	fs.Func("allowed-origins", "comma separated list of allowed CORS origins", func(v string) error {
		c.AllowedOrigins = splitComma(v)
		return nil
	})
}

// LoadFile populates the config from a YAML file.
func (c *HostConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

func splitComma(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
