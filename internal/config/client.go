package config

import (
	"flag"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	commoncfg "github.com/Techcyte/context-sync/core/config"
)

// ClientConfig holds configuration for the demo context-sync client.
type ClientConfig struct {
	ConfigFile  string `yaml:"-"`
	LogLevel    string `yaml:"log_level"`
	URL         string `yaml:"url"`
	Application string `yaml:"application"`
	Version     int    `yaml:"version"`
	// Timeout is announced to the host in seconds; zero leaves it off the wire.
	Timeout         int    `yaml:"timeout"`
	ReplaceExisting bool   `yaml:"replace_existing_client"`
	AutoAccept      bool   `yaml:"auto_accept"`
	StatusAddr      string `yaml:"status_addr"`
	MetricsAddr     string `yaml:"metrics_addr"`
}

// BindFlags populates the struct with defaults from environment variables and
// binds command line flags so main can call flag.Parse().
func (c *ClientConfig) BindFlags() { c.BindFlagSet(flag.CommandLine) }

// BindFlagSet is BindFlags on an explicit flag set.
func (c *ClientConfig) BindFlagSet(fs *flag.FlagSet) {
	c.ConfigFile = commoncfg.GetEnv("CONFIG_FILE", commoncfg.DefaultConfigPath("client.yaml"))
	c.LogLevel = commoncfg.GetEnv("LOG_LEVEL", "info")
	c.URL = commoncfg.GetEnv("HOST_URL", "ws://localhost:4002/cm")
	c.Application = commoncfg.GetEnv("APPLICATION", "ctxsync-client")
	if v, err := strconv.Atoi(commoncfg.GetEnv("PROTOCOL_VERSION", "1")); err == nil {
		c.Version = v
	} else {
		c.Version = 1
	}
	c.Timeout, _ = strconv.Atoi(commoncfg.GetEnv("TIMEOUT", "0"))
	c.ReplaceExisting = envBool("REPLACE_EXISTING_CLIENT", false)
	c.AutoAccept = envBool("AUTO_ACCEPT", false)
	c.StatusAddr = commoncfg.GetEnv("STATUS_ADDR", "")
	c.MetricsAddr = commoncfg.GetEnv("METRICS_ADDR", "")

	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "client config file path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.StringVar(&c.URL, "url", c.URL, "host websocket url")
	fs.StringVar(&c.Application, "application", c.Application, "application name announced to the host")
	fs.IntVar(&c.Version, "protocol-version", c.Version, "protocol version announced to the host")
	fs.IntVar(&c.Timeout, "timeout", c.Timeout, "session timeout in seconds announced to the host; 0 to omit")
	fs.BoolVar(&c.ReplaceExisting, "replace-existing-client", c.ReplaceExisting, "ask the host to evict an already subscribed client")
	fs.BoolVar(&c.AutoAccept, "auto-accept", c.AutoAccept, "accept host context change requests without prompting")
	fs.StringVar(&c.StatusAddr, "status-addr", c.StatusAddr, "listen address for the session status endpoint; empty to disable")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "listen address for Prometheus metrics; empty to disable")
}

// LoadFile populates the config from a YAML file.
func (c *ClientConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

func envBool(key string, def bool) bool {
	if b, err := strconv.ParseBool(commoncfg.GetEnv(key, "")); err == nil {
		return b
	}
	return def
}
