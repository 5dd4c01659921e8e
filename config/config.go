package config

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	"sigs.k8s.io/yaml"
)

// Running modes. Validation rules differ per mode: the one-shot CLI
// commands carry their inputs as args/flags, the monitor daemon reads
// everything from here.
const (
	ModeMonitor  = "monitor"
	ModeFailover = "failover"
	ModeTool     = "tool"
)

const envPrefix = "PGSWITCH_"

type Config struct {
	Main    MainConfig    `json:"main"`
	Cluster ClusterConfig `json:"cluster"`
	Promote PromoteConfig `json:"promote"`
	Monitor MonitorConfig `json:"monitor"`
	Log     LogConfig     `json:"log"`
}

type MainConfig struct {
	ListenPort int    `json:"listen_port" env:"PGSWITCH_LISTEN_PORT, default=7432"`
	EnvFile    string `json:"env_file" env:"PGSWITCH_ENV_FILE"`
}

type ClusterConfig struct {
	MasterURL         string `json:"master_url" env:"PGSWITCH_MASTER_URL"`
	StandbyURL        string `json:"standby_url" env:"PGSWITCH_STANDBY_URL"`
	ProbeTimeout      string `json:"probe_timeout" env:"PGSWITCH_PROBE_TIMEOUT, default=3s"`
	LagThresholdBytes int64  `json:"lag_threshold_bytes" env:"PGSWITCH_LAG_THRESHOLD_BYTES, default=16777216"`
}

type PromoteConfig struct {
	PollInterval string `json:"poll_interval" env:"PGSWITCH_PROMOTE_POLL_INTERVAL, default=1s"`
	PollAttempts int    `json:"poll_attempts" env:"PGSWITCH_PROMOTE_POLL_ATTEMPTS, default=30"`
	AdvisoryLock bool   `json:"advisory_lock" env:"PGSWITCH_PROMOTE_ADVISORY_LOCK, default=true"`
}

type MonitorConfig struct {
	Cron            string `json:"cron" env:"PGSWITCH_MONITOR_CRON, default=*/10 * * * * *"`
	AlertBufferSize int    `json:"alert_buffer_size" env:"PGSWITCH_MONITOR_ALERT_BUFFER_SIZE, default=16"`
	HTTPToken       string `json:"http_token" env:"PGSWITCH_MONITOR_HTTP_TOKEN"`
}

type LogConfig struct {
	Level     string `json:"level" env:"PGSWITCH_LOG_LEVEL, default=info"`
	Format    string `json:"format" env:"PGSWITCH_LOG_FORMAT, default=text"`
	AddSource bool   `json:"add_source" env:"PGSWITCH_LOG_ADD_SOURCE"`
}

// MustLoad reads config from a YAML/JSON file, expanding ${PGSWITCH_*}
// placeholders before parsing. Fatal on any error.
func MustLoad(path, mode string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("cannot read config file: %v", err)
	}
	var c Config
	if err := yaml.Unmarshal([]byte(expandEnvsWithPrefix(string(data), envPrefix)), &c); err != nil {
		log.Fatalf("cannot parse config file %s: %v", path, err)
	}
	c.setDefaults()
	if err := c.Validate(mode); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	return &c
}

// MustEnvconfig builds config entirely from PGSWITCH_* env vars.
func MustEnvconfig(mode string) *Config {
	var c Config
	if err := envconfig.Process(context.Background(), &c); err != nil {
		log.Fatalf("cannot read config from envs: %v", err)
	}
	if err := c.Validate(mode); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	return &c
}

func (c *Config) setDefaults() {
	if c.Main.ListenPort == 0 {
		c.Main.ListenPort = 7432
	}
	if c.Cluster.ProbeTimeout == "" {
		c.Cluster.ProbeTimeout = "3s"
	}
	if c.Cluster.LagThresholdBytes == 0 {
		c.Cluster.LagThresholdBytes = 16 * 1024 * 1024
	}
	if c.Promote.PollInterval == "" {
		c.Promote.PollInterval = "1s"
	}
	if c.Promote.PollAttempts == 0 {
		c.Promote.PollAttempts = 30
	}
	if c.Monitor.Cron == "" {
		c.Monitor.Cron = "*/10 * * * * *"
	}
	if c.Monitor.AlertBufferSize == 0 {
		c.Monitor.AlertBufferSize = 16
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) Validate(mode string) error {
	var msgs []string

	checkDuration := func(name, value string) {
		if _, err := time.ParseDuration(value); err != nil {
			msgs = append(msgs, fmt.Sprintf("%s: invalid duration %q", name, value))
		}
	}
	checkDuration("cluster.probe_timeout", c.Cluster.ProbeTimeout)
	checkDuration("promote.poll_interval", c.Promote.PollInterval)

	if c.Promote.PollAttempts <= 0 {
		msgs = append(msgs, "promote.poll_attempts: must be positive")
	}
	if c.Cluster.LagThresholdBytes < 0 {
		msgs = append(msgs, "cluster.lag_threshold_bytes: must not be negative")
	}

	switch mode {
	case ModeMonitor:
		if c.Cluster.MasterURL == "" {
			msgs = append(msgs, "cluster.master_url: required in monitor mode")
		}
		if c.Cluster.StandbyURL == "" {
			msgs = append(msgs, "cluster.standby_url: required in monitor mode")
		}
		if c.Main.ListenPort <= 0 || c.Main.ListenPort > 65535 {
			msgs = append(msgs, fmt.Sprintf("main.listen_port: out of range: %d", c.Main.ListenPort))
		}
	case ModeFailover:
		if c.Main.EnvFile == "" {
			msgs = append(msgs, "main.env_file: required in failover mode")
		}
	case ModeTool:
		// args/flags carry everything
	default:
		msgs = append(msgs, fmt.Sprintf("unknown mode: %s", mode))
	}

	if len(msgs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
	}
	return nil
}

func (c *Config) ProbeTimeout() time.Duration {
	return durationOr(c.Cluster.ProbeTimeout, 3*time.Second)
}

func (c *Config) PromotePollInterval() time.Duration {
	return durationOr(c.Promote.PollInterval, time.Second)
}

func durationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// String dumps the effective config with credentials masked.
func (c *Config) String() string {
	masked := *c
	masked.Cluster.MasterURL = MaskDSN(c.Cluster.MasterURL)
	masked.Cluster.StandbyURL = MaskDSN(c.Cluster.StandbyURL)
	if masked.Monitor.HTTPToken != "" {
		masked.Monitor.HTTPToken = "*****"
	}
	out, err := yaml.Marshal(&masked)
	if err != nil {
		return fmt.Sprintf("<marshal error: %v>", err)
	}
	return string(out)
}

// MaskDSN hides the password part of a connection URL.
func MaskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), "*****")
	}
	return u.String()
}

var envPlaceholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)}`)

// expandEnvsWithPrefix expands ${VAR} placeholders, but only for vars
// carrying the given prefix. Everything else is left as-is.
func expandEnvsWithPrefix(s, prefix string) string {
	return envPlaceholder.ReplaceAllStringFunc(s, func(m string) string {
		name := envPlaceholder.FindStringSubmatch(m)[1]
		if prefix != "" && !strings.HasPrefix(name, prefix) {
			return m
		}
		return os.Getenv(name)
	})
}
