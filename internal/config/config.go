package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

// Config represents wpphub's config.toml.
type Config struct {
	DataDir   string          `toml:"data_dir"`
	HTTP      HTTPConfig      `toml:"http"`
	Control   ControlConfig   `toml:"control"`
	Session   SessionConfig   `toml:"session"`
	Broadcast BroadcastConfig `toml:"broadcast"`
	Schedule  ScheduleConfig  `toml:"schedule"`
	Reply     ReplyConfig     `toml:"reply"`
	Webhook   WebhookConfig   `toml:"webhook"`
	AMQP      AMQPConfig      `toml:"amqp"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Log       LogConfig       `toml:"log"`
}

type HTTPConfig struct {
	Addr        string   `toml:"addr"`
	CORSOrigins []string `toml:"cors_origins"`
}

// ControlConfig configures the gRPC health socket. An empty socket means <data_dir>/control.sock.
type ControlConfig struct {
	Socket string `toml:"socket"`
}

type SessionConfig struct {
	DeviceName       string   `toml:"device_name"`
	ReconnectFloor   Duration `toml:"reconnect_floor"`
	ReconnectCeiling Duration `toml:"reconnect_ceiling"`
	RestoreStagger   Duration `toml:"restore_stagger"`
	ReplyDelay       Duration `toml:"reply_delay"`
}

type BroadcastConfig struct {
	DefaultDelay Duration `toml:"default_delay"`
	JitterMin    Duration `toml:"jitter_min"`
	JitterMax    Duration `toml:"jitter_max"`
}

type ScheduleConfig struct {
	Timezone         string   `toml:"timezone"`
	ReminderOffsets  []int    `toml:"reminder_offsets"`
	ReminderHour     int      `toml:"reminder_hour"`
	ReminderTemplate string   `toml:"reminder_template"`
	SourceURL        string   `toml:"source_url"`
	FetchTimeout     Duration `toml:"fetch_timeout"`
}

type ReplyConfig struct {
	GeminiAPIKey string   `toml:"gemini_api_key"`
	Model        string   `toml:"model"`
	SystemPrompt string   `toml:"system_prompt"`
	Timeout      Duration `toml:"timeout"`
}

// WebhookConfig seeds the webhook target on first start. Values set through the API win afterwards.
type WebhookConfig struct {
	URL     string   `toml:"url"`
	Secret  string   `toml:"secret"`
	Timeout Duration `toml:"timeout"`
}

type AMQPConfig struct {
	URL      string `toml:"url"`
	Exchange string `toml:"exchange"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// LogConfig sets zap levels. WhatsmeowLevel applies to the session library's own logs.
type LogConfig struct {
	Level          string `toml:"level"`
	WhatsmeowLevel string `toml:"whatsmeow_level"`
}

// Duration is a time.Duration that reads and writes as a string like "1.5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

const DefaultReminderTemplate = `Halo {{.Name}}, tagihan Anda sebesar {{.Amount}} untuk rekening {{.Account}} jatuh tempo pada {{.DueDate}}.{{if .Notes}} Catatan: {{.Notes}}{{end}}`

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir: "~/.wpphub",
		HTTP: HTTPConfig{
			Addr:        ":8080",
			CORSOrigins: []string{"*"},
		},
		Session: SessionConfig{
			DeviceName:       "wpphub",
			ReconnectFloor:   Duration{time.Second},
			ReconnectCeiling: Duration{30 * time.Second},
			RestoreStagger:   Duration{2 * time.Second},
			ReplyDelay:       Duration{1500 * time.Millisecond},
		},
		Broadcast: BroadcastConfig{
			DefaultDelay: Duration{time.Second},
			JitterMin:    Duration{2 * time.Second},
			JitterMax:    Duration{7 * time.Second},
		},
		Schedule: ScheduleConfig{
			Timezone:         "Local",
			ReminderOffsets:  []int{-1, 0, 4},
			ReminderHour:     9,
			ReminderTemplate: DefaultReminderTemplate,
			FetchTimeout:     Duration{30 * time.Second},
		},
		Reply: ReplyConfig{
			Model:        "gemini-2.5-flash",
			SystemPrompt: "You are a helpful customer service assistant. Reply briefly in the language of the customer.",
			Timeout:      Duration{20 * time.Second},
		},
		Webhook: WebhookConfig{
			Timeout: Duration{10 * time.Second},
		},
		AMQP: AMQPConfig{
			Exchange: "wpphub.events",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level:          "info",
			WhatsmeowLevel: "warn",
		},
	}
}

// Load reads config from the given path on top of Default. Returns error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// ApplyEnv loads envFiles (missing files are ignored) and overlays WPPHUB_* variables.
func (c *Config) ApplyEnv(envFiles ...string) error {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}

	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setString("WPPHUB_DATA_DIR", &c.DataDir)
	setString("WPPHUB_HTTP_ADDR", &c.HTTP.Addr)
	setString("WPPHUB_CONTROL_SOCKET", &c.Control.Socket)
	setString("WPPHUB_GEMINI_API_KEY", &c.Reply.GeminiAPIKey)
	setString("WPPHUB_GEMINI_MODEL", &c.Reply.Model)
	setString("WPPHUB_WEBHOOK_URL", &c.Webhook.URL)
	setString("WPPHUB_WEBHOOK_SECRET", &c.Webhook.Secret)
	setString("WPPHUB_AMQP_URL", &c.AMQP.URL)
	setString("WPPHUB_SCHEDULE_SOURCE_URL", &c.Schedule.SourceURL)
	setString("WPPHUB_TIMEZONE", &c.Schedule.Timezone)
	setString("WPPHUB_LOG_LEVEL", &c.Log.Level)

	if v, ok := os.LookupEnv("WPPHUB_CORS_ORIGINS"); ok {
		c.HTTP.CORSOrigins = splitList(v)
	}
	if v, ok := os.LookupEnv("WPPHUB_REMINDER_OFFSETS"); ok {
		var offsets []int
		for _, s := range splitList(v) {
			n, err := strconv.Atoi(s)
			if err != nil {
				return fmt.Errorf("WPPHUB_REMINDER_OFFSETS: %w", err)
			}
			offsets = append(offsets, n)
		}
		c.Schedule.ReminderOffsets = offsets
	}
	return nil
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if c.Session.ReconnectFloor.Duration <= 0 || c.Session.ReconnectCeiling.Duration < c.Session.ReconnectFloor.Duration {
		return fmt.Errorf("reconnect backoff: floor %s must be positive and not above ceiling %s",
			c.Session.ReconnectFloor, c.Session.ReconnectCeiling)
	}
	if c.Broadcast.JitterMax.Duration < c.Broadcast.JitterMin.Duration {
		return fmt.Errorf("broadcast jitter: max %s below min %s", c.Broadcast.JitterMax, c.Broadcast.JitterMin)
	}
	if c.Schedule.ReminderHour < 0 || c.Schedule.ReminderHour > 23 {
		return fmt.Errorf("schedule reminder_hour %d out of range", c.Schedule.ReminderHour)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	for _, lvl := range []string{c.Log.Level, c.Log.WhatsmeowLevel} {
		if _, err := zapcore.ParseLevel(lvl); err != nil {
			return fmt.Errorf("log level: %w", err)
		}
	}
	return nil
}

// Location resolves the schedule timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Schedule.Timezone == "" || c.Schedule.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule timezone: %w", err)
	}
	return loc, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
