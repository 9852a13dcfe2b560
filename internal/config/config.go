// Package config resolves labexam settings from defaults, an optional YAML
// file, a .env file, LABEXAM_* environment variables and command-line flags,
// in that order of precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// StoreKind selects the session store adapter.
type StoreKind string

const (
	StoreFile   StoreKind = "file"
	StoreRedis  StoreKind = "redis"
	StoreMemory StoreKind = "memory"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "LABEXAM_"

// DefaultFileName is looked up in the home directory when no --config is given.
const DefaultFileName = ".labexam.yaml"

// MinSettle is the shortest reboot settle time accepted from configuration.
// Grading earlier than this races the nodes coming back up.
const MinSettle = 5 * time.Second

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Settings is the resolved configuration of one labexam process.
type Settings struct {
	APIURL     string    `mapstructure:"api_url" yaml:"api_url"`
	Store      StoreKind `mapstructure:"store" yaml:"store"`
	SessionDir string    `mapstructure:"session_dir" yaml:"session_dir"`
	SessionKey string    `mapstructure:"session_key" yaml:"session_key"`

	Redis    Redis    `mapstructure:"redis" yaml:"redis"`
	Timeouts Timeouts `mapstructure:"timeouts" yaml:"timeouts"`
	Grading  Grading  `mapstructure:"grading" yaml:"grading"`
	Exam     Exam     `mapstructure:"exam" yaml:"exam"`
	Log      Log      `mapstructure:"log" yaml:"log"`

	ServeAddr string `mapstructure:"serve_addr" yaml:"serve_addr"`
}

type Redis struct {
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"password"`
	DB       int           `mapstructure:"db" yaml:"db"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
	Prefix   string        `mapstructure:"prefix" yaml:"prefix"`
}

// Timeouts bound each backend call. Reboot and grade calls block on the VMs
// and get longer budgets.
type Timeouts struct {
	Request time.Duration `mapstructure:"request" yaml:"request"`
	Reboot  time.Duration `mapstructure:"reboot" yaml:"reboot"`
	Grade   time.Duration `mapstructure:"grade" yaml:"grade"`
}

type Grading struct {
	// Settle is the minimum wait after issuing reboots.
	Settle time.Duration `mapstructure:"settle" yaml:"settle"`
	// Concurrency caps parallel grade calls; zero means unlimited.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

type Exam struct {
	Duration time.Duration `mapstructure:"duration" yaml:"duration"`
	Tasks    int           `mapstructure:"tasks" yaml:"tasks"`
}

type Log struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns the built-in settings.
func Default() *Settings {
	return &Settings{
		APIURL:     "http://localhost:8080",
		Store:      StoreFile,
		SessionDir: filepath.Join(".labexam", "sessions"),
		SessionKey: "examState",
		Redis: Redis{
			Addr:   "localhost:6379",
			Prefix: "labexam:session:",
		},
		Timeouts: Timeouts{
			Request: 15 * time.Second,
			Reboot:  5 * time.Minute,
			Grade:   2 * time.Minute,
		},
		Grading: Grading{
			Settle: 15 * time.Second,
		},
		Exam: Exam{
			Duration: 3 * time.Hour,
			Tasks:    15,
		},
		Log: Log{
			Level:  "warn",
			Format: "text",
		},
		ServeAddr: "127.0.0.1:8089",
	}
}

// envKeys maps environment variable suffixes to settings paths.
var envKeys = map[string]string{
	"API_URL":           "api_url",
	"STORE":             "store",
	"SESSION_DIR":       "session_dir",
	"SESSION_KEY":       "session_key",
	"REDIS_ADDR":        "redis.addr",
	"REDIS_PASSWORD":    "redis.password",
	"REDIS_DB":          "redis.db",
	"REDIS_TTL":         "redis.ttl",
	"REDIS_PREFIX":      "redis.prefix",
	"REQUEST_TIMEOUT":   "timeouts.request",
	"REBOOT_TIMEOUT":    "timeouts.reboot",
	"GRADE_TIMEOUT":     "timeouts.grade",
	"REBOOT_SETTLE":     "grading.settle",
	"GRADE_CONCURRENCY": "grading.concurrency",
	"EXAM_DURATION":     "exam.duration",
	"EXAM_TASKS":        "exam.tasks",
	"LOG_LEVEL":         "log.level",
	"LOG_FORMAT":        "log.format",
	"SERVE_ADDR":        "serve_addr",
}

// Options controls Load.
type Options struct {
	// File is an explicit YAML path. A missing explicit file is an error.
	File string
	// Home is searched for DefaultFileName when File is empty. Empty skips it.
	Home string
	// DotEnv lists .env files to load into the process environment. Missing
	// files are ignored.
	DotEnv []string
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load resolves settings from defaults, file and environment. Flags are
// applied afterwards by the caller with Flags.Apply.
func Load(opts Options) (*Settings, error) {
	s := Default()

	path, explicit := opts.File, opts.File != ""
	if !explicit && opts.Home != "" {
		path = filepath.Join(opts.Home, DefaultFileName)
	}
	if path != "" {
		if err := s.mergeFile(path, explicit); err != nil {
			return nil, err
		}
	}

	for _, f := range opts.DotEnv {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := s.mergeEnv(lookup); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) mergeFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := s.decode(raw); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func (s *Settings) mergeEnv(lookup func(string) (string, bool)) error {
	raw := map[string]any{}
	for suffix, key := range envKeys {
		v, ok := lookup(EnvPrefix + suffix)
		if !ok || v == "" {
			continue
		}
		setPath(raw, key, v)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := s.decode(raw); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}

// decode overlays raw onto s. Keys absent from raw leave fields untouched.
func (s *Settings) decode(raw map[string]any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           s,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

func setPath(m map[string]any, path, value string) {
	parts := strings.Split(path, ".")
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

// Validate checks the resolved settings.
func (s *Settings) Validate() error {
	var errs []error
	u, err := url.Parse(s.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("api_url %q is not an absolute URL", s.APIURL))
	}
	switch s.Store {
	case StoreFile, StoreRedis, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("store %q must be file, redis or memory", s.Store))
	}
	if s.SessionKey == "" {
		errs = append(errs, errors.New("session_key is empty"))
	}
	if s.Store == StoreRedis && s.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required for the redis store"))
	}
	if s.Timeouts.Request <= 0 || s.Timeouts.Reboot <= 0 || s.Timeouts.Grade <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if s.Grading.Settle < MinSettle {
		errs = append(errs, fmt.Errorf("grading.settle must be at least %s", MinSettle))
	}
	if s.Grading.Concurrency < 0 {
		errs = append(errs, errors.New("grading.concurrency must not be negative"))
	}
	if s.Exam.Duration <= 0 {
		errs = append(errs, errors.New("exam.duration must be positive"))
	}
	if s.Exam.Tasks <= 0 {
		errs = append(errs, errors.New("exam.tasks must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Redacted returns a copy safe to print.
func (s *Settings) Redacted() *Settings {
	c := *s
	if c.Redis.Password != "" {
		c.Redis.Password = "********"
	}
	return &c
}

// YAML renders the settings in config file form.
func (s *Settings) YAML() (string, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
