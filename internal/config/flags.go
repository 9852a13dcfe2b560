package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Flags holds the command-line overrides. Only flags the user actually set
// are applied, so defaults never mask file or environment values.
type Flags struct {
	ConfigFile string

	apiURL      string
	store       string
	sessionDir  string
	redisAddr   string
	logLevel    string
	logFormat   string
	settle      time.Duration
	concurrency int
	examTasks   int
}

// Register adds the persistent flags to fs.
func Register(fs *pflag.FlagSet) *Flags {
	d := Default()
	f := &Flags{}
	fs.StringVar(&f.ConfigFile, "config", "", "config file (default $HOME/"+DefaultFileName+")")
	fs.StringVar(&f.apiURL, "api-url", d.APIURL, "lab backend base URL")
	fs.StringVar(&f.store, "store", string(d.Store), "session store: file, redis or memory")
	fs.StringVar(&f.sessionDir, "session-dir", d.SessionDir, "directory for the file session store")
	fs.StringVar(&f.redisAddr, "redis-addr", d.Redis.Addr, "redis address for the redis session store")
	fs.StringVar(&f.logLevel, "log-level", d.Log.Level, "log level: debug, info, warn or error")
	fs.StringVar(&f.logFormat, "log-format", d.Log.Format, "log format: text or json")
	fs.DurationVar(&f.settle, "settle", d.Grading.Settle, "minimum wait after rebooting before grading (at least 5s)")
	fs.IntVar(&f.concurrency, "concurrency", d.Grading.Concurrency, "max parallel grade calls (0 = unlimited)")
	fs.IntVar(&f.examTasks, "exam-tasks", d.Exam.Tasks, "number of tasks in an exam")
	return f
}

// Apply copies every changed flag onto s.
func (f *Flags) Apply(fs *pflag.FlagSet, s *Settings) {
	if fs.Changed("api-url") {
		s.APIURL = f.apiURL
	}
	if fs.Changed("store") {
		s.Store = StoreKind(f.store)
	}
	if fs.Changed("session-dir") {
		s.SessionDir = f.sessionDir
	}
	if fs.Changed("redis-addr") {
		s.Redis.Addr = f.redisAddr
	}
	if fs.Changed("log-level") {
		s.Log.Level = f.logLevel
	}
	if fs.Changed("log-format") {
		s.Log.Format = f.logFormat
	}
	if fs.Changed("settle") {
		s.Grading.Settle = f.settle
	}
	if fs.Changed("concurrency") {
		s.Grading.Concurrency = f.concurrency
	}
	if fs.Changed("exam-tasks") {
		s.Exam.Tasks = f.examTasks
	}
}
