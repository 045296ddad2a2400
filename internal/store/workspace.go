package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMySQL  = "mysql"
	BackendMemory = "memory"

	// DefaultSlotName keeps snapshots interchangeable with existing simpleTodoTasks data.
	DefaultSlotName = "simpleTodoTasks"

	configFileName = "config.yaml"
)

type Config struct {
	Schema  int           `yaml:"schema" json:"schema"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Log     LogConfig     `yaml:"log" json:"log"`
	Todo    TodoConfig    `yaml:"todo" json:"todo"`
}

type StorageConfig struct {
	Backend string `yaml:"backend" json:"backend"` // file|sqlite|mysql|memory
	Slot    string `yaml:"slot" json:"slot"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"` // file backend, relative to root
	DSN     string `yaml:"dsn,omitempty" json:"dsn,omitempty"`   // sqlite path or mysql dsn
}

type LogConfig struct {
	Level      string `yaml:"level" json:"level"` // debug|info|warn|error
	File       string `yaml:"file" json:"file"`   // relative to root
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
}

type TodoConfig struct {
	DefaultFilter string `yaml:"default_filter" json:"default_filter"`
}

// Workspace is the directory holding config, logs, exports and file-backed
// task snapshots.
type Workspace struct {
	Root string
	fs   afero.Fs
	cfg  Config
}

// Open opens a workspace rooted at root. It does not create files until Init
// or SaveConfig is called; a missing config means defaults.
func Open(root string, fsys afero.Fs) (*Workspace, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	ws := &Workspace{Root: expandHome(root), fs: fsys, cfg: DefaultConfig()}
	if err := ws.loadConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return ws, nil
}

func DefaultConfig() Config {
	return Config{
		Schema: 1,
		Storage: StorageConfig{
			Backend: BackendFile,
			Slot:    DefaultSlotName,
		},
		Log: LogConfig{
			Level:      "info",
			File:       filepath.Join("logs", "deskkit.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		Todo: TodoConfig{DefaultFilter: string(FilterAll)},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Schema == 0 {
		c.Schema = def.Schema
	}
	if strings.TrimSpace(c.Storage.Backend) == "" {
		c.Storage.Backend = def.Storage.Backend
	}
	if strings.TrimSpace(c.Storage.Slot) == "" {
		c.Storage.Slot = def.Storage.Slot
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = def.Log.Level
	}
	if strings.TrimSpace(c.Log.File) == "" {
		c.Log.File = def.Log.File
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = def.Log.MaxSizeMB
	}
	if c.Log.MaxBackups < 0 {
		c.Log.MaxBackups = def.Log.MaxBackups
	}
	if c.Log.MaxAgeDays < 0 {
		c.Log.MaxAgeDays = def.Log.MaxAgeDays
	}
	c.Todo.DefaultFilter = string(ParseFilter(c.Todo.DefaultFilter))
	return c
}

// Validate reports configuration values the workspace cannot act on.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendFile, BackendSQLite, BackendMemory:
	case BackendMySQL:
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return fmt.Errorf("%w: storage.dsn is required for the mysql backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalid, c.Storage.Backend)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalid, c.Log.Level)
	}
	return nil
}

func (w *Workspace) ConfigPath() string {
	return filepath.Join(w.Root, configFileName)
}

// ConfigExists reports whether a config file is present on disk.
func (w *Workspace) ConfigExists() bool {
	ok, err := afero.Exists(w.fs, w.ConfigPath())
	return err == nil && ok
}

func (w *Workspace) loadConfig() error {
	b, err := afero.ReadFile(w.fs, w.ConfigPath())
	if err != nil {
		return err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, w.ConfigPath(), err)
	}
	w.cfg = cfg.withDefaults()
	return nil
}

// Fs is the filesystem the workspace reads and writes through.
func (w *Workspace) Fs() afero.Fs { return w.fs }

func (w *Workspace) Config() Config {
	return w.cfg
}

func (w *Workspace) SaveConfig(cfg Config) error {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	b, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	if err := atomicWriteFile(w.fs, w.ConfigPath(), b, 0o644); err != nil {
		return err
	}
	w.cfg = cfg
	return nil
}

// Init creates the root directory and writes a default config if none exists.
func (w *Workspace) Init() error {
	if err := w.fs.MkdirAll(w.Root, 0o755); err != nil {
		return err
	}
	if w.ConfigExists() {
		return nil
	}
	return w.SaveConfig(w.cfg)
}

// Resolve turns a workspace-relative path into an absolute one.
func (w *Workspace) Resolve(rel string) string {
	rel = expandHome(strings.TrimSpace(rel))
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(w.Root, rel)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenSlot opens the task slot selected by the storage config. The returned
// closer must be closed when the slot is no longer needed.
func (w *Workspace) OpenSlot() (Slot, io.Closer, error) {
	cfg := w.cfg.Storage
	if err := w.cfg.Validate(); err != nil {
		return nil, nil, err
	}
	switch cfg.Backend {
	case BackendMemory:
		return NewMemSlot(nil), nopCloser{}, nil
	case BackendSQLite:
		dsn := strings.TrimSpace(cfg.DSN)
		if dsn == "" {
			dsn = "deskkit.db"
		}
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			dsn = w.Resolve(dsn)
			if err := w.fs.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, nil, err
			}
		}
		s, err := OpenSQLSlot(DialectSQLite, dsn, cfg.Slot)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case BackendMySQL:
		s, err := OpenSQLSlot(DialectMySQL, cfg.DSN, cfg.Slot)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		path := strings.TrimSpace(cfg.Path)
		if path == "" {
			path = filepath.Join("data", slugify(cfg.Slot)+".json")
		}
		return NewFileSlot(w.fs, w.Resolve(path)), nopCloser{}, nil
	}
}

// OpenStore opens the configured slot and loads the task snapshot from it.
func (w *Workspace) OpenStore(opts ...Option) (*Store, io.Closer, error) {
	slot, closer, err := w.OpenSlot()
	if err != nil {
		return nil, nil, err
	}
	s := New(slot, opts...)
	s.Load()
	return s, closer, nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~"+string(os.PathSeparator)) || path == "~" {
		home, _ := os.UserHomeDir()
		if home != "" {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func slugify(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "x"
	}
	// Replace non-alnum with hyphen
	var b strings.Builder
	lastHyphen := false
	for _, r := range s {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if isAlnum {
			b.WriteRune(r)
			lastHyphen = false
		} else {
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "x"
	}
	return out
}
