// Package config loads nbconcat.toml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"nbconcat/internal/concat"
	"nbconcat/internal/nburi"
	"nbconcat/internal/notebook"
	"nbconcat/internal/trace"
)

// FileName is the name of the configuration file looked up by Find.
const FileName = "nbconcat.toml"

// ErrConflictingHeader reports a file that sets both a preset and a literal
// header.
var ErrConflictingHeader = errors.New("document.header and document.header_preset are mutually exclusive")

// Document holds the [document] section.
type Document struct {
	Language          string `toml:"language"`
	DisableTypeIgnore bool   `toml:"disable_type_ignore"`
	HeaderPreset      string `toml:"header_preset"`
	Header            string `toml:"header"`
}

// Trace holds the [trace] section.
type Trace struct {
	Level  string `toml:"level"`
	Mode   string `toml:"mode"`
	Format string `toml:"format"`
	Output string `toml:"output"`
	Ring   int    `toml:"ring_size"`
}

// Journal holds the [journal] section.
type Journal struct {
	Path string `toml:"path"`
}

// Backend holds the [backend] section: the language server to proxy to.
type Backend struct {
	Command []string `toml:"command"`
}

// Config is the whole file.
type Config struct {
	Document Document `toml:"document"`
	Trace    Trace    `toml:"trace"`
	Journal  Journal  `toml:"journal"`
	Backend  Backend  `toml:"backend"`
}

// Default returns the configuration used when no file is found.
func Default() Config {
	return Config{
		Document: Document{
			Language:     nburi.PythonLanguage,
			HeaderPreset: "ipython",
		},
		Trace: Trace{
			Level:  "off",
			Mode:   "stream",
			Format: "auto",
			Output: "stderr",
			Ring:   4096,
		},
	}
}

// Load parses path on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("document", "header") && meta.IsDefined("document", "header_preset") {
		return Config{}, fmt.Errorf("%s: %w", path, ErrConflictingHeader)
	}
	if meta.IsDefined("document", "header") {
		cfg.Document.HeaderPreset = ""
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Find walks up from startDir to locate nbconcat.toml.
func Find(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Resolve loads the file named by explicit, or the nearest one above
// startDir, or the defaults.
func Resolve(explicit, startDir string) (Config, string, error) {
	if explicit != "" {
		cfg, err := Load(explicit)
		return cfg, explicit, err
	}
	path, ok, err := Find(startDir)
	if err != nil {
		return Config{}, "", err
	}
	if !ok {
		return Default(), "", nil
	}
	cfg, err := Load(path)
	return cfg, path, err
}

// Validate checks the values that are parsed later.
func (c Config) Validate() error {
	if _, err := c.HeaderFunc(); err != nil {
		return err
	}
	if _, err := trace.ParseLevel(c.Trace.Level); err != nil {
		return fmt.Errorf("trace.level: %w", err)
	}
	if _, err := trace.ParseMode(c.Trace.Mode); err != nil {
		return fmt.Errorf("trace.mode: %w", err)
	}
	if _, err := trace.ParseFormat(c.Trace.Format); err != nil {
		return fmt.Errorf("trace.format: %w", err)
	}
	if c.Trace.Ring < 0 {
		return fmt.Errorf("trace.ring_size: must not be negative")
	}
	return nil
}

// HeaderFunc resolves the configured header.
func (c Config) HeaderFunc() (concat.HeaderFunc, error) {
	if c.Document.Header != "" {
		return notebook.LiteralHeader(c.Document.Header), nil
	}
	return notebook.HeaderPreset(c.Document.HeaderPreset)
}

// NotebookOptions builds converter options. tracer may be nil.
func (c Config) NotebookOptions(tracer trace.Tracer) (notebook.Options, error) {
	header, err := c.HeaderFunc()
	if err != nil {
		return notebook.Options{}, err
	}
	return notebook.Options{
		Header:            header,
		DisableTypeIgnore: c.Document.DisableTypeIgnore,
		LanguageID:        c.Document.Language,
		Tracer:            tracer,
	}, nil
}

// TraceConfig converts the [trace] section.
func (c Config) TraceConfig() (trace.Config, error) {
	level, err := trace.ParseLevel(c.Trace.Level)
	if err != nil {
		return trace.Config{}, err
	}
	mode, err := trace.ParseMode(c.Trace.Mode)
	if err != nil {
		return trace.Config{}, err
	}
	format, err := trace.ParseFormat(c.Trace.Format)
	if err != nil {
		return trace.Config{}, err
	}
	return trace.Config{
		Level:      level,
		Mode:       mode,
		Format:     format,
		OutputPath: c.Trace.Output,
		RingSize:   c.Trace.Ring,
	}, nil
}
