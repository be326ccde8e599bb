// Package config loads the appsync configuration file.
//
// A file is YAML. It is first checked against an embedded CUE schema, which
// rejects unknown keys and out-of-range values with a file position, and
// then decoded over Default so absent keys keep their defaults.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Seed sources.
const (
	SeedDemo = "demo"
	SeedNone = "none"
	SeedFile = "file"
)

// Remote kinds.
const (
	RemoteMemory   = "memory"
	RemotePostgres = "postgres"
)

// Error codes.
const (
	ErrCodeRead     = "E201" // file could not be read
	ErrCodeSyntax   = "E202" // not valid YAML
	ErrCodeSchema   = "E203" // schema violation
	ErrCodeSemantic = "E204" // fields valid alone but inconsistent together
)

// Config is the complete process configuration.
type Config struct {
	DB        string        `yaml:"db"`
	Driver    string        `yaml:"driver"`
	Timeout   time.Duration `yaml:"timeout"`
	Namespace Namespace     `yaml:"namespace"`
	Seed      Seed          `yaml:"seed"`
	Sync      Sync          `yaml:"sync"`
}

// Namespace selects the collection the process manages.
type Namespace struct {
	Scope      string `yaml:"scope"`
	Collection string `yaml:"collection"`
}

// Seed selects what an empty collection is filled with.
type Seed struct {
	Source string `yaml:"source"`
	File   string `yaml:"file"`
}

// Sync configures the replicator.
type Sync struct {
	Enabled  bool          `yaml:"enabled"`
	Remote   string        `yaml:"remote"`
	Name     string        `yaml:"name"`
	DSN      string        `yaml:"dsn"`
	Interval time.Duration `yaml:"interval"`
	Batch    int           `yaml:"batch"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DB:      "appsync.db",
		Driver:  "sqlite3",
		Timeout: 5 * time.Second,
		Namespace: Namespace{
			Scope:      "employees",
			Collection: "profiles",
		},
		Seed: Seed{Source: SeedDemo},
		Sync: Sync{
			Enabled:  false,
			Remote:   RemoteMemory,
			Name:     "default",
			Interval: 30 * time.Second,
			Batch:    100,
			Timeout:  30 * time.Second,
		},
	}
}

// Error is a configuration error with an optional file position.
type Error struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load reads the file at path. An empty path returns Default.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &Error{Code: ErrCodeRead, Message: err.Error()}
	}
	return Parse(path, data)
}

// Parse validates and decodes data. filename is used in error positions.
func Parse(filename string, data []byte) (Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	if err := validateSchema(filename, data); err != nil {
		return Config{}, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, &Error{Code: ErrCodeSyntax, Message: err.Error()}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks rules that span fields.
func (c Config) Validate() error {
	if c.Seed.Source == SeedFile && c.Seed.File == "" {
		return &Error{Code: ErrCodeSemantic, Message: "seed.file is required when seed.source is \"file\""}
	}
	if c.Sync.Enabled && c.Sync.Remote == RemotePostgres && c.Sync.DSN == "" {
		return &Error{Code: ErrCodeSemantic, Message: "sync.dsn is required for the postgres remote"}
	}
	return nil
}

// validateSchema unifies the YAML document with #Config.
func validateSchema(filename string, data []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return cueError(ErrCodeSyntax, err)
	}

	value := ctx.BuildFile(file)
	if err := value.Err(); err != nil {
		return cueError(ErrCodeSyntax, err)
	}

	if err := schema.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return cueError(ErrCodeSchema, err)
	}
	return nil
}

// cueError converts the first CUE error to an *Error carrying its position.
func cueError(code string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Code: code, Message: err.Error()}
	}

	first := errs[0]
	out := &Error{Code: code, Message: first.Error()}
	for _, pos := range cueerrors.Positions(first) {
		// Prefer a position in the config file over one in the schema.
		if pos.Filename() != "schema.cue" {
			out.Pos = pos
			break
		}
	}
	return out
}

// IsCode reports whether err is an *Error with the given code.
func IsCode(err error, code string) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}
