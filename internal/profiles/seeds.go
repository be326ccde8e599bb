package profiles

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/appsync/internal/profile"
)

// SeedProvider supplies the records written into an empty collection.
type SeedProvider interface {
	Seeds(ctx context.Context) ([]profile.Profile, error)
}

// SeedFunc adapts a function to SeedProvider.
type SeedFunc func(ctx context.Context) ([]profile.Profile, error)

// Seeds calls f.
func (f SeedFunc) Seeds(ctx context.Context) ([]profile.Profile, error) {
	return f(ctx)
}

var demoProfiles = []profile.Profile{
	{ID: "EMP0001", Name: "Danielle Johnson", Title: "Haematologist", Email: "danielle.johnson@acme.com"},
	{ID: "EMP0002", Name: "John Taylor", Title: "Civil engineer, consulting", Email: "john.taylor@acme.com"},
	{ID: "EMP0003", Name: "Erica Mcclain", Title: "Chartered loss adjuster", Email: "erica.mcclain@acme.com"},
	{ID: "EMP0004", Name: "Brittany Johnson", Title: "Chief Financial Officer", Email: "brittany.johnson@acme.com"},
	{ID: "EMP0005", Name: "Jeffery Wagner", Title: "Aid worker", Email: "jeffery.wagner@acme.com"},
}

// DemoSeeds returns the built-in five-record demo set. Each call returns a
// fresh copy.
func DemoSeeds() SeedProvider {
	return SeedFunc(func(context.Context) ([]profile.Profile, error) {
		out := make([]profile.Profile, len(demoProfiles))
		copy(out, demoProfiles)
		return out, nil
	})
}

// NoSeeds leaves an empty collection empty.
func NoSeeds() SeedProvider {
	return SeedFunc(func(context.Context) ([]profile.Profile, error) {
		return nil, nil
	})
}

// FileSeeds loads seed records from a YAML file of the form:
//
//	profiles:
//	  - id: EMP0001
//	    name: Danielle Johnson
//	    title: Haematologist
//	    email: danielle.johnson@acme.com
type FileSeeds struct {
	Path string
}

type seedFile struct {
	Profiles []profile.Profile `yaml:"profiles"`
}

// Seeds reads and validates the file. Every record needs a non-empty id and
// ids must be unique within the file.
func (f FileSeeds) Seeds(ctx context.Context) ([]profile.Profile, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var sf seedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", f.Path, err)
	}

	seen := make(map[string]int, len(sf.Profiles))
	for i, p := range sf.Profiles {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("seed file %s: profiles[%d]: %w", f.Path, i, err)
		}
		if j, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("seed file %s: profiles[%d]: duplicate id %q (first at profiles[%d])", f.Path, i, p.ID, j)
		}
		seen[p.ID] = i
	}
	return sf.Profiles, nil
}
