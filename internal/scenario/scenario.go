// Package scenario holds the named load scenarios and the runner that
// launches a load test for each of them.
package scenario

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Errors returned by the scenario package.
var (
	// ErrUnknownScenario is returned when a scenario name is not in the table.
	ErrUnknownScenario = errors.New("scenario: unknown scenario")
	// ErrInvalidScenario is returned when a scenario definition is invalid.
	ErrInvalidScenario = errors.New("scenario: invalid configuration")
	// ErrSubprocessFailed is returned when the load test process fails.
	ErrSubprocessFailed = errors.New("scenario: load test failed")
)

// Descriptor is one named load level.
type Descriptor struct {
	// Name is the unique identifier for this scenario.
	Name string `yaml:"name" json:"name"`

	// Users is the number of simulated users.
	Users int `yaml:"users" json:"users"`

	// SpawnRate is the number of users started per second.
	SpawnRate int `yaml:"spawn_rate" json:"spawn_rate"`

	// Duration is the run time in the load tool's notation (e.g. "5m").
	Duration string `yaml:"duration" json:"duration"`

	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Validate validates the scenario definition.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidScenario)
	}
	if d.Name == "all" {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidScenario, d.Name)
	}
	if d.Users <= 0 {
		return fmt.Errorf("%w: %s: users must be positive", ErrInvalidScenario, d.Name)
	}
	if d.SpawnRate <= 0 {
		return fmt.Errorf("%w: %s: spawn rate must be positive", ErrInvalidScenario, d.Name)
	}
	dur, err := time.ParseDuration(d.Duration)
	if err != nil {
		return fmt.Errorf("%w: %s: duration: %v", ErrInvalidScenario, d.Name, err)
	}
	if dur <= 0 {
		return fmt.Errorf("%w: %s: duration must be positive", ErrInvalidScenario, d.Name)
	}
	return nil
}

// Defaults returns the built-in scenarios in run order.
func Defaults() []Descriptor {
	return []Descriptor{
		{Name: "light", Users: 10, SpawnRate: 2, Duration: "5m", Description: "Light load - 10 users, basic operations"},
		{Name: "medium", Users: 50, SpawnRate: 5, Duration: "15m", Description: "Medium load - 50 users, mixed operations"},
		{Name: "heavy", Users: 100, SpawnRate: 10, Duration: "30m", Description: "Heavy load - 100 users, intensive operations"},
		{Name: "stress", Users: 200, SpawnRate: 20, Duration: "10m", Description: "Stress test - 200 users, find breaking point"},
	}
}

// File is the YAML layout of a scenario table.
type File struct {
	// Version is the scenario file format version.
	Version string `yaml:"version,omitempty" json:"version,omitempty"`

	// Scenarios are kept in file order.
	Scenarios []Descriptor `yaml:"scenarios" json:"scenarios"`
}

// Table is an ordered, read-only set of scenarios.
type Table struct {
	scenarios []Descriptor
	index     map[string]int
}

// NewTable validates the descriptors and keeps their order.
func NewTable(scenarios []Descriptor) (*Table, error) {
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("%w: no scenarios", ErrInvalidScenario)
	}
	t := &Table{
		scenarios: make([]Descriptor, 0, len(scenarios)),
		index:     make(map[string]int, len(scenarios)),
	}
	for i, d := range scenarios {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("scenario[%d]: %w", i, err)
		}
		if _, dup := t.index[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate scenario %q", ErrInvalidScenario, d.Name)
		}
		t.index[d.Name] = len(t.scenarios)
		t.scenarios = append(t.scenarios, d)
	}
	return t, nil
}

// DefaultTable returns the built-in table.
func DefaultTable() *Table {
	t, err := NewTable(Defaults())
	if err != nil {
		panic(err)
	}
	return t
}

// LoadFile loads a table from a YAML file.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing scenario file: %w", err)
	}
	return NewTable(file.Scenarios)
}

// Get looks a scenario up by name.
func (t *Table) Get(name string) (Descriptor, bool) {
	i, ok := t.index[name]
	if !ok {
		return Descriptor{}, false
	}
	return t.scenarios[i], true
}

// Names returns the scenario names in table order.
func (t *Table) Names() []string {
	names := make([]string, len(t.scenarios))
	for i, d := range t.scenarios {
		names[i] = d.Name
	}
	return names
}

// All returns the scenarios in table order.
func (t *Table) All() []Descriptor {
	return append([]Descriptor(nil), t.scenarios...)
}

// Len returns the number of scenarios.
func (t *Table) Len() int {
	return len(t.scenarios)
}

func (t *Table) String() string {
	return strings.Join(t.Names(), ", ")
}
