// Package profile describes the capture flows the wizard can run. A profile
// replaces a hand-written wizard: it names the slots to fill, the fixed crop
// ratio and the output raster width.
package profile

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var builtinYAML []byte

const (
	MinAspectRatio = 0.1
	MaxAspectRatio = 10.0
	DefaultWidth   = 1200
)

// Profile configures one capture flow.
type Profile struct {
	Name         string            `yaml:"name" json:"name"`
	Title        string            `yaml:"title" json:"title"`
	Slots        []string          `yaml:"slots" json:"slots"`
	AspectRatio  float64           `yaml:"aspect_ratio" json:"aspect_ratio"`
	OutputWidth  int               `yaml:"output_width" json:"output_width"`
	SampleImages map[string]string `yaml:"sample_images,omitempty" json:"sample_images,omitempty"`
}

// OutputHeight is the raster height that keeps OutputWidth at AspectRatio.
func (p Profile) OutputHeight() int {
	h := int(math.Round(float64(p.OutputWidth) / p.AspectRatio))
	if h < 1 {
		return 1
	}
	return h
}

// HasSlot reports whether name is declared by the profile.
func (p Profile) HasSlot(name string) bool {
	return p.SlotIndex(name) >= 0
}

// SlotIndex returns the position of name, or -1.
func (p Profile) SlotIndex(name string) int {
	for i, s := range p.Slots {
		if s == name {
			return i
		}
	}
	return -1
}

// Validate checks the profile is usable by the crop engine and coordinator.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("profile name is required")
	}
	if len(p.Slots) == 0 {
		return fmt.Errorf("profile %q declares no slots", p.Name)
	}
	seen := make(map[string]bool, len(p.Slots))
	for _, s := range p.Slots {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("profile %q has an empty slot name", p.Name)
		}
		if seen[s] {
			return fmt.Errorf("profile %q declares slot %q twice", p.Name, s)
		}
		seen[s] = true
	}
	if p.AspectRatio < MinAspectRatio || p.AspectRatio > MaxAspectRatio || math.IsNaN(p.AspectRatio) {
		return fmt.Errorf("profile %q aspect ratio %g outside [%g, %g]", p.Name, p.AspectRatio, MinAspectRatio, MaxAspectRatio)
	}
	if p.OutputWidth <= 0 {
		return fmt.Errorf("profile %q output width must be > 0", p.Name)
	}
	return nil
}

type document struct {
	Profiles []Profile `yaml:"profiles"`
}

// Catalog is an immutable name → profile lookup.
type Catalog struct {
	profiles map[string]Profile
}

// Parse decodes a YAML profile document.
func Parse(data []byte) ([]Profile, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	for i := range doc.Profiles {
		if doc.Profiles[i].OutputWidth == 0 {
			doc.Profiles[i].OutputWidth = DefaultWidth
		}
		if err := doc.Profiles[i].Validate(); err != nil {
			return nil, err
		}
	}
	return doc.Profiles, nil
}

// Builtin returns the catalog shipped with the binary.
func Builtin() *Catalog {
	profiles, err := Parse(builtinYAML)
	if err != nil {
		panic(fmt.Sprintf("builtin profiles are invalid: %v", err))
	}
	return NewCatalog(profiles...)
}

// Load returns the builtin catalog overlaid with profiles from path.
// An empty path yields the builtin catalog.
func Load(path string) (*Catalog, error) {
	cat := Builtin()
	if path == "" {
		return cat, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles file: %w", err)
	}
	extra, err := Parse(data)
	if err != nil {
		return nil, err
	}
	for _, p := range extra {
		cat.profiles[p.Name] = p
	}
	return cat, nil
}

// NewCatalog builds a catalog; later profiles replace earlier ones with the same name.
func NewCatalog(profiles ...Profile) *Catalog {
	c := &Catalog{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		c.profiles[p.Name] = p
	}
	return c
}

// Get looks a profile up by name.
func (c *Catalog) Get(name string) (Profile, bool) {
	p, ok := c.profiles[name]
	return p, ok
}

// List returns profiles sorted by name.
func (c *Catalog) List() []Profile {
	out := make([]Profile, 0, len(c.profiles))
	for _, p := range c.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
