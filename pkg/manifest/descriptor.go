package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/addonbump/addonbump/pkg/types"
)

const (
	// PrimaryDescriptor carries the image reference, the pinned version and
	// the selection policy.
	PrimaryDescriptor = "updater.json"
	changelogFile     = "CHANGELOG.md"
)

var (
	configDescriptors = []string{"config.json", "config.yaml", "config.yml"}
	buildDescriptors  = []string{"build.json", "build.yaml", "build.yml"}
	buildVersionArgs  = []string{"BUILD_VERSION", "BUILD_UPSTREAM", "UPSTREAM_VERSION"}
)

// flexBool accepts JSON booleans as well as "true"/"false" strings, which
// hand-edited descriptors use interchangeably.
type flexBool struct {
	set bool
	val bool
}

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean %s", data)
	}
	b.set, b.val = true, v
	return nil
}

func (b flexBool) or(def bool) bool {
	if b.set {
		return b.val
	}
	return def
}

// flexInt accepts numbers and numeric strings.
type flexInt struct {
	set bool
	val int
}

func (i *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer %s", data)
	}
	i.set, i.val = true, v
	return nil
}

// updaterDescriptor is the typed form of updater.json.
type updaterDescriptor struct {
	Slug            string   `json:"slug"`
	Image           string   `json:"image"`
	UpstreamVersion string   `json:"upstream_version"`
	Registry        string   `json:"registry"`
	FloatingAlias   string   `json:"floating_alias"`
	ExcludeFloating flexBool `json:"exclude_floating"`
	VersionFilter   flexBool `json:"version_filter"`
	TagFilter       string   `json:"tag_filter"`
	TagExclude      string   `json:"tag_exclude"`
	Prerelease      flexBool `json:"prerelease"`
	ByDate          flexBool `json:"by_date"`
	ListSize        flexInt  `json:"list_size"`
	Paused          flexBool `json:"paused"`
	LastUpdate      string   `json:"last_update"`
}

func parseUpdater(data []byte) (*updaterDescriptor, error) {
	var d updaterDescriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", PrimaryDescriptor, err)
	}
	d.UpstreamVersion = strings.TrimSpace(d.UpstreamVersion)
	d.Image = strings.TrimSpace(d.Image)
	return &d, nil
}

func (d *updaterDescriptor) policy() types.SelectionPolicy {
	p := types.DefaultPolicy()
	if d.FloatingAlias != "" {
		p.FloatingAlias = d.FloatingAlias
	}
	p.ExcludeFloating = d.ExcludeFloating.or(p.ExcludeFloating)
	p.VersionFilter = d.VersionFilter.or(p.VersionFilter)
	p.TagFilter = d.TagFilter
	p.TagExclude = d.TagExclude
	p.Prerelease = d.Prerelease.or(false)
	p.ByDate = d.ByDate.or(false)
	if d.ListSize.set && d.ListSize.val > 0 {
		p.ListSize = d.ListSize.val
	}
	return p
}

// configDescriptor is the user-facing add-on config. JSON is valid YAML,
// so both spellings decode through yaml.v3.
type configDescriptor struct {
	Version string `yaml:"version"`
}

type buildDescriptor struct {
	Args map[string]string `yaml:"args"`
}

func parseConfig(data []byte) (*configDescriptor, error) {
	var d configDescriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	d.Version = strings.TrimSpace(d.Version)
	return &d, nil
}

func parseBuild(data []byte) (*buildDescriptor, error) {
	var d buildDescriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *buildDescriptor) version() string {
	for _, key := range buildVersionArgs {
		if v := strings.TrimSpace(d.Args[key]); v != "" {
			return v
		}
	}
	return ""
}

// versionIn extracts the version field of the descriptor stored at name.
func versionIn(name string, data []byte) (string, error) {
	switch {
	case name == PrimaryDescriptor:
		d, err := parseUpdater(data)
		if err != nil {
			return "", err
		}
		return d.UpstreamVersion, nil
	case isOneOf(name, configDescriptors):
		d, err := parseConfig(data)
		if err != nil {
			return "", fmt.Errorf("parsing %s: %w", name, err)
		}
		return d.Version, nil
	case isOneOf(name, buildDescriptors):
		d, err := parseBuild(data)
		if err != nil {
			return "", fmt.Errorf("parsing %s: %w", name, err)
		}
		return d.version(), nil
	}
	return "", fmt.Errorf("%s is not a known descriptor", name)
}

func isOneOf(name string, names []string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
