// Package changeset stores the human-authored records that drive version
// bumps and moves them to the archive once released.
package changeset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ariel-frischer/bumpkit/internal/semver"
)

// ReasonType tags the variant held by a Reason.
type ReasonType string

const (
	DirectChanges       ReasonType = "DirectChanges"
	DependencyUpdate    ReasonType = "DependencyUpdate"
	DevDependencyUpdate ReasonType = "DevDependencyUpdate"
)

// Reason explains why a package is bumped. DirectChanges carries Commits;
// the dependency variants carry Dependency, OldVersion and NewVersion.
type Reason struct {
	Type       ReasonType
	Commits    []string
	Dependency string
	OldVersion string
	NewVersion string
}

// Direct builds a DirectChanges reason.
func Direct(commits ...string) Reason {
	return Reason{Type: DirectChanges, Commits: commits}
}

// ForDependency builds a DependencyUpdate (or DevDependencyUpdate when dev is
// set) reason.
func ForDependency(dep string, oldVersion, newVersion semver.Version, dev bool) Reason {
	t := DependencyUpdate
	if dev {
		t = DevDependencyUpdate
	}
	return Reason{Type: t, Dependency: dep, OldVersion: oldVersion.String(), NewVersion: newVersion.String()}
}

type directJSON struct {
	Type    ReasonType `json:"type"`
	Commits []string   `json:"commits"`
}

type dependencyJSON struct {
	Type       ReasonType `json:"type"`
	Dependency string     `json:"dependency"`
	OldVersion string     `json:"old_version"`
	NewVersion string     `json:"new_version"`
}

// MarshalJSON emits only the fields of the active variant.
func (r Reason) MarshalJSON() ([]byte, error) {
	switch r.Type {
	case DirectChanges:
		commits := r.Commits
		if commits == nil {
			commits = []string{}
		}
		return json.Marshal(directJSON{Type: r.Type, Commits: commits})
	case DependencyUpdate, DevDependencyUpdate:
		return json.Marshal(dependencyJSON{
			Type: r.Type, Dependency: r.Dependency, OldVersion: r.OldVersion, NewVersion: r.NewVersion,
		})
	default:
		return nil, fmt.Errorf("unknown reason type %q", r.Type)
	}
}

// UnmarshalJSON decodes any variant, rejecting unknown type tags.
func (r *Reason) UnmarshalJSON(data []byte) error {
	var aux struct {
		Type       ReasonType `json:"type"`
		Commits    []string   `json:"commits"`
		Dependency string     `json:"dependency"`
		OldVersion string     `json:"old_version"`
		NewVersion string     `json:"new_version"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	switch aux.Type {
	case DirectChanges:
		*r = Reason{Type: aux.Type, Commits: aux.Commits}
	case DependencyUpdate, DevDependencyUpdate:
		*r = Reason{Type: aux.Type, Dependency: aux.Dependency, OldVersion: aux.OldVersion, NewVersion: aux.NewVersion}
	default:
		return fmt.Errorf("unknown reason type %q", aux.Type)
	}
	return nil
}

// ChangeEntry is one human-readable change line.
type ChangeEntry struct {
	ChangeType  string `json:"change_type" validate:"notblank"`
	Description string `json:"description" validate:"notblank"`
	Breaking    bool   `json:"breaking"`
	Commit      string `json:"commit"`
}

// Package is the intent recorded for one package.
type Package struct {
	Name           string         `json:"name" validate:"notblank"`
	Bump           semver.Bump    `json:"bump"`
	CurrentVersion semver.Version `json:"current_version"`
	NextVersion    semver.Version `json:"next_version"`
	Reason         Reason         `json:"reason"`
	Dependency     *string        `json:"dependency"`
	Changes        []ChangeEntry  `json:"changes" validate:"dive"`
}

// EnvironmentRelease records when a changeset reached one environment.
type EnvironmentRelease struct {
	ReleasedAt time.Time `json:"released_at"`
	Tag        string    `json:"tag"`
}

// ReleaseInfo is stamped onto a changeset when it is archived.
type ReleaseInfo struct {
	AppliedAt            time.Time                     `json:"applied_at"`
	AppliedBy            string                        `json:"applied_by"`
	GitCommit            string                        `json:"git_commit"`
	EnvironmentsReleased map[string]EnvironmentRelease `json:"environments_released"`
}

// Changeset is a unit of release intent. ReleaseInfo is nil while pending.
type Changeset struct {
	Branch      string       `json:"branch" validate:"notblank"`
	CreatedAt   time.Time    `json:"created_at"`
	Author      string       `json:"author"`
	Releases    []string     `json:"releases" validate:"min=1,unique,dive,notblank"`
	Packages    []Package    `json:"packages" validate:"min=1,unique=Name,dive"`
	ReleaseInfo *ReleaseInfo `json:"release_info"`
}

// ID returns the canonical identity: sanitize(branch) + "-" + timestamp.
func (c *Changeset) ID() string {
	return ID(c.Branch, c.CreatedAt)
}

// FileName returns "{id}.json".
func (c *Changeset) FileName() string {
	return c.ID() + ".json"
}

// IsPending reports whether the changeset has not been released.
func (c *Changeset) IsPending() bool {
	return c.ReleaseInfo == nil
}

// Package returns the entry for name.
func (c *Changeset) Package(name string) (*Package, bool) {
	for i := range c.Packages {
		if c.Packages[i].Name == name {
			return &c.Packages[i], true
		}
	}
	return nil, false
}

// Marshal renders the changeset as indented JSON with a trailing newline.
func Marshal(c *Changeset) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal parses changeset JSON, rejecting unknown fields.
func Unmarshal(data []byte) (*Changeset, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var c Changeset
	if err := dec.Decode(&c); err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}
