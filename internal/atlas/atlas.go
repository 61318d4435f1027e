// Package atlas defines the core data model for repository discovery:
// inspection targets (Location), extracted repository metadata (Facts),
// and the persisted record of one inspection attempt (View).
//
// Locations form a closed two-variant sum: a local filesystem git
// directory or a network address. The variant set is fixed; code that
// consumes locations switches exhaustively on Kind.
package atlas

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Kind discriminates the two Location variants.
type Kind string

const (
	// KindFs is a git directory on the local filesystem.
	KindFs Kind = "fs"

	// KindNet is a remote repository address (clone URL).
	KindNet Kind = "net"
)

// Location identifies a single inspection target. It is immutable once
// constructed and compares structurally, so it is usable directly as a
// map key for deduplication.
type Location struct {
	Kind Kind
	// Dir is the git directory path. Set only for KindFs.
	Dir string
	// Addr is the clone address. Set only for KindNet.
	Addr string
}

// FsLocation returns a filesystem Location for the given git directory.
func FsLocation(dir string) Location {
	return Location{Kind: KindFs, Dir: dir}
}

// NetLocation returns a network Location for the given clone address.
func NetLocation(addr string) Location {
	return Location{Kind: KindNet, Addr: addr}
}

// Key returns the stable identity string used for deduplication and as
// the storage primary key component.
func (l Location) Key() string {
	switch l.Kind {
	case KindFs:
		return "fs:" + l.Dir
	case KindNet:
		return "net:" + l.Addr
	default:
		return ""
	}
}

// String returns the bare path or address, without the kind tag.
func (l Location) String() string {
	if l.Kind == KindNet {
		return l.Addr
	}
	return l.Dir
}

// Validate checks that exactly the variant-appropriate field is set.
func (l Location) Validate() error {
	switch l.Kind {
	case KindFs:
		if l.Dir == "" {
			return fmt.Errorf("fs location has empty dir")
		}
		if l.Addr != "" {
			return fmt.Errorf("fs location has addr %q", l.Addr)
		}
	case KindNet:
		if l.Addr == "" {
			return fmt.Errorf("net location has empty addr")
		}
		if l.Dir != "" {
			return fmt.Errorf("net location has dir %q", l.Dir)
		}
	default:
		return fmt.Errorf("unknown location kind %q", l.Kind)
	}
	return nil
}

// locationJSON is the storage wire format for Location.
type locationJSON struct {
	Kind Kind   `json:"kind"`
	Dir  string `json:"dir,omitempty"`
	Addr string `json:"addr,omitempty"`
}

// MarshalJSON encodes the location as {"kind":"fs","dir":...} or
// {"kind":"net","addr":...}.
func (l Location) MarshalJSON() ([]byte, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(locationJSON{Kind: l.Kind, Dir: l.Dir, Addr: l.Addr})
}

// UnmarshalJSON decodes the storage wire format.
func (l *Location) UnmarshalJSON(data []byte) error {
	var raw locationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	loc := Location{Kind: raw.Kind, Dir: raw.Dir, Addr: raw.Addr}
	if err := loc.Validate(); err != nil {
		return err
	}
	*l = loc
	return nil
}

// Branch is a named pointer (leaf commit) together with the root
// commits of its history: the zero-parent ancestors reachable from the
// leaf. Every branch with a resolvable leaf has at least one root; an
// inspection that finds a leaf but no roots is a failure, not an empty
// branch.
type Branch struct {
	Roots []string `json:"roots"`
	Leaf  string   `json:"leaf"`
}

// Validate enforces the leaf-implies-root invariant.
func (b Branch) Validate() error {
	if b.Leaf == "" {
		return fmt.Errorf("branch has empty leaf")
	}
	if len(b.Roots) == 0 {
		return fmt.Errorf("branch with leaf %s has no roots", b.Leaf)
	}
	return nil
}

// MarshalJSON encodes roots in sorted order so equal branches always
// serialize identically.
func (b Branch) MarshalJSON() ([]byte, error) {
	roots := append([]string(nil), b.Roots...)
	sort.Strings(roots)
	type alias Branch
	return json.Marshal(alias{Roots: roots, Leaf: b.Leaf})
}

// Facts is the repository metadata extracted by one successful
// inspection. Remote and branch names are unique and unordered.
type Facts struct {
	Description *string           `json:"description"`
	Bare        bool              `json:"bare"`
	Remotes     map[string]string `json:"remotes"`
	Branches    map[string]Branch `json:"branches"`
}

// Validate checks every branch invariant.
func (f *Facts) Validate() error {
	for name, branch := range f.Branches {
		if err := branch.Validate(); err != nil {
			return fmt.Errorf("branch %q: %w", name, err)
		}
	}
	return nil
}

// View records one inspection attempt for a (host, location) pair.
// Facts is nil when inspection failed; failed inspections are still
// persisted so failures are visible in storage rather than silently
// dropped.
type View struct {
	Host     string
	Location Location
	Facts    *Facts
}

// Validate checks the fields required for persistence.
func (v *View) Validate() error {
	if v.Host == "" {
		return fmt.Errorf("view has empty host")
	}
	if err := v.Location.Validate(); err != nil {
		return fmt.Errorf("view location: %w", err)
	}
	if v.Facts != nil {
		if err := v.Facts.Validate(); err != nil {
			return fmt.Errorf("view facts: %w", err)
		}
	}
	return nil
}
