// Package profile expands named profiles into the ordered list of task
// names a build should register.
package profile

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnknownProfile = errors.New("unknown profile")
	ErrCyclicProfile  = errors.New("cyclic profile reference")
)

// Uses lists profiles whose tasks are imported around a profile's own.
type Uses struct {
	Before []string `json:"before,omitempty"`
	After  []string `json:"after,omitempty"`
}

// Profile is a named, ordered composition of tasks.
type Profile struct {
	Description string   `json:"description,omitempty"`
	Tasks       []string `json:"tasks"`
	Uses        Uses     `json:"uses,omitempty"`
}

// Catalog maps profile names to profiles.
type Catalog map[string]Profile

// Names returns the catalog profile names in sorted order.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownProfileError reports a profile name missing from the catalog.
type UnknownProfileError struct {
	Name  string
	Known []string
}

func (e *UnknownProfileError) Error() string {
	return fmt.Sprintf("there is no profile with the name '%s', expecting: (%s)", e.Name, strings.Join(e.Known, ", "))
}

// Is matches ErrUnknownProfile.
func (e *UnknownProfileError) Is(target error) bool {
	return target == ErrUnknownProfile
}

// CyclicProfileError reports a profile that uses itself, directly or
// through other profiles. Path starts and ends with the repeated profile.
type CyclicProfileError struct {
	Path []string
}

func (e *CyclicProfileError) Error() string {
	return fmt.Sprintf("cyclic profile reference: %s", strings.Join(e.Path, " -> "))
}

// Is matches ErrCyclicProfile.
func (e *CyclicProfileError) Is(target error) bool {
	return target == ErrCyclicProfile
}
