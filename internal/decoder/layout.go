package decoder

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultMarker separates the identifier prefix from the body.
const DefaultMarker = "DEKU Inspect: "

// Role names what a bracketed prefix identifier carries.
type Role string

const (
	// RoleTime is the device timestamp.
	RoleTime Role = "time"
	// RoleIteration is the outer iteration identifier.
	RoleIteration Role = "iteration"
	// RoleTrial is the emitted trial identifier.
	RoleTrial Role = "trial"
)

// Layout describes the bracketed prefix of a protocol revision.
type Layout struct {
	Roles  []Role
	Marker string
}

// LayoutWithIdentifiers returns the preset layout for a prefix of n brackets:
// 1 is [time] (legacy), 2 is [time][trial], 3 is [time][iteration][trial].
func LayoutWithIdentifiers(n int) (Layout, error) {
	switch n {
	case 1:
		return Layout{Roles: []Role{RoleTime}, Marker: DefaultMarker}, nil
	case 2:
		return Layout{Roles: []Role{RoleTime, RoleTrial}, Marker: DefaultMarker}, nil
	case 3:
		return Layout{Roles: []Role{RoleTime, RoleIteration, RoleTrial}, Marker: DefaultMarker}, nil
	default:
		return Layout{}, fmt.Errorf("unsupported identifier count %d", n)
	}
}

// DefaultLayout is the two-identifier target revision.
func DefaultLayout() Layout {
	l, _ := LayoutWithIdentifiers(2)
	return l
}

// ParseLayout builds a Layout from role names as they appear in config.
func ParseLayout(roles []string) (Layout, error) {
	if len(roles) == 0 {
		return DefaultLayout(), nil
	}
	l := Layout{Marker: DefaultMarker}
	for _, r := range roles {
		l.Roles = append(l.Roles, Role(strings.ToLower(strings.TrimSpace(r))))
	}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

// Validate checks that every role is known, appears at most once, and that
// a time role is present.
func (l Layout) Validate() error {
	if len(l.Roles) == 0 {
		return fmt.Errorf("layout has no identifiers")
	}
	seen := make(map[Role]bool, len(l.Roles))
	for _, r := range l.Roles {
		switch r {
		case RoleTime, RoleIteration, RoleTrial:
		default:
			return fmt.Errorf("unknown identifier role %q", r)
		}
		if seen[r] {
			return fmt.Errorf("duplicate identifier role %q", r)
		}
		seen[r] = true
	}
	if !seen[RoleTime] {
		return fmt.Errorf("layout has no %s identifier", RoleTime)
	}
	return nil
}

// HasTrialID reports whether lines carry an emitted trial id. Layouts
// without one need structural correlation.
func (l Layout) HasTrialID() bool {
	for _, r := range l.Roles {
		if r == RoleTrial {
			return true
		}
	}
	return false
}

// String renders the layout the way it appears on the wire, e.g. "[time][trial]".
func (l Layout) String() string {
	var b strings.Builder
	for _, r := range l.Roles {
		b.WriteString("[")
		b.WriteString(string(r))
		b.WriteString("]")
	}
	return b.String()
}

// pattern compiles the line regex for the layout. Group i+1 holds the i-th
// identifier and the last group holds the body. The match is not anchored
// at the start so a foreign prefix such as the kernel's own timestamp is
// tolerated.
func (l Layout) pattern() (*regexp.Regexp, error) {
	marker := l.Marker
	if marker == "" {
		marker = DefaultMarker
	}
	var b strings.Builder
	for range l.Roles {
		b.WriteString(`\[\s*([^\]]*?)\s*\]\s*`)
	}
	b.WriteString(regexp.QuoteMeta(marker))
	b.WriteString(`(.*)$`)
	return regexp.Compile(b.String())
}
