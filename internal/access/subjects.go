package access

import (
	"sort"
	"strings"
)

// Symbolic subjects.
const (
	SubjectPublic        = "public"
	SubjectAuthenticated = "authenticatedUser"
	SubjectVerified      = "verifiedUser"
)

// Person is an identity claim from the caller's session.
type Person struct {
	Subject              string
	Verified             bool
	IsMemberOf           []string
	EquivalentIdentities []string
}

// Group is a group claim from the caller's session.
type Group struct {
	Subject   string
	HasMember []string
}

// ClaimGraph holds the decoded persons and groups that came with a credential.
type ClaimGraph struct {
	Persons []Person
	Groups  []Group
}

// index maps subjects to their person and group claims. When a subject
// is claimed more than once the first claim wins.
func (g *ClaimGraph) index() (map[string]*Person, map[string]*Group) {
	persons := make(map[string]*Person, len(g.Persons))
	for i := range g.Persons {
		if _, ok := persons[g.Persons[i].Subject]; !ok {
			persons[g.Persons[i].Subject] = &g.Persons[i]
		}
	}
	groups := make(map[string]*Group, len(g.Groups))
	for i := range g.Groups {
		if _, ok := groups[g.Groups[i].Subject]; !ok {
			groups[g.Groups[i].Subject] = &g.Groups[i]
		}
	}
	return persons, groups
}

// Credential is an identity that has already been authenticated by the
// transport layer. A nil *Credential is an anonymous caller.
type Credential struct {
	Subject string
	Claims  *ClaimGraph
}

// SubjectSet is the set of effective subjects held by a caller.
type SubjectSet struct {
	primary string
	members map[string]struct{}
}

// NewSubjectSet builds a set with an optional primary subject.
func NewSubjectSet(primary string, subjects ...string) SubjectSet {
	s := SubjectSet{primary: primary, members: make(map[string]struct{}, len(subjects)+1)}
	if primary != "" {
		s.members[primary] = struct{}{}
	}
	for _, subj := range subjects {
		s.members[subj] = struct{}{}
	}
	return s
}

// Primary returns the primary subject, or "public" for anonymous callers.
func (s SubjectSet) Primary() string {
	if s.primary == "" {
		return SubjectPublic
	}
	return s.primary
}

func (s SubjectSet) Contains(subject string) bool {
	_, ok := s.members[subject]
	return ok
}

func (s SubjectSet) Len() int { return len(s.members) }

// Sorted returns the subjects in lexical order.
func (s SubjectSet) Sorted() []string {
	out := make([]string, 0, len(s.members))
	for subj := range s.members {
		out = append(out, subj)
	}
	sort.Strings(out)
	return out
}

// Intersects reports whether any subject in s is also in other.
func (s SubjectSet) Intersects(other []string) bool {
	for _, subj := range other {
		if s.Contains(subj) {
			return true
		}
	}
	return false
}

func (s SubjectSet) add(subject string) bool {
	if _, ok := s.members[subject]; ok {
		return false
	}
	s.members[subject] = struct{}{}
	return true
}

// Format lists the subjects for failure messages, primary first.
func (s SubjectSet) Format() string {
	parts := []string{s.Primary() + " (primary)"}
	for _, subj := range s.Sorted() {
		if subj != s.primary {
			parts = append(parts, subj)
		}
	}
	return strings.Join(parts, ", ")
}

// ResolveEffectiveSubjects expands a credential into the full set of
// subjects the caller holds. Claims are followed breadth-first through
// person memberships, equivalent identities and group members; each
// subject is expanded at most once, so cyclic claims terminate.
func ResolveEffectiveSubjects(cred *Credential) SubjectSet {
	if cred == nil || cred.Subject == "" {
		return NewSubjectSet("", SubjectPublic)
	}
	set := NewSubjectSet("", SubjectPublic, SubjectAuthenticated)
	set.primary = cred.Subject
	if cred.Claims == nil {
		set.add(cred.Subject)
		return set
	}

	persons, groups := cred.Claims.index()
	visited := make(map[string]struct{})
	queue := []string{cred.Subject}
	for len(queue) > 0 {
		subject := queue[0]
		queue = queue[1:]
		if _, seen := visited[subject]; seen {
			continue
		}
		visited[subject] = struct{}{}
		set.add(subject)

		if p := persons[subject]; p != nil {
			if p.Verified {
				set.add(SubjectVerified)
			}
			queue = append(queue, p.IsMemberOf...)
			queue = append(queue, p.EquivalentIdentities...)
		}
		if g := groups[subject]; g != nil {
			queue = append(queue, g.HasMember...)
		}
	}
	return set
}
