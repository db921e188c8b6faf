// Package profile builds a candidate or company profile incrementally. Until
// the first save the profile is a draft held locally; after that every
// sub-resource edit goes to the backend first.
package profile

import (
	"sort"
	"strings"
)

type ParentKind string

const (
	ParentCandidate ParentKind = "candidate"
	ParentCompany   ParentKind = "company"
)

func ParseParentKind(raw string) (ParentKind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "candidate", "candidates":
		return ParentCandidate, true
	case "company", "companies":
		return ParentCompany, true
	default:
		return "", false
	}
}

// Path is the collection path of the parent resource.
func (k ParentKind) Path() string {
	if k == ParentCompany {
		return "companies"
	}
	return "candidates"
}

type SubKind string

const (
	SubSkills         SubKind = "skills"
	SubEducations     SubKind = "educations"
	SubExperiences    SubKind = "experiences"
	SubCertifications SubKind = "certifications"
)

var subKinds = []SubKind{SubSkills, SubEducations, SubExperiences, SubCertifications}

func SubKinds() []SubKind {
	return append([]SubKind(nil), subKinds...)
}

func ParseSubKind(raw string) (SubKind, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	for _, k := range subKinds {
		if v == string(k) || v+"s" == string(k) {
			return k, true
		}
	}
	return "", false
}

// Payload is the user-entered content of a sub-resource, keyed by JSON field
// name.
type Payload map[string]string

func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func (p Payload) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type SubResource struct {
	LocalKey string  `json:"local_key"`
	RemoteID *string `json:"remote_id,omitempty"`
	Payload  Payload `json:"payload"`
}

func (s SubResource) Persisted() bool {
	return s.RemoteID != nil
}

func (s SubResource) Clone() SubResource {
	out := s
	if s.RemoteID != nil {
		id := *s.RemoteID
		out.RemoteID = &id
	}
	out.Payload = s.Payload.Clone()
	return out
}

type Draft struct {
	Kind        ParentKind                `json:"kind"`
	ID          *string                   `json:"id,omitempty"`
	Fields      map[string]string         `json:"fields"`
	Collections map[SubKind][]SubResource `json:"collections"`
	UpdatedAt   string                    `json:"updated_at,omitempty"`
}

func NewDraft(kind ParentKind) Draft {
	d := Draft{
		Kind:        kind,
		Fields:      map[string]string{},
		Collections: map[SubKind][]SubResource{},
	}
	for _, k := range subKinds {
		d.Collections[k] = []SubResource{}
	}
	return d
}

func (d Draft) Saved() bool {
	return d.ID != nil && *d.ID != ""
}

func (d Draft) Clone() Draft {
	out := d
	if d.ID != nil {
		id := *d.ID
		out.ID = &id
	}
	out.Fields = make(map[string]string, len(d.Fields))
	for k, v := range d.Fields {
		out.Fields[k] = v
	}
	out.Collections = make(map[SubKind][]SubResource, len(d.Collections))
	for _, k := range subKinds {
		src := d.Collections[k]
		dst := make([]SubResource, 0, len(src))
		for _, s := range src {
			dst = append(dst, s.Clone())
		}
		out.Collections[k] = dst
	}
	return out
}

func (d Draft) find(kind SubKind, localKey string) (int, bool) {
	for i, s := range d.Collections[kind] {
		if s.LocalKey == localKey {
			return i, true
		}
	}
	return -1, false
}
