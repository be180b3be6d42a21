package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"lms-migrate/internal/errors"
)

// PayloadVersion is bumped whenever the serialized snapshot changes shape.
const PayloadVersion = 1

// Payload is the serialized snapshot handed from export to import.
type Payload struct {
	ExportMeta ExportMeta  `json:"export_meta"`
	Courses    []Course    `json:"courses"`
	Taxonomies Taxonomies  `json:"taxonomies"`
	Orphans    Orphans     `json:"orphans"`
	Analysis   Analysis    `json:"analysis"`
	Mode       ExportMode  `json:"mode"`
	Stats      ExportStats `json:"stats"`
}

type ExportMeta struct {
	Version     int       `json:"version"`
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Source      string    `json:"source"`
	Scope       Scope     `json:"scope"`
}

type Taxonomies struct {
	Categories []Term `json:"category"`
	Tags       []Term `json:"tag"`
}

type Orphans struct {
	Units        []Unit        `json:"units"`
	Quizzes      []Quiz        `json:"quizzes"`
	Assignments  []Assignment  `json:"assignments"`
	Certificates []Certificate `json:"certificates"`
}

type ExportStats struct {
	Courses      int `json:"courses"`
	Units        int `json:"units"`
	Quizzes      int `json:"quizzes"`
	Questions    int `json:"questions"`
	Assignments  int `json:"assignments"`
	Certificates int `json:"certificates"`
	Media        int `json:"media"`
	Orphans      int `json:"orphans"`
}

// Analysis is the reconciliation report carried alongside the graph.
type Analysis struct {
	Counts      map[Kind]KindCount          `json:"counts"`
	Reported    []OrphanEntry               `json:"reported"`
	Suppressed  []OrphanEntry               `json:"suppressed"`
	MissingRefs []OrphanEntry               `json:"missing_refs"`
	Traces      map[string][]TraceEntry     `json:"traces"`
	Discovery   map[string]DiscoveryChannel `json:"discovery"`
	Issues      []Issue                     `json:"issues"`
}

// KindCount is one row of the conservation check.
// Checked is false when the classifier was bypassed (strict mode).
type KindCount struct {
	Total      int  `json:"total"`
	Linked     int  `json:"linked"`
	Reported   int  `json:"reported"`
	Suppressed int  `json:"suppressed"`
	Checked    bool `json:"checked"`
	OK         bool `json:"ok"`
}

func (c KindCount) Orphans() int { return c.Reported + c.Suppressed }

// OrphanEntry records one unreachable entity, or one dangling reference
// when Reason is id_not_found.
type OrphanEntry struct {
	Kind        Kind         `json:"entity_kind"`
	OldID       int64        `json:"old_id"`
	Reason      OrphanReason `json:"reason"`
	ParentOldID int64        `json:"parent_old_id,omitempty"`
}

// TraceTag classifies a non-actionable curriculum entry.
type TraceTag string

const (
	TraceTitle     TraceTag = "title"
	TraceNotFound  TraceTag = "not_found"
	TraceOtherType TraceTag = "other_type"
	TraceDuplicate TraceTag = "duplicate"
)

type TraceEntry struct {
	Raw          string   `json:"raw"`
	Tag          TraceTag `json:"tag"`
	OldID        int64    `json:"old_id,omitempty"`
	ResolvedType string   `json:"resolved_type,omitempty"`
}

// DiscoveryChannel counts the quizzes each discovery channel found for a course.
type DiscoveryChannel struct {
	Curriculum int `json:"curriculum"`
	BackRef    int `json:"back_ref"`
	Both       int `json:"both"`
	Union      int `json:"union"`
}

// Issue is a recovered, reportable condition.
type Issue struct {
	Kind    Kind   `json:"kind,omitempty"`
	OldID   int64  `json:"old_id,omitempty"`
	Class   string `json:"class"`
	Message string `json:"message"`
}

// Scope is the operator-declared set of top-level courses: all of them, or
// an explicit ID list. It serializes as "all" or as a JSON array.
type Scope struct {
	All bool
	IDs []int64
}

func AllScope() Scope { return Scope{All: true} }

// ParseScope accepts "all", "" (same as all) or a comma separated ID list.
func ParseScope(s string) (Scope, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return AllScope(), nil
	}
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return Scope{}, errors.Newf("invalid scope id %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return AllScope(), nil
	}
	return Scope{IDs: ids}, nil
}

func (s Scope) Contains(id int64) bool {
	if s.All {
		return true
	}
	for _, v := range s.IDs {
		if v == id {
			return true
		}
	}
	return false
}

func (s Scope) String() string {
	if s.All {
		return "all"
	}
	parts := make([]string, len(s.IDs))
	for i, id := range s.IDs {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func (s Scope) MarshalJSON() ([]byte, error) {
	if s.All {
		return []byte(`"all"`), nil
	}
	ids := s.IDs
	if ids == nil {
		ids = []int64{}
	}
	return json.Marshal(ids)
}

func (s *Scope) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		parsed, err := ParseScope(str)
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	}
	var ids []int64
	if err := json.Unmarshal(b, &ids); err != nil {
		return errors.Wrap(err, "scope must be \"all\" or an id array")
	}
	*s = Scope{IDs: ids, All: len(ids) == 0}
	return nil
}
