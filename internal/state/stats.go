package state

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"lms-migrate/internal/domain"
	"lms-migrate/internal/errors"
	"lms-migrate/internal/store"
)

// Outcome is what happened to one entity during an import.
type Outcome string

const (
	OutcomeCreated     Outcome = "created"
	OutcomeUpdated     Outcome = "updated"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeWouldCreate Outcome = "would_create"
	OutcomeErrored     Outcome = "errored"
)

// Result is the per-entity result the importer hands to the aggregator.
type Result struct {
	Kind    domain.Kind
	OldID   int64
	NewID   int64
	Outcome Outcome
	Orphan  bool
	Err     error
}

type KindStats struct {
	Created     int `json:"created"`
	Updated     int `json:"updated"`
	Skipped     int `json:"skipped"`
	WouldCreate int `json:"would_create"`
	Orphaned    int `json:"orphaned"`
	Errored     int `json:"errored"`
}

type CommerceStats struct {
	Linked       int `json:"linked"`
	Unchanged    int `json:"unchanged"`
	NoProduct    int `json:"no_product"`
	ButtonSynced int `json:"button_synced"`
	Downgraded   int `json:"downgraded"`
}

// RunStats are the counters of one run. They are overwritten by every run
// and persisted for display.
type RunStats struct {
	RunID      string    `json:"run_id"`
	Command    string    `json:"command"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DryRun     bool      `json:"dry_run"`
	Recheck    bool      `json:"recheck"`
	Payload    string    `json:"payload,omitempty"`
	LogPath    string    `json:"log_path,omitempty"`

	Kinds    map[domain.Kind]*KindStats `json:"kinds"`
	Commerce CommerceStats              `json:"commerce"`

	MediaAttached int `json:"media_attached"`
	MediaFailed   int `json:"media_failed"`
	Enrollments   int `json:"enrollments_deferred"`

	// Counts is the source-side conservation table carried from the export.
	Counts map[domain.Kind]domain.KindCount `json:"counts,omitempty"`
	Issues []domain.Issue                   `json:"issues"`
}

func NewRunStats(runID, command string) *RunStats {
	return &RunStats{
		RunID:     runID,
		Command:   command,
		StartedAt: time.Now().UTC(),
		Kinds:     map[domain.Kind]*KindStats{},
		Issues:    []domain.Issue{},
	}
}

// Kind returns the counters of k, creating them on first use.
func (s *RunStats) Kind(k domain.Kind) *KindStats {
	ks := s.Kinds[k]
	if ks == nil {
		ks = &KindStats{}
		s.Kinds[k] = ks
	}
	return ks
}

// Add folds one entity result into the counters. Errors also become issues.
func (s *RunStats) Add(r Result) {
	ks := s.Kind(r.Kind)
	switch r.Outcome {
	case OutcomeCreated:
		ks.Created++
	case OutcomeUpdated:
		ks.Updated++
	case OutcomeSkipped:
		ks.Skipped++
	case OutcomeWouldCreate:
		ks.WouldCreate++
	case OutcomeErrored:
		ks.Errored++
	}
	if r.Orphan && r.Outcome != OutcomeErrored {
		ks.Orphaned++
	}
	if r.Err != nil {
		s.Issue(r.Kind, r.OldID, r.Err)
	}
}

// Issue records a recovered failure.
func (s *RunStats) Issue(k domain.Kind, oldID int64, err error) {
	s.Issues = append(s.Issues, domain.Issue{Kind: k, OldID: oldID, Class: errors.Class(err), Message: err.Error()})
}

// Errored is the total number of entities that failed.
func (s *RunStats) Errored() int {
	n := 0
	for _, ks := range s.Kinds {
		n += ks.Errored
	}
	return n
}

// SortedKinds lists the kinds with counters in a stable order.
func (s *RunStats) SortedKinds() []domain.Kind {
	order := map[domain.Kind]int{}
	for i, k := range append(append([]domain.Kind(nil), domain.ContentKinds...), domain.KindMedia) {
		order[k] = i
	}
	out := make([]domain.Kind, 0, len(s.Kinds))
	for k := range s.Kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		oi, iok := order[out[i]]
		oj, jok := order[out[j]]
		if iok != jok {
			return iok
		}
		if oi != oj {
			return oi < oj
		}
		return out[i] < out[j]
	})
	return out
}

func SaveRunStats(ctx context.Context, kv store.KV, s *RunStats) error {
	if err := kv.Set(ctx, KeyRunStats, s); err != nil {
		return errors.Wrap(err, "save run stats")
	}
	return nil
}

// LoadRunStats returns the stats of the last run, or nil when none was saved.
func LoadRunStats(ctx context.Context, kv store.KV) (*RunStats, error) {
	var s RunStats
	ok, err := kv.Get(ctx, KeyRunStats, &s)
	if err != nil {
		return nil, errors.Wrap(err, "load run stats")
	}
	if !ok {
		return nil, nil
	}
	if s.Kinds == nil {
		s.Kinds = map[domain.Kind]*KindStats{}
	}
	return &s, nil
}

// Enrollments is the deferred enrollment pool, keyed by course old ID.
// Values are stored verbatim for a later enrollment migration.
type Enrollments struct {
	kv store.KV
}

func NewEnrollments(kv store.KV) *Enrollments {
	return &Enrollments{kv: kv}
}

func (e *Enrollments) Stash(ctx context.Context, courseOldID int64, raw json.RawMessage) error {
	pool, err := e.All(ctx)
	if err != nil {
		return err
	}
	pool[key(courseOldID)] = raw
	if err := e.kv.Set(ctx, KeyEnrollments, pool); err != nil {
		return errors.Wrap(err, "save deferred enrollments")
	}
	return nil
}

func (e *Enrollments) All(ctx context.Context) (map[string]json.RawMessage, error) {
	pool := map[string]json.RawMessage{}
	if _, err := e.kv.Get(ctx, KeyEnrollments, &pool); err != nil {
		return nil, errors.Wrap(err, "load deferred enrollments")
	}
	if pool == nil {
		pool = map[string]json.RawMessage{}
	}
	return pool, nil
}
