// Package reset removes imported objects from the target LMS. Every run
// writes an audit CSV of the selection before anything is removed.
package reset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"lms-migrate/internal/domain"
	"lms-migrate/internal/errors"
	"lms-migrate/internal/export"
	"lms-migrate/internal/logger"
	"lms-migrate/internal/mappers"
	"lms-migrate/internal/state"
	"lms-migrate/internal/store"
)

// Scope selects which target objects a reset considers.
type Scope string

const (
	// ScopeImported is every object carrying a migration marker plus every
	// object the ID map points at.
	ScopeImported Scope = "imported"
	// ScopeAll is every live object of the selected kinds.
	ScopeAll Scope = "all"
)

func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeImported, "":
		return ScopeImported, nil
	case ScopeAll:
		return ScopeAll, nil
	}
	return "", errors.Newf("unknown reset scope %q (want imported or all)", s)
}

// Selection sources recorded in the audit file.
const (
	viaMarker = "marker"
	viaIDMap  = "idmap"
	viaBoth   = "both"
	viaAll    = "all"
)

type Options struct {
	Kinds []domain.Kind
	Scope Scope
	// Force deletes permanently; otherwise objects are trashed.
	Force           bool
	AlsoDeleteMedia bool
	DryRun          bool
	// ReportDir receives reset-<kind>-audit.csv.
	ReportDir string
}

type KindResult struct {
	Kind      domain.Kind `json:"kind"`
	Selected  int         `json:"selected"`
	Trashed   int         `json:"trashed"`
	Deleted   int         `json:"deleted"`
	Failed    int         `json:"failed"`
	AuditPath string      `json:"audit_path"`
}

type Result struct {
	DryRun bool           `json:"dry_run"`
	Kinds  []KindResult   `json:"kinds"`
	Issues []domain.Issue `json:"issues"`
}

// AuditPaths lists the audit files written, in kind order.
func (r *Result) AuditPaths() []string {
	out := make([]string, 0, len(r.Kinds))
	for _, k := range r.Kinds {
		out = append(out, k.AuditPath)
	}
	return out
}

// Engine never mutates the ID map; stale entries are handled by the
// importer's recheck.
type Engine struct {
	target store.Content
	ids    state.IDMapReader
	log    *logger.Logger
}

func New(target store.Content, ids state.IDMapReader, logg *logger.Logger) *Engine {
	if logg == nil {
		logg = logger.NewNop()
	}
	return &Engine{target: target, ids: ids, log: logg.With("component", "reset")}
}

// Reset selects, audits and removes objects kind by kind. It fails only
// when the selection or the audit file cannot be produced; removal
// failures are recorded as issues.
func (e *Engine) Reset(ctx context.Context, opts Options) (*Result, error) {
	if opts.Scope == "" {
		opts.Scope = ScopeImported
	}
	kinds := append([]domain.Kind(nil), opts.Kinds...)
	if opts.AlsoDeleteMedia && !contains(kinds, domain.KindMedia) {
		kinds = append(kinds, domain.KindMedia)
	}
	if err := os.MkdirAll(opts.ReportDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "mkdir %s", opts.ReportDir)
	}

	res := &Result{DryRun: opts.DryRun, Kinds: []KindResult{}, Issues: []domain.Issue{}}
	for _, kind := range kinds {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		kr, err := e.resetKind(ctx, kind, opts, res)
		if err != nil {
			return res, err
		}
		res.Kinds = append(res.Kinds, kr)
	}
	return res, nil
}

func (e *Engine) resetKind(ctx context.Context, kind domain.Kind, opts Options, res *Result) (KindResult, error) {
	kr := KindResult{Kind: kind}
	objType := mappers.TargetType(kind)
	if objType == "" {
		return kr, errors.Newf("kind %q has no target type", kind)
	}

	rows, err := e.selectRows(ctx, kind, objType, opts)
	if err != nil {
		return kr, err
	}
	kr.Selected = len(rows)
	kr.AuditPath = filepath.Join(opts.ReportDir, fmt.Sprintf("reset-%s-audit.csv", kind))
	if err := writeAudit(kr.AuditPath, rows); err != nil {
		return kr, err
	}
	e.log.Info("reset selection audited", "kind", kind, "selected", kr.Selected, "audit", kr.AuditPath, "dry_run", opts.DryRun)

	if opts.DryRun {
		return kr, nil
	}
	for _, r := range rows {
		var err error
		if opts.Force {
			err = e.target.Delete(ctx, r.ID)
		} else {
			err = e.target.Trash(ctx, r.ID)
		}
		if err != nil {
			kr.Failed++
			err = errors.Mark(errors.Wrapf(err, "remove %s %d", kind, r.ID), errors.ErrWrite)
			res.Issues = append(res.Issues, domain.Issue{Kind: kind, OldID: r.ID, Class: errors.Class(err), Message: err.Error()})
			e.log.Error("reset failed", "kind", kind, "id", r.ID, "error", err)
			continue
		}
		if opts.Force {
			kr.Deleted++
		} else {
			kr.Trashed++
		}
	}
	return kr, nil
}

// selectRows builds the audit rows for one kind, ordered by ID.
func (e *Engine) selectRows(ctx context.Context, kind domain.Kind, objType string, opts Options) ([]export.AuditRow, error) {
	live, err := e.target.Query(ctx, objType, liveStatuses(kind))
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", objType)
	}

	picked := map[int64]export.AuditRow{}
	for _, o := range live {
		marker, err := e.marker(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		switch {
		case opts.Scope == ScopeAll:
			picked[o.ID] = row(kind, o, marker, viaAll)
		case marker != "":
			picked[o.ID] = row(kind, o, marker, viaMarker)
		}
	}

	if opts.Scope == ScopeImported {
		if mapped := e.ids.NewIDs(kind); len(mapped) > 0 {
			// trashed leftovers are only worth selecting for a permanent delete
			var statuses []domain.Status
			if !opts.Force {
				statuses = liveStatuses(kind)
			}
			objs, err := e.target.Query(ctx, objType, statuses, mapped...)
			if err != nil {
				return nil, errors.Wrapf(err, "query mapped %s", objType)
			}
			for _, o := range objs {
				if r, ok := picked[o.ID]; ok {
					r.Via = viaBoth
					picked[o.ID] = r
					continue
				}
				marker, err := e.marker(ctx, o.ID)
				if err != nil {
					return nil, err
				}
				picked[o.ID] = row(kind, o, marker, viaIDMap)
			}
		}
	}

	rows := make([]export.AuditRow, 0, len(picked))
	for _, r := range picked {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}

// marker returns the migration marker of id, or "" when it has none.
func (e *Engine) marker(ctx context.Context, id int64) (string, error) {
	v, err := e.target.GetMeta(ctx, id, store.MetaMigratedFrom)
	if err != nil {
		return "", errors.Wrapf(err, "marker of %d", id)
	}
	s, _ := v.(string)
	if _, _, ok := mappers.ParseMarker(s); !ok {
		return "", nil
	}
	return s, nil
}

func row(kind domain.Kind, o store.Object, marker, via string) export.AuditRow {
	return export.AuditRow{
		ID:     o.ID,
		Kind:   string(kind),
		Type:   o.Type,
		Title:  o.Title,
		Status: string(o.Status),
		Marker: marker,
		Via:    via,
	}
}

func writeAudit(path string, rows []export.AuditRow) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := export.WriteAuditCSV(f, rows); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	return f.Close()
}

func liveStatuses(kind domain.Kind) []domain.Status {
	if kind == domain.KindMedia {
		return append(append([]domain.Status(nil), domain.LiveStatuses...), domain.StatusInherit)
	}
	return domain.LiveStatuses
}

func contains(ks []domain.Kind, k domain.Kind) bool {
	for _, v := range ks {
		if v == k {
			return true
		}
	}
	return false
}
