// Package report renders run artifacts as Markdown, YAML or JSON under
// deterministic paths.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"lms-migrate/internal/domain"
	"lms-migrate/internal/errors"
	"lms-migrate/internal/reset"
	"lms-migrate/internal/state"
)

type Format string

const (
	Markdown Format = "markdown"
	YAML     Format = "yaml"
	JSON     Format = "json"
)

// Report kinds, used in file names.
const (
	KindRun    = "run"
	KindExport = "export"
	KindReset  = "reset"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", "markdown":
		return Markdown, nil
	case "yaml", "yml":
		return YAML, nil
	case "json":
		return JSON, nil
	}
	return "", errors.Newf("unknown report format %q (want markdown, yaml or json)", s)
}

func (f Format) Ext() string {
	switch f {
	case YAML:
		return "yaml"
	case JSON:
		return "json"
	}
	return "md"
}

// Path is <dir>/<kind>-report.<ext>. Each run overwrites the previous report.
func Path(dir, kind string, f Format) string {
	return filepath.Join(dir, fmt.Sprintf("%s-report.%s", kind, f.Ext()))
}

// Save renders into Path(dir, kind, f) and returns the path.
func Save(dir, kind string, f Format, render func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "mkdir %s", dir)
	}
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return "", err
	}
	path := Path(dir, kind, f)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", errors.Wrapf(err, "write %s", path)
	}
	return path, nil
}

// CountsTable writes the conservation table. The ok column is "-" for kinds
// the classifier did not check.
func CountsTable(w io.Writer, counts map[domain.Kind]domain.KindCount) error {
	var b strings.Builder
	b.WriteString("| type | wp_total | linked | orphans | ok |\n")
	b.WriteString("|---|---:|---:|---:|:---:|\n")
	for _, k := range orderedKinds(counts) {
		c := counts[k]
		ok := "-"
		if c.Checked {
			ok = "no"
			if c.OK {
				ok = "yes"
			}
		}
		fmt.Fprintf(&b, "| %s | %d | %d | %d | %s |\n", k, c.Total, c.Linked, c.Orphans(), ok)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteRun renders the statistics of an import run.
func WriteRun(w io.Writer, s *state.RunStats, f Format) error {
	if f != Markdown {
		return encode(w, s, f)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Import run %s\n\n", s.RunID)
	fmt.Fprintf(&b, "- command: `%s`\n", s.Command)
	if s.Payload != "" {
		fmt.Fprintf(&b, "- payload: `%s`\n", s.Payload)
	}
	fmt.Fprintf(&b, "- started: %s\n", s.StartedAt.Format("2006-01-02 15:04:05 MST"))
	if !s.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "- finished: %s\n", s.FinishedAt.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(&b, "- dry run: %t, recheck: %t\n", s.DryRun, s.Recheck)
	if s.LogPath != "" {
		fmt.Fprintf(&b, "- log: `%s`\n", s.LogPath)
	}

	if len(s.Counts) > 0 {
		b.WriteString("\n## Source\n\n")
		if err := CountsTable(&b, s.Counts); err != nil {
			return err
		}
	}

	b.WriteString("\n## Entities\n\n")
	b.WriteString("| type | created | updated | skipped | would_create | orphaned | errored |\n")
	b.WriteString("|---|---:|---:|---:|---:|---:|---:|\n")
	for _, k := range s.SortedKinds() {
		ks := s.Kinds[k]
		fmt.Fprintf(&b, "| %s | %d | %d | %d | %d | %d | %d |\n",
			k, ks.Created, ks.Updated, ks.Skipped, ks.WouldCreate, ks.Orphaned, ks.Errored)
	}

	c := s.Commerce
	b.WriteString("\n## Commerce\n\n")
	fmt.Fprintf(&b, "- linked: %d\n- unchanged: %d\n- no product: %d\n- button synced: %d\n- downgraded: %d\n",
		c.Linked, c.Unchanged, c.NoProduct, c.ButtonSynced, c.Downgraded)
	fmt.Fprintf(&b, "\nMedia attached: %d, failed: %d. Enrollments deferred: %d.\n",
		s.MediaAttached, s.MediaFailed, s.Enrollments)

	writeIssues(&b, s.Issues)
	_, err := io.WriteString(w, b.String())
	return err
}

// ExportSummary is what the export report carries: the analysis without
// the content itself.
type ExportSummary struct {
	RunID    string             `json:"run_id"`
	Mode     domain.ExportMode  `json:"mode"`
	Scope    string             `json:"scope"`
	Payload  string             `json:"payload"`
	Stats    domain.ExportStats `json:"stats"`
	Analysis domain.Analysis    `json:"analysis"`
}

func NewExportSummary(p *domain.Payload, path string) ExportSummary {
	return ExportSummary{
		RunID:    p.ExportMeta.RunID,
		Mode:     p.Mode,
		Scope:    p.ExportMeta.Scope.String(),
		Payload:  path,
		Stats:    p.Stats,
		Analysis: p.Analysis,
	}
}

func WriteExport(w io.Writer, s ExportSummary, f Format) error {
	if f != Markdown {
		return encode(w, s, f)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Export %s\n\n", s.RunID)
	fmt.Fprintf(&b, "- mode: `%s`\n- scope: `%s`\n", s.Mode, s.Scope)
	if s.Payload != "" {
		fmt.Fprintf(&b, "- payload: `%s`\n", s.Payload)
	}
	st := s.Stats
	fmt.Fprintf(&b, "- courses: %d, units: %d, quizzes: %d, questions: %d, assignments: %d, certificates: %d, media: %d, orphans: %d\n",
		st.Courses, st.Units, st.Quizzes, st.Questions, st.Assignments, st.Certificates, st.Media, st.Orphans)

	b.WriteString("\n## Conservation\n\n")
	if err := CountsTable(&b, s.Analysis.Counts); err != nil {
		return err
	}
	writeEntries(&b, "Reported orphans", s.Analysis.Reported)
	writeEntries(&b, "Suppressed orphans", s.Analysis.Suppressed)
	writeEntries(&b, "Missing references", s.Analysis.MissingRefs)
	writeIssues(&b, s.Analysis.Issues)
	_, err := io.WriteString(w, b.String())
	return err
}

func WriteReset(w io.Writer, r *reset.Result, f Format) error {
	if f != Markdown {
		return encode(w, r, f)
	}
	var b strings.Builder
	b.WriteString("# Reset\n\n")
	fmt.Fprintf(&b, "- dry run: %t\n\n", r.DryRun)
	b.WriteString("| type | selected | trashed | deleted | failed | audit |\n")
	b.WriteString("|---|---:|---:|---:|---:|---|\n")
	for _, k := range r.Kinds {
		fmt.Fprintf(&b, "| %s | %d | %d | %d | %d | `%s` |\n", k.Kind, k.Selected, k.Trashed, k.Deleted, k.Failed, k.AuditPath)
	}
	writeIssues(&b, r.Issues)
	_, err := io.WriteString(w, b.String())
	return err
}

func writeEntries(b *strings.Builder, title string, es []domain.OrphanEntry) {
	if len(es) == 0 {
		return
	}
	fmt.Fprintf(b, "\n## %s\n\n| type | old_id | reason | parent |\n|---|---:|---|---:|\n", title)
	for _, e := range es {
		parent := ""
		if e.ParentOldID != 0 {
			parent = fmt.Sprint(e.ParentOldID)
		}
		kind := string(e.Kind)
		if kind == "" {
			kind = "?"
		}
		fmt.Fprintf(b, "| %s | %d | %s | %s |\n", kind, e.OldID, e.Reason, parent)
	}
}

func writeIssues(b *strings.Builder, issues []domain.Issue) {
	if len(issues) == 0 {
		return
	}
	fmt.Fprintf(b, "\n## Issues (%d)\n\n", len(issues))
	for _, is := range issues {
		fmt.Fprintf(b, "- [%s]", is.Class)
		if is.Kind != "" {
			fmt.Fprintf(b, " %s %d:", is.Kind, is.OldID)
		}
		fmt.Fprintf(b, " %s\n", strings.ReplaceAll(is.Message, "\n", " "))
	}
}

func encode(w io.Writer, v any, f Format) error {
	switch f {
	case YAML:
		return encodeYAML(w, v)
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return errors.Newf("unsupported report format %q", f)
}

// encodeYAML goes through JSON so YAML reports keep the JSON field names
// and order, then switches every node to block style.
func encodeYAML(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode report")
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return errors.Wrap(err, "convert report to yaml")
	}
	blockStyle(&doc)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return errors.Wrap(err, "encode yaml report")
	}
	return enc.Close()
}

func blockStyle(n *yaml.Node) {
	if n.Kind != yaml.ScalarNode || n.Style == yaml.DoubleQuotedStyle {
		n.Style = 0
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}

func orderedKinds(counts map[domain.Kind]domain.KindCount) []domain.Kind {
	var out []domain.Kind
	seen := map[domain.Kind]bool{}
	for _, k := range append(append([]domain.Kind(nil), domain.ContentKinds...), domain.KindMedia) {
		if _, ok := counts[k]; ok {
			out = append(out, k)
			seen[k] = true
		}
	}
	var rest []domain.Kind
	for k := range counts {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append(out, rest...)
}
