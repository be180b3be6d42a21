package report

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"lms-migrate/internal/domain"
	"lms-migrate/internal/errors"
	"lms-migrate/internal/reset"
	"lms-migrate/internal/state"
)

func TestCountsTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, CountsTable(&buf, map[domain.Kind]domain.KindCount{
		domain.KindQuiz: {Total: 3, Linked: 1, Reported: 1, Suppressed: 1, Checked: true, OK: true},
		domain.KindUnit: {Total: 5, Linked: 5, Checked: false},
	}))
	want := "| type | wp_total | linked | orphans | ok |\n" +
		"|---|---:|---:|---:|:---:|\n" +
		"| unit | 5 | 5 | 0 | - |\n" +
		"| quiz | 3 | 1 | 2 | yes |\n"
	assert.Equal(t, want, buf.String())
}

func sampleStats() *state.RunStats {
	s := state.NewRunStats("run-1", "run")
	s.Payload = "export.json"
	s.Add(state.Result{Kind: domain.KindCourse, OldID: 10, NewID: 40, Outcome: state.OutcomeCreated})
	s.Add(state.Result{Kind: domain.KindUnit, OldID: 20, Outcome: state.OutcomeErrored, Err: errors.Mark(errors.New("boom"), errors.ErrWrite)})
	s.Commerce.Linked = 1
	return s
}

func TestWriteRunMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRun(&buf, sampleStats(), Markdown))
	out := buf.String()
	assert.Contains(t, out, "# Import run run-1")
	assert.Contains(t, out, "| course | 1 | 0 | 0 | 0 | 0 | 0 |")
	assert.Contains(t, out, "| unit | 0 | 0 | 0 | 0 | 0 | 1 |")
	assert.Contains(t, out, "- linked: 1")
	assert.Contains(t, out, "- [write] unit 20: boom")
}

func TestWriteRunStructured(t *testing.T) {
	var js bytes.Buffer
	require.NoError(t, WriteRun(&js, sampleStats(), JSON))
	var back state.RunStats
	require.NoError(t, json.Unmarshal(js.Bytes(), &back))
	assert.Equal(t, "run-1", back.RunID)
	assert.Equal(t, 1, back.Kinds[domain.KindCourse].Created)

	var ys bytes.Buffer
	require.NoError(t, WriteRun(&ys, sampleStats(), YAML))
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(ys.Bytes(), &doc))
	assert.Equal(t, "run-1", doc["run_id"])
	assert.NotContains(t, ys.String(), "{", "block style only")
}

func TestWriteExport(t *testing.T) {
	p := &domain.Payload{
		ExportMeta: domain.ExportMeta{RunID: "exp-1", Scope: domain.Scope{IDs: []int64{7}}},
		Mode:       domain.ModeDiscoverRelated,
		Analysis: domain.Analysis{
			Counts:      map[domain.Kind]domain.KindCount{domain.KindUnit: {Total: 2, Linked: 1, Suppressed: 1, Checked: true, OK: true}},
			Suppressed:  []domain.OrphanEntry{{Kind: domain.KindUnit, OldID: 42, Reason: domain.ReasonNoCourseLink, ParentOldID: 7}},
			MissingRefs: []domain.OrphanEntry{{OldID: 9, Reason: domain.ReasonIDNotFound, ParentOldID: 7}},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteExport(&buf, NewExportSummary(p, "out.json.br"), Markdown))
	out := buf.String()
	assert.Contains(t, out, "- scope: `7`")
	assert.Contains(t, out, "| unit | 2 | 1 | 1 | yes |")
	assert.Contains(t, out, "| unit | 42 | no_course_link | 7 |")
	assert.Contains(t, out, "| ? | 9 | id_not_found | 7 |")
}

func TestSaveUsesDeterministicPath(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	res := &reset.Result{Kinds: []reset.KindResult{{Kind: domain.KindUnit, Selected: 2, Trashed: 2, AuditPath: "a.csv"}}}

	for _, f := range []Format{Markdown, YAML, JSON} {
		path, err := Save(dir, KindReset, f, func(w io.Writer) error { return WriteReset(w, res, f) })
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "reset-report."+f.Ext()), path)
		b, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(b), "a.csv")
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": Markdown, "md": Markdown, "YAML": YAML, "yml": YAML, "json": JSON} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("html")
	assert.Error(t, err)
}
