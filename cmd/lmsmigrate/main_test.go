package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-migrate/internal/domain"
	"lms-migrate/internal/logger"
	"lms-migrate/internal/store"
	"lms-migrate/internal/store/sqlstore"
)

// seedSource writes a course with one unit and one quiz, a stray unit and a
// priced product pointing at the course.
func seedSource(t *testing.T, path string) {
	t.Helper()
	ctx := context.Background()
	db, err := sqlstore.Open(path, logger.NewNop())
	require.NoError(t, err)
	defer db.Close()

	create := func(objType, title string, meta map[string]any) int64 {
		id, err := db.Create(ctx, objType, store.Fields{Title: title, Slug: title, Status: domain.StatusPublish, Meta: meta})
		require.NoError(t, err)
		return id
	}
	product := create(store.TypeProduct, "go-course", map[string]any{store.MetaPrice: "49.00", store.MetaSKU: "GO-1"})
	unit := create(store.TypeUnit, "intro", nil)
	create(store.TypeUnit, "stray", nil)
	course := create(store.TypeCourse, "go-basics", map[string]any{
		store.MetaCurriculum:     fmt.Sprintf(`[%d,"Week 1"]`, unit),
		store.MetaCourseProducts: product,
	})
	create(store.TypeQuiz, "final", map[string]any{store.MetaQuizCourses: fmt.Sprint(course)})
}

func setup(t *testing.T) (dir string) {
	t.Helper()
	dir = t.TempDir()
	seedSource(t, filepath.Join(dir, "source.db"))
	t.Setenv("LMSMIGRATE_SOURCE_DB", filepath.Join(dir, "source.db"))
	t.Setenv("LMSMIGRATE_TARGET_DB", filepath.Join(dir, "target.db"))
	t.Setenv("LMSMIGRATE_PATHS_LOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("LMSMIGRATE_PATHS_REPORT_DIR", filepath.Join(dir, "reports"))
	t.Setenv("LMSMIGRATE_PATHS_MEDIA_DIR", filepath.Join(dir, "media"))
	t.Setenv("LMSMIGRATE_LOG_MODE", "development")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func row(kind string, rest string) string {
	return fmt.Sprintf("%-12s %s", kind, rest)
}

func TestExportRunResetCycle(t *testing.T) {
	dir := setup(t)
	snap := filepath.Join(dir, "export.json.br")

	out, err := execute(t, "export", "--out", snap, "--mode", "discover_all")
	require.NoError(t, err, out)
	assert.Contains(t, out, "exported 1 courses (1 units, 1 quizzes, 1 orphans)")
	_, err = os.Stat(filepath.Join(dir, "reports", "export-report.md"))
	require.NoError(t, err)

	out, err = execute(t, "run", snap, "--no-media")
	require.NoError(t, err, out)
	assert.Contains(t, out, row("course", "created=1 updated=0 skipped=0"))
	assert.Contains(t, out, row("unit", "created=2"))
	assert.Contains(t, out, row("quiz", "created=1"))

	out, err = execute(t, "run", snap, "--no-media")
	require.NoError(t, err, out)
	assert.Contains(t, out, row("course", "created=0 updated=0 skipped=1"))
	assert.Contains(t, out, row("unit", "created=0 updated=0 skipped=2"))

	out, err = execute(t, "report", "--fields", "kinds.course,dry_run")
	require.NoError(t, err, out)
	var picked struct {
		DryRun bool `json:"dry_run"`
		Kinds  map[string]struct {
			Skipped int `json:"skipped"`
		} `json:"kinds"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &picked), out)
	assert.Equal(t, 1, picked.Kinds["course"].Skipped)
	assert.False(t, picked.DryRun)

	out, err = execute(t, "reset", "--types", "unit", "--dry-run")
	require.NoError(t, err, out)
	assert.Contains(t, out, row("unit", "selected=2 trashed=0"))
	_, err = os.Stat(filepath.Join(dir, "reports", "reset-unit-audit.csv"))
	require.NoError(t, err)

	out, err = execute(t, "reset", "--types", "unit")
	require.NoError(t, err, out)
	assert.Contains(t, out, row("unit", "selected=2 trashed=2"))

	out, err = execute(t, "run", snap, "--no-media", "--recheck")
	require.NoError(t, err, out)
	assert.Contains(t, out, row("unit", "created=2"))
	assert.Contains(t, out, row("course", "created=0"))
}

func TestRunDryRunLeavesTargetEmpty(t *testing.T) {
	dir := setup(t)
	snap := filepath.Join(dir, "export.json")
	_, err := execute(t, "export", "--out", snap)
	require.NoError(t, err)

	out, err := execute(t, "run", snap, "--dry-run", "--no-media")
	require.NoError(t, err, out)
	assert.Contains(t, out, row("course", "created=0 updated=0 skipped=0 would_create=1"))

	out, err = execute(t, "idmap", "show")
	require.NoError(t, err, out)
	assert.Contains(t, out, row("course", "0"))
}

func TestRunRejectsBrokenSnapshot(t *testing.T) {
	dir := setup(t)
	snap := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(snap, []byte(`{"courses": [`), 0o644))

	out, err := execute(t, "run", snap)
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "reports", "run-report.md"))
	assert.NoError(t, statErr, "a report is written even when the run fails: %s", out)
}

func TestIDMapClearNeedsConfirmation(t *testing.T) {
	setup(t)
	_, err := execute(t, "idmap", "clear")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refusing")

	out, err := execute(t, "idmap", "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "id map cleared")
}

func TestReportWithoutRun(t *testing.T) {
	setup(t)
	_, err := execute(t, "report")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no import run recorded")
}
