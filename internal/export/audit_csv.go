package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
)

// AuditRow is one object selected for deletion.
type AuditRow struct {
	ID     int64
	Kind   string
	Type   string
	Title  string
	Status string
	// Marker is the _migrated_from value, empty when the object has none.
	Marker string
	// Via tells how the object was selected: "marker", "idmap", "both" or "all".
	Via string
}

// Keep header order stable; operators diff these files between runs.
var auditHeader = []string{
	"ID",
	"KIND",
	"TYPE",
	"TITLE",
	"STATUS",
	"MIGRATED_FROM",
	"SELECTED_VIA",
}

// WriteAuditCSV writes the pre-deletion audit list.
func WriteAuditCSV(w io.Writer, rows []AuditRow) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true

	if err := cw.Write(auditHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(toAuditRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func toAuditRow(r AuditRow) []string {
	return []string{
		strconv.FormatInt(r.ID, 10), // ID
		r.Kind,                      // KIND
		r.Type,                      // TYPE
		cleanCell(r.Title),          // TITLE
		r.Status,                    // STATUS
		r.Marker,                    // MIGRATED_FROM
		r.Via,                       // SELECTED_VIA
	}
}

// ReadAuditCSV parses a file written by WriteAuditCSV.
func ReadAuditCSV(r io.Reader) ([]AuditRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(auditHeader)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	var out []AuditRow
	for i, rec := range records {
		if i == 0 {
			continue
		}
		id, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, AuditRow{
			ID: id, Kind: rec[1], Type: rec[2], Title: rec[3], Status: rec[4], Marker: rec[5], Via: rec[6],
		})
	}
	return out, nil
}

func cleanCell(s string) string {
	s = strings.TrimSpace(s)
	// avoid newlines
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return s
}
