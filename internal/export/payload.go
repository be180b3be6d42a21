package export

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"

	"lms-migrate/internal/domain"
	"lms-migrate/internal/errors"
)

// BrotliExt marks compressed snapshots.
const BrotliExt = ".br"

// IsCompressed reports whether path names a brotli snapshot.
func IsCompressed(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), BrotliExt)
}

// WritePayload encodes p as indented JSON, brotli-compressed when compress is set.
func WritePayload(w io.Writer, p *domain.Payload, compress bool) error {
	if !compress {
		return encode(w, p)
	}
	bw := brotli.NewWriterLevel(w, brotli.DefaultCompression)
	if err := encode(bw, p); err != nil {
		_ = bw.Close()
		return err
	}
	return bw.Close()
}

func encode(w io.Writer, p *domain.Payload) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(p)
}

// ReadPayload decodes and validates a snapshot. Every failure is marked
// ErrParse: nothing may be written from a payload that did not decode.
func ReadPayload(r io.Reader, compressed bool) (*domain.Payload, error) {
	if compressed {
		r = brotli.NewReader(r)
	}
	var p domain.Payload
	dec := json.NewDecoder(bufio.NewReader(r))
	if err := dec.Decode(&p); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode payload"), errors.ErrParse)
	}
	if err := Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the top-level shape of a decoded payload.
func Validate(p *domain.Payload) error {
	fail := func(format string, args ...any) error {
		return errors.Mark(errors.Newf("invalid payload: "+format, args...), errors.ErrParse)
	}
	if p.ExportMeta.Version == 0 {
		return fail("export_meta.version missing")
	}
	if p.ExportMeta.Version > domain.PayloadVersion {
		return fail("version %d is newer than supported %d", p.ExportMeta.Version, domain.PayloadVersion)
	}
	if _, err := domain.ParseExportMode(string(p.Mode)); err != nil {
		return fail("%v", err)
	}
	seen := map[int64]bool{}
	for i, c := range p.Courses {
		if c.OldID <= 0 {
			return fail("courses[%d] has no old_id", i)
		}
		if seen[c.OldID] {
			return fail("course %d appears twice", c.OldID)
		}
		seen[c.OldID] = true
	}
	return nil
}

// SavePayload writes p to path, compressing when path ends in .br.
func SavePayload(path string, p *domain.Payload) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "mkdir %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	bw := bufio.NewWriter(f)
	if err := WritePayload(bw, p, IsCompressed(path)); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "flush %s", path)
	}
	return f.Close()
}

// LoadPayload reads a snapshot from path, detecting compression by extension.
func LoadPayload(path string) (*domain.Payload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "open %s", path), errors.ErrParse)
	}
	defer f.Close()
	return ReadPayload(f, IsCompressed(path))
}
