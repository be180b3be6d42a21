// Package media downloads course attachments ahead of import. Fetching is
// parallel; attaching the results is left to the importer, which runs
// sequentially.
package media

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"lms-migrate/internal/concurrency"
	"lms-migrate/internal/domain"
	"lms-migrate/internal/errors"
	"lms-migrate/internal/httpx"
	"lms-migrate/internal/logger"
)

// Fetched is the outcome of downloading one attachment.
type Fetched struct {
	Ref         domain.MediaRef
	Path        string
	ContentType string
	Size        int
	Err         error
}

type Options struct {
	// Dir receives the downloaded files.
	Dir     string
	Workers int
	Timeout time.Duration
	// MaxBytes caps a single download; 0 means no cap.
	MaxBytes int64
}

type Fetcher struct {
	client *httpx.Client
	opts   Options
	log    *logger.Logger
}

func NewFetcher(opts Options, logg *logger.Logger) *Fetcher {
	if logg == nil {
		logg = logger.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	c := httpx.New(opts.Timeout, logg)
	c.MaxBody = opts.MaxBytes
	return &Fetcher{client: c, opts: opts, log: logg.With("component", "media")}
}

// Prefetch downloads refs in parallel and returns the outcome per attachment
// old ID. Failures are reported, never retried beyond the HTTP client.
func (f *Fetcher) Prefetch(ctx context.Context, refs []domain.MediaRef) map[int64]Fetched {
	if err := os.MkdirAll(f.opts.Dir, 0o755); err != nil {
		out := make(map[int64]Fetched, len(refs))
		for _, r := range refs {
			out[r.OldID] = Fetched{Ref: r, Err: errors.Wrapf(err, "mkdir %s", f.opts.Dir)}
		}
		return out
	}

	outcomes := concurrency.Map(ctx, refs, concurrency.Options{Workers: f.opts.Workers},
		func(ctx context.Context, _ int, r domain.MediaRef) (Fetched, error) {
			fe := f.fetch(ctx, r)
			return fe, fe.Err
		})

	out := make(map[int64]Fetched, len(refs))
	failed := 0
	for i, o := range outcomes {
		fe := o.Value
		fe.Ref = refs[i]
		if o.Err != nil {
			fe.Err = o.Err
			failed++
			f.log.Warn("media download failed", "old_id", refs[i].OldID, "url", refs[i].URL, "error", o.Err)
		}
		out[refs[i].OldID] = fe
	}
	f.log.Info("media prefetched", "total", len(refs), "failed", failed)
	return out
}

func (f *Fetcher) fetch(ctx context.Context, r domain.MediaRef) Fetched {
	fe := Fetched{Ref: r}
	if strings.TrimSpace(r.URL) == "" {
		fe.Err = errors.Newf("attachment %d has no url", r.OldID)
		return fe
	}
	resp, err := f.client.Get(ctx, r.URL)
	if err != nil {
		fe.Err = errors.Wrapf(err, "download attachment %d", r.OldID)
		return fe
	}
	dst := filepath.Join(f.opts.Dir, FileName(r))
	if err := os.WriteFile(dst, resp.Body, 0o644); err != nil {
		fe.Err = errors.Wrapf(err, "write %s", dst)
		return fe
	}
	fe.Path = dst
	fe.ContentType = resp.ContentType
	fe.Size = len(resp.Body)
	return fe
}

// FileName is the local name of a downloaded attachment: the old ID keeps
// names unique, the URL base keeps them readable.
func FileName(r domain.MediaRef) string {
	base := "file"
	if u, err := url.Parse(r.URL); err == nil {
		if b := path.Base(u.Path); b != "" && b != "/" && b != "." {
			base = b
		}
	}
	base = strings.Map(func(c rune) rune {
		if c == '/' || c == '\\' || c == ':' || c < 32 {
			return '_'
		}
		return c
	}, base)
	return fmt.Sprintf("%d-%s", r.OldID, base)
}
