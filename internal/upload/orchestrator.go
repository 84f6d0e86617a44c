// Package upload runs batches of image files through validation,
// compression, and the blob store, reporting aggregated progress.
package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/plandala/internal/blob"
	"github.com/zulandar/plandala/internal/imaging"
)

// File is one input to a batch.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Progress is emitted on every per-file transfer callback and on every file
// completion. File and Overall are percentages in [0,100].
type Progress struct {
	FileIndex int
	FileName  string
	File      float64
	Overall   float64
}

// ProgressFunc receives batch progress.
type ProgressFunc func(Progress)

// Result holds the URLs of successful uploads in input order and any
// per-file failures.
type Result struct {
	Total    int
	URLs     []string
	Failures []FileError
}

// Partial reports how many uploads failed, or "" when none did.
func (r *Result) Partial() string {
	if len(r.Failures) == 0 {
		return ""
	}
	return fmt.Sprintf("%d of %d uploads failed", len(r.Failures), r.Total)
}

// Config tunes an Orchestrator.
type Config struct {
	Watchdog WatchdogConfig
	// SuffixLen is the length of the random path suffix.
	SuffixLen int
	Now       func() time.Time
}

// Orchestrator uploads files one at a time to a blob store.
type Orchestrator struct {
	store blob.Store
	cfg   Config
}

// New returns an Orchestrator writing to store.
func New(store blob.Store, cfg Config) *Orchestrator {
	cfg.Watchdog = cfg.Watchdog.withDefaults()
	if cfg.SuffixLen <= 0 {
		cfg.SuffixLen = 7
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{store: store, cfg: cfg}
}

// Upload processes files sequentially into folder. A failing file is
// recorded and the batch continues. When every file of a non-empty batch
// fails, the failures are returned as a *BatchError.
func (o *Orchestrator) Upload(ctx context.Context, files []File, folder string, onProgress ProgressFunc) (*Result, error) {
	res := &Result{Total: len(files), URLs: []string{}}
	if len(files) == 0 {
		return res, nil
	}

	p := &progressTracker{total: len(files), emit: onProgress}
	for i, f := range files {
		url, err := o.uploadFile(ctx, f, folder, func(frac float64) {
			p.update(i, f.Name, frac)
		})
		if err != nil {
			res.Failures = append(res.Failures, FileError{Index: i, Name: f.Name, Err: err})
			p.complete(i, f.Name, false)
			continue
		}
		res.URLs = append(res.URLs, url)
		p.complete(i, f.Name, true)
	}

	if len(res.URLs) == 0 {
		return nil, &BatchError{Total: len(files), Failures: res.Failures}
	}
	return res, nil
}

// UploadOne uploads a single file, reporting its own percentage.
func (o *Orchestrator) UploadOne(ctx context.Context, f File, folder string, onProgress func(percent float64)) (string, error) {
	url, err := o.uploadFile(ctx, f, folder, func(frac float64) {
		if onProgress != nil {
			onProgress(frac * 100)
		}
	})
	if err != nil {
		return "", FileError{Name: f.Name, Err: err}
	}
	return url, nil
}

// Delete removes a previously uploaded object.
func (o *Orchestrator) Delete(ctx context.Context, url string) error {
	if err := o.store.Delete(ctx, url); err != nil {
		return fmt.Errorf("upload: delete %s: %w", url, err)
	}
	return nil
}

// uploadFile runs validate, compress, and upload for one file under its own
// stall watchdog. onFrac receives the transfer fraction.
func (o *Orchestrator) uploadFile(ctx context.Context, f File, folder string, onFrac func(float64)) (string, error) {
	contentType := imaging.DetectType(f.ContentType, f.Data)
	if err := imaging.Validate(f.Name, contentType, int64(len(f.Data))); err != nil {
		return "", err
	}
	contentType, err := imaging.VerifyContent(f.Name, contentType, f.Data)
	if err != nil {
		return "", err
	}

	payload, err := imaging.Compress(f.Data, contentType)
	if err != nil {
		return "", err
	}

	suffix, err := imaging.RandomSuffix(o.cfg.SuffixLen)
	if err != nil {
		return "", err
	}
	ext := imaging.Extension(payload.ContentType, payload.Recompressed)
	path := imaging.ObjectPath(folder, o.cfg.Now(), suffix, ext)

	fileCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	wd := NewWatchdog(o.cfg.Watchdog, cancel)
	wd.Start(fileCtx)
	defer wd.Stop()

	url, err := o.store.Upload(fileCtx, path, payload.Data, payload.ContentType, func(transferred, total int64) {
		wd.Observe(transferred)
		frac := 0.0
		if total > 0 {
			frac = float64(transferred) / float64(total)
		}
		onFrac(frac)
	})
	if err != nil {
		if errors.Is(context.Cause(fileCtx), ErrStalled) {
			return "", fmt.Errorf("%s: %w", path, ErrStalled)
		}
		return "", err
	}
	return url, nil
}

// progressTracker aggregates per-file fractions into monotonic overall
// progress that reaches 100 only when the last file completes.
type progressTracker struct {
	total     int
	completed int
	last      float64
	emit      ProgressFunc
}

func (p *progressTracker) update(index int, name string, frac float64) {
	if p.emit == nil || frac >= 1 {
		return
	}
	if frac < 0 {
		frac = 0
	}
	overall := (float64(p.completed) + frac) / float64(p.total) * 100
	if overall < p.last {
		overall = p.last
	}
	p.last = overall
	p.emit(Progress{FileIndex: index, FileName: name, File: frac * 100, Overall: overall})
}

func (p *progressTracker) complete(index int, name string, ok bool) {
	p.completed++
	overall := float64(p.completed) / float64(p.total) * 100
	if p.completed == p.total {
		overall = 100
	}
	if overall < p.last {
		overall = p.last
	}
	p.last = overall
	if p.emit == nil {
		return
	}
	file := 0.0
	if ok {
		file = 100
	}
	p.emit(Progress{FileIndex: index, FileName: name, File: file, Overall: overall})
}
