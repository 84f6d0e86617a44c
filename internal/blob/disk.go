package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
)

const (
	defaultChunkSize  = 64 * 1024
	defaultMaxRetries = 3
)

var _ Store = (*Disk)(nil)

// Disk stores objects as files under Root/Bucket.
type Disk struct {
	Root    string
	Bucket  string
	BaseURL string
	// QuotaBytes caps the bucket's total size. Zero means unlimited.
	QuotaBytes int64
	// ChunkSize is the write granularity and progress step.
	ChunkSize int
	// MaxRetries bounds attempts on transient write failures.
	MaxRetries int

	mu     sync.Mutex
	create func(dir string) (tempFile, error)
}

// tempFile is the subset of *os.File a write attempt needs.
type tempFile interface {
	io.Writer
	Close() error
	Name() string
}

// NewDisk returns a Disk rooted at root and creates the bucket directory.
func NewDisk(root, bucket, baseURL string, quotaBytes int64) (*Disk, error) {
	d := &Disk{
		Root:       root,
		Bucket:     bucket,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		QuotaBytes: quotaBytes,
	}
	if err := os.MkdirAll(d.bucketDir(), 0o755); err != nil {
		return nil, fmt.Errorf("blob: create bucket %s: %w", d.bucketDir(), classify(err))
	}
	return d, nil
}

func (d *Disk) bucketDir() string {
	return filepath.Join(d.Root, d.Bucket)
}

func (d *Disk) chunkSize() int {
	if d.ChunkSize > 0 {
		return d.ChunkSize
	}
	return defaultChunkSize
}

func (d *Disk) maxRetries() int {
	if d.MaxRetries > 0 {
		return d.MaxRetries
	}
	return defaultMaxRetries
}

// resolve maps an object path onto the filesystem, rejecting escapes.
func (d *Disk) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if path == "" || filepath.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return filepath.Join(d.bucketDir(), clean), nil
}

// URL returns the public URL for an object path.
func (d *Disk) URL(path string) string {
	segments := strings.Split(filepath.ToSlash(filepath.Clean(path)), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return d.BaseURL + "/" + url.PathEscape(d.Bucket) + "/" + strings.Join(segments, "/")
}

// PathFromURL reverses URL.
func (d *Disk) PathFromURL(u string) (string, error) {
	prefix := d.BaseURL + "/" + url.PathEscape(d.Bucket) + "/"
	if !strings.HasPrefix(u, prefix) {
		return "", fmt.Errorf("%w: %q is not in bucket %s", ErrInvalidPath, u, d.Bucket)
	}
	p, err := url.PathUnescape(strings.TrimPrefix(u, prefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	return p, nil
}

// Upload writes data to a temp file in chunks, reporting progress after
// each chunk, then renames it into place. Transient failures restart the
// write up to MaxRetries times.
// contentType is not recorded: the object is served with the type its
// extension maps to, so path must carry an extension chosen from the
// verified type.
func (d *Disk) Upload(ctx context.Context, path string, data []byte, contentType string, onProgress ProgressFunc) (string, error) {
	dst, err := d.resolve(path)
	if err != nil {
		return "", fmt.Errorf("blob: upload: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.QuotaBytes > 0 {
		used, err := d.usage()
		if err != nil {
			return "", fmt.Errorf("blob: upload %s: %w", path, err)
		}
		if used+int64(len(data)) > d.QuotaBytes {
			return "", fmt.Errorf("blob: upload %s: %w", path, ErrQuotaExceeded)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("blob: upload %s: %w", path, classify(err))
	}

	var lastErr error
	for attempt := 0; attempt < d.maxRetries(); attempt++ {
		err := d.writeOnce(ctx, dst, data, onProgress)
		if err == nil {
			return d.URL(path), nil
		}
		classified := classify(err)
		if !errors.Is(classified, errTransient) {
			return "", fmt.Errorf("blob: upload %s: %w", path, classified)
		}
		lastErr = err
	}
	return "", fmt.Errorf("blob: upload %s: %w: %v", path, ErrRetryLimitExceeded, lastErr)
}

func (d *Disk) writeOnce(ctx context.Context, dst string, data []byte, onProgress ProgressFunc) (err error) {
	create := d.create
	if create == nil {
		create = func(dir string) (tempFile, error) {
			return os.CreateTemp(dir, ".upload-*")
		}
	}
	f, err := create(filepath.Dir(dst))
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	total := int64(len(data))
	if onProgress != nil {
		onProgress(0, total)
	}
	chunk := d.chunkSize()
	for off := 0; off < len(data); off += chunk {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := off + chunk
		if end > len(data) {
			end = len(data)
		}
		if _, err := f.Write(data[off:end]); err != nil {
			return err
		}
		if onProgress != nil {
			onProgress(int64(end), total)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}

// usage sums the size of every object in the bucket.
func (d *Disk) usage() (int64, error) {
	var total int64
	err := filepath.WalkDir(d.bucketDir(), func(_ string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, classify(err)
	}
	return total, nil
}

// Delete removes the object behind url.
func (d *Disk) Delete(ctx context.Context, u string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("blob: delete %s: %w", u, ErrCanceled)
	}
	p, err := d.PathFromURL(u)
	if err != nil {
		return fmt.Errorf("blob: delete: %w", err)
	}
	dst, err := d.resolve(p)
	if err != nil {
		return fmt.Errorf("blob: delete: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := os.Remove(dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("blob: delete %s: %w", p, ErrNotFound)
		}
		return fmt.Errorf("blob: delete %s: %w", p, classify(err))
	}
	return nil
}

// Open returns the stored object at path for reading.
func (d *Disk) Open(path string) (*os.File, error) {
	dst, err := d.resolve(path)
	if err != nil {
		return nil, fmt.Errorf("blob: open: %w", err)
	}
	f, err := os.Open(dst)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("blob: open %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("blob: open %s: %w", path, classify(err))
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("blob: open %s: %w", path, ErrNotFound)
	}
	return f, nil
}

// errTransient marks failures worth retrying.
var errTransient = errors.New("transient")

// classify maps filesystem and context errors onto the package sentinels.
func classify(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrCanceled, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case errors.Is(err, syscall.ENOSPC), errors.Is(err, syscall.EDQUOT):
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	case errors.Is(err, syscall.EROFS):
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	default:
		return fmt.Errorf("%w: %v", errTransient, err)
	}
}
