package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/plandala/internal/blob"
	"github.com/zulandar/plandala/internal/imaging"
)

// uploadBehavior decides how fakeStore handles one upload.
type uploadBehavior func(ctx context.Context, data []byte, onProgress blob.ProgressFunc) error

// fakeStore is a test double for blob.Store.
type fakeStore struct {
	mu       sync.Mutex
	uploads  []string
	deleted  []string
	canceled bool
	next     uploadBehavior
}

func (s *fakeStore) Upload(ctx context.Context, path string, data []byte, contentType string, onProgress blob.ProgressFunc) (string, error) {
	s.mu.Lock()
	s.uploads = append(s.uploads, path)
	behave := s.next
	s.mu.Unlock()

	if behave == nil {
		behave = steady(4, 0)
	}
	if err := behave(ctx, data, onProgress); err != nil {
		if ctx.Err() != nil {
			s.mu.Lock()
			s.canceled = true
			s.mu.Unlock()
		}
		return "", err
	}
	return "https://blobs.test/" + path, nil
}

func (s *fakeStore) Delete(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, url)
	return nil
}

func (s *fakeStore) uploadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

// steady reports progress in n equal steps, sleeping between them.
func steady(n int, pause time.Duration) uploadBehavior {
	return func(ctx context.Context, data []byte, onProgress blob.ProgressFunc) error {
		total := int64(len(data))
		for i := 0; i <= n; i++ {
			if err := ctx.Err(); err != nil {
				return blob.ErrCanceled
			}
			onProgress(total*int64(i)/int64(n), total)
			if pause > 0 && i < n {
				time.Sleep(pause)
			}
		}
		return nil
	}
}

// hang reports zero progress then blocks until ctx ends.
func hang(ctx context.Context, data []byte, onProgress blob.ProgressFunc) error {
	onProgress(0, int64(len(data)))
	<-ctx.Done()
	return fmt.Errorf("%w: %v", blob.ErrCanceled, ctx.Err())
}

// repeatSame reports the same progress value every tick until ctx ends.
func repeatSame(ctx context.Context, data []byte, onProgress blob.ProgressFunc) error {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", blob.ErrCanceled, ctx.Err())
		case <-ticker.C:
			onProgress(1, int64(len(data)))
		}
	}
}

func failWith(err error) uploadBehavior {
	return func(context.Context, []byte, blob.ProgressFunc) error { return err }
}

// tinyPNG is a valid 2x2 PNG, small enough to skip recompression.
var tinyPNG = func() []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		panic(err)
	}
	return buf.Bytes()
}()

func pngFile(name string) File {
	return File{Name: name, ContentType: "image/png", Data: tinyPNG}
}

func fastConfig() Config {
	return Config{Watchdog: WatchdogConfig{StallTimeout: 60 * time.Millisecond, StallCheckInterval: 10 * time.Millisecond}}
}

func TestUpload_Empty(t *testing.T) {
	o := New(&fakeStore{}, Config{})
	res, err := o.Upload(context.Background(), nil, "tasks", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.URLs) != 0 || len(res.Failures) != 0 || res.Partial() != "" {
		t.Errorf("empty batch result = %+v", res)
	}
}

func TestUpload_InvalidFileSkipped(t *testing.T) {
	store := &fakeStore{}
	o := New(store, Config{})
	files := []File{
		pngFile("one.png"),
		{Name: "two.pdf", ContentType: "application/pdf", Data: []byte("%PDF")},
		pngFile("three.png"),
	}

	res, err := o.Upload(context.Background(), files, "tasks", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.URLs) != 2 {
		t.Fatalf("URLs = %v, want 2", res.URLs)
	}
	if store.uploadCount() != 2 {
		t.Errorf("store saw %d uploads, want 2 (invalid file never uploaded)", store.uploadCount())
	}
	if len(res.Failures) != 1 || res.Failures[0].Index != 1 || res.Failures[0].Name != "two.pdf" {
		t.Fatalf("Failures = %+v", res.Failures)
	}
	var ve *imaging.ValidationError
	if !errors.As(res.Failures[0].Err, &ve) || ve.Reason != imaging.ReasonInvalidType {
		t.Errorf("failure err = %v, want invalid type", res.Failures[0].Err)
	}
	if res.Partial() != "1 of 3 uploads failed" {
		t.Errorf("Partial = %q", res.Partial())
	}
	if !strings.Contains(res.URLs[0], "tasks/IMG_") || !strings.HasSuffix(res.URLs[1], ".png") {
		t.Errorf("URLs = %v", res.URLs)
	}
}

func TestUpload_PreservesInputOrder(t *testing.T) {
	store := &fakeStore{}
	now := time.UnixMilli(1700000000000)
	o := New(store, Config{Now: func() time.Time { return now }})
	files := []File{pngFile("a.png"), pngFile("b.png"), pngFile("c.png")}

	res, err := o.Upload(context.Background(), files, "comments", nil)
	if err != nil {
		t.Fatal(err)
	}
	pattern := regexp.MustCompile(`^comments/IMG_1700000000000_[0-9a-z]{7}\.png$`)
	for i, path := range store.uploads {
		if !pattern.MatchString(path) {
			t.Errorf("path[%d] = %q does not match %s", i, path, pattern)
		}
		if res.URLs[i] != "https://blobs.test/"+path {
			t.Errorf("URL[%d] = %q, want upload %d", i, res.URLs[i], i)
		}
	}
}

func TestUpload_SniffsUndeclaredType(t *testing.T) {
	store := &fakeStore{}
	o := New(store, Config{})
	gif := File{Name: "anim", Data: []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")}
	res, err := o.Upload(context.Background(), []File{gif}, "tasks", nil)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !strings.HasSuffix(res.URLs[0], ".gif") {
		t.Errorf("URL = %q, want .gif extension from sniffed type", res.URLs[0])
	}
}

func TestUpload_MislabeledContentRejected(t *testing.T) {
	store := &fakeStore{}
	o := New(store, Config{})
	files := []File{
		{Name: "evil.html", ContentType: "image/png", Data: []byte("<html><script>alert(1)</script></html>")},
		pngFile("ok.html"),
	}

	res, err := o.Upload(context.Background(), files, "tasks", nil)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if store.uploadCount() != 1 {
		t.Errorf("store saw %d uploads, want 1", store.uploadCount())
	}
	var ve *imaging.ValidationError
	if len(res.Failures) != 1 || !errors.As(res.Failures[0].Err, &ve) || ve.Reason != imaging.ReasonInvalidType {
		t.Fatalf("Failures = %+v, want one invalid type", res.Failures)
	}
	if len(res.URLs) != 1 || !strings.HasSuffix(res.URLs[0], ".png") {
		t.Errorf("URLs = %v, want extension from the verified type", res.URLs)
	}
}

func TestUpload_AllFail(t *testing.T) {
	tests := []struct {
		name    string
		files   []File
		wantMsg string
	}{
		{
			name:    "single",
			files:   []File{{Name: "big.png", ContentType: "image/png", Data: make([]byte, imaging.MaxFileSize+1)}},
			wantMsg: "File size too large. Maximum size is 5MB",
		},
		{
			name: "several",
			files: []File{
				{Name: "a.txt", ContentType: "text/plain", Data: []byte("a")},
				{Name: "b.txt", ContentType: "text/plain", Data: []byte("b")},
			},
			wantMsg: "all 2 uploads failed: Invalid file type. Please upload an image (JPEG, PNG, GIF, WebP)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			res, err := New(store, Config{}).Upload(context.Background(), tt.files, "tasks", nil)
			if res != nil {
				t.Errorf("result = %+v, want nil", res)
			}
			var be *BatchError
			if !errors.As(err, &be) {
				t.Fatalf("err = %v, want *BatchError", err)
			}
			if be.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", be.Error(), tt.wantMsg)
			}
			if len(be.Failures) != len(tt.files) {
				t.Errorf("failures = %d, want %d", len(be.Failures), len(tt.files))
			}
			if store.uploadCount() != 0 {
				t.Errorf("store saw %d uploads, want 0", store.uploadCount())
			}
		})
	}
}

func TestUpload_StoreFailureIsPerFile(t *testing.T) {
	store := &fakeStore{}
	o := New(store, Config{})
	calls := 0
	store.next = func(ctx context.Context, data []byte, p blob.ProgressFunc) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("blob: upload: %w", blob.ErrQuotaExceeded)
		}
		return steady(2, 0)(ctx, data, p)
	}
	res, err := o.Upload(context.Background(), []File{pngFile("a.png"), pngFile("b.png")}, "tasks", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.URLs) != 1 || len(res.Failures) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if got := res.Failures[0].Message(); got != "Storage quota exceeded" {
		t.Errorf("Message = %q", got)
	}
	if !errors.Is(res.Failures[0], blob.ErrQuotaExceeded) {
		t.Error("FileError should unwrap to the store error")
	}
}

func TestUpload_ProgressMonotonicAndCompletes(t *testing.T) {
	store := &fakeStore{next: steady(5, 0)}
	o := New(store, Config{})
	files := []File{
		pngFile("a.png"),
		{Name: "bad.pdf", ContentType: "application/pdf", Data: []byte("x")},
		pngFile("c.png"),
	}

	var events []Progress
	if _, err := o.Upload(context.Background(), files, "tasks", func(p Progress) {
		events = append(events, p)
	}); err != nil {
		t.Fatal(err)
	}
	if len(events) == 0 {
		t.Fatal("no progress events")
	}
	for i := 1; i < len(events); i++ {
		if events[i].Overall < events[i-1].Overall {
			t.Fatalf("overall decreased at %d: %v -> %v", i, events[i-1].Overall, events[i].Overall)
		}
	}
	for i, e := range events[:len(events)-1] {
		if e.Overall >= 100 {
			t.Errorf("event %d reached 100 before the last file completed: %+v", i, e)
		}
		if e.File < 0 || e.File > 100 {
			t.Errorf("event %d file percent out of range: %v", i, e.File)
		}
	}
	last := events[len(events)-1]
	if last.Overall != 100 || last.FileIndex != 2 || last.File != 100 {
		t.Errorf("last event = %+v, want file 2 at 100/100", last)
	}
}

func TestUpload_ProgressAfterLastFileFails(t *testing.T) {
	o := New(&fakeStore{}, Config{})
	files := []File{pngFile("a.png"), {Name: "bad.txt", ContentType: "text/plain", Data: []byte("x")}}
	var last Progress
	if _, err := o.Upload(context.Background(), files, "tasks", func(p Progress) { last = p }); err != nil {
		t.Fatal(err)
	}
	if last.Overall != 100 || last.FileIndex != 1 {
		t.Errorf("last = %+v, want overall 100 on the failed file", last)
	}
}

func TestUpload_StallCancelsTransfer(t *testing.T) {
	store := &fakeStore{next: hang}
	o := New(store, fastConfig())

	start := time.Now()
	_, err := o.Upload(context.Background(), []File{pngFile("slow.png")}, "tasks", nil)
	if !errors.Is(err, ErrStalled) {
		t.Fatalf("err = %v, want ErrStalled", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("stall took %v to detect", elapsed)
	}
	if !store.canceled {
		t.Error("transfer context was not cancelled")
	}
	if got := Describe(err); got != "Upload timed out, please try again" {
		t.Errorf("Describe = %q", got)
	}
}

func TestUpload_RepeatedProgressStillStalls(t *testing.T) {
	store := &fakeStore{next: repeatSame}
	o := New(store, fastConfig())
	_, err := o.Upload(context.Background(), []File{pngFile("same.png")}, "tasks", nil)
	if !errors.Is(err, ErrStalled) {
		t.Fatalf("err = %v, want ErrStalled", err)
	}
}

func TestUpload_SteadyProgressDoesNotStall(t *testing.T) {
	// 12 steps × 15ms is well past the 60ms timeout, but each step changes.
	store := &fakeStore{next: steady(12, 15*time.Millisecond)}
	o := New(store, fastConfig())
	res, err := o.Upload(context.Background(), []File{pngFile("long.png")}, "tasks", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.URLs) != 1 {
		t.Errorf("URLs = %v", res.URLs)
	}
}

func TestUpload_CallerCancellation(t *testing.T) {
	store := &fakeStore{next: hang}
	o := New(store, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := o.Upload(ctx, []File{pngFile("a.png")}, "tasks", nil)
	var be *BatchError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want *BatchError", err)
	}
	if be.Error() != "Upload was cancelled" {
		t.Errorf("Error() = %q", be.Error())
	}
}

func TestUploadOne(t *testing.T) {
	store := &fakeStore{next: steady(4, 0)}
	o := New(store, Config{})
	var percents []float64
	url, err := o.UploadOne(context.Background(), pngFile("solo.png"), "tasks", func(p float64) {
		percents = append(percents, p)
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(url, "https://blobs.test/tasks/IMG_") {
		t.Errorf("url = %q", url)
	}
	if len(percents) != 5 || percents[4] != 100 {
		t.Errorf("percents = %v", percents)
	}

	_, err = o.UploadOne(context.Background(), File{Name: "x.txt", ContentType: "text/plain"}, "tasks", nil)
	var fe FileError
	if !errors.As(err, &fe) || fe.Name != "x.txt" {
		t.Errorf("err = %v, want FileError for x.txt", err)
	}
}

func TestDelete(t *testing.T) {
	store := &fakeStore{}
	o := New(store, Config{})
	if err := o.Delete(context.Background(), "https://blobs.test/tasks/a.png"); err != nil {
		t.Fatal(err)
	}
	if len(store.deleted) != 1 {
		t.Errorf("deleted = %v", store.deleted)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&imaging.ValidationError{Reason: imaging.ReasonTooLarge}, "File size too large. Maximum size is 5MB"},
		{fmt.Errorf("x: %w", blob.ErrUnauthorized), "You don't have permission to upload files"},
		{fmt.Errorf("x: %w", blob.ErrCanceled), "Upload was cancelled"},
		{context.Canceled, "Upload was cancelled"},
		{fmt.Errorf("x: %w", blob.ErrRetryLimitExceeded), "Upload failed after multiple retries, check your connection"},
		{fmt.Errorf("x: %w", blob.ErrQuotaExceeded), "Storage quota exceeded"},
		{fmt.Errorf("x: %w", ErrStalled), "Upload timed out, please try again"},
		{context.DeadlineExceeded, "Upload timed out, please try again"},
		{errors.New("disk on fire"), "Upload failed: disk on fire"},
	}
	for _, tt := range tests {
		if got := Describe(tt.err); got != tt.want {
			t.Errorf("Describe(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestWatchdog_FiresWithoutProgress(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	wd := NewWatchdog(WatchdogConfig{StallTimeout: 30 * time.Millisecond, StallCheckInterval: 5 * time.Millisecond}, cancel)
	wd.Start(ctx)

	select {
	case <-wd.Stalled():
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog did not fire")
	}
	if !errors.Is(context.Cause(ctx), ErrStalled) {
		t.Errorf("cause = %v, want ErrStalled", context.Cause(ctx))
	}
}

func TestWatchdog_StopPreventsFiring(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	wd := NewWatchdog(WatchdogConfig{StallTimeout: 20 * time.Millisecond, StallCheckInterval: 5 * time.Millisecond}, cancel)
	wd.Start(ctx)
	wd.Stop()

	select {
	case <-wd.Stalled():
		t.Fatal("stopped watchdog fired")
	case <-time.After(80 * time.Millisecond):
	}
	if ctx.Err() != nil {
		t.Errorf("ctx cancelled after Stop: %v", context.Cause(ctx))
	}
}

func TestWatchdog_Defaults(t *testing.T) {
	wd := NewWatchdog(WatchdogConfig{}, func(error) {})
	if wd.cfg.StallTimeout != 30*time.Second || wd.cfg.StallCheckInterval != 5*time.Second {
		t.Errorf("defaults = %+v", wd.cfg)
	}
}

func TestUpload_Unauthorized(t *testing.T) {
	store := &fakeStore{next: failWith(fmt.Errorf("blob: upload x: %w", blob.ErrUnauthorized))}
	_, err := New(store, Config{}).Upload(context.Background(), []File{pngFile("a.png")}, "tasks", nil)
	var be *BatchError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want *BatchError", err)
	}
	if be.Error() != "You don't have permission to upload files" {
		t.Errorf("Error() = %q", be.Error())
	}
	if !errors.Is(err, blob.ErrUnauthorized) {
		t.Error("BatchError should unwrap to the store error")
	}
}
