package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lgtmagic/internal/client/moderation"
	"lgtmagic/internal/domain"
	"lgtmagic/internal/repository"
)

type fakeStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	types     map[string]string
	created   map[string]time.Time
	clock     time.Time
	uploadErr error
	listErr   error
	deleteErr error
	deleted   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
		created: make(map[string]time.Time),
		clock:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) UploadFile(_ context.Context, key string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return f.uploadErr
	}
	if _, ok := f.objects[key]; ok {
		return errors.New("object exists")
	}
	f.clock = f.clock.Add(time.Second)
	f.objects[key] = append([]byte(nil), data...)
	f.types[key] = contentType
	f.created[key] = f.clock
	return nil
}

func (f *fakeStore) ListFiles(_ context.Context, _ string) ([]domain.StoredObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.StoredObject, 0, len(f.objects))
	for k, v := range f.objects {
		out = append(out, domain.StoredObject{Name: k, Size: int64(len(v)), CreatedAt: f.created[k]})
	}
	// newest first
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CreatedAt.After(out[j-1].CreatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteFile(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeStore) PublicURL(key string) string {
	return repository.JoinPublicURL("https://cdn.example.com/lgtm", key)
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

type failingQuotaRepo struct {
	countErr, incrErr error
	counts            map[string]int
}

func (f *failingQuotaRepo) Count(_ context.Context, identity, day string) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.counts[identity+"|"+day], nil
}

func (f *failingQuotaRepo) Increment(_ context.Context, identity, day string) (int, error) {
	if f.incrErr != nil {
		return 0, f.incrErr
	}
	if f.counts == nil {
		f.counts = make(map[string]int)
	}
	f.counts[identity+"|"+day]++
	return f.counts[identity+"|"+day], nil
}

type fakeSafeSearch struct {
	enabled bool
	result  *moderation.SafeSearch
	err     error
	calls   int
}

func (f *fakeSafeSearch) Enabled() bool { return f.enabled }

func (f *fakeSafeSearch) SafeSearch(_ context.Context, _ []byte) (*moderation.SafeSearch, error) {
	f.calls++
	return f.result, f.err
}

type fakeLookup struct {
	ip    string
	err   error
	calls int
}

func (f *fakeLookup) PublicIP(_ context.Context) (string, error) {
	f.calls++
	return f.ip, f.err
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}
