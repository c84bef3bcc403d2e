package catalog

import (
	"context"
	"encoding/base64"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/opgw/internal/backend"
	"github.com/vyrodovalexey/opgw/internal/classify"
)

// memoryStore is an in-memory backend.ObjectStore.
type memoryStore struct {
	mu        sync.Mutex
	objects   map[string]backend.Object
	deleteErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string]backend.Object)}
}

func (s *memoryStore) List(_ context.Context, prefix string, maxKeys int32, _ string) (*backend.ObjectPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	page := &backend.ObjectPage{}
	for i, k := range keys {
		if int32(i) >= maxKeys {
			page.Truncated = true
			page.NextToken = k
			break
		}
		page.Objects = append(page.Objects, s.objects[k].ObjectInfo)
	}
	return page, nil
}

func (s *memoryStore) Put(_ context.Context, key string, data []byte, contentType string) (*backend.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := backend.ObjectInfo{Key: key, Size: int64(len(data)), ContentType: contentType}
	s.objects[key] = backend.Object{ObjectInfo: info, Data: append([]byte(nil), data...)}
	return &info, nil
}

func (s *memoryStore) Get(_ context.Context, key string) (*backend.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, classify.NewError("storage/object-not-found", key)
	}
	return &obj, nil
}

func (s *memoryStore) Head(ctx context.Context, key string) (*backend.ObjectInfo, error) {
	obj, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return &obj.ObjectInfo, nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.objects, key)
	return nil
}

func (s *memoryStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func invoke(t *testing.T, store backend.ObjectStore, op string, args map[string]any) (any, error) {
	t.Helper()

	e, ok := MustDefault().Lookup(op)
	require.True(t, ok, op)

	var h *backend.TenantHandle
	if store != nil {
		h = &backend.TenantHandle{TenantID: "acme", Storage: store}
	}
	return e.Handler(context.Background(), h, args)
}

func TestStorage_UploadDownload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		upload       map[string]any
		download     map[string]any
		wantContent  string
		wantEncoding string
	}{
		{
			name:         "text",
			upload:       map[string]any{"path": "/docs/a.txt", "content": "hello", "contentType": "text/plain"},
			download:     map[string]any{"path": "docs/a.txt"},
			wantContent:  "hello",
			wantEncoding: EncodingUTF8,
		},
		{
			name:         "binary uploaded as base64",
			upload:       map[string]any{"path": "img.bin", "content": base64.StdEncoding.EncodeToString([]byte{0xff, 0x00}), "encoding": "base64"},
			download:     map[string]any{"path": "img.bin"},
			wantContent:  base64.StdEncoding.EncodeToString([]byte{0xff, 0x00}),
			wantEncoding: EncodingBase64,
		},
		{
			name:         "text requested as base64",
			upload:       map[string]any{"path": "b.txt", "content": "hi"},
			download:     map[string]any{"path": "b.txt", "encoding": "base64"},
			wantContent:  base64.StdEncoding.EncodeToString([]byte("hi")),
			wantEncoding: EncodingBase64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newMemoryStore()
			_, err := invoke(t, store, "uploadFile", tt.upload)
			require.NoError(t, err)

			out, err := invoke(t, store, "downloadFile", tt.download)
			require.NoError(t, err)

			file, ok := out.(downloadedFile)
			require.True(t, ok)
			assert.Equal(t, tt.wantContent, file.Content)
			assert.Equal(t, tt.wantEncoding, file.Encoding)
		})
	}
}

func TestStorage_InvalidArguments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		op   string
		args map[string]any
	}{
		{name: "upload without path", op: "uploadFile", args: map[string]any{"content": "x"}},
		{name: "upload root path", op: "uploadFile", args: map[string]any{"path": "/"}},
		{name: "upload bad base64", op: "uploadFile", args: map[string]any{"path": "a", "content": "!!", "encoding": "base64"}},
		{name: "upload unknown encoding", op: "uploadFile", args: map[string]any{"path": "a", "encoding": "rot13"}},
		{name: "list limit too large", op: "listFiles", args: map[string]any{"maxResults": 5000}},
		{name: "list limit zero", op: "listFiles", args: map[string]any{"maxResults": 0}},
		{name: "copy onto itself", op: "copyFile", args: map[string]any{"source": "a", "destination": "/a"}},
		{name: "delete without path", op: "deleteFile", args: map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := invoke(t, newMemoryStore(), tt.op, tt.args)
			require.Error(t, err)
			assert.Equal(t, classify.TypeInvalidInput, classify.Classify(err).Type)
		})
	}
}

func TestStorage_NotEnabled(t *testing.T) {
	t.Parallel()

	_, err := invoke(t, nil, "listFiles", nil)
	require.Error(t, err)
	assert.Equal(t, classify.TypeInvalidInput, classify.Classify(err).Type)
}

func TestStorage_ListFiles(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	for _, p := range []string{"docs/a", "docs/b", "docs/c", "img/d"} {
		_, err := store.Put(context.Background(), p, []byte(p), "")
		require.NoError(t, err)
	}

	out, err := invoke(t, store, "listFiles", map[string]any{"prefix": "/docs/", "maxResults": 2.0})
	require.NoError(t, err)

	page, ok := out.(*backend.ObjectPage)
	require.True(t, ok)
	require.Len(t, page.Objects, 2)
	assert.Equal(t, "docs/a", page.Objects[0].Key)
	assert.True(t, page.Truncated)
	assert.Equal(t, "docs/c", page.NextToken)
}

func TestStorage_CopyMoveDelete(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	_, err := store.Put(context.Background(), "src", []byte("data"), "text/plain")
	require.NoError(t, err)

	_, err = invoke(t, store, "copyFile", map[string]any{"source": "src", "destination": "copy"})
	require.NoError(t, err)
	assert.True(t, store.has("src"))
	assert.True(t, store.has("copy"))

	_, err = invoke(t, store, "moveFile", map[string]any{"source": "copy", "destination": "moved"})
	require.NoError(t, err)
	assert.False(t, store.has("copy"))
	assert.True(t, store.has("moved"))

	meta, err := invoke(t, store, "getFileMetadata", map[string]any{"path": "moved"})
	require.NoError(t, err)
	assert.Equal(t, "text/plain", meta.(*backend.ObjectInfo).ContentType)

	out, err := invoke(t, store, "deleteFile", map[string]any{"path": "moved"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"path": "moved", "deleted": true}, out)

	_, err = invoke(t, store, "getFileMetadata", map[string]any{"path": "moved"})
	require.Error(t, err)
	assert.Equal(t, classify.CategoryNotFound, classify.Classify(err).Category)
}

func TestStorage_MoveKeepsSourceWhenDeleteFails(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	_, err := store.Put(context.Background(), "src", []byte("data"), "")
	require.NoError(t, err)
	store.deleteErr = errors.New("connection reset by peer")

	_, err = invoke(t, store, "moveFile", map[string]any{"source": "src", "destination": "dst"})
	require.Error(t, err)
	assert.Equal(t, classify.TypeConnection, classify.Classify(err).Type)
	assert.True(t, store.has("src"))
	assert.True(t, store.has("dst"))
}
