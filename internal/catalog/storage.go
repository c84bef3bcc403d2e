package catalog

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/vyrodovalexey/opgw/internal/backend"
)

// Content encodings accepted by uploadFile and produced by downloadFile.
const (
	EncodingUTF8   = "utf8"
	EncodingBase64 = "base64"
)

// defaultListLimit caps listFiles when maxResults is absent.
const defaultListLimit = 1000

// storageHandler adapts a handler that needs the tenant object store.
func storageHandler(fn func(ctx context.Context, store backend.ObjectStore, args map[string]any) (any, error)) Handler {
	return func(ctx context.Context, h *backend.TenantHandle, args map[string]any) (any, error) {
		if h == nil || h.Storage == nil {
			return nil, invalidArg("object storage is not enabled")
		}
		return fn(ctx, h.Storage, args)
	}
}

func objectPath(args map[string]any, name string) (string, error) {
	p, err := stringArg(args, name, true)
	if err != nil {
		return "", err
	}
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return "", invalidArg("argument %q must name an object", name)
	}
	return p, nil
}

func listFiles(ctx context.Context, store backend.ObjectStore, args map[string]any) (any, error) {
	prefix, err := stringArg(args, "prefix", false)
	if err != nil {
		return nil, err
	}
	limit, err := intArg(args, "maxResults", defaultListLimit)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > defaultListLimit {
		return nil, invalidArg("argument %q must be between 1 and %d", "maxResults", defaultListLimit)
	}
	token, err := stringArg(args, "pageToken", false)
	if err != nil {
		return nil, err
	}

	return store.List(ctx, strings.TrimLeft(prefix, "/"), int32(limit), token) //nolint:gosec // bounded above
}

func uploadFile(ctx context.Context, store backend.ObjectStore, args map[string]any) (any, error) {
	path, err := objectPath(args, "path")
	if err != nil {
		return nil, err
	}
	content, err := stringArg(args, "content", false)
	if err != nil {
		return nil, err
	}
	contentType, err := stringArg(args, "contentType", false)
	if err != nil {
		return nil, err
	}
	encoding, err := stringArg(args, "encoding", false)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch encoding {
	case "", EncodingUTF8:
		data = []byte(content)
	case EncodingBase64:
		data, err = base64.StdEncoding.DecodeString(content)
		if err != nil {
			return nil, invalidArg("argument %q is not valid base64", "content")
		}
	default:
		return nil, invalidArg("unsupported encoding %q", encoding)
	}

	return store.Put(ctx, path, data, contentType)
}

// downloadedFile is the result of downloadFile.
type downloadedFile struct {
	backend.ObjectInfo
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

func downloadFile(ctx context.Context, store backend.ObjectStore, args map[string]any) (any, error) {
	path, err := objectPath(args, "path")
	if err != nil {
		return nil, err
	}
	encoding, err := stringArg(args, "encoding", false)
	if err != nil {
		return nil, err
	}

	obj, err := store.Get(ctx, path)
	if err != nil {
		return nil, err
	}

	out := downloadedFile{ObjectInfo: obj.ObjectInfo}
	switch {
	case encoding == EncodingBase64, encoding == "" && !utf8.Valid(obj.Data):
		out.Content = base64.StdEncoding.EncodeToString(obj.Data)
		out.Encoding = EncodingBase64
	case encoding == "" || encoding == EncodingUTF8:
		if !utf8.Valid(obj.Data) {
			return nil, invalidArg("object %q is not valid UTF-8", path)
		}
		out.Content = string(obj.Data)
		out.Encoding = EncodingUTF8
	default:
		return nil, invalidArg("unsupported encoding %q", encoding)
	}
	return out, nil
}

func deleteFile(ctx context.Context, store backend.ObjectStore, args map[string]any) (any, error) {
	path, err := objectPath(args, "path")
	if err != nil {
		return nil, err
	}
	if err := store.Delete(ctx, path); err != nil {
		return nil, err
	}
	return map[string]any{"path": path, "deleted": true}, nil
}

func getFileMetadata(ctx context.Context, store backend.ObjectStore, args map[string]any) (any, error) {
	path, err := objectPath(args, "path")
	if err != nil {
		return nil, err
	}
	return store.Head(ctx, path)
}

func copyObject(ctx context.Context, store backend.ObjectStore, args map[string]any) (string, string, *backend.ObjectInfo, error) {
	src, err := objectPath(args, "source")
	if err != nil {
		return "", "", nil, err
	}
	dst, err := objectPath(args, "destination")
	if err != nil {
		return "", "", nil, err
	}
	if src == dst {
		return "", "", nil, invalidArg("source and destination are the same object")
	}

	obj, err := store.Get(ctx, src)
	if err != nil {
		return "", "", nil, err
	}
	info, err := store.Put(ctx, dst, obj.Data, obj.ContentType)
	if err != nil {
		return "", "", nil, fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return src, dst, info, nil
}

func copyFile(ctx context.Context, store backend.ObjectStore, args map[string]any) (any, error) {
	_, _, info, err := copyObject(ctx, store, args)
	if err != nil {
		return nil, err
	}
	return info, nil
}

// moveFile copies then deletes the source. A failed delete leaves both
// objects in place and is reported as the error.
func moveFile(ctx context.Context, store backend.ObjectStore, args map[string]any) (any, error) {
	src, _, info, err := copyObject(ctx, store, args)
	if err != nil {
		return nil, err
	}
	if err := store.Delete(ctx, src); err != nil {
		return nil, fmt.Errorf("remove %s after copy: %w", src, err)
	}
	return info, nil
}

