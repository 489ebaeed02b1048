package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/bourbonbuddy/internal/model"
	"github.com/hitoshi/bourbonbuddy/internal/storage"
)

// storageCacheControl は画像プロキシのレスポンスに付与するキャッシュ指定。
const storageCacheControl = "public, max-age=86400"

// ObjectGetter はバケットからオブジェクトを取得するインターフェース。
type ObjectGetter interface {
	Get(ctx context.Context, key, ifNoneMatch string) (*storage.Object, error)
}

// StorageHandler はバケット上の画像を配信するキャッシュプロキシ。
type StorageHandler struct {
	store ObjectGetter
}

// NewStorageHandler はStorageHandlerを生成する。storeがnilの場合は常に404を返す。
func NewStorageHandler(store ObjectGetter) *StorageHandler {
	return &StorageHandler{store: store}
}

// Get はオブジェクトを配信する。If-None-Matchが一致した場合は304を返す。
// GET /api/storage/*
func (h *StorageHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if !storage.ValidateKey(key) {
		handleServiceError(w, model.NewInvalidObjectKeyError(key))
		return
	}
	if h.store == nil {
		handleServiceError(w, model.NewNotConfiguredError("storage"))
		return
	}

	obj, err := h.store.Get(r.Context(), key, r.Header.Get("If-None-Match"))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			handleServiceError(w, model.NewObjectNotFoundError(key))
			return
		}
		handleServiceError(w, err)
		return
	}

	if obj.ETag != "" {
		w.Header().Set("ETag", obj.ETag)
	}
	w.Header().Set("Cache-Control", storageCacheControl)

	if obj.NotModified {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	defer obj.Body.Close()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if obj.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, obj.Body); err != nil {
		slog.Warn("オブジェクトの転送が中断されました",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
