package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/hitoshi/expenfyre/internal/file"
	"github.com/hitoshi/expenfyre/internal/middleware"
	"github.com/hitoshi/expenfyre/internal/model"
)

// uploadFormField はmultipartフォームのファイルフィールド名。
const uploadFormField = "file"

// FileService はファイルハンドラーが必要とするサービスインターフェース。
type FileService interface {
	Upload(ctx context.Context, originalName, contentType string, data []byte) (*file.Uploaded, error)
	Get(ctx context.Context, name string) ([]byte, string, error)
}

// FileHandler はレシートのアップロードと配信のHTTPハンドラー。
type FileHandler struct {
	service FileService
}

// NewFileHandler はFileHandlerを生成する。
func NewFileHandler(service FileService) *FileHandler {
	return &FileHandler{service: service}
}

// Upload はmultipart/form-dataのfileフィールドを保存する。
// POST /api/upload
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorFrom(w, r); !ok {
		return
	}

	// フォームの境界やヘッダー分の余裕を持たせる
	r.Body = http.MaxBytesReader(w, r.Body, file.MaxSize+1<<20)
	if err := r.ParseMultipartForm(file.MaxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, model.NewValidationError("file must be at most 10MB"))
			return
		}
		middleware.WriteError(w, model.NewValidationError("Invalid multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	f, header, err := r.FormFile(uploadFormField)
	if err != nil {
		middleware.WriteError(w, model.NewValidationError("No file provided"))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, file.MaxSize+1))
	if err != nil {
		middleware.WriteError(w, model.NewValidationError("Failed to read uploaded file"))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	uploaded, err := h.service.Upload(r.Context(), header.Filename, contentType, data)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, uploaded)
}

// Serve は保存済みファイルを返す。認証不要。
// GET /api/file/{filename}
func (h *FileHandler) Serve(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := h.service.Get(r.Context(), pathParam(r, "filename"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; sandbox")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if !file.Allowed(contentType) {
		// 受付対象外の型で保存済みのものはブラウザで開かせない
		w.Header().Set("Content-Disposition", "attachment")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
