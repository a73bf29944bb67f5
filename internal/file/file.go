// Package file はレシート画像・PDFのアップロードと配信を提供する。
package file

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/expenfyre/internal/model"
)

// MaxSize はアップロードできるファイルの最大バイト数。
const MaxSize = 10 << 20

// ErrNotFound はファイルが存在しない場合のエラー。
var ErrNotFound = errors.New("file not found")

var filenamePattern = regexp.MustCompile(`^[0-9a-f-]{36}\.[a-z0-9]{1,5}$`)

var extByType = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/heic":      ".heic",
	"application/pdf": ".pdf",
}

// Storage はファイルの保存先。
type Storage interface {
	Put(ctx context.Context, name, contentType string, data []byte) error
	// Get は内容とContent-Typeを返す。存在しない場合はErrNotFound。
	Get(ctx context.Context, name string) ([]byte, string, error)
}

// Uploaded はアップロード結果。
type Uploaded struct {
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// Service はファイルのサービス層。
type Service struct {
	storage Storage
	baseURL string
}

// NewService はServiceを生成する。baseURLは配信URLの組み立てに使う。
func NewService(storage Storage, baseURL string) *Service {
	return &Service{storage: storage, baseURL: strings.TrimRight(baseURL, "/")}
}

// Upload は画像またはPDFを保存し、生成したファイル名を返す。
func (s *Service) Upload(ctx context.Context, originalName, contentType string, data []byte) (*Uploaded, error) {
	contentType = normalizeType(contentType)
	if !Allowed(contentType) {
		return nil, model.NewValidationError("only image and PDF files are allowed")
	}
	if len(data) == 0 {
		return nil, model.NewValidationError("file is empty")
	}
	if len(data) > MaxSize {
		return nil, model.NewValidationError("file must be at most 10MB")
	}

	name := uuid.NewString() + extension(originalName, contentType)
	if err := s.storage.Put(ctx, name, contentType, data); err != nil {
		return nil, model.NewUpstreamError("storage", err)
	}
	slog.Info("file uploaded",
		slog.String("filename", name),
		slog.String("content_type", contentType),
		slog.Int("size", len(data)),
	)
	return &Uploaded{
		Filename:    name,
		URL:         s.baseURL + "/api/file/" + name,
		ContentType: contentType,
		Size:        len(data),
	}, nil
}

// Get は保存済みファイルの内容とContent-Typeを返す。
func (s *Service) Get(ctx context.Context, name string) ([]byte, string, error) {
	if !filenamePattern.MatchString(name) {
		return nil, "", model.NewNotFoundError("file", name)
	}
	data, contentType, err := s.storage.Get(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return nil, "", model.NewNotFoundError("file", name)
	}
	if err != nil {
		return nil, "", model.NewUpstreamError("storage", err)
	}
	return data, contentType, nil
}

// Allowed は受け付けるContent-Typeかを返す。スクリプトを含みうるSVGは画像として扱わない。
func Allowed(contentType string) bool {
	contentType = normalizeType(contentType)
	if contentType == "image/svg+xml" {
		return false
	}
	return strings.HasPrefix(contentType, "image/") || contentType == "application/pdf"
}

func normalizeType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// extension はContent-Typeから拡張子を決める。未知の型は元のファイル名の拡張子を使う。
func extension(originalName, contentType string) string {
	if ext, ok := extByType[contentType]; ok {
		return ext
	}
	ext := strings.ToLower(filepath.Ext(originalName))
	if len(ext) >= 2 && len(ext) <= 6 && isAlnum(ext[1:]) {
		return ext
	}
	return ".bin"
}

func isAlnum(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
