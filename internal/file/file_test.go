package file

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/hitoshi/expenfyre/internal/kv"
	"github.com/hitoshi/expenfyre/internal/model"
)

func apiCode(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

func TestService_UploadAndGet_KV(t *testing.T) {
	store := kv.NewMemoryStore()
	svc := NewService(NewKVStore(store), "https://api.example.com/")

	up, err := svc.Upload(context.Background(), "receipt.PNG", "image/png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if !strings.HasSuffix(up.Filename, ".png") || len(up.Filename) != 40 {
		t.Errorf("Filename = %q", up.Filename)
	}
	if up.URL != "https://api.example.com/api/file/"+up.Filename {
		t.Errorf("URL = %q", up.URL)
	}

	raw, err := store.Get(context.Background(), kv.PrefixFile+up.Filename)
	if err != nil {
		t.Fatalf("store.Get() error = %v", err)
	}
	if !strings.HasPrefix(raw, "data:image/png;base64,") {
		t.Errorf("stored value = %q, want data URL", raw)
	}

	data, contentType, err := svc.Get(context.Background(), up.Filename)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(data) != "png-bytes" || contentType != "image/png" {
		t.Errorf("Get() = %q %q", data, contentType)
	}
}

func TestService_UploadValidation(t *testing.T) {
	svc := NewService(NewKVStore(kv.NewMemoryStore()), "")

	tests := []struct {
		name        string
		contentType string
		data        []byte
	}{
		{"text rejected", "text/plain", []byte("x")},
		{"svg rejected", "image/svg+xml", []byte("<svg onload=alert(1)></svg>")},
		{"svg with params rejected", "Image/SVG+XML; charset=utf-8", []byte("<svg></svg>")},
		{"empty rejected", "image/png", nil},
		{"too large", "application/pdf", make([]byte, MaxSize+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upload(context.Background(), "a", tt.contentType, tt.data)
			if apiCode(err) != model.ErrCodeValidation {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
}

func TestService_UploadAcceptsMaxSizePDF(t *testing.T) {
	svc := NewService(NewKVStore(kv.NewMemoryStore()), "")
	up, err := svc.Upload(context.Background(), "scan", "application/pdf; charset=binary", make([]byte, MaxSize))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if !strings.HasSuffix(up.Filename, ".pdf") || up.ContentType != "application/pdf" {
		t.Errorf("upload = %+v", up)
	}
}

func TestService_GetRejectsUnknownNames(t *testing.T) {
	svc := NewService(NewKVStore(kv.NewMemoryStore()), "")
	for _, name := range []string{"../etc/passwd", "missing.png", "00000000-0000-0000-0000-000000000000.png"} {
		if _, _, err := svc.Get(context.Background(), name); apiCode(err) != model.ErrCodeNotFound {
			t.Errorf("Get(%q) err = %v, want not found", name, err)
		}
	}
}

func TestExtension(t *testing.T) {
	tests := []struct {
		name, contentType, want string
	}{
		{"a.jpeg", "image/jpeg", ".jpg"},
		{"a", "application/pdf", ".pdf"},
		{"icon.ICO", "image/x-icon", ".ico"},
		{"noext", "image/x-unknown", ".bin"},
	}
	for _, tt := range tests {
		if got := extension(tt.name, tt.contentType); got != tt.want {
			t.Errorf("extension(%q, %q) = %q, want %q", tt.name, tt.contentType, got, tt.want)
		}
	}
}

type mockS3 struct {
	s3iface.S3API
	objects map[string]*s3.PutObjectInput
	bodies  map[string][]byte
}

func newMockS3() *mockS3 {
	return &mockS3{objects: map[string]*s3.PutObjectInput{}, bodies: map[string][]byte{}}
}

func (m *mockS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.StringValue(in.Key)
	m.objects[key] = in
	m.bodies[key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	key := aws.StringValue(in.Key)
	obj, ok := m.objects[key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader(m.bodies[key])),
		ContentType: obj.ContentType,
	}, nil
}

func TestS3Store(t *testing.T) {
	client := newMockS3()
	svc := NewService(NewS3Store(client, "receipts-bucket"), "")

	up, err := svc.Upload(context.Background(), "bill.pdf", "application/pdf", []byte("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	put := client.objects[s3KeyPrefix+up.Filename]
	if put == nil || aws.StringValue(put.Bucket) != "receipts-bucket" {
		t.Fatalf("object not stored in bucket: %+v", client.objects)
	}

	data, contentType, err := svc.Get(context.Background(), up.Filename)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(data) != "%PDF-1.4" || contentType != "application/pdf" {
		t.Errorf("Get() = %q %q", data, contentType)
	}

	if _, _, err := svc.Get(context.Background(), "11111111-1111-1111-1111-111111111111.pdf"); apiCode(err) != model.ErrCodeNotFound {
		t.Errorf("missing object err = %v, want not found", err)
	}
}
