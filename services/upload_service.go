package services

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/yeremiapane/restaurant-pos/utils"
)

const (
	MaxImageSize   = 5 << 20
	ImageURLPrefix = "/uploads/menu_images/"
)

var allowedImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// ImageStore is the part of the catalog an upload may update.
type ImageStore interface {
	SetMenuItemImage(ctx context.Context, id uint, url string) error
}

type UploadService struct {
	dir     string
	baseURL string
	images  ImageStore
}

func NewUploadService(dir, baseURL string, images ImageStore) *UploadService {
	return &UploadService{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), images: images}
}

func (s *UploadService) Dir() string {
	return s.dir
}

// SaveImage stores an uploaded image under a random name and returns its
// public URL. With a menu item id the item's image is pointed at it.
func (s *UploadService) SaveImage(ctx context.Context, file *multipart.FileHeader, menuItemID *uint) (string, error) {
	if file.Size > MaxImageSize {
		return "", utils.NewValidationError("image must not exceed %d MB", MaxImageSize>>20)
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedImageExtensions[ext] {
		return "", utils.NewValidationError("unsupported image extension %q", ext)
	}

	src, err := file.Open()
	if err != nil {
		return "", utils.NewValidationError("unreadable upload")
	}
	defer src.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", utils.NewValidationError("unreadable upload")
	}
	if !strings.HasPrefix(http.DetectContentType(head[:n]), "image/") {
		return "", utils.NewValidationError("only image uploads are allowed")
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", utils.NewPersistenceError("failed to read upload", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", utils.NewPersistenceError("failed to prepare upload directory", err)
	}
	name := uuid.NewString() + ext
	path := filepath.Join(s.dir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", utils.NewPersistenceError("failed to store image", err)
	}
	if _, err := io.Copy(dst, io.LimitReader(src, MaxImageSize+1)); err != nil {
		dst.Close()
		os.Remove(path)
		return "", utils.NewPersistenceError("failed to store image", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", utils.NewPersistenceError("failed to store image", err)
	}

	url := s.baseURL + ImageURLPrefix + name
	if menuItemID != nil {
		if err := s.images.SetMenuItemImage(ctx, *menuItemID, url); err != nil {
			// hapus file kalau item tidak bisa diupdate
			os.Remove(path)
			return "", err
		}
	}
	utils.InfoLogger.Printf("Image stored at %s", path)
	return url, nil
}
