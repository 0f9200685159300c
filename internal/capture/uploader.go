// Package capture publishes plant photos dropped into a capture directory.
package capture

import (
	"context"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

type UploadResult struct {
	URL      string
	PublicID string
}

// Uploader hosts a local image and returns where it can be fetched.
type Uploader interface {
	Upload(ctx context.Context, path string) (UploadResult, error)
}

type CloudinaryUploader struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinaryUploader(cloudName, apiKey, apiSecret, folder string) (*CloudinaryUploader, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to configure cloudinary: %w", err)
	}
	cld.Config.URL.Secure = true
	return &CloudinaryUploader{cld: cld, folder: folder}, nil
}

func (u *CloudinaryUploader) Upload(ctx context.Context, path string) (UploadResult, error) {
	resp, err := u.cld.Upload.Upload(ctx, path, uploader.UploadParams{Folder: u.folder})
	if err != nil {
		return UploadResult{}, fmt.Errorf("cloudinary upload failed: %w", err)
	}
	if resp.Error.Message != "" {
		return UploadResult{}, fmt.Errorf("cloudinary upload rejected: %s", resp.Error.Message)
	}
	url := resp.SecureURL
	if url == "" {
		url = resp.URL
	}
	return UploadResult{URL: url, PublicID: resp.PublicID}, nil
}
