package cdn

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// CloudinaryUploader uploads assets through the Cloudinary upload API.
type CloudinaryUploader struct {
	cld *cloudinary.Cloudinary
}

// NewCloudinaryUploader builds an uploader for one account. Key and secret
// are mandatory.
func NewCloudinaryUploader(cloudName, apiKey, apiSecret string) (*CloudinaryUploader, error) {
	if strings.TrimSpace(cloudName) == "" {
		return nil, ErrCloudNameRequired
	}
	if strings.TrimSpace(apiKey) == "" || strings.TrimSpace(apiSecret) == "" {
		return nil, ErrCredentialsRequired
	}
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, err
	}
	return &CloudinaryUploader{cld: cld}, nil
}

// Upload implements Uploader. The public id mirrors the site path without its
// extension so repeated builds land on the same asset.
func (u *CloudinaryUploader) Upload(ctx context.Context, in UploadInput) (UploadResult, error) {
	resp, err := u.cld.Upload.Upload(ctx, in.Body, uploader.UploadParams{
		PublicID:     PublicIDFor(in.PublishPath),
		Folder:       in.Folder,
		UploadPreset: in.UploadPreset,
	})
	if err != nil {
		return UploadResult{}, err
	}
	if resp == nil {
		return UploadResult{}, errors.New("empty upload response")
	}
	if resp.Error.Message != "" {
		return UploadResult{}, errors.New(resp.Error.Message)
	}
	return UploadResult{
		SecureURL: resp.SecureURL,
		PublicID:  resp.PublicID,
		Width:     resp.Width,
		Height:    resp.Height,
	}, nil
}

// PublicIDFor derives the public id requested for a site path:
// "/images/team/a.png" -> "images/team/a".
func PublicIDFor(publishPath string) string {
	p := strings.TrimPrefix(path.Clean("/"+publishPath), "/")
	return strings.TrimSuffix(p, path.Ext(p))
}
