package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// Cloudinary stores documents in a Cloudinary account.
type Cloudinary struct {
	cld *cloudinary.Cloudinary
}

// NewCloudinary creates a Cloudinary-backed store.
func NewCloudinary(cloudName, apiKey, apiSecret string) (*Cloudinary, error) {
	if cloudName == "" || apiKey == "" || apiSecret == "" {
		return nil, errors.New("cloudinary credentials not set")
	}

	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("initializing cloudinary: %w", err)
	}
	return &Cloudinary{cld: cld}, nil
}

func (c *Cloudinary) Upload(ctx context.Context, f File, folder string) (Ref, error) {
	base, _ := objectName(f.Name)

	res, err := c.cld.Upload.Upload(ctx, f.Body, uploader.UploadParams{
		Folder:       folder,
		PublicID:     base,
		ResourceType: "auto",
	})
	if err != nil {
		return Ref{}, fmt.Errorf("uploading %s to cloudinary: %w", f.Name, err)
	}
	if res.Error.Message != "" {
		return Ref{}, fmt.Errorf("uploading %s to cloudinary: %s", f.Name, res.Error.Message)
	}

	return Ref{URL: res.SecureURL, PublicID: res.PublicID}, nil
}

func (c *Cloudinary) Delete(ctx context.Context, publicID string) error {
	res, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	if err != nil {
		return fmt.Errorf("deleting %s from cloudinary: %w", publicID, err)
	}
	if res.Error.Message != "" {
		return fmt.Errorf("deleting %s from cloudinary: %s", publicID, res.Error.Message)
	}
	if res.Result != "ok" {
		return fmt.Errorf("deleting %s from cloudinary: result %q", publicID, res.Result)
	}
	return nil
}
