package utils

import (
	"context"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/pkg/errors"
)

// ImageStore keeps pot cover and item images.
type ImageStore interface {
	Upload(ctx context.Context, file interface{}) (string, error)
	Delete(ctx context.Context, imageURL string) error
}

// Cloudinary uploads into a single folder.
type Cloudinary struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinary(cloudName, apiKey, apiSecret, folder string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, errors.Wrap(err, "cloudinary config error")
	}
	return &Cloudinary{cld: cld, folder: folder}, nil
}

// Upload accepts anything the Cloudinary SDK does: a multipart.File, an
// io.Reader, a local path or a remote URL.
func (c *Cloudinary) Upload(ctx context.Context, file interface{}) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	resp, err := c.cld.Upload.Upload(ctx, file, uploader.UploadParams{Folder: c.folder})
	if err != nil {
		return "", errors.Wrap(err, "upload error")
	}
	if resp.SecureURL == "" {
		return "", errors.New("upload error: no URL returned")
	}
	return resp.SecureURL, nil
}

func (c *Cloudinary) Delete(ctx context.Context, imageURL string) error {
	publicID, err := ExtractPublicID(imageURL)
	if err != nil {
		return errors.Wrap(err, "could not extract public ID")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID}); err != nil {
		return errors.Wrap(err, "delete error")
	}
	return nil
}

var versionSegment = regexp.MustCompile(`^v\d+$`)

// ExtractPublicID turns
// https://res.cloudinary.com/demo/image/upload/v1234567890/pots/abc123.jpg
// into pots/abc123.
func ExtractPublicID(imageURL string) (string, error) {
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return "", err
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	upload := -1
	for i, p := range parts {
		if p == "upload" {
			upload = i
			break
		}
	}
	if upload < 0 || upload == len(parts)-1 {
		return "", errors.New("invalid cloudinary URL format")
	}
	rest := parts[upload+1:]
	if len(rest) > 1 && versionSegment.MatchString(rest[0]) {
		rest = rest[1:]
	}
	joined := path.Join(rest...)
	return strings.TrimSuffix(joined, path.Ext(joined)), nil
}
