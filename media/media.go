// Package media stores user uploads (avatars, post images, message
// attachments) on Cloudinary.
package media

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

type Kind string

const (
	KindAvatar     Kind = "avatar"
	KindPostImage  Kind = "post"
	KindAttachment Kind = "attachment"
)

// MaxUploadSize bounds multipart bodies accepted by the handlers.
const MaxUploadSize = 10 << 20

type Result struct {
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
	Format   string `json:"format"`
	Bytes    int    `json:"bytes"`
}

type Uploader interface {
	Upload(ctx context.Context, kind Kind, owner string, file io.Reader) (*Result, error)
}

type Cloudinary struct {
	cld  *cloudinary.Cloudinary
	root string
	now  func() time.Time
}

// NewCloudinary connects with a cloudinary:// URL. root prefixes every
// folder, e.g. "connectly".
func NewCloudinary(url, root string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromURL(url)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	return &Cloudinary{cld: cld, root: root, now: time.Now}, nil
}

func (c *Cloudinary) Upload(ctx context.Context, kind Kind, owner string, file io.Reader) (*Result, error) {
	res, err := c.cld.Upload.Upload(ctx, file, uploadParams(c.root, kind, owner, c.now()))
	if err != nil {
		return nil, fmt.Errorf("cloudinary upload: %w", err)
	}
	if res.Error.Message != "" {
		return nil, fmt.Errorf("cloudinary upload: %s", res.Error.Message)
	}
	return &Result{
		URL:      res.SecureURL,
		PublicID: res.PublicID,
		Format:   res.Format,
		Bytes:    res.Bytes,
	}, nil
}

func uploadParams(root string, kind Kind, owner string, now time.Time) uploader.UploadParams {
	folder := root + "/" + string(kind) + "s"
	stamp := owner + "_" + now.UTC().Format("20060102150405.000")

	switch kind {
	case KindAvatar:
		return uploader.UploadParams{
			Folder:         folder,
			PublicID:       owner,
			Overwrite:      api.Bool(true),
			Transformation: "c_limit,w_400,h_400,q_auto",
		}
	case KindPostImage:
		return uploader.UploadParams{
			Folder:         folder,
			PublicID:       stamp,
			Transformation: "c_limit,w_1200,h_1200,q_auto",
		}
	default:
		return uploader.UploadParams{
			Folder:       folder,
			PublicID:     stamp,
			ResourceType: "auto",
		}
	}
}
