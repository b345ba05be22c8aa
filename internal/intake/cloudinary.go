package intake

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/sirupsen/logrus"
)

const (
	// uploadFolder namespaces every asset this service owns on Cloudinary.
	uploadFolder = "dramawallah"

	// uploadTransform normalizes inbound photos for the website: fill-crop
	// to a 1000x600 box, then automatic quality.
	uploadTransform = "c_fill,w_1000,h_600/q_auto:good"
)

// Credentials are the Cloudinary account settings. All three are required;
// missing values fail the upload operation, not process startup.
type Credentials struct {
	CloudName string
	APIKey    string
	APISecret string
}

// CloudinaryUploader implements Resolver by re-hosting Telegram photos on
// Cloudinary. The SDK client is created lazily on first use so that a
// misconfigured account only breaks the image path, with a descriptive
// error, instead of the whole process.
type CloudinaryUploader struct {
	creds Credentials
	files FileLinker
	log   logrus.FieldLogger

	mu  sync.Mutex
	cld *cloudinary.Cloudinary
}

// NewCloudinaryUploader creates an uploader that resolves Telegram file IDs
// through files and uploads the result to Cloudinary.
func NewCloudinaryUploader(creds Credentials, files FileLinker, logger logrus.FieldLogger) *CloudinaryUploader {
	return &CloudinaryUploader{
		creds: creds,
		files: files,
		log:   logger.WithField("component", "image_intake"),
	}
}

func (u *CloudinaryUploader) client() (*cloudinary.Cloudinary, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.cld != nil {
		return u.cld, nil
	}
	if u.creds.CloudName == "" || u.creds.APIKey == "" || u.creds.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials are not set (CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY, CLOUDINARY_API_SECRET)")
	}

	cld, err := cloudinary.NewFromParams(u.creds.CloudName, u.creds.APIKey, u.creds.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudinary client: %w", err)
	}
	u.cld = cld
	return cld, nil
}

// Resolve fetches the transient Telegram download URL for fileID and uploads
// it to Cloudinary, returning the durable secure URL.
func (u *CloudinaryUploader) Resolve(ctx context.Context, fileID string) (string, error) {
	log := u.log.WithField("file_id", fileID)

	cld, err := u.client()
	if err != nil {
		log.WithError(err).Error("Image intake unavailable")
		return "", err
	}

	fileURL, err := u.files.FileURL(ctx, fileID)
	if err != nil {
		log.WithError(err).Error("Failed to resolve Telegram file")
		return "", fmt.Errorf("failed to resolve telegram file: %w", err)
	}

	// Cloudinary ingests the remote URL directly; the bytes never pass
	// through this process.
	res, err := cld.Upload.Upload(ctx, fileURL, uploader.UploadParams{
		Folder:         uploadFolder,
		Transformation: uploadTransform,
	})
	if err != nil {
		log.WithError(err).Error("Cloudinary upload failed")
		return "", fmt.Errorf("cloudinary upload failed: %w", err)
	}
	if res.Error.Message != "" {
		log.WithField("upload_error", res.Error.Message).Error("Cloudinary upload rejected")
		return "", fmt.Errorf("cloudinary upload rejected: %s", res.Error.Message)
	}

	log.WithField("secure_url", res.SecureURL).Info("Image uploaded")
	return res.SecureURL, nil
}
