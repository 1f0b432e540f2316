package backup

import (
	"fmt"
	"io"
	"log"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/yourusername/craft-server-manager/internal/config"
)

// S3Destination stores backups in AWS S3 or S3-compatible storage
type S3Destination struct {
	bucket   string
	prefix   string
	client   *s3.S3
	uploader *s3manager.Uploader
}

// NewS3Destination creates a new S3 destination. Without an access key
// the default AWS credential chain is used.
func NewS3Destination(cfg config.BackupDestinationConfig) (*S3Destination, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	// Custom endpoint for S3-compatible storage (MinIO, DigitalOcean Spaces, etc.)
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	client := s3.New(sess)
	dest := &S3Destination{
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Path, "/"),
		client:   client,
		uploader: s3manager.NewUploaderWithClient(client),
	}

	log.Printf("[Backup] S3 destination ready: bucket=%s region=%s", cfg.Bucket, cfg.Region)
	return dest, nil
}

func (sd *S3Destination) key(filename string) (*string, error) {
	if err := checkName(filename); err != nil {
		return nil, err
	}
	if sd.prefix == "" {
		return aws.String(filename), nil
	}
	return aws.String(path.Join(sd.prefix, filename)), nil
}

// Upload streams a backup file to S3 with a multipart upload
func (sd *S3Destination) Upload(filename string, reader io.Reader, sizeBytes int64) error {
	key, err := sd.key(filename)
	if err != nil {
		return err
	}
	log.Printf("[Backup] Uploading %s to s3://%s/%s (%d bytes)", filename, sd.bucket, aws.StringValue(key), sizeBytes)

	_, err = sd.uploader.Upload(&s3manager.UploadInput{
		Bucket:       aws.String(sd.bucket),
		Key:          key,
		Body:         reader,
		ContentType:  aws.String(contentType(filename)),
		StorageClass: aws.String(s3.StorageClassStandard),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

// Download downloads a backup file from S3
func (sd *S3Destination) Download(filename string, writer io.Writer) error {
	key, err := sd.key(filename)
	if err != nil {
		return err
	}
	result, err := sd.client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(sd.bucket),
		Key:    key,
	})
	if err != nil {
		return fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer result.Body.Close()

	if _, err := io.Copy(writer, result.Body); err != nil {
		return fmt.Errorf("failed to read S3 object: %w", err)
	}
	return nil
}

// Delete removes a backup file from S3
func (sd *S3Destination) Delete(filename string) error {
	key, err := sd.key(filename)
	if err != nil {
		return err
	}
	if _, err := sd.client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(sd.bucket),
		Key:    key,
	}); err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

// List returns all backup files under the destination prefix
func (sd *S3Destination) List() ([]BackupFile, error) {
	prefix := sd.prefix
	if prefix != "" {
		prefix += "/"
	}

	files := []BackupFile{}
	err := sd.client.ListObjectsV2Pages(&s3.ListObjectsV2Input{
		Bucket: aws.String(sd.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			if key == prefix || strings.HasSuffix(key, "/") {
				continue
			}
			files = append(files, BackupFile{
				Filename:  path.Base(key),
				SizeBytes: aws.Int64Value(obj.Size),
				CreatedAt: aws.TimeValue(obj.LastModified).Unix(),
			})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list S3 objects: %w", err)
	}
	return files, nil
}

// GetType returns the destination type
func (sd *S3Destination) GetType() string {
	return "s3"
}

// Close is a no-op, the SDK client holds no dedicated connection
func (sd *S3Destination) Close() error {
	return nil
}

func contentType(filename string) string {
	if strings.HasSuffix(filename, ".gz") {
		return "application/gzip"
	}
	return "application/x-tar"
}
