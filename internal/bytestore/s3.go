package bytestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"mn-go/internal/config"
	"mn-go/internal/mn"
)

const s3Scheme = "s3://"

// S3Store keeps object bytes in an S3 bucket under a key prefix. Uploads
// go through the multipart upload manager so sizes need not be known.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Store connects to the bucket named by cfg. Credentials come from
// cfg when an access key is set, and from the default AWS chain otherwise.
func NewS3Store(ctx context.Context, cfg config.StoreConfig) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 store requires s3_bucket to be set")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.S3Bucket,
		prefix:   strings.Trim(cfg.S3Prefix, "/"),
	}, nil
}

// Put uploads the bytes of r under key.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	objectKey := path.Join(s.prefix, key)
	counted := &countingReader{r: r}
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
		Body:   counted,
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", objectKey, err)
	}
	if err := checkSize(size, counted.n); err != nil {
		s.Delete(context.WithoutCancel(ctx), s.url(objectKey))
		return "", err
	}
	return s.url(objectKey), nil
}

// Open streams the object stored at u.
func (s *S3Store) Open(ctx context.Context, u string) (io.ReadCloser, error) {
	bucket, key, err := parseS3URL(u)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, u)
		}
		return nil, fmt.Errorf("reading %s: %w", u, err)
	}
	return out.Body, nil
}

// Exists reports whether u names a stored object.
func (s *S3Store) Exists(ctx context.Context, u string) (bool, error) {
	bucket, key, err := parseS3URL(u)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, fmt.Errorf("checking %s: %w", u, err)
	}
	return true, nil
}

// Delete removes the object stored at u. S3 does not report missing keys.
func (s *S3Store) Delete(ctx context.Context, u string) error {
	bucket, key, err := parseS3URL(u)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}); err != nil {
		return fmt.Errorf("deleting %s: %w", u, err)
	}
	return nil
}

func (s *S3Store) url(objectKey string) string {
	return s3Scheme + s.bucket + "/" + objectKey
}

// parseS3URL splits s3://bucket/key.
func parseS3URL(u string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(u, s3Scheme)
	if !ok {
		return "", "", fmt.Errorf("not an s3 store url: %q", u)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed s3 store url: %q", u)
	}
	return bucket, key, nil
}

// Compile-time check that S3Store implements mn.ByteStore
var _ mn.ByteStore = (*S3Store)(nil)
