package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"gitlab.com/timkado/api/post-loader-service/internal/adapters/config"
	"gitlab.com/timkado/api/post-loader-service/internal/domain"
)

const (
	keyPrefix         = "avatars/"
	sourceURLMetaKey  = "source_url"
	updatedAtMetaKey  = "updated_at"
	avatarContentType = "application/octet-stream"
)

// ImageStoreAdapter implements domain.ImageDataStore on an S3 bucket, one object per user.
type ImageStoreAdapter struct {
	bucket   string
	client   *awss3.Client
	uploader *manager.Uploader
	logger   domain.Logger
}

func NewImageStoreAdapter(bucket string, client *awss3.Client, logger domain.Logger) *ImageStoreAdapter {
	if client == nil {
		panic("s3 client cannot be nil in NewImageStoreAdapter")
	}
	if logger == nil {
		panic("logger cannot be nil in NewImageStoreAdapter")
	}
	return &ImageStoreAdapter{
		bucket:   bucket,
		client:   client,
		uploader: manager.NewUploader(client),
		logger:   logger,
	}
}

// NewClient builds an S3 client from the s3 config section. A configured endpoint
// switches to path-style addressing for S3-compatible servers.
func NewClient(ctx context.Context, cfgProvider config.Provider) (*awss3.Client, error) {
	s3Cfg := cfgProvider.Get().S3
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(s3Cfg.Region)}
	if s3Cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s3Cfg.AccessKey, s3Cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if s3Cfg.Endpoint != "" {
			o.UsePathStyle = true
			o.BaseEndpoint = aws.String(s3Cfg.Endpoint)
		}
	}), nil
}

func objectKey(userID int) string {
	return keyPrefix + strconv.Itoa(userID)
}

func (a *ImageStoreAdapter) RetrieveImageData(ctx context.Context, userID int) ([]byte, error) {
	key := objectKey(userID)
	out, err := a.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		a.logger.Error(ctx, "Failed to get avatar from S3", "key", key, "error", err.Error())
		return nil, fmt.Errorf("s3 GetObject for '%s' failed: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3 object '%s': %w", key, err)
	}
	return body, nil
}

func (a *ImageStoreAdapter) InsertImageData(ctx context.Context, data []byte, userID int, sourceURL string) error {
	key := objectKey(userID)
	_, err := a.uploader.Upload(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(avatarContentType),
		Metadata: map[string]string{
			sourceURLMetaKey: sourceURL,
			updatedAtMetaKey: strconv.FormatInt(time.Now().Unix(), 10),
		},
	})
	if err != nil {
		a.logger.Error(ctx, "Failed to upload avatar to S3", "key", key, "error", err.Error())
		return fmt.Errorf("s3 upload for '%s' failed: %w", key, err)
	}
	return nil
}

// Ping checks that the bucket is reachable.
func (a *ImageStoreAdapter) Ping(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	return err
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}
