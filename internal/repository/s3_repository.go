package repository

import (
	"bytes"
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"lgtmagic/internal/config"
	"lgtmagic/internal/domain"
)

// ObjectStore is the public bucket holding composited images.
type ObjectStore interface {
	UploadFile(ctx context.Context, key string, data []byte, contentType string) error
	ListFiles(ctx context.Context, prefix string) ([]domain.StoredObject, error)
	DeleteFile(ctx context.Context, key string) error
	PublicURL(key string) string
}

type s3Repository struct {
	client *s3.Client
	cfg    *config.S3Config
	log    *zap.Logger
}

func NewS3Repository(ctx context.Context, cfg *config.S3Config, log *zap.Logger) (ObjectStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	repo := &s3Repository{
		client: client,
		cfg:    cfg,
		log:    log,
	}

	if err := repo.ensureBucketExists(ctx); err != nil {
		log.Warn("Failed to ensure bucket exists", zap.Error(err))
	}

	return repo, nil
}

func (r *s3Repository) ensureBucketExists(ctx context.Context) error {
	_, err := r.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(r.cfg.BucketName),
	})
	if err == nil {
		r.log.Info("Bucket already exists", zap.String("bucket", r.cfg.BucketName))
		return nil
	}

	r.log.Info("Creating bucket", zap.String("bucket", r.cfg.BucketName))

	input := &s3.CreateBucketInput{Bucket: aws.String(r.cfg.BucketName)}
	// us-east-1 rejects an explicit location constraint.
	if r.cfg.Region != "" && r.cfg.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(r.cfg.Region),
		}
	}

	if _, err = r.client.CreateBucket(ctx, input); err != nil {
		return err
	}

	r.log.Info("Bucket created successfully", zap.String("bucket", r.cfg.BucketName))
	return nil
}

// UploadFile writes a new object. Existing keys are never overwritten.
func (r *s3Repository) UploadFile(ctx context.Context, key string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(r.cfg.BucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		IfNoneMatch:   aws.String("*"),
	}
	if r.cfg.CacheControl != "" {
		input.CacheControl = aws.String(r.cfg.CacheControl)
	}

	if _, err := r.client.PutObject(ctx, input); err != nil {
		r.log.Error("Failed to upload file to S3",
			zap.String("key", key),
			zap.Error(err))
		return err
	}

	r.log.Info("File uploaded to S3",
		zap.String("key", key),
		zap.Int("size", len(data)))

	return nil
}

// ListFiles returns every object under prefix, newest first.
func (r *s3Repository) ListFiles(ctx context.Context, prefix string) ([]domain.StoredObject, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(r.cfg.BucketName)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var objects []domain.StoredObject
	paginator := s3.NewListObjectsV2Paginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		objects = append(objects, toStoredObjects(page.Contents)...)
	}

	sortNewestFirst(objects)
	return objects, nil
}

func (r *s3Repository) DeleteFile(ctx context.Context, key string) error {
	_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.cfg.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		r.log.Error("Failed to delete file from S3",
			zap.String("key", key),
			zap.Error(err))
		return err
	}

	r.log.Info("File deleted from S3", zap.String("key", key))
	return nil
}

func (r *s3Repository) PublicURL(key string) string {
	return JoinPublicURL(r.cfg.PublicBaseURL, key)
}

// JoinPublicURL appends an escaped object key to the bucket's public base.
func JoinPublicURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(key)
}

func toStoredObjects(contents []types.Object) []domain.StoredObject {
	out := make([]domain.StoredObject, 0, len(contents))
	for _, obj := range contents {
		key := aws.ToString(obj.Key)
		if key == "" || strings.HasSuffix(key, "/") {
			continue
		}
		out = append(out, domain.StoredObject{
			Name:      key,
			Size:      aws.ToInt64(obj.Size),
			CreatedAt: aws.ToTime(obj.LastModified),
		})
	}
	return out
}

func sortNewestFirst(objects []domain.StoredObject) {
	sort.SliceStable(objects, func(i, j int) bool {
		if objects[i].CreatedAt.Equal(objects[j].CreatedAt) {
			return objects[i].Name > objects[j].Name
		}
		return objects[i].CreatedAt.After(objects[j].CreatedAt)
	})
}
