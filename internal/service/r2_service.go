package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/h2non/filetype"
	ftypes "github.com/h2non/filetype/types"
	gonanoid "github.com/matoous/go-nanoid/v2"

	cfg "github.com/maheshrc27/autoposter/configs"
)

type R2Service struct {
	config cfg.R2
	client *s3.Client
}

func NewR2Service(ctx context.Context, c cfg.R2) (*R2Service, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("load r2 config: %w", err)
	}

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = c.Endpoint != ""
	})
	return &R2Service{config: c, client: client}, nil
}

func (r *R2Service) UploadToR2(ctx context.Context, key string, file []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(r.config.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(file),
		ContentType: aws.String(contentType),
	}
	if _, err := r.client.PutObject(ctx, input); err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (r *R2Service) DownloadFromR2(ctx context.Context, key string) ([]byte, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.config.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("get %s: %w", key, ErrPermanent)
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// DeleteFromR2 is idempotent: S3 reports success for missing keys.
func (r *R2Service) DeleteFromR2(ctx context.Context, key string) error {
	_, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.config.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (r *R2Service) ListR2(ctx context.Context, prefix string) ([]BlobFile, error) {
	var files []BlobFile
	p := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.config.BucketName),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			files = append(files, BlobFile{
				ID:   key,
				Name: strings.TrimPrefix(key, prefix),
				Size: aws.ToInt64(obj.Size),
			})
		}
	}
	return files, nil
}

// MediaStager hosts media at a public URL for the duration of a publish.
type MediaStager interface {
	Stage(ctx context.Context, data []byte) (publicURL string, cleanup func(context.Context), err error)
}

type r2Stager struct {
	r2 *R2Service
}

func NewR2Stager(r2 *R2Service) MediaStager {
	return &r2Stager{r2: r2}
}

func (s *r2Stager) Stage(ctx context.Context, data []byte) (string, func(context.Context), error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", nil, err
	}

	mime, ext := "application/octet-stream", "bin"
	if kind, err := filetype.Match(data); err == nil && kind != ftypes.Unknown {
		mime, ext = kind.MIME.Value, kind.Extension
	}

	key := s.r2.config.StagingPrefix + id + "." + ext
	if err := s.r2.UploadToR2(ctx, key, data, mime); err != nil {
		return "", nil, err
	}

	cleanup := func(ctx context.Context) {
		if err := s.r2.DeleteFromR2(ctx, key); err != nil {
			slog.Warn("Failed to remove staged media", "key", key, "error", err)
		}
	}
	return s.r2.config.PublicURL + "/" + key, cleanup, nil
}

type r2BlobStore struct {
	r2     *R2Service
	prefix string
}

// NewR2BlobStore exposes the library prefix of the bucket as a BlobStore.
func NewR2BlobStore(r2 *R2Service) BlobStore {
	return &r2BlobStore{r2: r2, prefix: r2.config.LibraryPrefix}
}

func (b *r2BlobStore) List(ctx context.Context) ([]BlobFile, error) {
	return b.r2.ListR2(ctx, b.prefix)
}

func (b *r2BlobStore) Download(ctx context.Context, id string) ([]byte, error) {
	return b.r2.DownloadFromR2(ctx, id)
}

func (b *r2BlobStore) Upload(ctx context.Context, name string, data []byte, mimeType string) (string, error) {
	key := b.prefix + name
	if err := b.r2.UploadToR2(ctx, key, data, mimeType); err != nil {
		return "", err
	}
	return key, nil
}

func (b *r2BlobStore) Delete(ctx context.Context, id string) error {
	return b.r2.DeleteFromR2(ctx, id)
}
