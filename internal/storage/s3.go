package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"ripple-chat/internal/domain"
)

// AttachmentStore produces a resolved, downloadable attachment from raw file
// bytes. The chat core treats it as opaque: it only ever sees the returned
// Attachment.
type AttachmentStore interface {
	Upload(ctx context.Context, name, mimeType string, data []byte) (domain.Attachment, error)
}

type S3Config struct {
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	Endpoint   string
	PublicBase string
	PresignTTL time.Duration
}

// S3Store uploads attachments to an S3 bucket and hands back a public or
// presigned URL.
type S3Store struct {
	cfg     S3Config
	s3      *s3.Client
	presign *s3.PresignClient
}

var _ AttachmentStore = (*S3Store)(nil)

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Region == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 region and bucket are required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if parsed, err := url.Parse(endpoint); err == nil {
			endpoint = parsed.String()
		}
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				if service == s3.ServiceID {
					return aws.Endpoint{URL: endpoint, SigningRegion: cfg.Region}, nil
				}
				return aws.Endpoint{}, &aws.EndpointNotFoundError{}
			}),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		cfg:     cfg,
		s3:      client,
		presign: s3.NewPresignClient(client),
	}, nil
}

// Upload stores the file under a unique key and returns the attachment
// metadata with its resolved URL.
func (s *S3Store) Upload(ctx context.Context, name, mimeType string, data []byte) (domain.Attachment, error) {
	if name == "" {
		return domain.Attachment{}, errors.New("attachment name is required")
	}

	id := uuid.New().String()
	key := path.Join("attachments", id+"-"+path.Base(name))

	_, err := s.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(mimeType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("upload %s: %w", key, err)
	}

	fileURL, err := s.fileURL(ctx, key)
	if err != nil {
		return domain.Attachment{}, err
	}

	return domain.Attachment{
		ID:        id,
		Name:      name,
		SizeBytes: int64(len(data)),
		MimeType:  mimeType,
		URL:       fileURL,
	}, nil
}

func (s *S3Store) fileURL(ctx context.Context, key string) (string, error) {
	if s.cfg.PublicBase != "" {
		return s.cfg.PublicBase + "/" + key, nil
	}

	ttl := s.cfg.PresignTTL
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	presigned, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, func(po *s3.PresignOptions) {
		po.Expires = ttl
	})
	if err != nil {
		return "", err
	}
	return presigned.URL, nil
}
