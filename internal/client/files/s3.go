package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/chatsync/internal/client/models"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// DefaultURLTTL is the longest validity SigV4 allows for a presigned URL.
const DefaultURLTTL = 7 * 24 * time.Hour

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	URLTTL    time.Duration
}

// S3Uploader stores attachments in a bucket and hands out presigned GET
// URLs for them.
type S3Uploader struct {
	cfg   S3Config
	newID func() string
}

var _ Attacher = (*S3Uploader)(nil)

func NewS3Uploader(cfg S3Config) *S3Uploader {
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = DefaultURLTTL
	}
	return &S3Uploader{cfg: cfg, newID: uuid.NewString}
}

func (u *S3Uploader) client(ctx context.Context) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(u.cfg.Region)}
	if u.cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(u.cfg.AccessKey, u.cfg.SecretKey, "")))
	}
	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if u.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(u.cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// ObjectKey is the bucket key for a file shared in chatID.
func (u *S3Uploader) ObjectKey(chatID, fileName string) string {
	return fmt.Sprintf("chats/%s/%s_%s", chatID, u.newID(), fileName)
}

// Attach uploads srcPath and returns an uploaded attachment carrying a
// presigned URL.
func (u *S3Uploader) Attach(ctx context.Context, chatID, srcPath string) (models.FileAttachment, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return models.FileAttachment{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return models.FileAttachment{}, err
	}

	c, err := u.client(ctx)
	if err != nil {
		return models.FileAttachment{}, err
	}

	name := filepath.Base(srcPath)
	key := u.ObjectKey(chatID, name)
	contentType := models.MimeType(name)

	if _, err := putObject(c, ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType),
	}); err != nil {
		return models.FileAttachment{}, fmt.Errorf("upload %s: %w", name, err)
	}

	req, err := presignGetObject(newS3PresignClient(c), ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(u.cfg.URLTTL))
	if err != nil {
		return models.FileAttachment{}, fmt.Errorf("presign %s: %w", key, err)
	}

	return models.FileAttachment{
		URL:        req.URL,
		FileName:   name,
		FileSize:   info.Size(),
		FileType:   contentType,
		LocalPath:  srcPath,
		IsUploaded: true,
	}, nil
}
