package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/aprskalo1/UMS/internal/config"
	"github.com/aprskalo1/UMS/internal/logging"
	"github.com/aprskalo1/UMS/internal/services"
)

// S3Client is the subset of the S3 API the uploader needs.
// The [s3.Client] type satisfies this interface.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader pushes local files under bucket/prefix.
type Uploader struct {
	client S3Client
	bucket string
	prefix string
	files  []string
	logger *slog.Logger
}

// New returns an uploader for the given files. Object keys are
// prefix/<file base name>.
func New(client S3Client, bucket, prefix string, files []string, logger *slog.Logger) *Uploader {
	return &Uploader{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		files:  append([]string(nil), files...),
		logger: logging.NewComponentLogger(logger, "snapshot"),
	}
}

// NewFromConfig builds an S3 client from the snapshot section and targets
// the index file plus the CSV mapping when that backend is enabled.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Uploader {
	snap := cfg.Snapshot
	opts := s3.Options{
		Region:       snap.Region,
		UsePathStyle: snap.Endpoint != "",
	}
	if snap.Endpoint != "" {
		opts.BaseEndpoint = aws.String(snap.Endpoint)
	}
	if snap.AccessKey != "" {
		opts.Credentials = aws.NewCredentialsCache(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     snap.AccessKey,
					SecretAccessKey: snap.SecretKey,
					Source:          "embedder config",
				}, nil
			}))
	}
	files := []string{cfg.Paths.IndexPath}
	if cfg.HasMappingBackend(config.MappingCSV) {
		files = append(files, cfg.Paths.MappingCSV)
	}
	return New(s3.New(opts), snap.Bucket, snap.Prefix, files, logger)
}

func (u *Uploader) key(file string) string {
	if u.prefix == "" {
		return filepath.Base(file)
	}
	return path.Join(u.prefix, filepath.Base(file))
}

// Snapshot uploads every configured file. Files that do not exist yet are
// skipped; the first upload error stops the run.
func (u *Uploader) Snapshot(ctx context.Context) error {
	for _, file := range u.files {
		if err := u.upload(ctx, file); err != nil {
			return err
		}
	}
	return nil
}

func (u *Uploader) upload(ctx context.Context, file string) error {
	f, err := os.Open(file)
	if errors.Is(err, fs.ErrNotExist) {
		u.logger.Debug("snapshot source missing; skipping", logging.String("path", file))
		return nil
	}
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "snapshot", "open", file, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "snapshot", "stat", file, err)
	}

	key := u.key(file)
	if _, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	}); err != nil {
		return services.Wrap(services.ErrExternalTool, "snapshot", "put object",
			fmt.Sprintf("s3://%s/%s%s", u.bucket, key, apiCode(err)), err)
	}
	u.logger.Info("snapshot uploaded",
		logging.String("bucket", u.bucket),
		logging.String("key", key),
		logging.Int64("bytes", info.Size()),
	)
	return nil
}

func apiCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return " (" + apiErr.ErrorCode() + ")"
	}
	return ""
}
