package artifact

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"pipeline-workers/internal/common/errors"
	"pipeline-workers/internal/common/logger"
	"pipeline-workers/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/klauspost/compress/zip"
)

// S3Options configures stores created by S3Factory.
type S3Options struct {
	Region       string
	Endpoint     string
	UsePathStyle bool
	ContentType  string
	KMSKeyID     string
	TempDir      string
}

// Downloader is the subset of manager.Downloader used by S3Store.
type Downloader interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, options ...func(*manager.Downloader)) (int64, error)
}

// Uploader is the subset of manager.Uploader used by S3Store.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type archiveWriter interface {
	Create(name string) (io.Writer, error)
	Close() error
}

func newZipWriter(w io.Writer) archiveWriter {
	return zip.NewWriter(w)
}

// S3Factory creates one S3 client per job.
type S3Factory struct {
	opts   S3Options
	logger logger.Logger
}

func NewS3Factory(opts S3Options, log logger.Logger) *S3Factory {
	if opts.ContentType == "" {
		opts.ContentType = "zip"
	}
	return &S3Factory{opts: opts, logger: log}
}

// ErrIncompleteCredentials is returned by NewStore when the job's session
// credentials are missing any of their three values.
var ErrIncompleteCredentials = stderrors.New("job artifact credentials are missing or incomplete")

// NewStore builds an S3 client from the job's session credentials. The
// function's own role is never used for artifact access.
func (f *S3Factory) NewStore(ctx context.Context, creds models.Credentials) (Store, error) {
	if !creds.Complete() {
		return nil, errors.NewStorageError("configuring", ErrIncompleteCredentials)
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
		),
	}
	if f.opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(f.opts.Region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.NewStorageError("configuring", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if f.opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(f.opts.Endpoint)
		}
		o.UsePathStyle = f.opts.UsePathStyle
	})

	return NewS3Store(manager.NewDownloader(client), manager.NewUploader(client), f.opts, f.logger), nil
}

// S3Store moves artifacts through local temp files.
type S3Store struct {
	downloader Downloader
	uploader   Uploader
	opts       S3Options
	logger     logger.Logger
	newArchive func(io.Writer) archiveWriter
}

func NewS3Store(downloader Downloader, uploader Uploader, opts S3Options, log logger.Logger) *S3Store {
	if opts.ContentType == "" {
		opts.ContentType = "zip"
	}
	return &S3Store{
		downloader: downloader,
		uploader:   uploader,
		opts:       opts,
		logger:     log,
		newArchive: newZipWriter,
	}
}

func (s *S3Store) Fetch(ctx context.Context, artifact models.Artifact) ([]byte, error) {
	tmp, err := os.CreateTemp(s.opts.TempDir, "artifact-in-*")
	if err != nil {
		return nil, errors.NewStorageError("downloading", err)
	}
	defer removeTemp(tmp)

	n, err := s.downloader.Download(ctx, tmp, &s3.GetObjectInput{
		Bucket: aws.String(artifact.Bucket),
		Key:    aws.String(artifact.ObjectKey),
	})
	if err != nil {
		return nil, storageError("downloading", artifact, err)
	}

	data, err := os.ReadFile(tmp.Name())
	if err != nil {
		return nil, storageError("reading", artifact, err)
	}

	s.logger.Debug("Artifact fetched", map[string]interface{}{
		"bucket": artifact.Bucket,
		"key":    artifact.ObjectKey,
		"bytes":  n,
	})
	return data, nil
}

func (s *S3Store) Publish(ctx context.Context, artifact models.Artifact, entries []Entry) error {
	archive, err := os.CreateTemp(s.opts.TempDir, "artifact-out-*.zip")
	if err != nil {
		return errors.NewArchiveError("", err)
	}
	defer removeTemp(archive)

	if err := s.writeArchive(archive, entries); err != nil {
		return err
	}
	if _, err := archive.Seek(0, io.SeekStart); err != nil {
		return errors.NewArchiveError("", err)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(artifact.Bucket),
		Key:         aws.String(artifact.ObjectKey),
		Body:        archive,
		ContentType: aws.String(s.opts.ContentType),
	}
	if s.opts.KMSKeyID != "" {
		input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		input.SSEKMSKeyId = aws.String(s.opts.KMSKeyID)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return storageError("uploading", artifact, err)
	}

	s.logger.Info("Artifact published", map[string]interface{}{
		"bucket":  artifact.Bucket,
		"key":     artifact.ObjectKey,
		"entries": len(entries),
	})
	return nil
}

// writeArchive returns on the first failing entry; the caller then drops the
// archive file without uploading it.
func (s *S3Store) writeArchive(archive *os.File, entries []Entry) error {
	zw := s.newArchive(archive)
	for _, entry := range entries {
		if err := s.appendEntry(zw, entry); err != nil {
			zw.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return errors.NewArchiveError("", err)
	}
	return nil
}

func (s *S3Store) appendEntry(zw archiveWriter, entry Entry) error {
	staged, err := os.CreateTemp(s.opts.TempDir, "entry-*")
	if err != nil {
		return errors.NewArchiveError(entry.Name, err)
	}
	defer removeTemp(staged)

	if _, err := staged.Write(entry.Content); err != nil {
		return errors.NewArchiveError(entry.Name, err)
	}
	if _, err := staged.Seek(0, io.SeekStart); err != nil {
		return errors.NewArchiveError(entry.Name, err)
	}

	w, err := zw.Create(entry.Name)
	if err != nil {
		return errors.NewArchiveError(entry.Name, err)
	}
	if _, err := io.Copy(w, staged); err != nil {
		return errors.NewArchiveError(entry.Name, err)
	}
	return nil
}

func storageError(operation string, artifact models.Artifact, err error) *errors.StandardError {
	stdErr := errors.NewStorageError(operation, err).
		WithMetadata("bucket", artifact.Bucket).
		WithMetadata("key", artifact.ObjectKey)

	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		stdErr.WithMetadata("awsErrorCode", apiErr.ErrorCode())
		stdErr.Details = fmt.Sprintf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return stdErr
}

func removeTemp(f *os.File) {
	f.Close()
	os.Remove(f.Name())
}
