// Package archive uploads finished trial directories to S3-compatible object storage.
package archive

import (
	"context"
	"io/fs"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	commonconfig "github.com/stressbench/stressbench/internal/common/config"
)

const defaultParallelUploads = 4

type Config struct {
	// host:port of the S3 endpoint.
	Endpoint        string `validate:"required"`
	Bucket          string `validate:"required"`
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	// Prepended to every object key.
	Prefix          string
	ParallelUploads int `validate:"gte=0"`
}

func (c Config) Validate() error {
	return commonconfig.Validate(c)
}

// IsConfigured returns false for a nil or zero Config, meaning archiving is off.
func (c *Config) IsConfigured() bool {
	return c != nil && c.Endpoint != ""
}

// ObjectStore is the subset of *minio.Client used for uploading.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Uploader struct {
	config Config
	store  ObjectStore
}

// New returns an Uploader talking to the endpoint of config with static credentials.
func New(config Config) (*Uploader, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return NewWithStore(config, client), nil
}

func NewWithStore(config Config, store ObjectStore) *Uploader {
	if config.ParallelUploads <= 0 {
		config.ParallelUploads = defaultParallelUploads
	}
	return &Uploader{config: config, store: store}
}

// UploadDirectory uploads every regular file below dir to <prefix>/<name>/<path relative to dir>,
// creating the bucket first if needed. Returns the number of files uploaded.
func (u *Uploader) UploadDirectory(ctx context.Context, dir, name string) (int, error) {
	if err := u.ensureBucket(ctx); err != nil {
		return 0, err
	}
	var files []string
	err := filepath.WalkDir(dir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return 0, errors.WithStack(err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(u.config.ParallelUploads)
	for _, file := range files {
		file := file
		rel, err := filepath.Rel(dir, file)
		if err != nil {
			return 0, errors.WithStack(err)
		}
		key := ObjectKey(u.config.Prefix, name, rel)
		g.Go(func() error {
			info, err := u.store.FPutObject(ctx, u.config.Bucket, key, file, minio.PutObjectOptions{
				ContentType: contentType(file),
			})
			if err != nil {
				return errors.Wrapf(err, "failed to upload %s", file)
			}
			log.WithFields(log.Fields{"key": key, "size": info.Size}).Debug("uploaded")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	log.Infof("uploaded %d files from %s to %s/%s", len(files), dir, u.config.Bucket, ObjectKey(u.config.Prefix, name, ""))
	return len(files), nil
}

func (u *Uploader) ensureBucket(ctx context.Context) error {
	exists, err := u.store.BucketExists(ctx, u.config.Bucket)
	if err != nil {
		return errors.Wrapf(err, "failed to look up bucket %s", u.config.Bucket)
	}
	if exists {
		return nil
	}
	if err := u.store.MakeBucket(ctx, u.config.Bucket, minio.MakeBucketOptions{Region: u.config.Region}); err != nil {
		return errors.Wrapf(err, "failed to create bucket %s", u.config.Bucket)
	}
	log.Infof("created bucket %s", u.config.Bucket)
	return nil
}

// ObjectKey joins prefix, name and a relative file path into a slash-separated object key.
func ObjectKey(prefix, name, rel string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{prefix, name, filepath.ToSlash(rel)} {
		part = strings.Trim(part, "/")
		if part != "" && part != "." {
			parts = append(parts, part)
		}
	}
	return path.Join(parts...)
}

func contentType(file string) string {
	switch ext := filepath.Ext(file); ext {
	case ".hdr", ".txt":
		return "text/plain"
	case ".yaml":
		return "application/yaml"
	default:
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
	}
	return "application/octet-stream"
}
