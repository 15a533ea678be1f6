package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/errgroup"
)

// trashedMetaKey is the user metadata key (x-amz-meta-trashed) marking a
// deleted object.
const trashedMetaKey = "trashed"

// headConcurrency bounds the HeadObject calls issued by one SearchFiles.
const headConcurrency = 8

// s3API is the subset of *s3.Client the store uses.
type s3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config holds construction parameters for the S3 store.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional, for MinIO and other S3-compatible services
	AccessKeyID     string // optional; default credential chain otherwise
	SecretAccessKey string
	PathStyle       bool
}

// S3 is a Store on a single S3 bucket. A folder is the key prefix
// "<name>/"; folders are materialised by a zero-byte marker object.
type S3 struct {
	client s3API
	bucket string
}

// NewS3 creates an S3-backed store.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3{client: client, bucket: cfg.Bucket}, nil
}

func (s *S3) Driver() Driver { return DriverS3 }

func (s *S3) FindFolder(ctx context.Context, name string) (Folder, error) {
	if !ValidName(name) {
		return Folder{}, fmt.Errorf("folder %q: %w", name, ErrNotFound)
	}
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(name + "/"),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return Folder{}, fmt.Errorf("listing folder %q: %w", name, err)
	}
	if len(out.Contents) == 0 {
		return Folder{}, fmt.Errorf("folder %q: %w", name, ErrNotFound)
	}
	return Folder{ID: name, Name: name}, nil
}

func (s *S3) CreateFolder(ctx context.Context, name string) (Folder, error) {
	if !ValidName(name) {
		return Folder{}, fmt.Errorf("invalid folder name %q", name)
	}
	if _, err := s.FindFolder(ctx, name); err == nil {
		return Folder{}, fmt.Errorf("folder %q: %w", name, ErrExists)
	} else if !errors.Is(err, ErrNotFound) {
		return Folder{}, err
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name + "/"),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return Folder{}, fmt.Errorf("creating folder %q: %w", name, err)
	}
	return Folder{ID: name, Name: name}, nil
}

// SearchFiles lists the folder prefix and resolves each matching object's
// declared type with a bounded fan-out of HeadObject calls; ListObjectsV2
// does not report content types.
func (s *S3) SearchFiles(ctx context.Context, folder Folder, nameContains string) ([]File, error) {
	prefix := folder.ID + "/"
	var names []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("listing folder %q: %w", folder.Name, err)
		}
		for _, obj := range out.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			if strings.Contains(name, nameContains) {
				names = append(names, name)
			}
		}
		if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Strings(names)

	files := make([]File, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(headConcurrency)
	for i, name := range names {
		g.Go(func() error {
			f, err := s.head(gctx, folder, name)
			if err != nil {
				return err
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

func (s *S3) FindFile(ctx context.Context, folder Folder, name string) (File, error) {
	if !ValidName(name) {
		return File{}, fmt.Errorf("file %q: %w", name, ErrNotFound)
	}
	f, err := s.head(ctx, folder, name)
	if err != nil {
		return File{}, err
	}
	if f.Trashed {
		return File{}, fmt.Errorf("file %q: %w", name, ErrNotFound)
	}
	return f, nil
}

func (s *S3) ReadFile(ctx context.Context, file File) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(file.ID),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("file %q: %w", file.Name, ErrNotFound)
		}
		return nil, fmt.Errorf("reading %q: %w", file.Name, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3) WriteFile(ctx context.Context, file File, content []byte) (File, error) {
	if err := s.put(ctx, file.ID, content, file.ContentType); err != nil {
		return File{}, fmt.Errorf("writing %q: %w", file.Name, err)
	}
	return s.head(ctx, Folder{ID: file.FolderID, Name: file.FolderID}, file.Name)
}

// CreateFile emulates create-only semantics with a HeadObject probe.
func (s *S3) CreateFile(ctx context.Context, folder Folder, name string, content []byte, contentType string) (File, error) {
	if !ValidName(name) {
		return File{}, fmt.Errorf("invalid file name %q", name)
	}
	existing, err := s.head(ctx, folder, name)
	switch {
	case err == nil && !existing.Trashed:
		return File{}, fmt.Errorf("file %q: %w", name, ErrExists)
	case err != nil && !errors.Is(err, ErrNotFound):
		return File{}, err
	}
	if err := s.put(ctx, folder.ID+"/"+name, content, contentType); err != nil {
		return File{}, fmt.Errorf("creating %q: %w", name, err)
	}
	return s.head(ctx, folder, name)
}

func (s *S3) put(ctx context.Context, key string, content []byte, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(content),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	_, err := s.client.PutObject(ctx, in)
	return err
}

func (s *S3) head(ctx context.Context, folder Folder, name string) (File, error) {
	key := folder.ID + "/" + name
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return File{}, fmt.Errorf("file %q: %w", name, ErrNotFound)
		}
		return File{}, fmt.Errorf("head %q: %w", name, err)
	}
	f := File{
		ID:           key,
		Name:         name,
		FolderID:     folder.ID,
		ContentType:  aws.ToString(out.ContentType),
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: time.Now().UTC(),
		Trashed:      strings.EqualFold(out.Metadata[trashedMetaKey], "true"),
	}
	if out.LastModified != nil {
		f.LastModified = out.LastModified.UTC()
	}
	if f.ContentType == "" || f.ContentType == "binary/octet-stream" {
		f.ContentType = ContentTypeFor(name)
	}
	return f, nil
}

func isS3NotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}
