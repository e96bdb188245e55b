// Package s3store serves product content from an S3 bucket prefix.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/italolelis/bundle_downloader/internal/content"
)

// API is the subset of the S3 client the store needs.
type API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store maps content keys to objects under bucket/prefix. Directories are common prefixes.
type Store struct {
	api    API
	bucket string
	prefix string
}

var _ content.Store = (*Store)(nil)

func New(api API, bucket, prefix string) *Store {
	return &Store{
		api:    api,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

func (s *Store) Stat(ctx context.Context, key string) (content.Entry, error) {
	clean, err := content.CleanKey(key)
	if err != nil {
		return content.Entry{}, err
	}

	if clean != "" {
		out, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.objectKey(clean)),
		})
		if err == nil {
			e := content.Entry{Key: clean, Name: path.Base(clean), Size: aws.ToInt64(out.ContentLength)}
			if out.LastModified != nil {
				e.ModTime = *out.LastModified
			}

			return e, nil
		}

		if !isNotFound(err) {
			return content.Entry{}, fmt.Errorf("failed to head object: %w", err)
		}
	}

	// No object: the key is a directory when anything lives beneath it.
	out, err := s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.dirPrefix(clean)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return content.Entry{}, fmt.Errorf("failed to list objects: %w", err)
	}

	if aws.ToInt32(out.KeyCount) == 0 && len(out.Contents) == 0 {
		return content.Entry{}, fmt.Errorf("stat %s: %w", clean, content.ErrNotExist)
	}

	return content.Entry{Key: clean, Name: path.Base(clean), IsDir: true}, nil
}

func (s *Store) ReadDir(ctx context.Context, dir string) ([]content.Entry, error) {
	clean, err := content.CleanKey(dir)
	if err != nil {
		return nil, err
	}

	prefix := s.dirPrefix(clean)

	var (
		entries []content.Entry
		token   *string
	)

	for {
		out, err := s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, cp := range out.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			if name == "" {
				continue
			}

			entries = append(entries, content.Entry{Key: childKey(clean, name), Name: name, IsDir: true})
		}

		for _, obj := range out.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			// Folder placeholder objects ("dir/") are not files.
			if name == "" || strings.Contains(name, "/") {
				continue
			}

			e := content.Entry{Key: childKey(clean, name), Name: name, Size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				e.ModTime = *obj.LastModified
			}

			entries = append(entries, e)
		}

		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}

		token = out.NextContinuationToken
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("read dir %s: %w", clean, content.ErrNotExist)
	}

	return entries, nil
}

func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	clean, err := content.CleanKey(key)
	if err != nil {
		return nil, err
	}

	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(clean)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("open %s: %w", clean, content.ErrNotExist)
		}

		return nil, fmt.Errorf("failed to get object: %w", err)
	}

	return out.Body, nil
}

func (s *Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}

	return s.prefix + "/" + key
}

func (s *Store) dirPrefix(dir string) string {
	k := s.objectKey(dir)
	if k == "" {
		return ""
	}

	return strings.TrimSuffix(k, "/") + "/"
}

func childKey(dir, name string) string {
	if dir == "" {
		return name
	}

	return dir + "/" + name
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}

	return false
}
