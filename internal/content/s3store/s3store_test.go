package s3store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/bundle_downloader/internal/content"
)

// fakeS3 is an in-memory bucket. pageSize > 0 forces paginated listings.
type fakeS3 struct {
	bucket   string
	objects  map[string]string
	pageSize int
	failList error
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok || aws.ToString(in.Bucket) != f.bucket {
		return nil, &types.NotFound{}
	}

	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(body)))}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.failList != nil {
		return nil, f.failList
	}

	prefix := aws.ToString(in.Prefix)
	delim := aws.ToString(in.Delimiter)

	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)

	// Build the flat result first, then slice the requested page.
	type item struct {
		key      string
		isPrefix bool
	}

	var items []item

	seen := map[string]bool{}

	for _, k := range keys {
		rest := strings.TrimPrefix(k, prefix)
		if delim != "" {
			if i := strings.Index(rest, delim); i >= 0 {
				cp := prefix + rest[:i+1]
				if !seen[cp] {
					seen[cp] = true
					items = append(items, item{key: cp, isPrefix: true})
				}

				continue
			}
		}

		items = append(items, item{key: k})
	}

	start := 0
	if in.ContinuationToken != nil {
		for i, it := range items {
			if it.key == aws.ToString(in.ContinuationToken) {
				start = i

				break
			}
		}
	}

	limit := len(items) - start
	if f.pageSize > 0 && f.pageSize < limit {
		limit = f.pageSize
	}

	if in.MaxKeys != nil && int(*in.MaxKeys) < limit {
		limit = int(*in.MaxKeys)
	}

	out := &s3.ListObjectsV2Output{}

	for _, it := range items[start : start+limit] {
		if it.isPrefix {
			out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(it.key)})
		} else {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(it.key), Size: aws.Int64(int64(len(f.objects[it.key])))})
		}
	}

	out.KeyCount = aws.Int32(int32(limit))

	if next := start + limit; next < len(items) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(items[next].key)
	}

	return out, nil
}

func newFake() *fakeS3 {
	return &fakeS3{
		bucket: "art",
		objects: map[string]string{
			"public/Digital Products/7/a.png":    "AAAA",
			"public/Digital Products/7/b.pdf":    "BB",
			"public/Digital Products/7/hd/c.tif": "CCC",
			"public/Digital Products/7/hd/":      "",
			"public/Digital Products/8/only.png": "O",
			"elsewhere/Digital Products/7/x.png": "X",
		},
	}
}

func TestStore_Stat(t *testing.T) {
	s := New(newFake(), "art", "/public/")
	ctx := context.Background()

	e, err := s.Stat(ctx, "Digital Products/7/a.png")
	require.NoError(t, err)
	assert.Equal(t, content.Entry{Key: "Digital Products/7/a.png", Name: "a.png", Size: 4}, e)

	dir, err := s.Stat(ctx, "Digital Products/7")
	require.NoError(t, err)
	assert.True(t, dir.IsDir)

	_, err = s.Stat(ctx, "Digital Products/9")
	assert.True(t, content.IsNotExist(err))

	_, err = s.Stat(ctx, "../elsewhere/Digital Products/7/x.png")
	assert.ErrorIs(t, err, content.ErrOutsideRoot)
}

func TestStore_ReadDir(t *testing.T) {
	for _, pageSize := range []int{0, 1} {
		fake := newFake()
		fake.pageSize = pageSize

		s := New(fake, "art", "public")

		entries, err := s.ReadDir(context.Background(), "Digital Products/7")
		require.NoError(t, err)

		got := map[string]bool{}
		for _, e := range entries {
			got[e.Key] = e.IsDir
		}

		assert.Equal(t, map[string]bool{
			"Digital Products/7/a.png": false,
			"Digital Products/7/b.pdf": false,
			"Digital Products/7/hd":    true,
		}, got, "page size %d", pageSize)
	}
}

func TestStore_ReadDirMissing(t *testing.T) {
	s := New(newFake(), "art", "public")

	_, err := s.ReadDir(context.Background(), "Digital Products/404")
	assert.True(t, content.IsNotExist(err))
}

func TestStore_ReadDirFailure(t *testing.T) {
	fake := newFake()
	fake.failList = errors.New("access denied")

	_, err := New(fake, "art", "public").ReadDir(context.Background(), "Digital Products/7")
	require.Error(t, err)
	assert.False(t, content.IsNotExist(err))
}

func TestStore_Open(t *testing.T) {
	s := New(newFake(), "art", "public")

	rc, err := s.Open(context.Background(), "Digital Products/7/hd/c.tif")
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = io.Copy(&buf, rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "CCC", buf.String())

	_, err = s.Open(context.Background(), "Digital Products/7/gone.png")
	assert.True(t, content.IsNotExist(err))
}
