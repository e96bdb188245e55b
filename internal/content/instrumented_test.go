package content_test

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/bundle_downloader/internal/content"
	"github.com/italolelis/bundle_downloader/internal/content/contenttest"
	"github.com/italolelis/bundle_downloader/internal/telemetry"
)

func TestInstrumentedStore(t *testing.T) {
	ctx := context.Background()

	tel, err := telemetry.New(ctx, telemetry.Config{Enabled: true, ServiceName: "content-test"})
	require.NoError(t, err)

	defer tel.Shutdown(ctx)

	mem := contenttest.NewMemStore(map[string]string{"a/b.png": "bee"})
	mem.Fail("broken.png", errors.New("io error"))

	store := content.NewInstrumentedStore(mem, tel, "content_memory")

	entry, err := store.Stat(ctx, "a/b.png")
	require.NoError(t, err)
	assert.EqualValues(t, 3, entry.Size)

	entries, err := store.ReadDir(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	rc, err := store.Open(ctx, "a/b.png")
	require.NoError(t, err)

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "bee", string(data))

	_, err = store.Open(ctx, "missing.png")
	assert.True(t, content.IsNotExist(err))

	_, err = store.Stat(ctx, "broken.png")
	require.Error(t, err)

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, "store_operations_total")
	assert.Contains(t, body, `store="content_memory"`)
	assert.Contains(t, body, `operation="read_dir"`)
	assert.Contains(t, body, `status="error"`)
	assert.EqualValues(t, 5, mem.Calls.Load())
}
