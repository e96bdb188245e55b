// Package archive streams resolved files as a single ZIP archive.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/errgroup"

	"github.com/italolelis/bundle_downloader/internal/catalog"
	"github.com/italolelis/bundle_downloader/internal/content"
	"github.com/italolelis/bundle_downloader/internal/locator"
	"github.com/italolelis/bundle_downloader/internal/logctx"
)

// progressInterval is how many bytes of a single entry are read between progress logs.
const progressInterval = 50 * 1024 * 1024

type Streamer struct {
	store content.Store
}

func NewStreamer(store content.Store) *Streamer {
	return &Streamer{store: store}
}

// Stats counts what an archive has done so far.
type Stats struct {
	Entries int   // Entries written
	Skipped int   // Files that disappeared before they could be opened
	Bytes   int64 // Uncompressed bytes read from the store
}

// Archive is a ZIP stream produced on demand. Reads pull compressed bytes; the producer blocks
// while nothing reads, so at most one buffer of the archive is in memory.
type Archive struct {
	pr     *io.PipeReader
	pw     *io.PipeWriter
	cancel context.CancelFunc
	group  *errgroup.Group

	entries atomic.Int64
	skipped atomic.Int64
	bytes   atomic.Int64
}

// Open starts producing an archive of files in the given order. The central directory is written
// after the last entry. Cancelling ctx or closing the archive stops the producer.
func (s *Streamer) Open(ctx context.Context, files []locator.File) *Archive {
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()

	a := &Archive{pr: pr, pw: pw, cancel: cancel}

	// A blocked pipe write does not observe ctx, so cancellation closes the read side.
	stop := context.AfterFunc(ctx, func() { pr.CloseWithError(context.Cause(ctx)) })

	var gctx context.Context

	a.group, gctx = errgroup.WithContext(ctx)
	a.group.Go(func() error {
		defer stop()

		err := s.produce(gctx, a, files)
		pw.CloseWithError(err)

		return err
	})

	return a
}

// Read returns compressed archive bytes. A failed archive surfaces as *catalog.ArchiveError.
func (a *Archive) Read(p []byte) (int, error) {
	return a.pr.Read(p)
}

// Close stops the producer if it is still running and waits for it to release its files.
func (a *Archive) Close() error {
	a.cancel()
	a.pr.CloseWithError(errArchiveClosed)

	err := a.group.Wait()
	if errors.Is(err, errArchiveClosed) || errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// Wait blocks until the producer has finished and returns its error.
func (a *Archive) Wait() error {
	return a.group.Wait()
}

func (a *Archive) Stats() Stats {
	return Stats{
		Entries: int(a.entries.Load()),
		Skipped: int(a.skipped.Load()),
		Bytes:   a.bytes.Load(),
	}
}

var errArchiveClosed = errors.New("archive closed by reader")

func (s *Streamer) produce(ctx context.Context, a *Archive, files []locator.File) error {
	logger := logctx.LoggerFromContext(ctx)

	zw := zip.NewWriter(a.pw)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return &catalog.ArchiveError{Entry: f.EntryName, Err: err}
		}

		if err := s.writeEntry(ctx, zw, a, f); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return &catalog.ArchiveError{Err: fmt.Errorf("failed to finalize archive: %w", err)}
	}

	stats := a.Stats()
	logger.InfoContext(ctx, "archive completed",
		"entries", stats.Entries,
		"skipped", stats.Skipped,
		"size", humanize.Bytes(uint64(stats.Bytes)))

	return nil
}

func (s *Streamer) writeEntry(ctx context.Context, zw *zip.Writer, a *Archive, f locator.File) error {
	logger := logctx.LoggerFromContext(ctx)

	rc, err := s.store.Open(ctx, f.Key)
	if err != nil {
		if content.IsNotExist(err) {
			a.skipped.Add(1)
			logger.WarnContext(ctx, "skipping file that disappeared", "entry", f.EntryName)

			return nil
		}

		return &catalog.ArchiveError{Entry: f.EntryName, Err: fmt.Errorf("failed to open file: %w", err)}
	}
	defer rc.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: f.EntryName, Method: zip.Deflate})
	if err != nil {
		return &catalog.ArchiveError{Entry: f.EntryName, Err: fmt.Errorf("failed to create entry: %w", err)}
	}

	progressCb := func(read, total int64) {
		if total > 0 {
			logger.DebugContext(ctx, "archive entry progress",
				"entry", f.EntryName,
				"read", humanize.Bytes(uint64(read)),
				"total", humanize.Bytes(uint64(total)),
				"percent", humanize.FtoaWithDigits(float64(read)*100/float64(total), 2))
		} else {
			logger.DebugContext(ctx, "archive entry progress", "entry", f.EntryName, "read", humanize.Bytes(uint64(read)))
		}
	}

	n, err := io.Copy(w, newProgressReader(rc, f.Size, progressInterval, progressCb))
	a.bytes.Add(n)

	if err != nil {
		return &catalog.ArchiveError{Entry: f.EntryName, Err: fmt.Errorf("failed to write entry: %w", err)}
	}

	a.entries.Add(1)
	logger.DebugContext(ctx, "archive entry written", "entry", f.EntryName, "size", humanize.Bytes(uint64(n)))

	return nil
}
