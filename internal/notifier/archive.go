package notifier

import (
	"context"
	"fmt"

	"github.com/italolelis/bundle_downloader/internal/bundle"
	"github.com/italolelis/bundle_downloader/internal/logctx"
)

// WatchArchiveFailures forwards archive failures to n until ctx is done or failures is closed.
func WatchArchiveFailures(ctx context.Context, n Notifier, failures <-chan bundle.ArchiveFailure) {
	logger := logctx.LoggerFromContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-failures:
			if !ok {
				return
			}

			if err := n.Notify(ctx, FormatArchiveFailure(f)); err != nil {
				logger.ErrorContext(ctx, "failed to send notification", "bundle_kind", f.Kind, "bundle_id", f.ID, "err", err)
			}
		}
	}
}

// FormatArchiveFailure renders a failure for operators. The error text is included as is.
func FormatArchiveFailure(f bundle.ArchiveFailure) string {
	return fmt.Sprintf("❌ Archive failed for %s %s (%s) after %d entries: %v", f.Kind, f.ID, f.Filename, f.Stats.Entries, f.Err)
}
