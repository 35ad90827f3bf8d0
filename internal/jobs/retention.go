package jobs

import (
	"context"
	"fmt"
	"time"

	"ottie/internal/config"
	"ottie/internal/metrics"
)

// RetentionStore deletes previews that were never claimed.
type RetentionStore interface {
	DeleteExpiredPreviews(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionStats captures the number of records deleted by TTL cleanup.
type RetentionStats struct {
	PreviewsDeleted int64 `json:"previewsDeleted"`
}

// CleanupExpiredData deletes unclaimed previews older than the configured
// retention so that raw HTML captures do not accumulate without bound.
func CleanupExpiredData(ctx context.Context, cfg *config.Config, st RetentionStore) (RetentionStats, error) {
	var stats RetentionStats
	if cfg.Retention.PreviewDays <= 0 {
		return stats, nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -cfg.Retention.PreviewDays)
	n, err := st.DeleteExpiredPreviews(ctx, cutoff)
	if err != nil {
		return stats, fmt.Errorf("delete expired previews: %w", err)
	}
	if n > 0 {
		stats.PreviewsDeleted = n
		metrics.RecordRetentionPreviews(n)
	}
	return stats, nil
}
