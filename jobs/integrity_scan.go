package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/crm/inquiries"
	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
)

// GapsGauge receives the number of interrupted renumber groups found by a
// scan. Satisfied by observability.Metrics.
type GapsGauge interface {
	SetRenumberGaps(n int)
}

// NewIntegrityScanHandler returns the handler for TaskInquiryIntegrityScan.
//
// A multi-product commit that failed during the rename pass leaves a group
// where the first row still carries the raw base number while its siblings
// already carry ".n" suffixes. The scan reports such groups; it never rewrites
// them, since the right repair depends on what the operator did after the
// failure.
func NewIntegrityScanHandler(repo inquiries.Repository, gauge GapsGauge, jm *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := jm.Track("inquiry_integrity_scan")

		var payload IntegrityScanPayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return asynq.SkipRetry
			}
		}

		bases, err := repo.FindPartialRenumber(ctx)
		if err != nil {
			logger.Error("inquiry integrity scan failed", slog.Any("error", err))
			return tracker.End(err)
		}

		if gauge != nil {
			gauge.SetRenumberGaps(len(bases))
		}
		if len(bases) == 0 {
			logger.Info("inquiry integrity scan clean", slog.String("requested", payload.Requested))
			return tracker.End(nil)
		}
		for _, base := range bases {
			logger.Warn("interrupted inquiry renumbering",
				slog.String("base", base), slog.String("requested", payload.Requested))
		}
		return tracker.End(nil)
	}
}
