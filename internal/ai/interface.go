package ai

import (
	"context"
)

// EvidenceReviewer decides whether completion evidence shows the job done.
// A reviewer error means no decision was reached, not a rejection.
type EvidenceReviewer interface {
	Review(ctx context.Context, req EvidenceRequest) (*Verdict, error)
}
