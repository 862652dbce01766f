// README: Reviewer that accepts any non-empty evidence reference.
package ai

import (
	"context"
	"strings"
)

type AutoApprove struct{}

func (AutoApprove) Review(_ context.Context, req EvidenceRequest) (*Verdict, error) {
	if strings.TrimSpace(req.EvidenceRef) == "" {
		return &Verdict{Approved: false, Confidence: 1, Reason: "no evidence submitted"}, nil
	}
	return &Verdict{Approved: true, Confidence: 1, Reason: "evidence present"}, nil
}
