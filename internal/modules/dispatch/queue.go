package dispatch

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"plow/internal/modules/job"
	"plow/internal/modules/matching"
	"plow/internal/modules/queue"
	"plow/internal/types"
)

// OperatorQueue builds the operator's view. Missing profile locations only
// degrade nearest-first ordering; the call fails on storage errors alone.
func (s *Service) OperatorQueue(ctx context.Context, operatorID types.ID, policy queue.Policy) (v queue.View, err error) {
	ctx, span := startSpan(ctx, "dispatch.OperatorQueue",
		attribute.String("operator.id", string(operatorID)),
		attribute.String("queue.policy", string(policy)))
	defer func() { endSpan(span, err) }()

	jobs, err := s.jobs.ListByOperator(ctx, operatorID, job.NonTerminal...)
	if err != nil {
		return queue.View{}, err
	}
	opts := queue.Options{Policy: policy}
	if policy == queue.PolicyNearest {
		opts.Origin = s.location(ctx, operatorID)
		opts.Locations = make(map[types.ID]types.Point, len(jobs))
		for _, j := range jobs {
			if !j.Status.Queued() {
				continue
			}
			if p := s.location(ctx, j.ClientID); p != nil {
				opts.Locations[j.ID] = *p
			} else if j.Details.Site != nil {
				opts.Locations[j.ID] = *j.Details.Site
			}
		}
	}
	return queue.Build(operatorID, jobs, opts), nil
}

// OpenJobs lists untargeted pending jobs near the operator, nearest first.
func (s *Service) OpenJobs(ctx context.Context, operatorID types.ID, radiusKm float64, limit int) (out []OpenJob, err error) {
	ctx, span := startSpan(ctx, "dispatch.OpenJobs", attribute.String("operator.id", string(operatorID)))
	defer func() { endSpan(span, err) }()

	out = []OpenJob{}
	if s.board == nil {
		return out, nil
	}
	origin := s.location(ctx, operatorID)
	if origin == nil {
		return out, nil
	}
	radiusKm, limit = matching.Clamp(radiusKm, limit)
	hits, err := s.board.Nearby(ctx, *origin, radiusKm, limit)
	if err != nil {
		return nil, err
	}
	for _, h := range hits {
		j, err := s.jobs.Get(ctx, h.JobID)
		if errors.Is(err, job.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		// The board can lag behind the job store.
		if j.Status != job.StatusPending || j.OperatorID != nil || j.ClientID == operatorID {
			continue
		}
		out = append(out, toOpenJob(j, h))
	}
	return out, nil
}

func (s *Service) location(ctx context.Context, userID types.ID) *types.Point {
	if s.profiles == nil {
		return nil
	}
	p, err := s.profiles.Location(ctx, userID)
	if err != nil {
		s.log.WithFields(logrus.Fields{"user_id": userID}).WithError(err).Warn("profile location lookup failed")
		return nil
	}
	return p
}
