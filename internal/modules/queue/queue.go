// README: Operator queue scheduler: active/queued partition and queue ordering policies.
package queue

import (
	"fmt"
	"sort"

	"plow/internal/modules/job"
	"plow/internal/modules/location"
	"plow/internal/types"
)

type Policy string

const (
	PolicyFCFS    Policy = "fcfs"
	PolicyNearest Policy = "nearest"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyFCFS:
		return PolicyFCFS, nil
	case PolicyNearest:
		return PolicyNearest, nil
	}
	return "", fmt.Errorf("%w: unknown queue policy %q", job.ErrValidation, s)
}

// Entry is one queued job. Position is 1-indexed and carries no reservation.
type Entry struct {
	Job        *job.Job `json:"job"`
	Position   int      `json:"position"`
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

type View struct {
	OperatorID types.ID   `json:"operator_id"`
	Policy     Policy     `json:"policy"`
	Active     *job.Job   `json:"active,omitempty"`
	Queued     []Entry    `json:"queued"`
	InReview   []*job.Job `json:"in_review"`
}

// Options drive ordering. Origin is the operator's position; Locations maps a
// job ID to the point its distance is measured to. Either may be missing.
type Options struct {
	Policy    Policy
	Origin    *types.Point
	Locations map[types.ID]types.Point
}

// Build partitions jobs into the active job, the ordered queue and the jobs
// awaiting evidence review. It has no side effects and never mutates jobs.
func Build(operatorID types.ID, jobs []*job.Job, opts Options) View {
	v := View{OperatorID: operatorID, Policy: opts.Policy, Queued: []Entry{}, InReview: []*job.Job{}}
	if v.Policy == "" {
		v.Policy = PolicyFCFS
	}

	var queued []Entry
	for _, j := range jobs {
		switch {
		case j.Status.Active():
			if v.Active == nil || byCreated(j, v.Active) {
				v.Active = j
			}
		case j.Status.Queued():
			e := Entry{Job: j}
			if opts.Origin != nil {
				if p, ok := opts.Locations[j.ID]; ok {
					d := location.DistanceKm(*opts.Origin, p)
					e.DistanceKm = &d
				}
			}
			queued = append(queued, e)
		case j.Status == job.StatusPhotoProof:
			v.InReview = append(v.InReview, j)
		}
	}

	switch v.Policy {
	case PolicyNearest:
		sort.SliceStable(queued, func(i, k int) bool { return nearer(queued[i], queued[k]) })
	default:
		sort.SliceStable(queued, func(i, k int) bool { return byCreated(queued[i].Job, queued[k].Job) })
	}
	for i := range queued {
		queued[i].Position = i + 1
	}
	if queued != nil {
		v.Queued = queued
	}
	sort.SliceStable(v.InReview, func(i, k int) bool { return byCreated(v.InReview[i], v.InReview[k]) })
	return v
}

// Busy reports whether the operator already works a job other than jobID.
func Busy(jobs []*job.Job, jobID types.ID) bool {
	for _, j := range jobs {
		if j.ID != jobID && j.Status.Active() {
			return true
		}
	}
	return false
}

// nearer orders known distances ascending and unknown ones last, falling back
// to creation order.
func nearer(a, b Entry) bool {
	switch {
	case a.DistanceKm != nil && b.DistanceKm != nil:
		if *a.DistanceKm != *b.DistanceKm {
			return *a.DistanceKm < *b.DistanceKm
		}
	case a.DistanceKm != nil:
		return true
	case b.DistanceKm != nil:
		return false
	}
	return byCreated(a.Job, b.Job)
}

func byCreated(a, b *job.Job) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
