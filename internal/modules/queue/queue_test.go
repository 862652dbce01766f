// README: Queue scheduler tests (partition, FCFS, nearest-first, purity).
package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plow/internal/modules/job"
	"plow/internal/modules/location"
	"plow/internal/types"
)

var base = time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

func mkJob(id types.ID, status job.Status, created time.Time) *job.Job {
	op := types.ID("op-1")
	return &job.Job{
		ID:         id,
		ClientID:   types.ID("client-" + string(id)),
		OperatorID: &op,
		Status:     status,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func ids(entries []Entry) []types.ID {
	out := make([]types.ID, len(entries))
	for i, e := range entries {
		out[i] = e.Job.ID
	}
	return out
}

func TestBuildPartition(t *testing.T) {
	jobs := []*job.Job{
		mkJob("a", job.StatusAccepted, base),
		mkJob("b", job.StatusInProgress, base.Add(time.Minute)),
		mkJob("c", job.StatusPending, base.Add(2*time.Minute)),
		mkJob("d", job.StatusPhotoProof, base.Add(3*time.Minute)),
		mkJob("e", job.StatusCompleted, base.Add(4*time.Minute)),
	}
	v := Build("op-1", jobs, Options{Policy: PolicyFCFS})

	require.NotNil(t, v.Active)
	assert.Equal(t, types.ID("b"), v.Active.ID)
	assert.Equal(t, []types.ID{"a", "c"}, ids(v.Queued))
	assert.Equal(t, 1, v.Queued[0].Position)
	assert.Equal(t, 2, v.Queued[1].Position)
	require.Len(t, v.InReview, 1)
	assert.Equal(t, types.ID("d"), v.InReview[0].ID)
}

func TestBuildEmpty(t *testing.T) {
	v := Build("op-1", nil, Options{})
	assert.Nil(t, v.Active)
	assert.NotNil(t, v.Queued)
	assert.Empty(t, v.Queued)
	assert.Equal(t, PolicyFCFS, v.Policy)
}

func TestFCFSTieBreaksByID(t *testing.T) {
	jobs := []*job.Job{
		mkJob("z", job.StatusPending, base),
		mkJob("m", job.StatusPending, base),
		mkJob("a", job.StatusAccepted, base.Add(time.Second)),
	}
	v := Build("op-1", jobs, Options{Policy: PolicyFCFS})
	assert.Equal(t, []types.ID{"m", "z", "a"}, ids(v.Queued))
}

func TestNearestFirst(t *testing.T) {
	origin := types.Point{Lat: 0, Lng: 0}
	jobs := []*job.Job{
		mkJob("five", job.StatusPending, base),
		mkJob("one", job.StatusPending, base.Add(time.Minute)),
		mkJob("ten", job.StatusPending, base.Add(2*time.Minute)),
		mkJob("unknown", job.StatusPending, base.Add(-time.Hour)),
	}
	locs := map[types.ID]types.Point{
		"five": location.OffsetKm(origin, 5),
		"one":  location.OffsetKm(origin, 1),
		"ten":  location.OffsetKm(origin, 10),
	}
	v := Build("op-1", jobs, Options{Policy: PolicyNearest, Origin: &origin, Locations: locs})

	assert.Equal(t, []types.ID{"one", "five", "ten", "unknown"}, ids(v.Queued))
	require.NotNil(t, v.Queued[0].DistanceKm)
	assert.InDelta(t, 1.0, *v.Queued[0].DistanceKm, 0.01)
	assert.Nil(t, v.Queued[3].DistanceKm)
	assert.Equal(t, 4, v.Queued[3].Position)
}

func TestNearestFirstUnknownOrderedByCreation(t *testing.T) {
	origin := types.Point{Lat: 0, Lng: 0}
	jobs := []*job.Job{
		mkJob("late", job.StatusPending, base.Add(time.Hour)),
		mkJob("early", job.StatusPending, base),
		mkJob("near", job.StatusAccepted, base.Add(2*time.Hour)),
	}
	locs := map[types.ID]types.Point{"near": location.OffsetKm(origin, 2)}
	v := Build("op-1", jobs, Options{Policy: PolicyNearest, Origin: &origin, Locations: locs})
	assert.Equal(t, []types.ID{"near", "early", "late"}, ids(v.Queued))
}

func TestNearestFirstWithoutOperatorLocation(t *testing.T) {
	jobs := []*job.Job{
		mkJob("b", job.StatusPending, base.Add(time.Minute)),
		mkJob("a", job.StatusPending, base),
	}
	locs := map[types.ID]types.Point{"b": {Lat: 1, Lng: 1}}
	v := Build("op-1", jobs, Options{Policy: PolicyNearest, Locations: locs})
	assert.Equal(t, []types.ID{"a", "b"}, ids(v.Queued))
}

func TestBuildIsPure(t *testing.T) {
	jobs := []*job.Job{
		mkJob("b", job.StatusPending, base.Add(time.Minute)),
		mkJob("a", job.StatusPending, base),
	}
	first := Build("op-1", jobs, Options{Policy: PolicyFCFS})
	second := Build("op-1", jobs, Options{Policy: PolicyFCFS})
	assert.Equal(t, ids(first.Queued), ids(second.Queued))
	// input order untouched
	assert.Equal(t, types.ID("b"), jobs[0].ID)
}

func TestBusy(t *testing.T) {
	jobs := []*job.Job{
		mkJob("a", job.StatusEnRoute, base),
		mkJob("b", job.StatusAccepted, base),
	}
	assert.True(t, Busy(jobs, "b"))
	assert.False(t, Busy(jobs, "a"))
	assert.False(t, Busy(nil, "a"))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyFCFS, p)
	p, err = ParsePolicy("nearest")
	require.NoError(t, err)
	assert.Equal(t, PolicyNearest, p)
	_, err = ParsePolicy("random")
	assert.True(t, errors.Is(err, job.ErrValidation))
}
