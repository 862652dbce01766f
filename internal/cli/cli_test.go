package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plow/internal/app"
	"plow/internal/config"
	"plow/internal/modules/dispatch"
	"plow/internal/modules/job"
	"plow/internal/types"
)

func newEnv(t *testing.T) (*Env, *app.App, *bytes.Buffer) {
	t.Helper()
	color.NoColor = true

	log, _ := test.NewNullLogger()
	var cfg config.Config
	cfg.Payment.Provider = "sandbox"
	cfg.Payment.FeeBps = 1000
	cfg.Dispatch.Admins = []string{"admin-1"}
	a, err := app.Build(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	out := &bytes.Buffer{}
	env := &Env{
		Out: out,
		// The shared app outlives each command; Close is idempotent.
		Open: func(context.Context) (*app.App, error) { return a, nil },
	}
	return env, a, out
}

func createCancelled(t *testing.T, a *app.App) *job.Job {
	t.Helper()
	ctx := context.Background()
	j, err := a.Service.Create(ctx, dispatch.CreateCommand{
		ClientID: "client-1",
		Details: job.Details{
			Services: []job.ServiceType{job.ServiceWalkway},
			Address:  "12 Elm St",
			Price:    types.Money{Amount: 4000, Currency: "CAD"},
		},
		PaymentMethod: job.MethodCash,
	})
	require.NoError(t, err)
	j, err = a.Service.Cancel(ctx, dispatch.CancelCommand{JobID: j.ID, ActorID: "client-1", Reason: "changed plans"})
	require.NoError(t, err)
	return j
}

func TestGetPrintsJob(t *testing.T) {
	env, a, out := newEnv(t)
	j := createCancelled(t, a)

	root := RootCmd(env)
	root.SetArgs([]string{"get", string(j.ID)})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "Job "+string(j.ID))
	assert.Contains(t, out.String(), "cancelled")
	assert.Contains(t, out.String(), "changed plans")
	assert.Contains(t, out.String(), "History:")
}

func TestReopenRequiresAdmin(t *testing.T) {
	env, a, _ := newEnv(t)
	j := createCancelled(t, a)

	root := RootCmd(env)
	root.SetArgs([]string{"reopen", string(j.ID)})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--as")

	root = RootCmd(env)
	root.SetArgs([]string{"reopen", string(j.ID), "--as", "client-1"})
	err = root.Execute()
	assert.ErrorIs(t, err, job.ErrForbidden)
}

func TestReopenAndQueue(t *testing.T) {
	env, a, out := newEnv(t)
	j := createCancelled(t, a)

	root := RootCmd(env)
	root.SetArgs([]string{"reopen", string(j.ID), "--as", "admin-1"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Reopened job")

	got, err := a.Service.Get(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, got.Status)

	out.Reset()
	root = RootCmd(env)
	root.SetArgs([]string{"queue", "operator-1", "--policy", "nearest"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Active: none")
}

func TestQueueRejectsUnknownPolicy(t *testing.T) {
	env, _, _ := newEnv(t)
	root := RootCmd(env)
	root.SetArgs([]string{"queue", "operator-1", "--policy", "random"})
	assert.Error(t, root.Execute())
}

func TestReviewUsesConfiguredReviewer(t *testing.T) {
	env, a, out := newEnv(t)
	j := createCancelled(t, a)

	root := RootCmd(env)
	root.SetArgs([]string{"review", string(j.ID), "https://example.com/after.jpg"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "APPROVED")
}
