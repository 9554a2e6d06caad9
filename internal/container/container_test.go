package container

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/garyjia/formflow/internal/application/service"
	appwf "github.com/garyjia/formflow/internal/application/workflow"
	"github.com/garyjia/formflow/internal/domain/entity"
	"github.com/garyjia/formflow/internal/domain/event"
)

func testConfig(t *testing.T) *Config {
	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "container.db")
	cfg.Auth.JWTSecret = "secret"
	return cfg
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(testConfig(t), nil)
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Auth.JWTSecret = ""
	_, err = NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestContainer_Lifecycle(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	assert.False(t, c.Health().Overall)
	assert.Error(t, c.Run(context.Background()), "Run before Start")

	require.NoError(t, c.Start())
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(), "double start")

	health := c.Health()
	assert.True(t, health.Overall, "%+v", health.Components)
	assert.True(t, health.Components["database"].Healthy)

	require.NotNil(t, c.Services())
	require.NotNil(t, c.Engine())
	require.NotNil(t, c.Query())
	require.NotNil(t, c.Server())
	assert.Len(t, c.Dispatcher().ListHandlers(event.TypeTransitionCommitted), 1)

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close(), "double close")
	assert.Error(t, c.Start(), "start after close")
}

func TestContainer_StartFailsOnBadPublicKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = ""
	cfg.Auth.PublicKeyPath = filepath.Join(t.TempDir(), "missing.pem")

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)

	assert.Error(t, c.Start())
	assert.False(t, c.Ready())
	assert.False(t, c.Health().Components["database"].Healthy, "database is released after a failed start")
}

func TestContainer_WiresEventsEndToEnd(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	c, err := NewContainer(testConfig(t), zap.New(core))
	require.NoError(t, err)
	require.NoError(t, c.Start())
	t.Cleanup(func() { c.Close() })

	ctx := event.WithCorrelationID(context.Background(), "req-7")
	svc := c.Services()

	tmpl, err := svc.Template.Create(ctx, "root", "Expense", entity.TemplateSchema{})
	require.NoError(t, err)
	_, err = svc.Definition.Create(ctx, "root", service.DefinitionInput{
		FormTemplateID: tmpl.ID,
		States:         []string{"Draft", "Done"},
		Transitions: []entity.Transition{
			{FromState: "Draft", ToState: "Done", AllowedRoles: []string{"HR"}},
		},
	})
	require.NoError(t, err)

	sub, err := svc.Submission.Submit(ctx, appwf.Actor{ID: "emma"}, tmpl.ID, nil)
	require.NoError(t, err)

	res, err := c.Engine().RequestTransition(ctx, appwf.TransitionRequest{
		SubmissionID: sub.ID,
		ToState:      "Done",
		Actor:        appwf.Actor{ID: "hana", Roles: []string{"HR"}},
	})
	require.NoError(t, err)
	assert.Equal(t, appwf.OutcomeCommitted, res.Outcome)

	// Close waits for async handlers
	require.NoError(t, c.Dispatcher().Close())

	events := logs.FilterMessage("Domain event").All()
	require.Len(t, events, 2)
	types := []interface{}{events[0].ContextMap()["type"], events[1].ContextMap()["type"]}
	assert.ElementsMatch(t, []interface{}{
		event.TypeSubmissionCreated.String(),
		event.TypeTransitionCommitted.String(),
	}, types)
	for _, e := range events {
		assert.Equal(t, "req-7", e.ContextMap()["correlation_id"])
	}
}
