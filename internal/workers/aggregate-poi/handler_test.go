// internal/workers/aggregate-poi/handler_test.go
package aggregatepoi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poi-aggregator/internal/common/config"
	stderrors "poi-aggregator/internal/common/errors"
	"poi-aggregator/internal/common/logger"
	"poi-aggregator/internal/models"
)

type fakeEngine struct {
	venues []models.CanonicalVenue
	err    error
	query  models.AggregationQuery
}

func (f *fakeEngine) Aggregate(ctx context.Context, query models.AggregationQuery) ([]models.CanonicalVenue, error) {
	f.query = query
	return f.venues, f.err
}

func newTestHandler(t *testing.T, engine *fakeEngine) *Handler {
	t.Helper()
	cfg := LoadConfig(config.WorkerConfig{Timeout: 5000, MaxRetries: 3})
	return NewHandler(cfg, engine, nil, logger.NewTestLogger(t))
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(config.WorkerConfig{})
	assert.Equal(t, 30*time.Second, cfg.Timeout)

	cfg = LoadConfig(config.WorkerConfig{Timeout: 5000})
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestExecutePassesQueryThrough(t *testing.T) {
	rating := 4.5
	engine := &fakeEngine{
		venues: []models.CanonicalVenue{
			{
				ID: "a1b2c3d4e5f60718", Name: "全聚德烤鸭店", Rating: &rating,
				ContributingSources: []models.SourceKind{models.SourcePrimaryAPI},
			},
		},
	}
	handler := newTestHandler(t, engine)

	budget := 150.0
	output, err := handler.Execute(context.Background(), &Input{
		Destination:    "北京",
		BudgetPerVenue: &budget,
		MaxResults:     5,
	})
	require.NoError(t, err)

	assert.Equal(t, "北京", engine.query.Destination)
	require.NotNil(t, engine.query.BudgetPerVenue)
	assert.Equal(t, 150.0, *engine.query.BudgetPerVenue)
	assert.Equal(t, 5, engine.query.MaxResults)

	assert.Equal(t, 1, output.Count)
	assert.False(t, output.LowConfidence)
	assert.Equal(t, "全聚德烤鸭店", output.Venues[0].Name)
}

func TestExecuteFlagsLowConfidenceResults(t *testing.T) {
	engine := &fakeEngine{
		venues: []models.CanonicalVenue{
			{Name: "拉萨当地特色餐厅", ContributingSources: []models.SourceKind{models.SourceEmergency}},
			{Name: "拉萨人气美食街", ContributingSources: []models.SourceKind{models.SourceGenerated}},
		},
	}
	handler := newTestHandler(t, engine)

	output, err := handler.Execute(context.Background(), &Input{Destination: "拉萨"})
	require.NoError(t, err)
	assert.True(t, output.LowConfidence)
	assert.Equal(t, 2, output.Count)
}

func TestExecutePropagatesValidationError(t *testing.T) {
	engine := &fakeEngine{err: stderrors.NewInvalidQueryError("destination must not be empty")}
	handler := newTestHandler(t, engine)

	_, err := handler.Execute(context.Background(), &Input{})
	require.Error(t, err)

	var stdErr *stderrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, stderrors.ErrCodeInvalidQuery, stdErr.Code)
}

// The complete-command fakes embed the client interfaces so only the
// methods the handler touches need implementations.

type fakeCompleteDispatch struct {
	commands.DispatchCompleteJobCommand
	sends int
}

func (d *fakeCompleteDispatch) Send(context.Context) (*pb.CompleteJobResponse, error) {
	d.sends++
	return &pb.CompleteJobResponse{}, nil
}

type fakeCompleteCommand struct {
	commands.CompleteJobCommandStep1
	commands.CompleteJobCommandStep2
	marshalErr error
	dispatch   *fakeCompleteDispatch
}

func (c *fakeCompleteCommand) JobKey(int64) commands.CompleteJobCommandStep2 { return c }

func (c *fakeCompleteCommand) VariablesFromObject(interface{}) (commands.DispatchCompleteJobCommand, error) {
	if c.marshalErr != nil {
		return nil, c.marshalErr
	}
	return c.dispatch, nil
}

type fakeJobClient struct {
	worker.JobClient
	complete *fakeCompleteCommand
}

func (c *fakeJobClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	return c.complete
}

func newTestJob(key int64) entities.Job {
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:       key,
		Type:      TaskType,
		Retries:   3,
		Variables: "{}",
	}}
}

func TestCompleteJobSendsVariables(t *testing.T) {
	handler := newTestHandler(t, &fakeEngine{})
	dispatch := &fakeCompleteDispatch{}
	client := &fakeJobClient{complete: &fakeCompleteCommand{dispatch: dispatch}}

	handler.completeJob(client, newTestJob(42), &Output{Count: 1})
	assert.Equal(t, 1, dispatch.sends)
}

func TestCompleteJobMarshalFailureSkipsSend(t *testing.T) {
	handler := newTestHandler(t, &fakeEngine{})
	dispatch := &fakeCompleteDispatch{}
	client := &fakeJobClient{complete: &fakeCompleteCommand{
		marshalErr: errors.New("variables: unsupported value"),
		dispatch:   dispatch,
	}}

	require.NotPanics(t, func() {
		handler.completeJob(client, newTestJob(42), &Output{Count: 1})
	})
	assert.Zero(t, dispatch.sends)
}
