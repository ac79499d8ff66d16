// internal/workers/aggregate-poi/handler.go
package aggregatepoi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	stderrors "poi-aggregator/internal/common/errors"
	"poi-aggregator/internal/common/logger"
	"poi-aggregator/internal/common/metrics"
	"poi-aggregator/internal/common/observability"
	"poi-aggregator/internal/models"
)

const (
	TaskType = "aggregate-poi"
)

// Aggregator is the orchestration engine seam, narrowed so tests can
// drive the handler without providers.
type Aggregator interface {
	Aggregate(ctx context.Context, query models.AggregationQuery) ([]models.CanonicalVenue, error)
}

type Handler struct {
	config *Config
	engine Aggregator
	obs    *observability.Observability
	logger logger.Logger
}

func NewHandler(config *Config, engine Aggregator, obs *observability.Observability, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		engine: engine,
		obs:    obs,
		logger: log.WithFields(map[string]interface{}{
			"taskType": TaskType,
		}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, stderrors.NewInvalidQueryError(fmt.Sprintf("parse input: %v", err)), 0)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		code := stderrors.ErrCodeAggregationUnavailable
		retries := int32(0)
		var stdErr *stderrors.StandardError
		if errors.As(err, &stdErr) {
			code = stdErr.Code
			if stdErr.Retryable {
				retries = int32(stderrors.GetRetryCount(stdErr.Code))
			}
		}
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(code)).Inc()
		if h.obs != nil {
			h.obs.RecordRunProcessed(ctx, "failed")
		}
		h.failJob(client, job, err, retries)
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	if h.obs != nil {
		h.obs.RecordRunProcessed(ctx, "completed")
		h.obs.RecordRunDuration(ctx, time.Since(start), "completed")
	}
	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	venues, err := h.engine.Aggregate(ctx, models.AggregationQuery{
		Destination:    input.Destination,
		BudgetPerVenue: input.BudgetPerVenue,
		Coordinates:    input.Coordinates,
		MaxResults:     input.MaxResults,
	})
	if err != nil {
		return nil, err
	}

	lowConfidence := len(venues) > 0
	for _, venue := range venues {
		if !venue.LowConfidence() {
			lowConfidence = false
			break
		}
	}

	h.logger.Info("aggregation job completed", map[string]interface{}{
		"destination":   input.Destination,
		"venueCount":    len(venues),
		"lowConfidence": lowConfidence,
	})

	return &Output{
		Venues:        venues,
		Count:         len(venues),
		LowConfidence: lowConfidence,
	}, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)

	if err != nil {
		h.logger.Error("Failed to complete job", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}

	if _, sendErr := cmd.Send(context.Background()); sendErr != nil {
		h.logger.Error("Failed to send complete job", map[string]interface{}{
			"jobKey": job.Key,
			"error":  sendErr.Error(),
		})
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, err error, retries int32) {
	errorCode := "UNKNOWN_ERROR"
	var stdErr *stderrors.StandardError
	if errors.As(err, &stdErr) {
		errorCode = string(stdErr.Code)
	}

	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":    job.Key,
		"error":     err.Error(),
		"errorCode": errorCode,
	})

	_, _ = client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(retries).
		ErrorMessage(err.Error()).
		Send(context.Background())
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
