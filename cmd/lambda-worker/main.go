package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker

import (
	"context"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"interview-backend/internal/bootstrap"
	"interview-backend/internal/dispatch"
	"interview-backend/internal/queue"
	"interview-backend/internal/shared/config"
	"interview-backend/internal/shared/metrics"
	"interview-backend/internal/shared/telemetry"
	"interview-backend/internal/workerproc"
)

var (
	initOnce  sync.Once
	initErr   error
	processor dispatch.MessageProcessor
)

func initApp() {
	cfg, err := config.Load()
	if err != nil {
		initErr = err
		return
	}
	app, err := bootstrap.Build(context.Background(), cfg)
	if err != nil {
		initErr = err
		return
	}
	processor = app.Pipeline
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		telemetry.Error("lambda.worker.bootstrap_failed", map[string]any{"error": initErr.Error()})
		failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
		for _, record := range event.Records {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, initErr
	}
	return handleBatch(ctx, processor, event), nil
}

// handleBatch reports only records that should be redelivered; malformed
// payloads and recorded failures are acknowledged.
func handleBatch(ctx context.Context, proc dispatch.MessageProcessor, event events.SQSEvent) events.SQSEventResponse {
	failures := make([]events.SQSBatchItemFailure, 0)
	for _, record := range event.Records {
		err := workerproc.HandleMessage(ctx, proc, record.Body)
		disposition, outcome := workerproc.Classify(err)
		metrics.IncWorkerJob(outcome)
		if err != nil {
			telemetry.Error("lambda.worker.job_failed", map[string]any{
				"sqs_message_id": record.MessageId,
				"outcome":        outcome,
				"error":          err.Error(),
			})
		}
		if disposition == queue.Requeue {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}
	return events.SQSEventResponse{BatchItemFailures: failures}
}

func main() {
	lambda.Start(handler)
}
