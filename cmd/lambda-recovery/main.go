package main

// Scheduled (EventBridge) Lambda that runs one recovery cycle per invocation:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-recovery

import (
	"context"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"interview-backend/internal/bootstrap"
	"interview-backend/internal/recovery"
	"interview-backend/internal/shared/config"
	"interview-backend/internal/shared/requestid"
)

var (
	initOnce sync.Once
	initErr  error
	app      *bootstrap.App
)

func initApp() {
	cfg, err := config.Load()
	if err != nil {
		initErr = err
		return
	}
	app, initErr = bootstrap.Build(context.Background(), cfg)
}

func handler(ctx context.Context, event events.CloudWatchEvent) (recovery.CycleResult, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		return recovery.CycleResult{}, initErr
	}
	return runScheduled(ctx, app.Trigger, event)
}

// runScheduled runs a cycle and waits for the retries it dispatched, since the
// runtime may freeze as soon as the handler returns.
func runScheduled(ctx context.Context, trigger *recovery.Trigger, event events.CloudWatchEvent) (recovery.CycleResult, error) {
	id := event.ID
	if id == "" {
		id = requestid.New()
	}
	res, err := trigger.RunNow(requestid.With(ctx, id), "schedule")
	if app != nil && app.Dispatcher != nil {
		app.Dispatcher.Wait()
	}
	return res, err
}

func main() {
	lambda.Start(handler)
}
