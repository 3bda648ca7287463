package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"interview-backend/internal/bootstrap"
	"interview-backend/internal/dispatch"
	"interview-backend/internal/queue"
	"interview-backend/internal/shared/config"
	"interview-backend/internal/shared/metrics"
	"interview-backend/internal/shared/telemetry"
	"interview-backend/internal/workerproc"
)

const (
	defaultVisibilitySeconds  = 1200
	defaultShutdownTimeoutSec = 30
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	concurrency := max(1, cfg.WorkerConcurrency)
	shutdownTimeout := time.Duration(envInt("SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownTimeoutSec)) * time.Second

	switch cfg.QueueBackend {
	case "rabbitmq":
		telemetry.Info("worker.started", map[string]any{"backend": "rabbitmq", "queue": cfg.RabbitMQQueue, "concurrency": concurrency})
		err = app.Rabbit.Consume(ctx, concurrency, func(ctx context.Context, body string) queue.Disposition {
			disposition, outcome := workerproc.Classify(process(ctx, app.Pipeline, body))
			metrics.IncWorkerJob(outcome)
			return disposition
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("rabbitmq consume: %v", err)
		}
	case "sqs":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			log.Fatalf("load aws config: %v", err)
		}
		poller := &sqsPoller{
			client:      sqs.NewFromConfig(awsCfg),
			queueURL:    cfg.SQSQueueURL,
			visibility:  envInt("SQS_VISIBILITY_TIMEOUT_SECONDS", defaultVisibilitySeconds),
			concurrency: concurrency,
			processor:   app.Pipeline,
		}
		telemetry.Info("worker.started", map[string]any{"backend": "sqs", "queue": cfg.SQSQueueURL, "concurrency": concurrency, "visibility_seconds": poller.visibility})
		poller.run(ctx, shutdownTimeout)
	default:
		log.Fatalf("worker requires QUEUE_BACKEND=sqs or rabbitmq, got %q", cfg.QueueBackend)
	}
	telemetry.Info("worker.stopped", nil)
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type sqsPoller struct {
	client      sqsAPI
	queueURL    string
	visibility  int
	concurrency int
	processor   dispatch.MessageProcessor
}

func (p *sqsPoller) run(ctx context.Context, shutdownTimeout time.Duration) {
	sem := make(chan struct{}, max(1, p.concurrency))
	var wg sync.WaitGroup

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		resp, err := p.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(p.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(p.visibility),
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break pollLoop
			}
			telemetry.Error("worker.receive_failed", map[string]any{"error": err.Error()})
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				handleMessage(ctx, p.client, p.queueURL, p.processor, m)
			}(msg)
		}
	}

	telemetry.Info("worker.draining", map[string]any{"timeout": shutdownTimeout.String()})
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		telemetry.Warn("worker.shutdown_timeout", nil)
	}
}

// process parses the body and runs the pipeline, logging the outcome.
func process(ctx context.Context, processor dispatch.MessageProcessor, body string) error {
	decoded, meta, err := workerproc.ParseMessage(body)
	if err != nil {
		fields := map[string]any{"body_len": meta.BodyLen, "error": err.Error()}
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		telemetry.Error("worker.job.invalid", fields)
		return err
	}

	fields := map[string]any{
		"request_id":        decoded.RequestID,
		"interview_id":      decoded.InterviewID,
		"source_message_id": decoded.SourceMessageID,
		"reason":            decoded.Reason,
	}
	telemetry.Info("worker.job.received", fields)
	if err := workerproc.HandleMessage(workerproc.WithParsedMessage(ctx, decoded), processor, body); err != nil {
		fields["error"] = err.Error()
		telemetry.Error("worker.job.failed", fields)
		return err
	}
	telemetry.Info("worker.job.completed", fields)
	return nil
}

func handleMessage(ctx context.Context, client sqsAPI, queueURL string, processor dispatch.MessageProcessor, msg sqstypes.Message) {
	disposition, outcome := workerproc.Classify(process(ctx, processor, aws.ToString(msg.Body)))
	metrics.IncWorkerJob(outcome)
	if disposition == queue.Requeue {
		telemetry.Warn("worker.job.redeliver", baseFields(msg))
		return
	}
	deleteMessage(ctx, client, queueURL, msg)
}

func deleteMessage(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields := baseFields(msg)
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.delete_failed", fields)
		return false
	}
	if _, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields := baseFields(msg)
		fields["error"] = err.Error()
		telemetry.Error("worker.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message) map[string]any {
	return map[string]any{
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
}

func receiveCount(msg sqstypes.Message) int {
	if msg.Attributes == nil {
		return 0
	}
	raw := msg.Attributes["ApproximateReceiveCount"]
	if raw == "" {
		return 0
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}
