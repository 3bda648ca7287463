package main

import (
	"context"
	"os"
	"strings"
	"sync"

	"interview-backend/internal/bootstrap"
	"interview-backend/internal/interviews"
	"interview-backend/internal/recovery"
	"interview-backend/internal/shared/config"
)

// operator is the slice of the recovery engine the CLI drives.
type operator interface {
	RunCycle(ctx context.Context) (recovery.CycleResult, error)
	Status(ctx context.Context) (recovery.Report, error)
	ListOrphaned(ctx context.Context) ([]recovery.OrphanView, error)
	ForceRetry(ctx context.Context, id string) (recovery.RetryOutcome, error)
	Cleanup(ctx context.Context, days int) (int64, error)
}

type commandContext struct {
	configFlag string

	once   sync.Once
	open   func(ctx context.Context, configPath string) (operator, func() error, error)
	op     operator
	closer func() error
	err    error

	closeOnce sync.Once
	closeErr  error
}

// newCommandContext builds a context; a nil open func wires the real application.
func newCommandContext(open func(ctx context.Context, configPath string) (operator, func() error, error)) *commandContext {
	if open == nil {
		open = openApp
	}
	return &commandContext{open: open}
}

func (c *commandContext) operator(ctx context.Context) (operator, error) {
	c.once.Do(func() {
		c.op, c.closer, c.err = c.open(ctx, strings.TrimSpace(c.configFlag))
	})
	return c.op, c.err
}

// close waits for dispatched retries and releases connections. Only the
// first call does any work.
func (c *commandContext) close() error {
	c.closeOnce.Do(func() {
		if c.closer != nil {
			c.closeErr = c.closer()
		}
	})
	return c.closeErr
}

func (c *commandContext) cleanupFloor() int {
	if op, ok := c.op.(*recovery.Engine); ok {
		return op.Config.CleanupFloorDays
	}
	return recovery.DefaultConfig().CleanupFloorDays
}

func loadConfig(configPath string) (config.Config, error) {
	if configPath != "" {
		os.Setenv("CONFIG_FILE", configPath)
	}
	return config.Load()
}

func openApp(ctx context.Context, configPath string) (operator, func() error, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return app.Engine, app.Close, nil
}

func statusOrder() []interviews.Status {
	return []interviews.Status{
		interviews.StatusPending,
		interviews.StatusProcessing,
		interviews.StatusTranscribing,
		interviews.StatusAnalyzing,
		interviews.StatusFailed,
		interviews.StatusCompleted,
	}
}
