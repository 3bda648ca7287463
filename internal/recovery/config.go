package recovery

import (
	"fmt"
	"time"
)

// Config is the recovery policy. It is passed to the Engine explicitly.
type Config struct {
	OrphanTimeout    time.Duration `json:"orphan_timeout"`
	MaxRetryAttempts int           `json:"max_retry_attempts"`
	RetryDelay       time.Duration `json:"retry_delay"`
	CleanupFloorDays int           `json:"cleanup_floor_days"`
	// ScanLimit caps how many interviews one scan loads. Zero means no cap.
	ScanLimit int `json:"scan_limit"`
}

// DefaultConfig returns the stock policy: 60m orphan timeout, 3 attempts,
// 5m retry delay and a 7 day cleanup floor.
func DefaultConfig() Config {
	return Config{
		OrphanTimeout:    60 * time.Minute,
		MaxRetryAttempts: 3,
		RetryDelay:       5 * time.Minute,
		CleanupFloorDays: 7,
		ScanLimit:        500,
	}
}

// Validate rejects policies the engine cannot run with.
func (c Config) Validate() error {
	if c.OrphanTimeout <= 0 {
		return fmt.Errorf("orphan timeout must be positive, got %s", c.OrphanTimeout)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay must not be negative, got %s", c.RetryDelay)
	}
	if c.MaxRetryAttempts < 1 {
		return fmt.Errorf("max retry attempts must be at least 1, got %d", c.MaxRetryAttempts)
	}
	if c.CleanupFloorDays < 1 {
		return fmt.Errorf("cleanup floor must be at least 1 day, got %d", c.CleanupFloorDays)
	}
	if c.ScanLimit < 0 {
		return fmt.Errorf("scan limit must not be negative, got %d", c.ScanLimit)
	}
	return nil
}
