package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoReport means no validation run has been stored yet.
var ErrNoReport = errors.New("validation: no report stored")

// ReportStore persists validation reports for other processes to read.
type ReportStore interface {
	Save(ctx context.Context, report Report) error
	Latest(ctx context.Context) (Report, error)
	Get(ctx context.Context, runID string) (Report, error)
}

const (
	latestReportKey = "meridian:validation:latest"
	reportKeyPrefix = "meridian:validation:report:"
)

// RedisStore keeps reports in Redis. The latest report is always readable;
// individual runs expire after the retention period.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
}

func NewRedisStore(client *redis.Client, retention time.Duration) *RedisStore {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &RedisStore{client: client, retention: retention}
}

func (s *RedisStore) Save(ctx context.Context, report Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, latestReportKey, payload, 0)
	pipe.Set(ctx, reportKeyPrefix+report.RunID.String(), payload, s.retention)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Latest(ctx context.Context) (Report, error) {
	return s.get(ctx, latestReportKey)
}

func (s *RedisStore) Get(ctx context.Context, runID string) (Report, error) {
	return s.get(ctx, reportKeyPrefix+runID)
}

func (s *RedisStore) get(ctx context.Context, key string) (Report, error) {
	payload, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Report{}, ErrNoReport
		}
		return Report{}, err
	}
	var report Report
	if err := json.Unmarshal(payload, &report); err != nil {
		return Report{}, fmt.Errorf("unmarshal report: %w", err)
	}
	return report, nil
}
