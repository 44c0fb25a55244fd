package ports

import (
	"context"
	"time"

	"github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/domain"
)

// Store is the append-only experiment log. Every operation is a single
// short transaction; AppendSample is durable before it returns. The
// display reads through Query concurrently with the loop's writes.
type Store interface {
	StartExperiment(ctx context.Context, reactor string, startedAt time.Time) (int64, error)
	StopExperiment(ctx context.Context, id int64, endedAt time.Time) error
	CurrentExperiment(ctx context.Context, reactor string) (*domain.Experiment, error)
	AppendSample(ctx context.Context, s *domain.Sample) error
	Query(ctx context.Context, reactor string, from, to time.Time, signals []string) ([]domain.Sample, error)
	ListOpen(ctx context.Context) ([]domain.Experiment, error)
	RecoverOpen(ctx context.Context, now time.Time) (int, error)
	Close() error
}
