package usage

import (
	"context"

	"github.com/multimind-ai/multimind/internal/ai"
	"github.com/multimind-ai/multimind/internal/logger"
)

// Publisher mirrors usage events onto a queue for out-of-process
// consumers; nil-able.
type Publisher interface {
	PublishUsage(ctx context.Context, userID uint64, modelID string, u ai.Usage) error
}

// Tracker applies usage off the response path. It holds its own repo (own
// DB session pool), never the request-scoped one.
type Tracker struct {
	repo *Repo
	pub  Publisher
	log  *logger.Logger
}

func NewTracker(repo *Repo, pub Publisher, log *logger.Logger) *Tracker {
	return &Tracker{repo: repo, pub: pub, log: log}
}

func (t *Tracker) Track(ctx context.Context, userID uint64, modelID string, u ai.Usage) error {
	if err := t.repo.Add(ctx, userID, modelID, u); err != nil {
		return err
	}
	if t.pub != nil {
		if err := t.pub.PublishUsage(ctx, userID, modelID, u); err != nil {
			// the local row is already written; queue mirroring is best-effort
			t.log.Warn("usage event publish failed", "model_id", modelID, "err", err)
		}
	}
	return nil
}
