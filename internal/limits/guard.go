package limits

import (
	"context"

	"github.com/multimind-ai/multimind/internal/ai"
	"github.com/multimind-ai/multimind/internal/common"
	"github.com/multimind-ai/multimind/internal/logger"
	"github.com/multimind-ai/multimind/internal/models"
)

// UsageSource reports accumulated token usage; implemented by the usage
// package's repo.
type UsageSource interface {
	TotalTokens(ctx context.Context, userIDs []uint64, modelID string) (int64, error)
}

// Tokenizer counts the tokens an about-to-be-sent prompt would consume.
type Tokenizer interface {
	CountTokens(ctx context.Context, model *ai.Model, messages []ai.Message) (int, error)
}

// Guard enforces the two pre-generation gates: the global budget and the
// per-model/per-group token limit. Both are eventually consistent with
// post-generation accounting; a concurrent burst can transiently overshoot.
type Guard struct {
	repo      *Repo
	usage     UsageSource
	tokenizer Tokenizer
	log       *logger.Logger
}

func NewGuard(repo *Repo, usage UsageSource, tokenizer Tokenizer, log *logger.Logger) *Guard {
	return &Guard{repo: repo, usage: usage, tokenizer: tokenizer, log: log}
}

// CheckBudget fails every caller once the governing budget row's usage
// exceeds its ceiling. No budget row configured means no budget gate.
func (g *Guard) CheckBudget(ctx context.Context) error {
	b, err := g.repo.LatestBudget(ctx)
	if err != nil {
		return err
	}
	if b == nil {
		return nil
	}
	if b.Usage > b.Budget {
		return common.BudgetExceededErr()
	}
	return nil
}

// CheckModel validates one target model for one caller. BYOK bypasses the
// limit entirely; otherwise the group-resolved ceiling applies, with team
// groups pooling usage across members.
func (g *Guard) CheckModel(ctx context.Context, userID uint64, model *ai.Model, prompt []ai.Message) error {
	if _, ok, err := g.repo.ByokKey(ctx, userID, model.Host); err != nil {
		return err
	} else if ok {
		return nil
	}

	limit, group, ok, err := g.repo.LimitForUserModel(ctx, userID, model.ID)
	if err != nil {
		return err
	}
	if !ok {
		return common.BYOKRequiredErr(model.ID)
	}
	if limit.MaxTokens <= 0 {
		return common.LimitsExceededErr(model.ID)
	}

	userIDs := []uint64{userID}
	if group.Type == models.GroupTeam {
		ids, err := g.repo.GroupMemberIDs(ctx, group.ID)
		if err != nil {
			return err
		}
		if len(ids) > 0 {
			userIDs = ids
		}
	}

	used, err := g.usage.TotalTokens(ctx, userIDs, model.ID)
	if err != nil {
		return err
	}
	pending, err := g.tokenizer.CountTokens(ctx, model, prompt)
	if err != nil {
		g.log.Warn("token count failed, gating on stored usage only", "model_id", model.ID, "err", err)
		pending = 0
	}

	if used+int64(pending) >= limit.MaxTokens {
		return common.LimitsExceededErr(model.ID)
	}
	return nil
}

func (g *Guard) ByokKey(ctx context.Context, userID uint64, host string) (string, bool, error) {
	return g.repo.ByokKey(ctx, userID, host)
}

func (g *Guard) AddBudgetUsage(ctx context.Context, amount float64) error {
	return g.repo.AddBudgetUsage(ctx, amount)
}
