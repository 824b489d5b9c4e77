// Package economy decides and applies currency rewards for finished games.
//
// Awards are idempotent by game ID: the store marks the game and credits the
// winner in one transaction, so retrying a failed award never pays twice.
package economy

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/cory-johannsen/covey/internal/game/games"
	"github.com/cory-johannsen/covey/internal/storage"
)

// RewardHook can override the configured reward for a game kind.
type RewardHook interface {
	GameReward(townID, kind string, def int64) int64
}

// Options configures a Policy.
type Options struct {
	// Rewards maps game kind to reward amount. Kinds missing from the table pay nothing.
	Rewards map[string]int64
	// Attempts bounds store attempts per award. Values below 1 mean 1.
	Attempts int
	// InitialInterval is the first retry delay; later delays grow exponentially.
	InitialInterval time.Duration
	// Hook optionally overrides rewards per town. May be nil.
	Hook RewardHook
}

// Policy applies game rewards to an AwardStore.
// It is safe for concurrent use.
type Policy struct {
	store   storage.AwardStore
	opts    Options
	logger  *zap.Logger
	rewards map[games.Kind]int64
}

// Outcome is the result of an award attempt.
type Outcome struct {
	// Awarded is false when the game had already been awarded.
	Awarded bool
	Amount  int64
	Balance int64
}

// NewPolicy creates a Policy.
//
// Precondition: store and logger must be non-nil.
// Postcondition: Returns a Policy or an error naming an unknown game kind in opts.Rewards.
func NewPolicy(store storage.AwardStore, opts Options, logger *zap.Logger) (*Policy, error) {
	rewards := make(map[games.Kind]int64, len(opts.Rewards))
	for name, amount := range opts.Rewards {
		kind, err := games.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("reward table: %w", err)
		}
		if amount < 0 {
			return nil, fmt.Errorf("reward table: %s reward must not be negative", name)
		}
		rewards[kind] = amount
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 100 * time.Millisecond
	}
	return &Policy{store: store, opts: opts, logger: logger, rewards: rewards}, nil
}

// Reward returns the amount a win of kind pays in townID.
func (p *Policy) Reward(townID string, kind games.Kind) int64 {
	amount := p.rewards[kind]
	if p.opts.Hook != nil {
		amount = p.opts.Hook.GameReward(townID, string(kind), amount)
	}
	return amount
}

// Award credits winnerID for gameID at most once, retrying store failures with
// exponential backoff.
//
// Precondition: gameID and winnerID must be non-empty; amount > 0.
// Postcondition: On success the award is durably recorded (by this or an
// earlier call). On error nothing was credited by this call.
func (p *Policy) Award(ctx context.Context, gameID, winnerID string, amount int64) (Outcome, error) {
	start := time.Now()
	var out Outcome
	op := func() error {
		awarded, balance, err := p.store.AwardOnce(ctx, gameID, winnerID, amount)
		if err != nil {
			return err
		}
		out = Outcome{Awarded: awarded, Amount: amount, Balance: balance}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.InitialInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.opts.Attempts-1)), ctx)

	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		p.logger.Warn("award attempt failed",
			zap.String("game", gameID),
			zap.String("player", winnerID),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("awarding game %s to %s: %w", gameID, winnerID, err)
	}
	p.logger.Info("game award settled",
		zap.String("game", gameID),
		zap.String("player", winnerID),
		zap.Int64("amount", amount),
		zap.Bool("awarded", out.Awarded),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}
