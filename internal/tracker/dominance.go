package tracker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ernie/fortress-ops/internal/domain"
	"github.com/ernie/fortress-ops/internal/storage"
)

// Dominance maintains the signed per-pair domination ledger. A pair is
// stored once under its canonical (lesser, greater) key; the sign of
// the score encodes which side currently holds the advantage.
type Dominance struct {
	store *storage.Store
}

// NewDominance creates the ledger subscriber
func NewDominance(store *storage.Store) *Dominance {
	return &Dominance{store: store}
}

// Handle is the broker subscriber entry point. Only domination actions
// mutate the ledger; revenges are recognized but recorded nowhere.
func (d *Dominance) Handle(event domain.Event) {
	if event.Kind != domain.EventInterPlayer || event.InterPlayer.Action != domain.ActionDomination {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	actor := event.InterPlayer.From
	target := event.InterPlayer.Against
	score, err := d.Record(ctx, actor.SteamID, target.SteamID)
	if err != nil {
		log.Error().Err(err).Str("actor", actor.SteamID).Str("target", target.SteamID).Msg("Failed to record domination")
		return
	}
	log.Debug().Str("actor", actor.Name).Str("target", target.Name).Int64("score", score).Msg("Domination recorded")
}

// Record applies one domination of target by actor and returns the
// updated score from the actor's point of view (positive means the
// actor leads the pair).
func (d *Dominance) Record(ctx context.Context, actorID, targetID string) (int64, error) {
	lo, hi := domain.CanonicalPair(actorID, targetID)

	var sign int64 = -1
	if actorID == hi {
		sign = 1
	}

	stored, err := d.store.AddDomination(ctx, lo, hi, sign)
	if err != nil {
		return 0, err
	}
	return stored * sign, nil
}
