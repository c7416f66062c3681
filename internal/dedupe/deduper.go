package dedupe

import "context"

// Deduper puts ids (arbitrage hashes) on cooldown.
// Seen marks the id and reports whether it was already marked;
// Forget lifts the mark so the id may be acted upon again.
type Deduper interface {
	Seen(ctx context.Context, id string) (alreadySeen bool, err error)
	Forget(ctx context.Context, id string) error
}
