// Package deleter cascades deletion of a deck or a single card through the
// remote API, cleaning up the assets each card references.
package deleter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/deckmigrate/internal/apperr"
	"github.com/starford/deckmigrate/internal/progress"
	"github.com/starford/deckmigrate/internal/remote"
)

// Options selects the deletion target: a whole deck by name, or one card
// by id.
type Options struct {
	DeckName      string
	CardID        int64
	OwnerUsername string
}

// Validate checks that exactly one target kind is selected.
func (o Options) Validate() error {
	if o.DeckName == "" && o.CardID == 0 {
		return fmt.Errorf("either a deck name or a card id must be specified")
	}
	if o.DeckName != "" && o.CardID != 0 {
		return fmt.Errorf("deck name and card id are mutually exclusive")
	}
	if o.DeckName != "" && o.OwnerUsername == "" {
		return fmt.Errorf("owner is required when deleting by deck name")
	}
	return nil
}

// Deleter deletes one target per run. Not safe for concurrent use.
type Deleter struct {
	client   *remote.Client
	logger   *slog.Logger
	reporter progress.Reporter
}

// New creates a Deleter.
func New(client *remote.Client, logger *slog.Logger, reporter progress.Reporter) *Deleter {
	return &Deleter{client: client, logger: logger, reporter: reporter}
}

// Run deletes the selected target. In deck mode every card is deleted with
// its assets, then the deck record itself.
func (d *Deleter) Run(ctx context.Context, opts Options) error {
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	if opts.CardID != 0 {
		card, err := d.client.CardByID(ctx, opts.CardID)
		if err != nil {
			return fmt.Errorf("delete: fetch card %d: %w", opts.CardID, err)
		}
		if err := d.deleteCardAndAssets(ctx, card.ID); err != nil {
			return err
		}
		d.reporter.Succeed(fmt.Sprintf("Card %d delete complete", card.ID))
		return nil
	}

	deck, err := d.resolveDeck(ctx, opts.DeckName, opts.OwnerUsername)
	if err != nil {
		return err
	}

	cards, err := d.client.CardsByDeck(ctx, deck.ID)
	if err != nil {
		return fmt.Errorf("delete: list cards: %w", err)
	}
	d.logger.Info("deck resolved", slog.Int64("deck_id", deck.ID), slog.Int("cards", len(cards)))

	for i := range cards {
		if err := d.deleteCardAndAssets(ctx, cards[i].ID); err != nil {
			return err
		}
		d.reporter.Report(fmt.Sprintf("Deleted card %d of %d", i+1, len(cards)))
	}

	if err := d.client.DeleteDeck(ctx, deck.ID); err != nil {
		return fmt.Errorf("delete: deck %d: %w", deck.ID, err)
	}
	d.logger.Info("deck delete complete", slog.Int64("deck_id", deck.ID))
	d.reporter.Succeed("Deck delete complete")
	return nil
}

// resolveDeck finds the deck by exact name and owner.
func (d *Deleter) resolveDeck(ctx context.Context, name, ownerUsername string) (*remote.Deck, error) {
	owner, err := d.client.ResolveOwner(ctx, ownerUsername)
	if err != nil {
		return nil, fmt.Errorf("delete: resolve owner: %w", err)
	}
	decks, err := d.client.ListDecks(ctx)
	if err != nil {
		return nil, fmt.Errorf("delete: list decks: %w", err)
	}
	for i := range decks {
		if decks[i].Name == name && decks[i].UserID == owner.ID {
			return &decks[i], nil
		}
	}
	return nil, apperr.NotFoundf("deck %s with owner %s", name, owner.Username)
}

// deleteCardAndAssets deletes a card, then each asset it referenced. An
// asset the server still sees referenced from other cards is left in place
// and logged; any other asset failure aborts the run.
func (d *Deleter) deleteCardAndAssets(ctx context.Context, cardID int64) error {
	assets, err := d.client.AssetsByCard(ctx, cardID)
	if err != nil {
		return fmt.Errorf("delete: list assets of card %d: %w", cardID, err)
	}
	d.logger.Info("card asset references", slog.Int64("card_id", cardID), slog.Int("assets", len(assets)))

	if err := d.client.DeleteCard(ctx, cardID); err != nil {
		return fmt.Errorf("delete: card %d: %w", cardID, err)
	}
	d.logger.Info("deleted card", slog.Int64("card_id", cardID))

	for _, asset := range assets {
		refs, err := d.client.AssetRefs(ctx, asset.ID)
		if err != nil {
			return fmt.Errorf("delete: check asset %d: %w", asset.ID, err)
		}
		if len(refs) == 0 {
			continue
		}
		if err := d.client.DeleteAsset(ctx, asset.ID); err != nil {
			if errors.Is(err, apperr.ErrAssetReferenced) {
				d.logger.Warn("card references remain, skipping delete of asset",
					slog.Int64("asset_id", asset.ID))
				continue
			}
			return fmt.Errorf("delete: asset %d: %w", asset.ID, err)
		}
		d.logger.Info("deleted asset", slog.Int64("asset_id", asset.ID))
	}
	return nil
}
