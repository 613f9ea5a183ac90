// Package importer reads a bundle directory and recreates its records on a
// target instance of the remote API, in strict dependency order: deck,
// assets, cards, answers, share, then optionally study sessions and
// responses. Foreign keys are resolved through a per-run remap table.
//
// Import is not transactional. A remote failure aborts the run and leaves
// already-created records in place.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/deckmigrate/internal"
	"github.com/starford/deckmigrate/internal/apperr"
	"github.com/starford/deckmigrate/internal/bundle"
	"github.com/starford/deckmigrate/internal/ids"
	"github.com/starford/deckmigrate/internal/progress"
	"github.com/starford/deckmigrate/internal/remote"
	"github.com/starford/deckmigrate/internal/storage"
)

// Existing decks colliding with the incoming name are renamed to their
// first 24 runes plus "_" and a short random suffix.
const (
	renameKeepRunes = 24
	renameSuffixLen = 5
	timestampLayout = "2006-01-02 15:04:05"
)

// Options selects what to import and how.
type Options struct {
	// Dir is the bundle directory.
	Dir string
	// OwnerUsername is the target-side owner of everything created.
	OwnerUsername string
	// DeckName overrides the bundle's deck name when set.
	DeckName  string
	Responses internal.ResponsesMode
	// RenameConflict renames a pre-existing deck of the owner that
	// collides with the incoming name. This mutates an unrelated deck in
	// the target system; it stays off unless explicitly requested.
	RenameConflict bool
	// ExistingDeckID is the target deck for responses-only runs.
	ExistingDeckID int64
	// TestAuto, when set, is copied onto every created record.
	TestAuto string
}

// Validate checks the option invariants.
func (o Options) Validate() error {
	err := validation.ValidateStruct(&o,
		validation.Field(&o.Dir, validation.Required),
		validation.Field(&o.OwnerUsername, validation.Required),
	)
	if err != nil {
		return err
	}
	if o.Responses == internal.ResponsesOnly && o.ExistingDeckID == 0 {
		return fmt.Errorf("existing deck id is required for a responses-only import")
	}
	return nil
}

// Result summarizes one import run.
type Result struct {
	DeckID    int64
	Cards     int
	Answers   int
	Assets    int
	Sessions  int
	Responses int
	// Skipped counts responses whose card or answer linkage could not be
	// resolved.
	Skipped int
}

// Importer imports one bundle per run. Not safe for concurrent use.
type Importer struct {
	client   *remote.Client
	logger   *slog.Logger
	reporter progress.Reporter

	opts      Options
	dir       *storage.Dir
	meta      *bundle.Bundle
	owner     *remote.User
	remap     *remapTable
	newDeckID int64

	// ordinal-matching caches for responses-only mode
	sortedCards []*bundle.Card
	dbCards     []remote.Card
	ordinalOK   bool
}

// New creates an Importer.
func New(client *remote.Client, logger *slog.Logger, reporter progress.Reporter) *Importer {
	return &Importer{
		client:   client,
		logger:   logger,
		reporter: reporter,
	}
}

// Run imports the bundle at opts.Dir according to the options.
func (im *Importer) Run(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	im.opts = opts
	im.remap = newRemapTable()

	dir, err := storage.New(opts.Dir)
	if err != nil {
		return nil, err
	}
	im.dir = dir

	owner, err := im.client.ResolveOwner(ctx, opts.OwnerUsername)
	if err != nil {
		return nil, fmt.Errorf("import: resolve owner: %w", err)
	}
	im.owner = owner

	// The metadata file is read in every mode: responses-only runs still
	// need the bundle's card list for ordinal matching.
	data, err := im.dir.ReadFile(storage.MetadataFile)
	if err != nil {
		return nil, err
	}
	meta, err := bundle.Parse(data)
	if err != nil {
		return nil, err
	}
	im.meta = meta

	result := &Result{}

	if opts.Responses != internal.ResponsesOnly {
		if err := im.importDeck(ctx, result); err != nil {
			return nil, err
		}
		im.logger.Info("deck import complete", slog.Int64("deck_id", im.newDeckID))
	}

	if opts.Responses != internal.ResponsesNone {
		respData, err := im.dir.ReadFile(storage.ResponsesFile)
		if err != nil {
			return nil, err
		}
		resp, err := bundle.Parse(respData)
		if err != nil {
			return nil, err
		}
		if err := im.importResponses(ctx, resp, result); err != nil {
			return nil, err
		}
	}

	result.DeckID = im.newDeckID
	return result, nil
}

// importDeck creates the deck, its assets, cards with answers, and share.
func (im *Importer) importDeck(ctx context.Context, result *Result) error {
	if err := im.meta.ValidateMetadata(); err != nil {
		return err
	}
	deck := im.meta.Deck()

	if ids.IsAbsolute(deck.ID.String()) {
		// Attach to a deck that already exists in the target.
		deckID, err := strconv.ParseInt(ids.Untag(deck.ID.String()), 10, 64)
		if err != nil {
			return apperr.Validationf("deck id %q is not numeric", deck.ID.String())
		}
		im.newDeckID = deckID
	} else {
		if err := im.createDeck(ctx, deck); err != nil {
			return err
		}
	}

	for i, asset := range im.meta.Assets {
		newID, err := im.createAsset(ctx, asset)
		if err != nil {
			return err
		}
		im.remap.assets[asset.ID.String()] = newID
		im.reporter.Report(fmt.Sprintf("New asset created with id of %d (%d of %d assets)",
			newID, i+1, len(im.meta.Assets)))
	}
	result.Assets = len(im.meta.Assets)

	for i, card := range im.meta.Cards {
		if err := im.createCard(ctx, card, result); err != nil {
			return err
		}
		im.reporter.Report(fmt.Sprintf("Card %d of %d cards created", i+1, len(im.meta.Cards)))
	}
	result.Cards = len(im.meta.Cards)

	if err := im.createShare(ctx); err != nil {
		return err
	}

	im.reporter.Succeed("Card import complete")
	return nil
}

// createDeck creates a new deck for the owner, renaming a colliding
// pre-existing deck first when the option is set.
func (im *Importer) createDeck(ctx context.Context, deck *bundle.Deck) error {
	name := im.opts.DeckName
	if name == "" {
		name = deck.Name
	}

	if im.opts.RenameConflict {
		if err := im.renameConflictingDeck(ctx, name); err != nil {
			return err
		}
	}

	newID, err := im.client.CreateDeck(ctx, remote.CreateDeck{
		Name:         name,
		UserID:       im.owner.ID,
		Description:  deck.Description,
		TextToSpeech: deck.TextToSpeech,
		Preface:      deck.Preface,
		Feedback:     deck.Feedback,
		ShowDontKnow: deck.ShowDontKnow,
		TestAuto:     im.opts.TestAuto,
	})
	if err != nil {
		return fmt.Errorf("import: create deck: %w", err)
	}
	im.logger.Info("new deck created", slog.Int64("deck_id", newID))
	im.newDeckID = newID
	return nil
}

// renameConflictingDeck probes the target for a deck of the owner with the
// same name and renames it out of the way. Only the fixed allow-list of
// fields is preserved in the update.
func (im *Importer) renameConflictingDeck(ctx context.Context, name string) error {
	decks, err := im.client.DecksByNameAndOwner(ctx, name, im.owner.ID)
	if err != nil {
		return fmt.Errorf("import: probe deck conflict: %w", err)
	}
	if len(decks) == 0 {
		return nil
	}
	existing := decks[0]
	newName := truncateRunes(existing.Name, renameKeepRunes) + "_" + randomSuffix(renameSuffixLen)

	err = im.client.UpdateDeck(ctx, existing.ID, remote.UpdateDeck{
		Name:                   newName,
		UserID:                 im.owner.ID,
		Feedback:               existing.Feedback,
		Preface:                existing.Preface,
		ShowDuration:           existing.ShowDuration,
		DefaultPrefaceSettings: existing.DefaultPrefaceSettings,
		ShowDontKnow:           existing.ShowDontKnow,
	})
	if err != nil {
		return fmt.Errorf("import: rename conflicting deck %d: %w", existing.ID, err)
	}
	im.logger.Info("deck conflict renamed", slog.String("new_name", newName))
	return nil
}

// createAsset uploads an asset's metadata and then its binary payload. The
// sibling file is read before any remote record is created so a missing
// file cannot leave an orphaned metadata-only record behind.
func (im *Importer) createAsset(ctx context.Context, asset *bundle.Asset) (int64, error) {
	data, err := im.dir.ReadFile(asset.FileName)
	if err != nil {
		return 0, fmt.Errorf("import: asset %s: %w", asset.ID.String(), err)
	}

	newID, err := im.client.CreateAsset(ctx, remote.CreateAsset{
		Name:     asset.Name,
		FileType: asset.FileType,
		FileName: asset.FileName,
		UserID:   im.owner.ID,
		TestAuto: im.opts.TestAuto,
	})
	if err != nil {
		return 0, fmt.Errorf("import: create asset %s: %w", asset.ID.String(), err)
	}

	signedURL, err := im.client.GenerateURL(ctx, newID, "put", asset.FileType)
	if err != nil {
		return 0, fmt.Errorf("import: generate url for asset %d: %w", newID, err)
	}
	if err := im.client.Upload(ctx, signedURL, asset.FileType, data); err != nil {
		return 0, fmt.Errorf("import: upload asset %d: %w", newID, err)
	}
	return newID, nil
}

// createCard creates a card and its answers, resolving any text-embedded
// asset references through the remap table first.
func (im *Importer) createCard(ctx context.Context, card *bundle.Card, result *Result) error {
	question, err := im.rewriteAssetLink(card.Question, "card "+card.ID.String())
	if err != nil {
		return err
	}

	var algo int64
	if !card.Algo.IsZero() {
		if algo, err = card.Algo.Int64(); err != nil {
			return apperr.Validationf("card %s: algo id %q is not numeric", card.ID.String(), card.Algo.String())
		}
	}

	newCardID, err := im.client.CreateCard(ctx, remote.CardContents{
		Question:              question,
		Answer:                nil,
		Deck:                  im.newDeckID,
		Hint:                  card.Hint,
		VerificationAlgorithm: algo,
		AlgoSettings:          card.AlgoSettings,
		TestAuto:              im.opts.TestAuto,
	})
	if err != nil {
		return fmt.Errorf("import: create card %s: %w", card.ID.String(), err)
	}
	im.remap.cards[card.ID.String()] = newCardID

	for _, answer := range card.Answers {
		if err := im.createAnswer(ctx, answer, newCardID); err != nil {
			return err
		}
		result.Answers++
	}
	return nil
}

// createAnswer creates one answer scoped to the new card id.
func (im *Importer) createAnswer(ctx context.Context, answer *bundle.Answer, cardID int64) error {
	text, err := im.rewriteAssetLink(answer.Text, "answer "+answer.ID.String())
	if err != nil {
		return err
	}

	groupIndex := answer.GroupIndex
	if groupIndex == 0 {
		groupIndex = 1
	}

	newID, err := im.client.CreateAnswer(ctx, remote.CreateAnswer{
		Text:       text,
		IsCorrect:  answer.IsCorrect,
		CardID:     cardID,
		GroupIndex: groupIndex,
	})
	if err != nil {
		return fmt.Errorf("import: create answer %s: %w", answer.ID.String(), err)
	}
	if !answer.ID.IsZero() {
		im.remap.answers[answer.ID.String()] = newID
	}
	im.logger.Debug("created answer", slog.Int64("answer_id", newID))
	return nil
}

// rewriteAssetLink re-points a text-embedded asset reference at the id the
// referenced asset was created with during this run.
func (im *Importer) rewriteAssetLink(text, owner string) (string, error) {
	if !ids.ContainsAssetLink(text) {
		return text, nil
	}
	oldID := ids.ExtractAssetID(text)
	newID, ok := im.remap.assets[oldID]
	if !ok {
		return "", apperr.Validationf("%s references asset %s not present in bundle", owner, oldID)
	}
	return ids.ReplaceAssetID(text, strconv.FormatInt(newID, 10)), nil
}

// createShare creates the deck's share record when the bundle has one.
// Absent share: skip silently.
func (im *Importer) createShare(ctx context.Context) error {
	if len(im.meta.Shares) == 0 {
		return nil
	}
	if len(im.meta.Shares) > 1 {
		im.logger.Warn("multiple share objects in bundle, using the first",
			slog.Int("count", len(im.meta.Shares)))
	}
	share := im.meta.Shares[0]

	expiration, err := formatTimestamp(share.Expiration)
	if err != nil {
		return apperr.Validationf("share expiration %q: %v", share.Expiration, err)
	}

	err = im.client.CreateShare(ctx, remote.CreateShare{
		DeckID:               im.newDeckID,
		Expiration:           expiration,
		CheckedAdmin:         share.DefaultIsAdminMode,
		CheckedRandom:        share.DefaultIsRandomMode,
		CheckedSaveResponses: share.DefaultIsSaveResponsesMode,
		CheckedTextToSpeech:  share.DefaultIsTextToSpeechMode,
		TestAuto:             im.opts.TestAuto,
	})
	if err != nil {
		return fmt.Errorf("import: create share: %w", err)
	}
	im.logger.Info("created deck share")
	return nil
}

// formatTimestamp converts a bundle timestamp to the target's format.
func formatTimestamp(s string) (string, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, timestampLayout, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(timestampLayout), nil
		}
	}
	return "", fmt.Errorf("unrecognized timestamp")
}

// truncateRunes shortens s to at most n runes.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// randomSuffix returns n characters of random id material for the
// conflict rename.
func randomSuffix(n int) string {
	id := uuid.NewString()
	id = string([]rune(id)[:n])
	return id
}
