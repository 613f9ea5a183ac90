// Package export walks a deck's full object graph on the remote API and
// serializes it into a self-contained bundle directory.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/deckmigrate/internal"
	"github.com/starford/deckmigrate/internal/apperr"
	"github.com/starford/deckmigrate/internal/bundle"
	"github.com/starford/deckmigrate/internal/ids"
	"github.com/starford/deckmigrate/internal/progress"
	"github.com/starford/deckmigrate/internal/remote"
	"github.com/starford/deckmigrate/internal/storage"
)

// Options selects what to export and where.
type Options struct {
	DeckName      string
	OwnerUsername string
	// DataPath is the parent directory; the bundle lands in a
	// subdirectory named by the remote deck id.
	DataPath string
	// Dir overrides the bundle directory entirely when set.
	Dir       string
	Responses internal.ResponsesMode
}

// Validate checks the option invariants.
func (o Options) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.DeckName, validation.Required),
		validation.Field(&o.OwnerUsername, validation.Required),
	)
}

// Result summarizes one export run.
type Result struct {
	DeckID    int64
	Path      string
	Cards     int
	Assets    int
	Sessions  int
	Responses int
}

// Exporter exports a single deck per run. Not safe for concurrent use; every
// remote call is awaited before the next begins.
type Exporter struct {
	client   *remote.Client
	logger   *slog.Logger
	reporter progress.Reporter

	dir *storage.Dir
	out *bundle.Bundle
	// seen dedups asset records across the direct-attachment and
	// text-embedded paths, keyed by remote asset id.
	seen map[int64]bool
}

// New creates an Exporter.
func New(client *remote.Client, logger *slog.Logger, reporter progress.Reporter) *Exporter {
	return &Exporter{
		client:   client,
		logger:   logger,
		reporter: reporter,
	}
}

// Run resolves the deck and exports it according to the options. The
// metadata file is written only after every remote call has succeeded; a
// failed run leaves no valid bundle and callers should delete and retry.
func (e *Exporter) Run(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	owner, err := e.client.ResolveOwner(ctx, opts.OwnerUsername)
	if err != nil {
		return nil, fmt.Errorf("export: resolve owner: %w", err)
	}

	deck, err := e.resolveDeck(ctx, opts.DeckName, owner)
	if err != nil {
		return nil, err
	}

	path := opts.Dir
	if path == "" {
		path = filepath.Join(opts.DataPath, strconv.FormatInt(deck.ID, 10))
	}
	dir, err := storage.New(path)
	if err != nil {
		return nil, err
	}
	if err := dir.Prepare(); err != nil {
		return nil, err
	}
	e.dir = dir
	e.out = &bundle.Bundle{}
	e.seen = make(map[int64]bool)

	result := &Result{DeckID: deck.ID, Path: dir.Root()}

	if opts.Responses != internal.ResponsesOnly {
		if err := e.exportDeck(ctx, deck, result); err != nil {
			return nil, err
		}
	}
	if opts.Responses != internal.ResponsesNone {
		if err := e.exportResponses(ctx, deck, owner, result); err != nil {
			return nil, err
		}
	}

	e.logger.Info("export complete",
		slog.Int64("deck_id", deck.ID),
		slog.String("path", dir.Root()))
	return result, nil
}

// resolveDeck finds the deck by exact name and owner. The query endpoint
// filters by name only, so ownership is checked again here.
func (e *Exporter) resolveDeck(ctx context.Context, name string, owner *remote.User) (*remote.Deck, error) {
	decks, err := e.client.QueryDecksByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("export: query decks: %w", err)
	}
	for i := range decks {
		if decks[i].Name == name && decks[i].UserID == owner.ID {
			return &decks[i], nil
		}
	}
	return nil, apperr.NotFoundf("deck %s with owner %s", name, owner.Username)
}

// exportDeck accumulates the deck, its cards, answers, assets, and share,
// then writes the metadata file.
func (e *Exporter) exportDeck(ctx context.Context, deck *remote.Deck, result *Result) error {
	e.out.Decks = append(e.out.Decks, &bundle.Deck{
		ID:           bundle.IDOf(deck.ID),
		Name:         deck.Name,
		Description:  deck.Description,
		Synopsis:     deck.Synopsis,
		TextToSpeech: deck.TextToSpeech,
		Preface:      deck.Preface,
		Feedback:     deck.Feedback,
		ShowDontKnow: deck.ShowDontKnow,
	})

	cards, err := e.client.CardsByDeck(ctx, deck.ID)
	if err != nil {
		return fmt.Errorf("export: list cards: %w", err)
	}

	for i := range cards {
		if err := e.exportCard(ctx, &cards[i], deck); err != nil {
			return err
		}
		e.reporter.Report(fmt.Sprintf("Exported card %d of %d", i+1, len(cards)))
	}
	result.Cards = len(cards)
	result.Assets = len(e.out.Assets)

	if err := e.exportShare(ctx, deck); err != nil {
		return err
	}

	data, err := e.out.Marshal()
	if err != nil {
		return err
	}
	if err := e.dir.WriteFile(storage.MetadataFile, data); err != nil {
		return err
	}
	e.reporter.Succeed("Card export complete")
	return nil
}

// exportCard emits one card with its answers inline, pulling in every asset
// reachable from the card first.
func (e *Exporter) exportCard(ctx context.Context, card *remote.Card, deck *remote.Deck) error {
	if err := e.exportAssetsByCard(ctx, card); err != nil {
		return err
	}
	if ids.ContainsAssetLink(card.Question) {
		if err := e.exportAssetFromText(ctx, card.Question, card.ID); err != nil {
			return err
		}
	}

	answers := make([]*bundle.Answer, 0, len(card.Answers))
	for i := range card.Answers {
		a, err := e.exportAnswer(ctx, &card.Answers[i], card.ID)
		if err != nil {
			return err
		}
		answers = append(answers, a)
	}

	e.out.Cards = append(e.out.Cards, &bundle.Card{
		ID:           bundle.IDOf(card.ID),
		DeckID:       ids.TagRelative(strconv.FormatInt(deck.ID, 10)),
		Deck:         deck.Name,
		Question:     card.Question,
		Hint:         card.Hint,
		Explanation:  card.Explanation,
		Notes:        card.Notes,
		Answers:      answers,
		Algo:         bundle.IDOf(card.AlgorithmID),
		AlgoSettings: card.AlgoSettings,
	})

	e.logger.Debug("exported card", slog.Int64("card_id", card.ID))
	return nil
}

// exportAnswer emits an answer record, pulling in a text-embedded asset and
// recording the relative-tagged cross-reference when present.
func (e *Exporter) exportAnswer(ctx context.Context, answer *remote.Answer, cardID int64) (*bundle.Answer, error) {
	out := &bundle.Answer{
		ID:         bundle.IDOf(answer.ID),
		Text:       answer.Text,
		IsCorrect:  answer.IsCorrect,
		GroupIndex: answer.GroupIndex,
	}
	if ids.ContainsAssetLink(answer.Text) {
		assetID := ids.ExtractAssetID(answer.Text)
		if err := e.exportAssetFromText(ctx, answer.Text, cardID); err != nil {
			return nil, err
		}
		out.AssetID = ids.TagRelative(assetID)
	}
	return out, nil
}

// exportAssetsByCard emits every asset directly attached to a card.
func (e *Exporter) exportAssetsByCard(ctx context.Context, card *remote.Card) error {
	assets, err := e.client.AssetsByCard(ctx, card.ID)
	if err != nil {
		return fmt.Errorf("export: list assets of card %d: %w", card.ID, err)
	}
	for i := range assets {
		if err := e.emitAsset(ctx, &assets[i], 0); err != nil {
			return err
		}
	}
	return nil
}

// exportAssetFromText emits the asset referenced from a rich text field.
func (e *Exporter) exportAssetFromText(ctx context.Context, text string, cardID int64) error {
	raw := ids.ExtractAssetID(text)
	assetID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("export: card %d references malformed asset id %q", cardID, raw)
	}
	if e.seen[assetID] {
		return nil
	}
	asset, err := e.client.AssetByID(ctx, assetID)
	if err != nil {
		return fmt.Errorf("export: fetch asset %d: %w", assetID, err)
	}
	return e.emitAsset(ctx, asset, cardID)
}

// emitAsset records an asset's metadata and downloads its binary payload as
// a sibling file. Each asset is emitted exactly once per export, no matter
// how many attachment or text paths reach it.
func (e *Exporter) emitAsset(ctx context.Context, asset *remote.Asset, referencingCardID int64) error {
	if e.seen[asset.ID] {
		return nil
	}
	e.seen[asset.ID] = true

	obj := &bundle.Asset{
		ID:       bundle.IDOf(asset.ID),
		FileName: asset.FileName,
		Name:     asset.Name,
		FileType: asset.FileType,
		UserID:   ids.TagAbsolute(strconv.FormatInt(asset.UserID, 10)),
	}
	if referencingCardID != 0 {
		obj.CardID = ids.TagRelative(strconv.FormatInt(referencingCardID, 10))
	}

	signedURL, err := e.client.GenerateURL(ctx, asset.ID, "get", asset.FileType)
	if err != nil {
		return fmt.Errorf("export: generate url for asset %d: %w", asset.ID, err)
	}
	data, err := e.client.Download(ctx, signedURL)
	if err != nil {
		return fmt.Errorf("export: download asset %d: %w", asset.ID, err)
	}
	if err := e.dir.WriteFile(asset.FileName, data); err != nil {
		return err
	}

	e.out.Assets = append(e.out.Assets, obj)
	e.logger.Debug("exported asset", slog.Int64("asset_id", asset.ID))
	return nil
}

// exportShare emits the deck's share record when the deck has a share key.
func (e *Exporter) exportShare(ctx context.Context, deck *remote.Deck) error {
	if deck.ShareKey == "" {
		return nil
	}
	shares, err := e.client.SharesByKey(ctx, deck.ShareKey)
	if err != nil {
		return fmt.Errorf("export: fetch share: %w", err)
	}
	if len(shares) == 0 {
		return nil
	}
	share := shares[0]
	e.out.Shares = append(e.out.Shares, &bundle.Share{
		Expiration:                 share.Expiration,
		DefaultIsAdminMode:         share.DefaultIsAdminMode,
		DefaultIsRandomMode:        share.DefaultIsRandomMode,
		DefaultIsTextToSpeechMode:  share.DefaultIsTextToSpeechMode,
		DefaultIsSaveResponsesMode: share.DefaultIsSaveResponsesMode,
	})
	return nil
}

// exportResponses writes the study sessions and responses for the deck and
// owner to the responses file. Independent of the metadata file: safe to
// re-run, but a failure here does not roll the metadata export back.
func (e *Exporter) exportResponses(ctx context.Context, deck *remote.Deck, owner *remote.User, result *Result) error {
	out := &bundle.Bundle{}

	sessions, err := e.client.StudySessions(ctx, deck.ID, owner.ID)
	if err != nil {
		return fmt.Errorf("export: list study sessions: %w", err)
	}

	for i := range sessions {
		session := sessions[i]
		out.Sessions = append(out.Sessions, &bundle.StudySession{
			ID:        bundle.IDOf(session.ID),
			DeckID:    ids.TagRelative(strconv.FormatInt(session.DeckID, 10)),
			UserID:    ids.TagAbsolute(strconv.FormatInt(session.UserID, 10)),
			StartTime: session.StartTime,
			EndTime:   session.EndTime,
		})

		responses, err := e.client.ResponsesBySession(ctx, session.ID)
		if err != nil {
			return fmt.Errorf("export: list responses of session %d: %w", session.ID, err)
		}
		for j := range responses {
			resp := responses[j]
			answerID := "null"
			if resp.AnswerID != nil {
				answerID = strconv.FormatInt(*resp.AnswerID, 10)
			}
			out.Responses = append(out.Responses, &bundle.Response{
				ID:             bundle.IDOf(resp.ID),
				StudySessionID: ids.TagRelative(strconv.FormatInt(session.ID, 10)),
				CardID:         ids.TagRelative(strconv.FormatInt(resp.CardID, 10)),
				AnswerID:       ids.TagRelative(answerID),
				UserID:         ids.TagAbsolute(strconv.FormatInt(resp.UserID, 10)),
				IsCorrect:      resp.IsCorrect,
				CreatedOn:      resp.CreatedOn,
			})
		}
		e.reporter.Report(fmt.Sprintf("Exported study session %d of %d", i+1, len(sessions)))
	}

	result.Sessions = len(out.Sessions)
	result.Responses = len(out.Responses)

	data, err := out.Marshal()
	if err != nil {
		return err
	}
	if err := e.dir.WriteFile(storage.ResponsesFile, data); err != nil {
		return err
	}
	e.reporter.Succeed("Response export complete")
	return nil
}
