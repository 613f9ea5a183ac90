package importer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/starford/deckmigrate/internal"
	"github.com/starford/deckmigrate/internal/bundle"
	"github.com/starford/deckmigrate/internal/ids"
	"github.com/starford/deckmigrate/internal/remote"
)

// nullAnswer marks a response recorded before answers carried a foreign
// key.
const nullAnswer = "null"

// importResponses creates every study session in the responses bundle and
// the responses scoped to each. A response whose card or answer linkage
// cannot be resolved is skipped with a warning, never failed.
func (im *Importer) importResponses(ctx context.Context, resp *bundle.Bundle, result *Result) error {
	for i, session := range resp.Sessions {
		newSessionID, err := im.createStudySession(ctx, session)
		if err != nil {
			return err
		}
		im.remap.sessions[session.ID.String()] = newSessionID
		im.reporter.Report(fmt.Sprintf("Study session %d of %d study sessions created",
			i+1, len(resp.Sessions)))
		result.Sessions++

		for _, response := range resp.SessionResponses(ids.TagRelative(session.ID.String())) {
			created, err := im.createResponse(ctx, response, newSessionID)
			if err != nil {
				return err
			}
			if created {
				result.Responses++
			} else {
				result.Skipped++
			}
		}
	}
	im.reporter.Succeed("Import of study sessions and responses complete")
	return nil
}

// createStudySession creates one session against the run's target deck,
// converting timestamps and leaving the server-computed aggregate fields
// (response count, duration sum, correct count, total score) out of the
// payload entirely.
func (im *Importer) createStudySession(ctx context.Context, session *bundle.StudySession) (int64, error) {
	deckID := im.newDeckID
	if im.opts.Responses == internal.ResponsesOnly {
		deckID = im.opts.ExistingDeckID
	}

	startTime, err := formatTimestamp(session.StartTime)
	if err != nil {
		return 0, fmt.Errorf("import: session %s start time %q: %w", session.ID.String(), session.StartTime, err)
	}
	var endTime *string
	if session.EndTime != nil {
		formatted, err := formatTimestamp(*session.EndTime)
		if err != nil {
			return 0, fmt.Errorf("import: session %s end time %q: %w", session.ID.String(), *session.EndTime, err)
		}
		endTime = &formatted
	}

	testAuto := im.opts.TestAuto
	if testAuto == "" {
		testAuto = session.TestAuto
	}

	newID, err := im.client.CreateStudySession(ctx, remote.CreateStudySession{
		DeckID:    deckID,
		UserID:    im.owner.ID,
		StartTime: startTime,
		EndTime:   endTime,
		TestAuto:  testAuto,
	})
	if err != nil {
		return 0, fmt.Errorf("import: create study session %s: %w", session.ID.String(), err)
	}
	im.logger.Debug("created study session", slog.Int64("session_id", newID))
	return newID, nil
}

// createResponse creates one response, resolving its card and answer ids.
// Returns false when the linkage could not be resolved and the response was
// skipped.
func (im *Importer) createResponse(ctx context.Context, response *bundle.Response, sessionID int64) (bool, error) {
	var cardID int64
	var answerID *int64
	var ok bool
	var err error

	if im.opts.Responses == internal.ResponsesOnly {
		cardID, answerID, ok, err = im.resolveOrdinal(ctx, response)
	} else {
		cardID, answerID, ok = im.resolveRemapped(response)
	}
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	createdOn := response.CreatedOn
	if createdOn != "" {
		if createdOn, err = formatTimestamp(response.CreatedOn); err != nil {
			return false, fmt.Errorf("import: response %s created_on %q: %w",
				response.ID.String(), response.CreatedOn, err)
		}
	}

	newID, err := im.client.CreateResponse(ctx, remote.CreateResponse{
		StudySessionID: sessionID,
		CardID:         cardID,
		AnswerID:       answerID,
		UserID:         im.owner.ID,
		IsCorrect:      response.IsCorrect,
		CreatedOn:      createdOn,
		TestAuto:       im.opts.TestAuto,
	})
	if err != nil {
		return false, fmt.Errorf("import: create response %s: %w", response.ID.String(), err)
	}
	im.logger.Debug("created response",
		slog.String("bundle_id", response.ID.String()),
		slog.Int64("response_id", newID))
	return true, nil
}

// resolveRemapped resolves a response's card and answer through the remap
// table built while this run imported the deck.
func (im *Importer) resolveRemapped(response *bundle.Response) (int64, *int64, bool) {
	card := im.meta.CardByID(ids.Untag(response.CardID))
	if card == nil {
		im.logger.Warn("relative card id not found for response, skipping",
			slog.String("card_id", response.CardID),
			slog.String("response_id", response.ID.String()))
		return 0, nil, false
	}
	cardID, ok := im.remap.cards[card.ID.String()]
	if !ok {
		im.logger.Warn("card was not imported in this run, skipping response",
			slog.String("card_id", response.CardID),
			slog.String("response_id", response.ID.String()))
		return 0, nil, false
	}

	raw := ids.Untag(response.AnswerID)
	if raw == nullAnswer || raw == "" {
		return cardID, nil, true
	}
	for _, answer := range card.Answers {
		if answer.ID.String() == raw {
			if newID, ok := im.remap.answers[raw]; ok {
				return cardID, &newID, true
			}
			break
		}
	}
	im.logger.Warn("relative answer id not found for response, skipping",
		slog.String("answer_id", response.AnswerID),
		slog.String("response_id", response.ID.String()))
	return 0, nil, false
}

// resolveOrdinal resolves a response against an already existing deck by
// ordinal position: the bundle's cards and the target deck's live cards are
// each sorted by their own id and position in sorted order is assumed to
// correspond. The same assumption applies one level deeper for answers.
// This only holds when the deck was created by a previous import of this
// bundle with nothing added, removed, or reordered since, so alignment is
// verified by count before being trusted.
func (im *Importer) resolveOrdinal(ctx context.Context, response *bundle.Response) (int64, *int64, bool, error) {
	if err := im.loadOrdinalCaches(ctx); err != nil {
		return 0, nil, false, err
	}
	if !im.ordinalOK {
		im.logger.Warn("ordinal alignment not trusted, skipping response",
			slog.String("response_id", response.ID.String()))
		return 0, nil, false, nil
	}

	raw := ids.Untag(response.CardID)
	cardIndex := -1
	for i, card := range im.sortedCards {
		if card.ID.String() == raw {
			cardIndex = i
			break
		}
	}
	if cardIndex < 0 {
		im.logger.Warn("relative card id not found for response, skipping",
			slog.String("card_id", response.CardID),
			slog.String("response_id", response.ID.String()))
		return 0, nil, false, nil
	}
	dbCard := im.dbCards[cardIndex]

	if raw := ids.Untag(response.AnswerID); raw == nullAnswer || raw == "" {
		return dbCard.ID, nil, true, nil
	}

	jsonAnswers := sortedAnswers(im.sortedCards[cardIndex].Answers)
	dbAnswers := sortedDBAnswers(dbCard.Answers)
	if len(jsonAnswers) != len(dbAnswers) {
		im.logger.Warn("answer count mismatch between bundle and target card, ordinal match not trusted",
			slog.String("card_id", response.CardID),
			slog.Int("bundle_answers", len(jsonAnswers)),
			slog.Int("target_answers", len(dbAnswers)),
			slog.String("response_id", response.ID.String()))
		return 0, nil, false, nil
	}

	rawAnswer := ids.Untag(response.AnswerID)
	for i, answer := range jsonAnswers {
		if answer.ID.String() == rawAnswer {
			id := dbAnswers[i].ID
			return dbCard.ID, &id, true, nil
		}
	}
	im.logger.Warn("relative answer id not found for response, skipping",
		slog.String("answer_id", response.AnswerID),
		slog.String("response_id", response.ID.String()))
	return 0, nil, false, nil
}

// loadOrdinalCaches builds the sorted bundle card list and fetches the
// target deck's live cards once per run, verifying the card counts match
// before ordinal alignment is trusted.
func (im *Importer) loadOrdinalCaches(ctx context.Context) error {
	if im.sortedCards != nil {
		return nil
	}

	im.sortedCards = make([]*bundle.Card, len(im.meta.Cards))
	copy(im.sortedCards, im.meta.Cards)
	sort.SliceStable(im.sortedCards, func(i, j int) bool {
		return numericID(im.sortedCards[i].ID) < numericID(im.sortedCards[j].ID)
	})

	dbCards, err := im.client.CardsByDeck(ctx, im.opts.ExistingDeckID)
	if err != nil {
		return fmt.Errorf("import: list cards of deck %d: %w", im.opts.ExistingDeckID, err)
	}
	sort.SliceStable(dbCards, func(i, j int) bool {
		return dbCards[i].ID < dbCards[j].ID
	})
	im.dbCards = dbCards

	im.ordinalOK = len(im.sortedCards) == len(im.dbCards)
	if !im.ordinalOK {
		im.logger.Warn("card count mismatch between bundle and target deck, ordinal matching disabled",
			slog.Int("bundle_cards", len(im.sortedCards)),
			slog.Int("target_cards", len(im.dbCards)),
			slog.Int64("deck_id", im.opts.ExistingDeckID))
	}
	return nil
}

func sortedAnswers(answers []*bundle.Answer) []*bundle.Answer {
	out := make([]*bundle.Answer, len(answers))
	copy(out, answers)
	sort.SliceStable(out, func(i, j int) bool {
		return numericID(out[i].ID) < numericID(out[j].ID)
	})
	return out
}

func sortedDBAnswers(answers []remote.Answer) []remote.Answer {
	out := make([]remote.Answer, len(answers))
	copy(out, answers)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// numericID parses a bundle id for ordering. Non-numeric ids sort first.
func numericID(id bundle.ID) int64 {
	n, err := strconv.ParseInt(id.String(), 10, 64)
	if err != nil {
		return -1
	}
	return n
}
