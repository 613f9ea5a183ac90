package deleter_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/starford/deckmigrate/internal/deleter"
	"github.com/starford/deckmigrate/internal/progress"
	"github.com/starford/deckmigrate/internal/remote"
	"github.com/starford/deckmigrate/internal/testutil"
)

func newDeleter(t *testing.T, f *testutil.FakeAPI) *deleter.Deleter {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := remote.New(f.URL(), logger)
	if err != nil {
		t.Fatalf("remote.New: %v", err)
	}
	if err := client.SignIn(context.Background(), "test_admin", "pw"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	return deleter.New(client, logger, progress.Discard{})
}

func seedDeck(f *testutil.FakeAPI) {
	f.AddUser(1, "alice")
	f.AddDeck(remote.Deck{ID: 10, Name: "Geography", UserID: 1}, "")
	f.AddCard(10, remote.Card{ID: 20, Question: "q1"})
	f.AddCard(10, remote.Card{ID: 21, Question: "q2"})
	// Asset 40 is attached to both cards; deleting the first card leaves a
	// live reference from the second.
	f.AddAsset(remote.Asset{ID: 40, Name: "map", FileName: "map.png"}, []byte("data"), 20, 21)
}

func TestDelete_Deck(t *testing.T) {
	f := testutil.NewFakeAPI()
	t.Cleanup(f.Close)
	seedDeck(f)

	err := newDeleter(t, f).Run(context.Background(), deleter.Options{
		DeckName:      "Geography",
		OwnerUsername: "alice",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(f.Cards) != 0 {
		t.Errorf("%d cards remain", len(f.Cards))
	}
	if _, ok := f.Decks[10]; ok {
		t.Error("deck record remains")
	}
}

func TestDelete_SharedAssetSoftFailure(t *testing.T) {
	f := testutil.NewFakeAPI()
	t.Cleanup(f.Close)
	seedDeck(f)

	// Deleting only the first card: the asset delete is rejected because
	// card 21 still references it. That rejection must not fail the run.
	err := newDeleter(t, f).Run(context.Background(), deleter.Options{CardID: 20})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, ok := f.Cards[20]; ok {
		t.Error("card 20 remains")
	}
	if _, ok := f.Cards[21]; !ok {
		t.Error("card 21 deleted")
	}
	if _, ok := f.Assets[40]; !ok {
		t.Error("shared asset deleted while still referenced")
	}
}

func TestDelete_UnknownDeck(t *testing.T) {
	f := testutil.NewFakeAPI()
	t.Cleanup(f.Close)
	f.AddUser(1, "alice")

	err := newDeleter(t, f).Run(context.Background(), deleter.Options{
		DeckName:      "Nope",
		OwnerUsername: "alice",
	})
	if err == nil {
		t.Fatal("delete of unknown deck succeeded")
	}
}

func TestDelete_OptionsValidate(t *testing.T) {
	if err := (deleter.Options{}).Validate(); err == nil {
		t.Error("empty options accepted")
	}
	if err := (deleter.Options{DeckName: "d", CardID: 1}).Validate(); err == nil {
		t.Error("both targets accepted")
	}
	if err := (deleter.Options{DeckName: "d"}).Validate(); err == nil {
		t.Error("deck mode without owner accepted")
	}
	if err := (deleter.Options{CardID: 1}).Validate(); err != nil {
		t.Errorf("card mode rejected: %v", err)
	}
}
