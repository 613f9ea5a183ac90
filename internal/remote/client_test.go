package remote_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/starford/deckmigrate/internal/apperr"
	"github.com/starford/deckmigrate/internal/remote"
	"github.com/starford/deckmigrate/internal/testutil"
)

func testClient(t *testing.T) (*remote.Client, *testutil.FakeAPI) {
	t.Helper()
	f := testutil.NewFakeAPI()
	t.Cleanup(f.Close)

	c, err := remote.New(f.URL(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, f
}

func TestSignIn_SessionCookie(t *testing.T) {
	c, f := testClient(t)
	ctx := context.Background()
	f.AddUser(1, "alice")

	// Calls before sign-in are rejected; the session cookie from sign-in
	// must carry through the jar.
	_, err := c.SearchUsers(ctx, "alice")
	var remoteErr *apperr.RemoteError
	if !errors.As(err, &remoteErr) || remoteErr.Status != 401 {
		t.Fatalf("pre-signin err = %v, want 401 RemoteError", err)
	}

	if err := c.SignIn(ctx, "test_admin", "pw"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if f.SignedInAs != "test_admin" {
		t.Errorf("SignedInAs = %q", f.SignedInAs)
	}
	if _, err := c.SearchUsers(ctx, "alice"); err != nil {
		t.Errorf("post-signin SearchUsers: %v", err)
	}
}

func TestResolveOwner_ExactMatch(t *testing.T) {
	c, f := testClient(t)
	ctx := context.Background()
	f.AddUser(1, "alice")
	f.AddUser(2, "alice_backup")
	if err := c.SignIn(ctx, "test_admin", "pw"); err != nil {
		t.Fatal(err)
	}

	// The search endpoint matches prefixes; resolution must be exact.
	owner, err := c.ResolveOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("ResolveOwner: %v", err)
	}
	if owner.ID != 1 {
		t.Errorf("owner.ID = %d, want 1", owner.ID)
	}

	_, err = c.ResolveOwner(ctx, "ali")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("prefix-only match err = %v, want ErrNotFound", err)
	}
}

func TestCardByID_NotFound(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()
	if err := c.SignIn(ctx, "test_admin", "pw"); err != nil {
		t.Fatal(err)
	}
	_, err := c.CardByID(ctx, 999)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteAsset_StillReferenced(t *testing.T) {
	c, f := testClient(t)
	ctx := context.Background()
	f.AddAsset(remote.Asset{ID: 40, Name: "map", FileName: "map.png"}, []byte("data"), 20)
	if err := c.SignIn(ctx, "test_admin", "pw"); err != nil {
		t.Fatal(err)
	}

	err := c.DeleteAsset(ctx, 40)
	if !errors.Is(err, apperr.ErrAssetReferenced) {
		t.Fatalf("err = %v, want ErrAssetReferenced", err)
	}

	// Once the referencing card is gone the delete goes through.
	f.AssetRefs[40] = nil
	if err := c.DeleteAsset(ctx, 40); err != nil {
		t.Errorf("DeleteAsset after deref: %v", err)
	}
}

func TestSignedURLRoundTrip(t *testing.T) {
	c, f := testClient(t)
	ctx := context.Background()
	if err := c.SignIn(ctx, "test_admin", "pw"); err != nil {
		t.Fatal(err)
	}

	id, err := c.CreateAsset(ctx, remote.CreateAsset{Name: "map", FileName: "map.png", FileType: "image/png", UserID: 1})
	if err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}

	putURL, err := c.GenerateURL(ctx, id, "put", "image/png")
	if err != nil {
		t.Fatalf("GenerateURL put: %v", err)
	}
	if err := c.Upload(ctx, putURL, "image/png", []byte("PNGDATA")); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	getURL, err := c.GenerateURL(ctx, id, "get", "image/png")
	if err != nil {
		t.Fatalf("GenerateURL get: %v", err)
	}
	data, err := c.Download(ctx, getURL)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(data) != "PNGDATA" {
		t.Errorf("payload = %q", data)
	}
	if string(f.Blobs[id]) != "PNGDATA" {
		t.Errorf("stored blob = %q", f.Blobs[id])
	}
}
