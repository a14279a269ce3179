package authserver_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/oauthlab/codegrant/authserver"
	"github.com/oauthlab/codegrant/internal/testutil"
	"github.com/oauthlab/codegrant/storage/memory"
)

func newServer(t *testing.T) *authserver.Server {
	t.Helper()

	store := testutil.NewStore(t)
	srv, err := authserver.New(store, store, store, &authserver.Config{}, testutil.NewLogger())
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func oauthStatus(t *testing.T, err error) (string, int) {
	t.Helper()

	var oe *authserver.OAuthError
	if !errors.As(err, &oe) {
		t.Fatalf("expected OAuthError, got %T: %v", err, err)
	}
	return oe.Code, oe.Status
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)

	t.Run("known client", func(t *testing.T) {
		client, err := srv.Authorize(ctx, testutil.TestClientID)
		if err != nil {
			t.Fatalf("Authorize() error = %v", err)
		}
		if client.ID != testutil.TestClientID {
			t.Errorf("client ID = %q, want %q", client.ID, testutil.TestClientID)
		}
	})

	t.Run("unknown client", func(t *testing.T) {
		_, err := srv.Authorize(ctx, "nobody")
		code, status := oauthStatus(t, err)
		if code != authserver.ErrorCodeInvalidClient || status != http.StatusUnauthorized {
			t.Errorf("got (%s, %d), want (invalid_client, 401)", code, status)
		}
	})

	t.Run("missing client_id", func(t *testing.T) {
		_, err := srv.Authorize(ctx, "")
		code, status := oauthStatus(t, err)
		if code != authserver.ErrorCodeInvalidRequest || status != http.StatusBadRequest {
			t.Errorf("got (%s, %d), want (invalid_request, 400)", code, status)
		}
	})
}

func TestExchange(t *testing.T) {
	ctx := context.Background()

	t.Run("issues a bearer token for a valid code", func(t *testing.T) {
		srv := newServer(t)
		code, err := srv.IssueCode(ctx, testutil.TestClientID)
		if err != nil {
			t.Fatalf("IssueCode() error = %v", err)
		}
		if len(code) != 16 {
			t.Errorf("code length = %d, want 16", len(code))
		}

		token, err := srv.Exchange(ctx, code, testutil.TestClientID, testutil.TestClientSecret)
		if err != nil {
			t.Fatalf("Exchange() error = %v", err)
		}
		if len(token.AccessToken) != 32 {
			t.Errorf("token length = %d, want 32", len(token.AccessToken))
		}
		if token.TokenType != "bearer" {
			t.Errorf("token type = %q, want %q", token.TokenType, "bearer")
		}
		if token.ExpiresIn != 3600 {
			t.Errorf("expires_in = %d, want 3600", token.ExpiresIn)
		}
	})

	t.Run("wrong secret fails before the code is touched", func(t *testing.T) {
		srv := newServer(t)
		code, _ := srv.IssueCode(ctx, testutil.TestClientID)

		_, err := srv.Exchange(ctx, code, testutil.TestClientID, "wrong-secret")
		errCode, status := oauthStatus(t, err)
		if errCode != authserver.ErrorCodeInvalidClient || status != http.StatusUnauthorized {
			t.Fatalf("got (%s, %d), want (invalid_client, 401)", errCode, status)
		}

		// The failed attempt must not have consumed the code.
		if _, err := srv.Exchange(ctx, code, testutil.TestClientID, testutil.TestClientSecret); err != nil {
			t.Errorf("code was consumed by a failed credential check: %v", err)
		}
	})

	t.Run("unknown client", func(t *testing.T) {
		srv := newServer(t)
		_, err := srv.Exchange(ctx, "whatever", "nobody", "nothing")
		errCode, status := oauthStatus(t, err)
		if errCode != authserver.ErrorCodeInvalidClient || status != http.StatusUnauthorized {
			t.Errorf("got (%s, %d), want (invalid_client, 401)", errCode, status)
		}
	})

	t.Run("bogus code", func(t *testing.T) {
		srv := newServer(t)
		_, err := srv.Exchange(ctx, "no-such-code", testutil.TestClientID, testutil.TestClientSecret)
		errCode, status := oauthStatus(t, err)
		if errCode != authserver.ErrorCodeInvalidGrant || status != http.StatusBadRequest {
			t.Errorf("got (%s, %d), want (invalid_grant, 400)", errCode, status)
		}
	})

	t.Run("another client cannot exchange the code", func(t *testing.T) {
		store := testutil.NewStore(t)
		testutil.SeedClient(t, store, "other-client", "other-secret")
		srv, err := authserver.New(store, store, store, &authserver.Config{}, testutil.NewLogger())
		if err != nil {
			t.Fatalf("failed to create server: %v", err)
		}

		code, _ := srv.IssueCode(ctx, testutil.TestClientID)

		_, err = srv.Exchange(ctx, code, "other-client", "other-secret")
		errCode, status := oauthStatus(t, err)
		if errCode != authserver.ErrorCodeInvalidGrant || status != http.StatusBadRequest {
			t.Errorf("got (%s, %d), want (invalid_grant, 400)", errCode, status)
		}

		// The owning client's code is unaffected.
		if _, err := srv.Exchange(ctx, code, testutil.TestClientID, testutil.TestClientSecret); err != nil {
			t.Errorf("owning client's exchange failed: %v", err)
		}
	})

	t.Run("codes are single use", func(t *testing.T) {
		srv := newServer(t)
		code, _ := srv.IssueCode(ctx, testutil.TestClientID)

		if _, err := srv.Exchange(ctx, code, testutil.TestClientID, testutil.TestClientSecret); err != nil {
			t.Fatalf("first exchange failed: %v", err)
		}

		_, err := srv.Exchange(ctx, code, testutil.TestClientID, testutil.TestClientSecret)
		errCode, _ := oauthStatus(t, err)
		if errCode != authserver.ErrorCodeInvalidGrant {
			t.Errorf("second exchange error = %s, want invalid_grant", errCode)
		}
	})

	t.Run("re-authorization invalidates the previous code", func(t *testing.T) {
		srv := newServer(t)
		oldCode, _ := srv.IssueCode(ctx, testutil.TestClientID)
		newCode, _ := srv.IssueCode(ctx, testutil.TestClientID)

		_, err := srv.Exchange(ctx, oldCode, testutil.TestClientID, testutil.TestClientSecret)
		errCode, _ := oauthStatus(t, err)
		if errCode != authserver.ErrorCodeInvalidGrant {
			t.Errorf("stale code error = %s, want invalid_grant", errCode)
		}

		if _, err := srv.Exchange(ctx, newCode, testutil.TestClientID, testutil.TestClientSecret); err != nil {
			t.Errorf("fresh code failed to exchange: %v", err)
		}
	})

	t.Run("concurrent exchanges mint exactly one token", func(t *testing.T) {
		srv := newServer(t)
		code, _ := srv.IssueCode(ctx, testutil.TestClientID)

		const workers = 20
		var wg sync.WaitGroup
		results := make(chan error, workers)

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := srv.Exchange(ctx, code, testutil.TestClientID, testutil.TestClientSecret)
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		var successes int
		for err := range results {
			if err == nil {
				successes++
			}
		}
		if successes != 1 {
			t.Errorf("successful exchanges = %d, want exactly 1", successes)
		}
	})
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)

	code, _ := srv.IssueCode(ctx, testutil.TestClientID)
	token, err := srv.Exchange(ctx, code, testutil.TestClientID, testutil.TestClientSecret)
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}

	valid, err := srv.Validate(ctx, token.AccessToken)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !valid {
		t.Error("freshly issued token reported invalid")
	}

	valid, err = srv.Validate(ctx, "never-issued")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if valid {
		t.Error("unknown token reported valid")
	}
}

func TestNew(t *testing.T) {
	store := memory.New()
	store.SetLogger(testutil.NewLogger())
	t.Cleanup(store.Stop)

	t.Run("seeds configured clients", func(t *testing.T) {
		cfg := &authserver.Config{
			Clients: []authserver.ClientConfig{
				{ID: "cfg-client", Secret: "cfg-secret", Name: "Configured"},
			},
		}
		srv, err := authserver.New(store, store, store, cfg, testutil.NewLogger())
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		if _, err := srv.Authorize(context.Background(), "cfg-client"); err != nil {
			t.Errorf("configured client not registered: %v", err)
		}
	})

	t.Run("requires stores", func(t *testing.T) {
		if _, err := authserver.New(nil, store, store, nil, nil); err == nil {
			t.Error("expected error for nil code store")
		}
	})
}
