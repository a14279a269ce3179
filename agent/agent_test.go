package agent_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oauthlab/codegrant/agent"
	"github.com/oauthlab/codegrant/authserver"
	"github.com/oauthlab/codegrant/internal/testutil"
	"github.com/oauthlab/codegrant/resourceserver"
)

// testFlow wires a real authorization server and resource server together
// and returns an agent pointed at both.
type testFlow struct {
	server *authserver.Server
	agent  *agent.Agent
}

func newFlow(t *testing.T) *testFlow {
	t.Helper()

	store := testutil.NewStore(t)
	srv, err := authserver.New(store, store, store, &authserver.Config{}, testutil.NewLogger())
	if err != nil {
		t.Fatalf("failed to create authorization server: %v", err)
	}

	authTS := httptest.NewServer(authserver.NewHandler(srv, testutil.NewLogger()).Routes())
	t.Cleanup(authTS.Close)

	resCfg := &resourceserver.Config{
		ValidateURL:     authTS.URL + "/validate_token",
		ValidateTimeout: time.Second,
	}
	validator := resourceserver.NewValidator(resCfg.ValidateURL, resCfg.ValidateTimeout)
	resTS := httptest.NewServer(resourceserver.NewHandler(resCfg, validator, testutil.NewLogger()).Routes())
	t.Cleanup(resTS.Close)

	a, err := agent.New(&agent.Config{
		ClientID:     testutil.TestClientID,
		ClientSecret: testutil.TestClientSecret,
		AuthURL:      authTS.URL + "/authorize",
		TokenURL:     authTS.URL + "/token",
		ResourceURL:  resTS.URL + "/resource",
	}, testutil.NewLogger())
	if err != nil {
		t.Fatalf("failed to create agent: %v", err)
	}

	return &testFlow{server: srv, agent: a}
}

func TestAuthorizeURL(t *testing.T) {
	flow := newFlow(t)

	u := flow.agent.AuthorizeURL()
	if !strings.Contains(u, "client_id="+testutil.TestClientID) {
		t.Errorf("authorize URL %q missing client_id", u)
	}
	if !strings.Contains(u, "state=") {
		t.Errorf("authorize URL %q missing state", u)
	}
}

func TestExchangeCode(t *testing.T) {
	ctx := context.Background()
	flow := newFlow(t)

	code, err := flow.server.IssueCode(ctx, testutil.TestClientID)
	if err != nil {
		t.Fatalf("IssueCode() error = %v", err)
	}

	token, err := flow.agent.ExchangeCode(ctx, code)
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if len(token.AccessToken) != 32 {
		t.Errorf("token length = %d, want 32", len(token.AccessToken))
	}
	if !strings.EqualFold(token.TokenType, "bearer") {
		t.Errorf("token type = %q, want bearer", token.TokenType)
	}

	if _, err := flow.agent.ExchangeCode(ctx, code); err == nil {
		t.Error("replayed code exchanged successfully")
	}
}

func TestFetchResources(t *testing.T) {
	ctx := context.Background()
	flow := newFlow(t)

	code, err := flow.server.IssueCode(ctx, testutil.TestClientID)
	if err != nil {
		t.Fatalf("IssueCode() error = %v", err)
	}
	token, err := flow.agent.ExchangeCode(ctx, code)
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}

	resources, err := flow.agent.FetchResources(ctx, token.AccessToken)
	if err != nil {
		t.Fatalf("FetchResources() error = %v", err)
	}
	if len(resources) != 2 || resources[0] != "youssef" || resources[1] != "essam" {
		t.Errorf("resources = %v, want [youssef essam]", resources)
	}

	if _, err := flow.agent.FetchResources(ctx, "never-issued"); err == nil {
		t.Error("fetch with a bogus token succeeded")
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	flow := newFlow(t)

	code, err := flow.server.IssueCode(ctx, testutil.TestClientID)
	if err != nil {
		t.Fatalf("IssueCode() error = %v", err)
	}

	in := strings.NewReader(code + "\n")
	var out strings.Builder
	if err := flow.agent.Run(ctx, in, &out); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "Access token:") {
		t.Error("output missing access token")
	}
	if !strings.Contains(got, "youssef, essam") {
		t.Errorf("output missing resources:\n%s", got)
	}

	t.Run("empty input", func(t *testing.T) {
		if err := flow.agent.Run(ctx, strings.NewReader("\n"), &strings.Builder{}); err == nil {
			t.Error("expected error for empty code input")
		}
	})
}
