package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cozycabin/cozycabin/internal/auth"
	"github.com/cozycabin/cozycabin/internal/domain"
	"github.com/cozycabin/cozycabin/internal/llm"
	"github.com/cozycabin/cozycabin/internal/observability"
	"github.com/cozycabin/cozycabin/internal/service"
	apperrors "github.com/cozycabin/cozycabin/pkg/errorutil"
)

func newTestApp() *fiber.App {
	return fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			domainErr := apperrors.ToDomainError(err)
			return c.Status(domainErr.HTTPStatus).JSON(fiber.Map{"error": fiber.Map{
				"code":    domainErr.Code,
				"message": domainErr.Message,
				"details": domainErr.Details,
			}})
		},
	})
}

func asProfile(profile *domain.Profile) fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth.SetPrincipal(c, &auth.Principal{Profile: profile})
		return c.Next()
	}
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return out
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	metrics := observability.NewMetrics()
	app := newTestApp()
	healthy := NewHealthHandler("cozycabin", "test", metrics, map[string]Pinger{"postgres": stubPinger{}})
	broken := NewHealthHandler("cozycabin", "test", metrics, map[string]Pinger{
		"postgres": stubPinger{},
		"redis":    stubPinger{err: errors.New("connection refused")},
	})
	app.Get("/live", healthy.Live)
	app.Get("/ready", healthy.Ready)
	app.Get("/ready-broken", broken.Ready)
	app.Get("/metrics", healthy.Metrics)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/live", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alive", decode(t, resp)["status"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/ready-broken", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	details := decode(t, resp)["error"].(map[string]any)["details"].(map[string]any)
	assert.Equal(t, "ok", details["postgres"])
	assert.Equal(t, "connection refused", details["redis"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, decode(t, resp), "data")
}

func TestParseTicketQuery(t *testing.T) {
	app := newTestApp()
	var got service.TicketListFilter
	app.Get("/tickets", func(c *fiber.Ctx) error {
		got = parseTicketQuery(c)
		return c.SendStatus(http.StatusNoContent)
	})

	_, err := app.Test(httptest.NewRequest(http.MethodGet,
		"/tickets?status=open,%20pending&priority=urgent&assignee=unassigned&search=wifi&page=3&page_size=10", nil))
	require.NoError(t, err)
	assert.Equal(t, []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusPending}, got.Statuses)
	assert.Equal(t, []domain.TicketPriority{domain.TicketPriorityUrgent}, got.Priorities)
	assert.True(t, got.Unassigned)
	assert.Nil(t, got.AssigneeID)
	require.NotNil(t, got.Search)
	assert.Equal(t, "wifi", *got.Search)
	assert.Equal(t, 10, got.Limit)
	assert.Equal(t, 20, got.Offset)

	_, err = app.Test(httptest.NewRequest(http.MethodGet, "/tickets?assignee=a-1&page_size=500", nil))
	require.NoError(t, err)
	require.NotNil(t, got.AssigneeID)
	assert.Equal(t, "a-1", *got.AssigneeID)
	assert.False(t, got.Unassigned)
	assert.Equal(t, 100, got.Limit)
	assert.Equal(t, 0, got.Offset)
}

func TestCreateTicket_RequiresPrincipal(t *testing.T) {
	app := newTestApp()
	h := NewTicketsHandler(nil)
	app.Post("/tickets", h.CreateTicket)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/tickets", `{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateTicket_ValidationBeforeService(t *testing.T) {
	app := newTestApp()
	h := NewTicketsHandler(nil)
	app.Post("/tickets", asProfile(&domain.Profile{ID: "c-1", Role: domain.RoleCustomer}), h.CreateTicket)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/tickets", `{"subject":"hi","description":"too short","priority":"asap"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decode(t, resp)["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_FAILED", body["code"])
	details := body["details"].(map[string]any)
	assert.Contains(t, details, "subject")
	assert.Contains(t, details, "description")
	assert.Contains(t, details, "priority")
}

type stubAuthenticator struct {
	profile *domain.Profile
	err     error
}

func (a stubAuthenticator) Authenticate(*fiber.Ctx) (*auth.Principal, error) {
	if a.err != nil {
		return nil, a.err
	}
	return &auth.Principal{Profile: a.profile}, nil
}

type stubProvider struct {
	calls int
	reply string
	err   error
}

func (p *stubProvider) Complete(context.Context, llm.Request) (*llm.Response, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &llm.Response{Content: p.reply}, nil
}

func newFunctionsApp(authn Authenticator, provider llm.Provider) *fiber.App {
	agent := service.NewAgentService(service.AgentDependencies{Provider: provider})
	invites := service.NewInviteService(service.InviteDependencies{})
	h := NewFunctionsHandler(authn, invites, agent, nil)
	app := newTestApp()
	app.All("/adminAgent", h.AdminAgent)
	app.All("/handle-invite", h.HandleInvite)
	app.All("/invite-user", h.InviteUser)
	return app
}

var adminProfile = &domain.Profile{ID: "ad-1", Role: domain.RoleAdmin, IsActive: true}

func TestAdminAgent(t *testing.T) {
	t.Run("rejects non-POST", func(t *testing.T) {
		app := newFunctionsApp(stubAuthenticator{profile: adminProfile}, &stubProvider{})
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/adminAgent", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		assert.NotEmpty(t, decode(t, resp)["error"])
	})

	t.Run("missing auth", func(t *testing.T) {
		app := newFunctionsApp(stubAuthenticator{err: apperrors.NewUnauthorized("missing authorization header")}, &stubProvider{})
		resp, err := app.Test(jsonRequest(http.MethodPost, "/adminAgent", `{"newUserMessage":"hi"}`))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "missing authorization header", decode(t, resp)["error"])
	})

	t.Run("non-admin", func(t *testing.T) {
		provider := &stubProvider{}
		app := newFunctionsApp(stubAuthenticator{profile: &domain.Profile{ID: "a-1", Role: domain.RoleAgent}}, provider)
		resp, err := app.Test(jsonRequest(http.MethodPost, "/adminAgent", `{"newUserMessage":"hi"}`))
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Zero(t, provider.calls)
	})

	t.Run("empty message", func(t *testing.T) {
		provider := &stubProvider{}
		app := newFunctionsApp(stubAuthenticator{profile: adminProfile}, provider)
		resp, err := app.Test(jsonRequest(http.MethodPost, "/adminAgent", `{"messages":[],"newUserMessage":"  "}`))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decode(t, resp)
		assert.NotEmpty(t, body["error"])
		assert.Empty(t, body["reply"])
		assert.Zero(t, provider.calls)
	})

	t.Run("model failure is a 400", func(t *testing.T) {
		app := newFunctionsApp(stubAuthenticator{profile: adminProfile}, &stubProvider{err: errors.New("boom")})
		resp, err := app.Test(jsonRequest(http.MethodPost, "/adminAgent", `{"newUserMessage":"draft a reply"}`))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.NotEmpty(t, decode(t, resp)["error"])
	})

	t.Run("reply", func(t *testing.T) {
		provider := &stubProvider{reply: "Sure, here is a draft."}
		app := newFunctionsApp(stubAuthenticator{profile: adminProfile}, provider)
		resp, err := app.Test(jsonRequest(http.MethodPost, "/adminAgent",
			`{"messages":[{"role":"user","content":"hello"},{"role":"assistant","content":"hi"}],"newUserMessage":"draft a reply"}`))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode(t, resp)
		assert.Equal(t, "Sure, here is a draft.", body["reply"])
		assert.NotContains(t, body, "error")
		assert.Equal(t, 1, provider.calls)
	})
}

func TestInviteEndpoints(t *testing.T) {
	app := newFunctionsApp(stubAuthenticator{profile: adminProfile}, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodPut, "/invite-user", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = app.Test(jsonRequest(http.MethodPost, "/invite-user", `{"email":"new@example.com","role":"customer"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "role must be one of [admin agent]", decode(t, resp)["error"])

	resp, err = app.Test(jsonRequest(http.MethodPost, "/handle-invite", `{"email":"nope","role":"agent"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "email must be a valid email address", decode(t, resp)["error"])

	denied := newFunctionsApp(stubAuthenticator{profile: &domain.Profile{ID: "c-1", Role: domain.RoleCustomer}}, nil)
	resp, err = denied.Test(jsonRequest(http.MethodPost, "/handle-invite", `{"email":"new@example.com","role":"agent"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "handle-invite reports every failure as 400")

	resp, err = denied.Test(jsonRequest(http.MethodPost, "/invite-user", `{"email":"new@example.com","role":"agent"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
