package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client provides typed access to the teamhub API for interactive tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:4000"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Code    string
	Field   string
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	if e.Field != "" {
		return fmt.Sprintf("api request failed (%d): %s: %s", e.Status, e.Field, e.Message)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, resp.Body)
	}

	if v == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(status int, body io.Reader) APIError {
	apiErr := APIError{Status: status}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return apiErr
	}
	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
		Field string `json:"field"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(payload.Error)
	apiErr.Code = payload.Code
	apiErr.Field = payload.Field
	return apiErr
}

// Team is a shared workspace.
type Team struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Member is a non-owner participant of a team.
type Member struct {
	TeamID    string    `json:"team_id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Invitation is a pending offer to join a team.
type Invitation struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	Email     string    `json:"email"`
	InvitedBy string    `json:"invited_by"`
	CreatedAt time.Time `json:"created_at"`
}

// TeamDetail is a team with members and pending invitations.
type TeamDetail struct {
	Team
	Members     []Member     `json:"members"`
	Invitations []Invitation `json:"invitations"`
}

// Role describes a grantable role.
type Role struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

func teamPath(teamID string, rest ...string) string {
	parts := append([]string{"/teams", url.PathEscape(teamID)}, rest...)
	return strings.Join(parts, "/")
}

// Health checks API liveness.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, "", nil)
}

// ListRoles returns the role registry.
func (c *Client) ListRoles(ctx context.Context, token string) ([]Role, error) {
	var roles []Role
	if err := c.do(ctx, http.MethodGet, "/roles", nil, token, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// ListTeams returns all teams for the authenticated user.
func (c *Client) ListTeams(ctx context.Context, token string) ([]Team, error) {
	var teams []Team
	if err := c.do(ctx, http.MethodGet, "/teams", nil, token, &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

// CreateTeam creates a team owned by the caller and returns the caller's teams.
func (c *Client) CreateTeam(ctx context.Context, token, name string) ([]Team, error) {
	var teams []Team
	if err := c.do(ctx, http.MethodPost, "/teams", map[string]string{"name": name}, token, &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

// GetTeam returns a team with its members and invitations.
func (c *Client) GetTeam(ctx context.Context, token, teamID string) (TeamDetail, error) {
	var detail TeamDetail
	if err := c.do(ctx, http.MethodGet, teamPath(teamID), nil, token, &detail); err != nil {
		return TeamDetail{}, err
	}
	return detail, nil
}

// RenameTeam changes the team name.
func (c *Client) RenameTeam(ctx context.Context, token, teamID, name string) (Team, error) {
	var team Team
	if err := c.do(ctx, http.MethodPatch, teamPath(teamID), map[string]string{"name": name}, token, &team); err != nil {
		return Team{}, err
	}
	return team, nil
}

// DeleteTeam deletes the team and returns the caller's remaining teams.
func (c *Client) DeleteTeam(ctx context.Context, token, teamID string) ([]Team, error) {
	var teams []Team
	if err := c.do(ctx, http.MethodDelete, teamPath(teamID), nil, token, &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

// SwitchTeam makes teamID the caller's current team.
func (c *Client) SwitchTeam(ctx context.Context, token, teamID string) error {
	return c.do(ctx, http.MethodPost, teamPath(teamID, "switch"), nil, token, nil)
}

// SendInvitation invites email to the team.
func (c *Client) SendInvitation(ctx context.Context, token, teamID, email string) (TeamDetail, error) {
	var detail TeamDetail
	if err := c.do(ctx, http.MethodPost, teamPath(teamID, "invitations"), map[string]string{"email": email}, token, &detail); err != nil {
		return TeamDetail{}, err
	}
	return detail, nil
}

// RevokeInvitation withdraws a pending invitation.
func (c *Client) RevokeInvitation(ctx context.Context, token, teamID, invitationID string) error {
	return c.do(ctx, http.MethodDelete, teamPath(teamID, "invitations", url.PathEscape(invitationID)), nil, token, nil)
}

// UpdateMemberRole changes a member's role.
func (c *Client) UpdateMemberRole(ctx context.Context, token, teamID, userID, role string) (TeamDetail, error) {
	var detail TeamDetail
	if err := c.do(ctx, http.MethodPut, teamPath(teamID, "members", url.PathEscape(userID)), map[string]string{"role": role}, token, &detail); err != nil {
		return TeamDetail{}, err
	}
	return detail, nil
}

// RemoveMember removes a member from the team.
func (c *Client) RemoveMember(ctx context.Context, token, teamID, userID string) (TeamDetail, error) {
	var detail TeamDetail
	if err := c.do(ctx, http.MethodDelete, teamPath(teamID, "members", url.PathEscape(userID)), nil, token, &detail); err != nil {
		return TeamDetail{}, err
	}
	return detail, nil
}

// LeaveTeam removes the caller from the team.
func (c *Client) LeaveTeam(ctx context.Context, token, teamID string) ([]Team, error) {
	var teams []Team
	if err := c.do(ctx, http.MethodDelete, teamPath(teamID, "membership"), nil, token, &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

// ListInvitations returns invitations addressed to the caller.
func (c *Client) ListInvitations(ctx context.Context, token string) ([]Invitation, error) {
	var invitations []Invitation
	if err := c.do(ctx, http.MethodGet, "/invitations", nil, token, &invitations); err != nil {
		return nil, err
	}
	return invitations, nil
}

// AcceptInvitation joins the inviting team and returns the caller's teams.
func (c *Client) AcceptInvitation(ctx context.Context, token, invitationID string) ([]Team, error) {
	var teams []Team
	if err := c.do(ctx, http.MethodPost, "/invitations/"+url.PathEscape(invitationID)+"/accept", nil, token, &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

// DeclineInvitation deletes an invitation addressed to the caller.
func (c *Client) DeclineInvitation(ctx context.Context, token, invitationID string) error {
	return c.do(ctx, http.MethodDelete, "/invitations/"+url.PathEscape(invitationID), nil, token, nil)
}
