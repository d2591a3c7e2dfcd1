package coder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const (
	sessionTokenHeader = "Coder-Session-Token"
	defaultAttempts    = 3

	// BuildStatusStopped is the latest-build status of a workspace that is
	// safe to delete.
	BuildStatusStopped = "stopped"
)

// Workspace is the slice of the Coder workspace object the reaper cares
// about: its id and the status of its latest build.
type Workspace struct {
	ID     string
	Status string
}

// API wraps the Coder v2 user and workspace endpoints.
type API struct {
	client      *Client
	baseURL     string
	token       string
	emailDomain string
	logger      *slog.Logger
}

// NewAPI builds an API wrapper rooted at baseURL, authenticating every call
// with the given session token.
func NewAPI(client *Client, baseURL, token, emailDomain string, logger *slog.Logger) *API {
	return &API{
		client:      client,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		token:       token,
		emailDomain: emailDomain,
		logger:      logger,
	}
}

// Email derives the login email for a username.
func (a *API) Email(username string) string {
	return username + "@" + a.emailDomain
}

type createUserRequest struct {
	DisableLogin bool   `json:"disable_login"`
	Email        string `json:"email"`
	LoginType    string `json:"login_type"`
	Password     string `json:"password"`
	Username     string `json:"username"`
}

// CreateUser provisions a password-login user.
func (a *API) CreateUser(ctx context.Context, creds Credentials) error {
	body, err := json.Marshal(createUserRequest{
		Email:     a.Email(creds.Username),
		LoginType: "password",
		Password:  creds.Password,
		Username:  creds.Username,
	})
	if err != nil {
		return fmt.Errorf("encode create user request: %w", err)
	}

	result := a.client.Execute(ctx, http.MethodPost, a.baseURL+"/users", a.headers(), body, http.StatusCreated, defaultAttempts)
	if err := result.Err(); err != nil {
		return fmt.Errorf("create user %s: %w", creds.Username, err)
	}
	a.logger.Info("created user", "username", creds.Username)
	return nil
}

// DeleteUser removes a user account.
func (a *API) DeleteUser(ctx context.Context, username string) error {
	result := a.client.Execute(ctx, http.MethodDelete, a.baseURL+"/users/"+username, a.headers(), nil, http.StatusOK, defaultAttempts)
	if err := result.Err(); err != nil {
		return fmt.Errorf("delete user %s: %w", username, err)
	}
	a.logger.Info("deleted user", "username", username)
	return nil
}

type workspacesPage struct {
	Workspaces []struct {
		ID          string `json:"id"`
		LatestBuild struct {
			Status string `json:"status"`
		} `json:"latest_build"`
	} `json:"workspaces"`
}

// ListWorkspaces returns the workspaces owned by username with their
// latest-build status.
func (a *API) ListWorkspaces(ctx context.Context, username string) ([]Workspace, error) {
	u := a.baseURL + "/workspaces?q=" + url.QueryEscape("owner:"+username)
	result := a.client.Execute(ctx, http.MethodGet, u, a.headers(), nil, http.StatusOK, defaultAttempts)
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("list workspaces for %s: %w", username, err)
	}

	var page workspacesPage
	if err := json.Unmarshal(result.Body, &page); err != nil {
		return nil, fmt.Errorf("decode workspaces for %s: %w", username, err)
	}

	workspaces := make([]Workspace, 0, len(page.Workspaces))
	for _, ws := range page.Workspaces {
		workspaces = append(workspaces, Workspace{ID: ws.ID, Status: ws.LatestBuild.Status})
	}
	return workspaces, nil
}

// DeleteWorkspace requests an asynchronous delete build for the workspace.
// A 201 only means the build was accepted, not that deletion has completed.
func (a *API) DeleteWorkspace(ctx context.Context, id string) error {
	body := []byte(`{"transition":"delete"}`)
	result := a.client.Execute(ctx, http.MethodPost, a.baseURL+"/workspaces/"+id+"/builds", a.headers(), body, http.StatusCreated, defaultAttempts)
	if err := result.Err(); err != nil {
		return fmt.Errorf("delete workspace %s: %w", id, err)
	}
	a.logger.Info("requested workspace deletion", "workspace_id", id)
	return nil
}

func (a *API) headers() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set(sessionTokenHeader, a.token)
	return h
}
