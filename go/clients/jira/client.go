// Package jira is a minimal Jira Cloud client covering what estimation
// sessions need: board and issue listings, issue lookup, and pushing a
// story-point estimate back.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/Goldenhunter1206/scrumpoker/go/clients"
)

// Board is a Jira agile board.
type Board struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Issue is the slice of a Jira issue relevant to estimation.
type Issue struct {
	Key     string `json:"key"`
	Summary string `json:"summary"`
	Status  string `json:"status,omitempty"`
}

type issueFields struct {
	Summary string `json:"summary"`
	Status  *struct {
		Name string `json:"name"`
	} `json:"status"`
}

type wireIssue struct {
	Key    string      `json:"key"`
	Fields issueFields `json:"fields"`
}

type boardsResponse struct {
	Values []Board `json:"values"`
}

type issuesResponse struct {
	Issues []wireIssue `json:"issues"`
}

// Client talks to one Jira site with one set of credentials.
type Client struct {
	*clients.BaseClient
	storyPointsField string
}

// NewClient builds a client for the given site using basic auth
// (email + API token), the Jira Cloud scheme.
func NewClient(baseURL, email, apiToken string) *Client {
	client := &Client{
		BaseClient:       clients.NewBaseClient(baseURL),
		storyPointsField: DefaultStoryPointsField,
	}
	client.SetBasicAuth(email, apiToken)
	client.SetHeader("Accept", "application/json")
	return client
}

// SetStoryPointsField overrides the customfield used for estimates.
func (c *Client) SetStoryPointsField(field string) {
	c.storyPointsField = field
}

// ListBoards fetches the visible agile boards.
func (c *Client) ListBoards(ctx context.Context) ([]Board, error) {
	body, err := c.Get(ctx, BoardsEndpoint)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	var response boardsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decode boards response: %w", err)
	}
	return response.Values, nil
}

// ListBoardIssues fetches the issues on one board.
func (c *Client) ListBoardIssues(ctx context.Context, boardID int) ([]Issue, error) {
	body, err := c.Get(ctx, fmt.Sprintf(BoardIssuesEndpoint, boardID))
	if err != nil {
		return nil, fmt.Errorf("list board %d issues: %w", boardID, err)
	}
	var response issuesResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decode issues response: %w", err)
	}
	issues := make([]Issue, len(response.Issues))
	for i, wire := range response.Issues {
		issues[i] = wire.toIssue()
	}
	return issues, nil
}

// GetIssue fetches a single issue by key.
func (c *Client) GetIssue(ctx context.Context, key string) (*Issue, error) {
	body, err := c.Get(ctx, fmt.Sprintf(IssueEndpoint, url.PathEscape(key)))
	if err != nil {
		return nil, fmt.Errorf("get issue %s: %w", key, err)
	}
	var wire wireIssue
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decode issue response: %w", err)
	}
	issue := wire.toIssue()
	return &issue, nil
}

// SetStoryPoints writes a finalized estimate to the issue's story-points
// field.
func (c *Client) SetStoryPoints(ctx context.Context, key string, points float64) error {
	payload := map[string]map[string]float64{
		"fields": {c.storyPointsField: points},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal estimate payload: %w", err)
	}
	c.SetHeader("Content-Type", "application/json")
	if _, err := c.Put(ctx, fmt.Sprintf(IssueEndpoint, url.PathEscape(key)), bytes.NewReader(body)); err != nil {
		return fmt.Errorf("set story points on %s: %w", key, err)
	}
	return nil
}

func (w wireIssue) toIssue() Issue {
	issue := Issue{Key: w.Key, Summary: w.Fields.Summary}
	if w.Fields.Status != nil {
		issue.Status = w.Fields.Status.Name
	}
	return issue
}
