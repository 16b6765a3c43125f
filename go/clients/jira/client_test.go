package jira

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListBoards(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, BoardsEndpoint, r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "alice@example.com", user)
		require.Equal(t, "token", pass)
		io.WriteString(w, `{"values":[{"id":7,"name":"Payments","type":"scrum"}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "alice@example.com", "token")
	boards, err := client.ListBoards(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Board{{ID: 7, Name: "Payments", Type: "scrum"}}, boards)
}

func TestListBoardIssues(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/agile/1.0/board/7/issue", r.URL.Path)
		io.WriteString(w, `{"issues":[
			{"key":"PAY-1","fields":{"summary":"Checkout retries","status":{"name":"To Do"}}},
			{"key":"PAY-2","fields":{"summary":"Refund flow"}}
		]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "alice@example.com", "token")
	issues, err := client.ListBoardIssues(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, []Issue{
		{Key: "PAY-1", Summary: "Checkout retries", Status: "To Do"},
		{Key: "PAY-2", Summary: "Refund flow"},
	}, issues)
}

func TestGetIssue(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/api/2/issue/PAY-1", r.URL.Path)
		io.WriteString(w, `{"key":"PAY-1","fields":{"summary":"Checkout retries","status":{"name":"To Do"}}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "alice@example.com", "token")
	issue, err := client.GetIssue(context.Background(), "PAY-1")
	require.NoError(t, err)
	require.Equal(t, &Issue{Key: "PAY-1", Summary: "Checkout retries", Status: "To Do"}, issue)
}

func TestGetIssueNotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errorMessages":["Issue does not exist"]}`, http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "alice@example.com", "token")
	_, err := client.GetIssue(context.Background(), "PAY-404")
	require.Error(t, err)
	require.Contains(t, err.Error(), "404")
}

func TestSetStoryPoints(t *testing.T) {
	t.Parallel()

	var got map[string]map[string]float64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/rest/api/2/issue/PAY-1", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "alice@example.com", "token")
	require.NoError(t, client.SetStoryPoints(context.Background(), "PAY-1", 8))
	require.Equal(t, 8.0, got["fields"][DefaultStoryPointsField])
}

func TestSetStoryPointsCustomField(t *testing.T) {
	t.Parallel()

	var got map[string]map[string]float64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "alice@example.com", "token")
	client.SetStoryPointsField("customfield_20020")
	require.NoError(t, client.SetStoryPoints(context.Background(), "PAY-1", 13))
	require.Equal(t, 13.0, got["fields"]["customfield_20020"])
}
