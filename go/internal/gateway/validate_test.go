package gateway

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		ok   bool
	}{
		{"plain", "alice", true},
		{"spaces inside", "alice b", true},
		{"empty", "", false},
		{"whitespace only", "   ", false},
		{"leading space", " alice", false},
		{"trailing space", "alice ", false},
		{"too long", strings.Repeat("a", maxNameLength+1), false},
		{"at limit", strings.Repeat("a", maxNameLength), true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg, ok := validateName(tt.in)
			require.Equal(t, tt.ok, ok)
			if !ok {
				require.NotEmpty(t, msg)
			}
		})
	}
}

func TestValidateAction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		action  string
		payload string
		ok      bool
	}{
		{"set_ticket ok", "set_ticket", `{"ticket":"PAY-1"}`, true},
		{"set_ticket empty", "set_ticket", `{"ticket":"  "}`, false},
		{"set_ticket too long", "set_ticket", `{"ticket":"` + strings.Repeat("x", maxTicketLength+1) + `"}`, false},
		{"set_ticket malformed", "set_ticket", `{`, false},
		{"submit_vote ok", "submit_vote", `{"vote":"8"}`, true},
		{"submit_vote sentinel", "submit_vote", `{"vote":"break"}`, true},
		{"submit_vote off deck", "submit_vote", `{"vote":"42"}`, false},
		{"start_countdown ok", "start_countdown", `{"seconds":60}`, true},
		{"start_countdown zero", "start_countdown", `{"seconds":0}`, false},
		{"moderate ok", "moderate_participant", `{"target":"bob","action":"remove"}`, true},
		{"moderate bad action", "moderate_participant", `{"target":"bob","action":"banish"}`, false},
		{"moderate no target", "moderate_participant", `{"action":"remove"}`, false},
		{"viewer ok", "set_facilitator_viewer", `{"is_viewer":true}`, true},
		{"jira creds ok", "set_jira_credentials", `{"base_url":"https://x.atlassian.net","email":"a@b.c","api_token":"t"}`, true},
		{"jira creds bad url", "set_jira_credentials", `{"base_url":"ftp://x","email":"a@b.c","api_token":"t"}`, false},
		{"jira creds missing token", "set_jira_credentials", `{"base_url":"https://x","email":"a@b.c","api_token":""}`, false},
		{"select issue ok", "select_jira_issue", `{"issue_key":"PAY-1"}`, true},
		{"select issue empty", "select_jira_issue", `{"issue_key":""}`, false},
		{"list issues ok", "list_jira_issues", `{"board_id":7}`, true},
		{"list issues bad id", "list_jira_issues", `{"board_id":0}`, false},
		{"no payload action", "reveal_votes", ``, true},
		{"unknown action", "launch_rocket", `{}`, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg, ok := validateAction(tt.action, json.RawMessage(tt.payload))
			require.Equal(t, tt.ok, ok, "message: %s", msg)
		})
	}
}

func TestRoomCodePattern(t *testing.T) {
	t.Parallel()

	require.True(t, roomCodePattern.MatchString("ABC123"))
	require.True(t, roomCodePattern.MatchString("ZZZZZZ"))
	require.False(t, roomCodePattern.MatchString("abc123"))
	require.False(t, roomCodePattern.MatchString("ABC12"))
	require.False(t, roomCodePattern.MatchString("ABC1234"))
	require.False(t, roomCodePattern.MatchString("ABC 12"))
}
