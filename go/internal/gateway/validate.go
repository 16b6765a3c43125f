package gateway

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Goldenhunter1206/scrumpoker/go/internal/poker"
)

// The validation layer guarantees payload shape and ranges before the
// coordinator sees an action; the coordinator assumes validated input.

var roomCodePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

const maxNameLength = 50
const maxTicketLength = 500

// validateName checks a display or session name.
func validateName(name string) (string, bool) {
	trimmed := strings.TrimSpace(name)
	switch {
	case trimmed == "":
		return "must not be empty", false
	case trimmed != name:
		return "must not have leading or trailing whitespace", false
	case len(name) > maxNameLength:
		return fmt.Sprintf("must be at most %d characters", maxNameLength), false
	}
	return "", true
}

// validateAction shape-checks a dispatched action's payload. Returns a
// rejection message and false when the frame must not reach the
// coordinator.
func validateAction(action string, payload json.RawMessage) (string, bool) {
	switch action {
	case "set_ticket":
		var p struct {
			Ticket string `json:"ticket"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return "malformed set_ticket payload", false
		}
		if strings.TrimSpace(p.Ticket) == "" {
			return "ticket must not be empty", false
		}
		if len(p.Ticket) > maxTicketLength {
			return fmt.Sprintf("ticket must be at most %d characters", maxTicketLength), false
		}

	case "submit_vote":
		var p struct {
			Vote poker.Vote `json:"vote"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return "malformed submit_vote payload", false
		}
		if !p.Vote.Valid() {
			return fmt.Sprintf("%q is not a valid vote", p.Vote), false
		}

	case "start_countdown":
		var p struct {
			Seconds int `json:"seconds"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return "malformed start_countdown payload", false
		}
		if p.Seconds <= 0 {
			return "seconds must be positive", false
		}

	case "moderate_participant":
		var p struct {
			Target string `json:"target"`
			Action string `json:"action"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return "malformed moderate_participant payload", false
		}
		if p.Target == "" {
			return "target must not be empty", false
		}
		switch p.Action {
		case "make-viewer", "make-participant", "make-facilitator", "remove":
		default:
			return fmt.Sprintf("unknown moderation action %q", p.Action), false
		}

	case "set_facilitator_viewer":
		var p struct {
			IsViewer bool `json:"is_viewer"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return "malformed set_facilitator_viewer payload", false
		}

	case "set_jira_credentials":
		var p struct {
			BaseURL  string `json:"base_url"`
			Email    string `json:"email"`
			APIToken string `json:"api_token"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return "malformed set_jira_credentials payload", false
		}
		if !strings.HasPrefix(p.BaseURL, "https://") && !strings.HasPrefix(p.BaseURL, "http://") {
			return "base_url must be an http(s) URL", false
		}
		if p.Email == "" || p.APIToken == "" {
			return "email and api_token must not be empty", false
		}

	case "select_jira_issue":
		var p struct {
			IssueKey string `json:"issue_key"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return "malformed select_jira_issue payload", false
		}
		if strings.TrimSpace(p.IssueKey) == "" {
			return "issue_key must not be empty", false
		}

	case "list_jira_issues":
		var p struct {
			BoardID int `json:"board_id"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return "malformed list_jira_issues payload", false
		}
		if p.BoardID <= 0 {
			return "board_id must be positive", false
		}

	case "clear_ticket", "reveal_votes", "reset_voting", "cancel_countdown",
		"end_session", "list_jira_boards", "finalize_estimate":
		// No payload to validate.

	default:
		return fmt.Sprintf("unknown action %q", action), false
	}
	return "", true
}
