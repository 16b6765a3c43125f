package jira

const (
	BoardsEndpoint      = "/rest/agile/1.0/board"
	BoardIssuesEndpoint = "/rest/agile/1.0/board/%d/issue"
	IssueEndpoint       = "/rest/api/2/issue/%s"

	// DefaultStoryPointsField is the customfield Jira Cloud commonly maps
	// story points to.
	DefaultStoryPointsField = "customfield_10016"
)
