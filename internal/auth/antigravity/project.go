package antigravity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// loadEndpoints are tried in order until one returns a usable project.
// Prod first, then the sandbox environments some accounts are homed on.
var loadEndpoints = []string{
	"https://cloudcode-pa.googleapis.com",
	"https://daily-cloudcode-pa.sandbox.googleapis.com",
	"https://autopush-cloudcode-pa.sandbox.googleapis.com",
}

const loadRequestBody = `{"metadata": {"ideType": "ANTIGRAVITY"}}`

type loadCodeAssistResponse struct {
	CloudaicompanionProject json.RawMessage `json:"cloudaicompanionProject"`
	PaidTier                *tierInfo       `json:"paidTier"`
	CurrentTier             *tierInfo       `json:"currentTier"`
	Config                  struct {
		ProjectID string `json:"projectId"`
	} `json:"codeAssistConfig"`
	ManageSubscriptionUri string `json:"manageSubscriptionUri"`
}

type tierInfo struct {
	ID        string `json:"id"`
	QuotaTier string `json:"quotaTier"`
	Name      string `json:"name"`
}

// FetchProjectInfo calls the loadCodeAssist endpoint to resolve the Code
// Assist project id and subscription tier for the authenticated account.
func FetchProjectInfo(ctx context.Context, client *http.Client) (projectID, tier string, err error) {
	var lastErr error
	for _, endpoint := range loadEndpoints {
		projectID, tier, lastErr = loadFrom(ctx, client, endpoint)
		if lastErr == nil && projectID != "" {
			return projectID, tier, nil
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no endpoint returned a project id")
	}
	return "", "", fmt.Errorf("loadCodeAssist discovery failed: %w", lastErr)
}

func loadFrom(ctx context.Context, client *http.Client, endpoint string) (string, string, error) {
	url := endpoint + "/v1internal:loadCodeAssist"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(loadRequestBody))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "antigravity/1.11.9 windows/amd64")

	resp, err := client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("%s returned %s", url, resp.Status)
	}

	var result loadCodeAssistResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", "", fmt.Errorf("failed to parse loadCodeAssist response: %w", err)
	}

	return projectFrom(result), tierFrom(result), nil
}

// projectFrom handles both response shapes: a bare project string and an
// object with an id field.
func projectFrom(result loadCodeAssistResponse) string {
	if len(result.CloudaicompanionProject) > 0 {
		var s string
		if err := json.Unmarshal(result.CloudaicompanionProject, &s); err == nil && s != "" {
			return s
		}
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(result.CloudaicompanionProject, &obj); err == nil && obj.ID != "" {
			return obj.ID
		}
	}
	return result.Config.ProjectID
}

// tierFrom prefers paidTier, then currentTier, then infers PRO from the
// presence of a subscription management link.
func tierFrom(result loadCodeAssistResponse) string {
	if result.PaidTier != nil && result.PaidTier.ID != "" {
		return result.PaidTier.ID
	}
	if result.CurrentTier != nil && result.CurrentTier.ID != "" {
		return result.CurrentTier.ID
	}
	if result.ManageSubscriptionUri != "" {
		return "PRO"
	}
	return "FREE"
}
