package github

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// VerifySignature checks the X-Hub-Signature-256 header against the
// webhook secret using a constant-time comparison.
func VerifySignature(secret, payload []byte, signature string) bool {
	if len(secret) == 0 || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// PullRequestEvent is the subset of the pull_request webhook payload the
// engine needs to start a session.
type PullRequestEvent struct {
	Action      string `json:"action"`
	PullRequest struct {
		ID     int64  `json:"id"`
		Number int    `json:"number"`
		Title  string `json:"title"`
		State  string `json:"state"`
		Draft  bool   `json:"draft"`
		User   struct {
			Login string `json:"login"`
		} `json:"user"`
		Head struct {
			SHA string `json:"sha"`
		} `json:"head"`
		Base struct {
			SHA string `json:"sha"`
		} `json:"base"`
	} `json:"pull_request"`
	Repository struct {
		ID       int64  `json:"id"`
		Name     string `json:"name"`
		FullName string `json:"full_name"`
		Owner    struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
}

// ParsePullRequestEvent decodes a pull_request webhook body.
func ParsePullRequestEvent(payload []byte) (*PullRequestEvent, error) {
	var ev PullRequestEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode pull_request payload: %w", err)
	}
	if ev.Repository.FullName == "" || ev.PullRequest.Number == 0 {
		return nil, fmt.Errorf("pull_request payload missing repository or number")
	}
	return &ev, nil
}

// ShouldAnalyze reports whether the event warrants starting a session:
// newly opened PRs and non-draft updates.
func (ev *PullRequestEvent) ShouldAnalyze() bool {
	switch ev.Action {
	case "opened":
		return true
	case "synchronize":
		return !ev.PullRequest.Draft
	default:
		return false
	}
}
