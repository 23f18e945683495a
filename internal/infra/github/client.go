package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.github.com"

// Client is a minimal GitHub REST client: just the PR file listing and
// content fetch the ingestion path needs.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func NewClient(token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		token:      token,
	}
}

// NewClientWithBaseURL is used for GitHub Enterprise and tests.
func NewClientWithBaseURL(token, baseURL string) *Client {
	c := NewClient(token)
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

// PRFile is one changed file in a pull request.
type PRFile struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch"`
	SHA       string `json:"sha"`
}

// PullRequestFiles lists the files changed in a pull request.
func (c *Client) PullRequestFiles(ctx context.Context, owner, repo string, number int) ([]PRFile, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/files?per_page=100", c.baseURL, owner, repo, number)
	var files []PRFile
	if err := c.getJSON(ctx, url, &files); err != nil {
		return nil, fmt.Errorf("list pr files %s/%s#%d: %w", owner, repo, number, err)
	}
	return files, nil
}

// FileContent fetches a file's content at a ref via the contents API.
func (c *Client) FileContent(ctx context.Context, owner, repo, filePath, ref string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s", c.baseURL, owner, repo, filePath, ref)
	var body struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := c.getJSON(ctx, url, &body); err != nil {
		return "", fmt.Errorf("get content %s@%s: %w", filePath, ref, err)
	}
	if body.Encoding != "base64" {
		return body.Content, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(body.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("decode content %s: %w", filePath, err)
	}
	return string(raw), nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("github api status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// LanguageFor guesses the language hint from a file extension. Unknown
// extensions return "" so analyzers can opt out.
func LanguageFor(filename string) string {
	base := strings.ToLower(path.Base(filename))
	if base == "requirements.txt" || strings.HasSuffix(base, "-requirements.txt") {
		return "requirements"
	}
	switch strings.ToLower(path.Ext(filename)) {
	case ".py":
		return "python"
	case ".js", ".jsx":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".go":
		return "go"
	case ".java":
		return "java"
	case ".rb":
		return "ruby"
	case ".rs":
		return "rust"
	case ".c", ".h":
		return "c"
	case ".cpp", ".cc", ".hpp":
		return "cpp"
	case ".php":
		return "php"
	default:
		return ""
	}
}
