package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPullRequestFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/app/pulls/12/files", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]PRFile{
			{Filename: "main.py", Status: "modified", Additions: 3},
			{Filename: "old.py", Status: "removed"},
		})
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("tok", srv.URL)
	files, err := c.PullRequestFiles(context.Background(), "acme", "app", 12)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "main.py", files[0].Filename)
	assert.Equal(t, "removed", files[1].Status)
}

func TestFileContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/app/contents/src/main.py", r.URL.Path)
		assert.Equal(t, "abc123", r.URL.Query().Get("ref"))
		json.NewEncoder(w).Encode(map[string]string{
			"content":  base64.StdEncoding.EncodeToString([]byte("print('hi')\n")),
			"encoding": "base64",
		})
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("tok", srv.URL)
	content, err := c.FileContent(context.Background(), "acme", "app", "src/main.py", "abc123")
	require.NoError(t, err)
	assert.Equal(t, "print('hi')\n", content)
}

func TestFileContentAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("tok", srv.URL)
	_, err := c.FileContent(context.Background(), "acme", "app", "gone.py", "abc123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
