package review

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGitHub(t *testing.T, mux *http.ServeMux, opts GitHubOptions) *GitHub {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	client := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base
	return newGitHubWithClient(client, opts)
}

func TestGitHubCreate(t *testing.T) {
	var created map[string]any
	var reviewers map[string]any
	var labels []string

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/app/pulls", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_ = json.NewDecoder(r.Body).Decode(&created)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"number": 17, "title": "fix: K1", "state": "open", "html_url": "https://github.com/acme/app/pull/17"}`))
	})
	mux.HandleFunc("/repos/acme/app/pulls/17/requested_reviewers", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&reviewers)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"number": 17}`))
	})
	mux.HandleFunc("/repos/acme/app/issues/17/labels", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&labels)
		_, _ = w.Write([]byte(`[]`))
	})

	g := newTestGitHub(t, mux, GitHubOptions{
		Owner:        "acme",
		Repo:         "app",
		TargetBranch: "refs/heads/main",
		Labels:       []string{"sonarqube", "automated"},
	})
	res, err := g.Create(context.Background(), Request{
		Branch:      "fix-sonar-K1-1",
		Title:       "fix: K1",
		Description: "body",
		Reviewer:    "octocat",
	})
	require.NoError(t, err)

	assert.Equal(t, "17", res.ID)
	assert.Equal(t, "https://github.com/acme/app/pull/17", res.URL)
	assert.Equal(t, "open", res.Status)

	assert.Equal(t, "fix-sonar-K1-1", created["head"])
	assert.Equal(t, "main", created["base"])
	assert.Equal(t, []any{"octocat"}, reviewers["reviewers"])
	assert.Equal(t, []string{"sonarqube", "automated"}, labels)
}

func TestGitHubCreate_ReviewerFailureIsNotFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/app/pulls", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"number": 3, "html_url": "https://github.com/acme/app/pull/3"}`))
	})
	mux.HandleFunc("/repos/acme/app/pulls/3/requested_reviewers", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message": "Reviews may only be requested from collaborators."}`))
	})

	g := newTestGitHub(t, mux, GitHubOptions{
		Owner:       "acme",
		Repo:        "app",
		URLTemplate: "https://review.example.com/{{id}}",
	})
	res, err := g.Create(context.Background(), Request{Branch: "b", Title: "t", Reviewer: "stranger"})
	require.NoError(t, err)
	assert.Equal(t, "https://review.example.com/3", res.URL)
}

func TestGitHubCreate_APIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/app/pulls", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message": "Validation Failed"}`))
	})
	g := newTestGitHub(t, mux, GitHubOptions{Owner: "acme", Repo: "app"})
	_, err := g.Create(context.Background(), Request{Branch: "b", Title: "t"})
	require.Error(t, err)
}

func TestNewGitHub_RequiresToken(t *testing.T) {
	_, err := NewGitHub(context.Background(), GitHubOptions{Owner: "a", Repo: "b"})
	require.Error(t, err)
}
