// Package publish pushes audio artifacts to a GitHub repository through the
// contents API so they can be served as static files.
package publish

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/book-expert/voice-outreach/internal/core"
)

// Defaults.
const (
	DefaultAPIBaseURL = "https://api.github.com"
	DefaultBranch     = "main"
	DefaultPathPrefix = "public/voices"
	DefaultTimeout    = 30 * time.Second
)

const (
	headerAccept        = "Accept"
	headerAPIVersion    = "X-GitHub-Api-Version"
	headerContentType   = "Content-Type"
	acceptGitHubJSON    = "application/vnd.github+json"
	gitHubAPIVersion    = "2022-11-28"
	contentTypeJSON     = "application/json"
	commitMessageFormat = "Add %s"
	maxErrorBodyBytes   = 512
)

var (
	// ErrPublish wraps every failed publish.
	ErrPublish = errors.New("publish failed")
	// ErrTokenEmpty is returned when no access token is configured.
	ErrTokenEmpty = errors.New("github token cannot be empty")
	// ErrRepositoryEmpty is returned when owner or repository is missing.
	ErrRepositoryEmpty = errors.New("github owner and repository are required")
	// ErrPublicURLEmpty is returned when no public base URL is configured.
	ErrPublicURLEmpty = errors.New("public base url cannot be empty")
)

// Config configures a GitHubPublisher.
type Config struct {
	APIBaseURL    string
	Owner         string
	Repo          string
	Branch        string
	PathPrefix    string
	PublicBaseURL string
	Timeout       time.Duration
}

// GitHubPublisher implements core.Publisher on the GitHub contents API.
type GitHubPublisher struct {
	httpClient    *http.Client
	apiBaseURL    string
	owner         string
	repo          string
	branch        string
	pathPrefix    string
	publicBaseURL string
}

var _ core.Publisher = (*GitHubPublisher)(nil)

type contentResponse struct {
	SHA string `json:"sha"`
}

type putContentRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

// NewGitHubPublisher creates a publisher that authenticates with a static
// bearer token.
func NewGitHubPublisher(ctx context.Context, cfg Config, token string) (*GitHubPublisher, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrTokenEmpty
	}

	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, ErrRepositoryEmpty
	}

	if strings.TrimSpace(cfg.PublicBaseURL) == "" {
		return nil, ErrPublicURLEmpty
	}

	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}

	if cfg.Branch == "" {
		cfg.Branch = DefaultBranch
	}

	if cfg.PathPrefix == "" {
		cfg.PathPrefix = DefaultPathPrefix
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	httpClient.Timeout = cfg.Timeout

	return &GitHubPublisher{
		httpClient:    httpClient,
		apiBaseURL:    strings.TrimRight(cfg.APIBaseURL, "/"),
		owner:         cfg.Owner,
		repo:          cfg.Repo,
		branch:        cfg.Branch,
		pathPrefix:    strings.Trim(cfg.PathPrefix, "/"),
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

// Publish uploads the artifact, replacing an existing file at the same path,
// and returns its public link.
func (p *GitHubPublisher) Publish(ctx context.Context, artifact core.Artifact) (string, error) {
	repoPath := path.Join(p.pathPrefix, path.Base(artifact.FileName))

	sha, err := p.lookupSHA(ctx, repoPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrPublish, repoPath, err)
	}

	err = p.putContent(ctx, repoPath, artifact.Data, sha)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrPublish, repoPath, err)
	}

	return p.Link(artifact), nil
}

// Link returns the public link of an artifact.
func (p *GitHubPublisher) Link(artifact core.Artifact) string {
	return p.publicBaseURL + "/" + artifact.ID
}

func (p *GitHubPublisher) contentsURL(repoPath string) string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		p.apiBaseURL, url.PathEscape(p.owner), url.PathEscape(p.repo), repoPath)
}

// lookupSHA returns the blob SHA of an existing file, or "" when the file
// does not exist yet.
func (p *GitHubPublisher) lookupSHA(ctx context.Context, repoPath string) (string, error) {
	endpoint := p.contentsURL(repoPath) + "?" + url.Values{"ref": {p.branch}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to create lookup request: %w", err)
	}

	setHeaders(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("lookup request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var content contentResponse

		decodeErr := json.NewDecoder(resp.Body).Decode(&content)
		if decodeErr != nil {
			return "", fmt.Errorf("failed to decode lookup response: %w", decodeErr)
		}

		return content.SHA, nil
	case http.StatusNotFound:
		return "", nil
	default:
		return "", statusError("lookup", resp)
	}
}

func (p *GitHubPublisher) putContent(ctx context.Context, repoPath string, data []byte, sha string) error {
	body, err := json.Marshal(putContentRequest{
		Message: fmt.Sprintf(commitMessageFormat, path.Base(repoPath)),
		Content: base64.StdEncoding.EncodeToString(data),
		Branch:  p.branch,
		SHA:     sha,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal upload request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.contentsURL(repoPath), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}

	setHeaders(req)
	req.Header.Set(headerContentType, contentTypeJSON)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return statusError("upload", resp)
	}

	return nil
}

func setHeaders(req *http.Request) {
	req.Header.Set(headerAccept, acceptGitHubJSON)
	req.Header.Set(headerAPIVersion, gitHubAPIVersion)
}

func statusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	return fmt.Errorf("%s returned %s: %s", operation, resp.Status, strings.TrimSpace(string(body)))
}
