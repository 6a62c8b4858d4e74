// Package artifact locates, downloads and unpacks build artifacts published
// by a CI workflow run.
package artifact

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"shipyard/internal/token"
)

// maxErrorBodyBytes limits how much of a provider error response is read for
// the error message.
const maxErrorBodyBytes = 4096

// Descriptor identifies a located workflow-run artifact.
type Descriptor struct {
	ID          int64
	Name        string
	SizeInBytes int64
	Repository  string // owner/name
}

// GitHub fetches artifacts through the GitHub Actions API. The API token is
// re-read from disk for every deployment, never cached.
type GitHub struct {
	tokens       *token.Store
	artifactName string
	logger       *slog.Logger

	// baseURL overrides the API endpoint in tests.
	baseURL string
}

// NewGitHub creates a fetcher for artifacts with the given logical name,
// authenticating with the token from the store.
func NewGitHub(tokens *token.Store, artifactName string, logger *slog.Logger) *GitHub {
	return &GitHub{
		tokens:       tokens,
		artifactName: artifactName,
		logger:       logger,
	}
}

// client builds an authenticated API client. Called per operation so token
// rotation needs no restart.
func (g *GitHub) client(ctx context.Context) (*github.Client, *http.Client, error) {
	tok, err := g.tokens.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading CI API token: %w", err)
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok})
	hc := oauth2.NewClient(ctx, ts)

	client := github.NewClient(hc)
	if g.baseURL != "" {
		u, err := url.Parse(g.baseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid API base URL: %w", err)
		}
		client.BaseURL = u
	}

	return client, hc, nil
}

// Locate queries the artifacts of a workflow run and returns the one matching
// the configured logical name. Returns ErrNotFound when no artifact matches;
// provider failures surface as *FetchError.
func (g *GitHub) Locate(ctx context.Context, repository, runID string) (*Descriptor, error) {
	owner, repo, err := splitRepository(repository)
	if err != nil {
		return nil, err
	}

	run, err := strconv.ParseInt(runID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid workflow run id %q: %w", runID, err)
	}

	client, _, err := g.client(ctx)
	if err != nil {
		return nil, err
	}

	opts := &github.ListOptions{PerPage: 100}
	for {
		artifacts, resp, err := client.Actions.ListWorkflowRunArtifacts(ctx, owner, repo, run, opts)
		if err != nil {
			return nil, &FetchError{Op: "list artifacts", StatusCode: responseStatus(resp), Err: err}
		}

		for _, a := range artifacts.Artifacts {
			if a.GetName() != g.artifactName {
				continue
			}
			g.logger.Info("located artifact",
				"name", a.GetName(),
				"id", a.GetID(),
				"size_bytes", a.GetSizeInBytes())
			return &Descriptor{
				ID:          a.GetID(),
				Name:        a.GetName(),
				SizeInBytes: a.GetSizeInBytes(),
				Repository:  repository,
			}, nil
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return nil, fmt.Errorf("%w: no artifact named %q in run %s of %s", ErrNotFound, g.artifactName, runID, repository)
}

// Download streams the artifact archive to a local temporary file and returns
// its path. The artifact is never buffered in memory; the caller owns the
// returned file and must remove it.
func (g *GitHub) Download(ctx context.Context, d *Descriptor) (string, error) {
	owner, repo, err := splitRepository(d.Repository)
	if err != nil {
		return "", err
	}

	client, hc, err := g.client(ctx)
	if err != nil {
		return "", err
	}

	// The archive endpoint answers with a redirect to a short-lived signed
	// URL. Resolve the redirect with the authenticated client, then stream
	// from the signed URL without credentials: blob stores reject requests
	// carrying both a signature and an Authorization header.
	apiPath := fmt.Sprintf("repos/%s/%s/actions/artifacts/%d/zip", owner, repo, d.ID)
	req, err := client.NewRequest(http.MethodGet, apiPath, nil)
	if err != nil {
		return "", fmt.Errorf("building download request: %w", err)
	}
	req = req.WithContext(ctx)

	noRedirect := *hc
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	resp, err := noRedirect.Do(req)
	if err != nil {
		return "", &FetchError{Op: "download", Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusFound || resp.StatusCode == http.StatusTemporaryRedirect:
		location := resp.Header.Get("Location")
		resp.Body.Close()
		if location == "" {
			return "", &FetchError{Op: "download", StatusCode: resp.StatusCode, Err: fmt.Errorf("redirect without location")}
		}
		return g.streamToFile(ctx, http.DefaultClient, location)
	case resp.StatusCode == http.StatusOK:
		defer resp.Body.Close()
		return g.writeTempFile(resp.Body)
	default:
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", &FetchError{
			Op:         "download",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(body))),
		}
	}
}

// streamToFile downloads rawURL with the given client into a temp file.
func (g *GitHub) streamToFile(ctx context.Context, hc *http.Client, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("building archive request: %w", err)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return "", &FetchError{Op: "download", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", &FetchError{
			Op:         "download",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(body))),
		}
	}

	return g.writeTempFile(resp.Body)
}

// writeTempFile copies r chunk-by-chunk into a new temporary file.
func (g *GitHub) writeTempFile(r io.Reader) (string, error) {
	f, err := os.CreateTemp("", "shipyard-artifact-*.zip")
	if err != nil {
		return "", fmt.Errorf("creating temporary file: %w", err)
	}

	written, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", &FetchError{Op: "download", Err: err}
	}

	g.logger.Info("downloaded artifact archive", "path", f.Name(), "bytes", written)
	return f.Name(), nil
}

func splitRepository(repository string) (owner, repo string, err error) {
	parts := strings.Split(repository, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository %q (expected owner/name)", repository)
	}
	return parts[0], parts[1], nil
}

func responseStatus(resp *github.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}
