// Package version compares runcheck versions and checks for newer releases.
package version

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Release source defaults.
const (
	DefaultBaseURL = "https://api.github.com"
	DefaultOwner   = "kurun"
	DefaultRepo    = "runcheck"
	DefaultTimeout = 5 * time.Second

	maxBodySize = 64 << 10
)

// ErrReleaseLookup indicates the release endpoint could not be queried.
var ErrReleaseLookup = errors.New("release lookup failed")

var commitPattern = regexp.MustCompile(`^[0-9a-fA-F]*[a-fA-F][0-9a-fA-F]*$`)

// Release is the subset of a GitHub release the checker reads.
type Release struct {
	TagName     string    `json:"tag_name"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
	URL         string    `json:"html_url"`
}

// Info is the outcome of a release check.
type Info struct {
	Current string `json:"current"`
	Latest  string `json:"latest"`
	IsNewer bool   `json:"is_newer"`
	URL     string `json:"url,omitempty"`
}

// Checker looks up the latest published release.
type Checker struct {
	baseURL    string
	owner      string
	repo       string
	userAgent  string
	httpClient *http.Client
}

// Option configures a Checker.
type Option func(*Checker)

// WithBaseURL points the checker at another API host.
func WithBaseURL(url string) Option {
	return func(c *Checker) { c.baseURL = strings.TrimSuffix(url, "/") }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Checker) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewChecker creates a checker for the runcheck repository.
func NewChecker(userAgent string, opts ...Option) *Checker {
	c := &Checker{
		baseURL:    DefaultBaseURL,
		owner:      DefaultOwner,
		repo:       DefaultRepo,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check compares current against the latest release.
func (c *Checker) Check(ctx context.Context, current string) (*Info, error) {
	rel, err := c.latest(ctx)
	if err != nil {
		return nil, err
	}
	return &Info{
		Current: current,
		Latest:  rel.TagName,
		IsNewer: IsNewerVersion(current, rel.TagName),
		URL:     rel.URL,
	}, nil
}

func (c *Checker) latest(ctx context.Context) (*Release, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.baseURL, c.owner, c.repo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReleaseLookup, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, fmt.Errorf("%w: status %d", ErrReleaseLookup, resp.StatusCode)
	}

	var rel Release
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&rel); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrReleaseLookup, err)
	}
	return &rel, nil
}

// CompareVersions returns 1, 0 or -1 as v1 is newer than, equal to or older
// than v2. Development builds and commit hashes sort before any release.
func CompareVersions(v1, v2 string) int {
	dev1, dev2 := isDevelopment(v1), isDevelopment(v2)
	switch {
	case dev1 && dev2:
		return 0
	case dev1:
		return -1
	case dev2:
		return 1
	}

	p1, p2 := parseVersion(v1), parseVersion(v2)
	for i := range 3 {
		if p1[i] != p2[i] {
			if p1[i] > p2[i] {
				return 1
			}
			return -1
		}
	}
	return 0
}

// IsNewerVersion reports whether latest is newer than current.
func IsNewerVersion(current, latest string) bool {
	return CompareVersions(latest, current) > 0
}

// NormalizeVersion strips whitespace, a leading "v" and any pre-release or
// build suffix.
func NormalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimLeft(v, "vV")
	if idx := strings.IndexAny(v, "-+"); idx != -1 {
		v = v[:idx]
	}
	return v
}

func isDevelopment(v string) bool {
	v = strings.TrimSuffix(strings.TrimSpace(v), "-dirty")
	if v == "" || v == "dev" {
		return true
	}
	return len(v) >= 7 && len(v) <= 40 && commitPattern.MatchString(v)
}

// parseVersion returns major, minor and patch. Missing or non-numeric parts
// are zero.
func parseVersion(v string) [3]int {
	var out [3]int
	for i, part := range strings.SplitN(NormalizeVersion(v), ".", 3) {
		n, err := strconv.Atoi(part)
		if err == nil {
			out[i] = n
		}
	}
	return out
}
