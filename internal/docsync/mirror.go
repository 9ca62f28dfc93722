// Package docsync refreshes the documentation corpus and re-indexes it.
package docsync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Mirror keeps a local clone of the docs repository up to date.
type Mirror struct {
	repoURL    string
	localPath  string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewMirror(log *slog.Logger, repoURL, localPath string) *Mirror {
	if log == nil {
		log = slog.Default()
	}
	return &Mirror{
		repoURL:    repoURL,
		localPath:  localPath,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.With(slog.String("service", "mirror")),
	}
}

// Update clones the repository on first run and pulls afterwards, then checks
// out the latest release tag when one can be determined. Tag resolution
// failures leave the current branch in place.
func (m *Mirror) Update(ctx context.Context) error {
	if m.repoURL == "" {
		return nil
	}

	if _, err := os.Stat(filepath.Join(m.localPath, ".git")); err == nil {
		m.logger.Info("pulling latest changes", slog.String("path", m.localPath))
		if err := m.git(ctx, "-C", m.localPath, "fetch", "--tags"); err != nil {
			return err
		}
		if err := m.git(ctx, "-C", m.localPath, "pull", "--ff-only"); err != nil {
			return err
		}
	} else {
		m.logger.Info("cloning repository", slog.String("repo", m.repoURL))
		if err := m.git(ctx, "clone", m.repoURL, m.localPath); err != nil {
			return err
		}
	}

	if tag, err := m.latestTag(ctx); err != nil {
		m.logger.Warn("could not resolve latest tag, using current branch", slog.Any("error", err))
	} else if tag != "" {
		m.logger.Info("checking out latest tag", slog.String("tag", tag))
		if err := m.git(ctx, "-C", m.localPath, "checkout", tag); err != nil {
			m.logger.Warn("tag checkout failed, using current branch", slog.Any("error", err))
		}
	}
	return nil
}

func (m *Mirror) git(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// latestTag asks the GitHub tags API for the most recent tag of the mirrored
// repository. Non-GitHub remotes report no tag.
func (m *Mirror) latestTag(ctx context.Context) (string, error) {
	ownerRepo, ok := githubOwnerRepo(m.repoURL)
	if !ok {
		return "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://api.github.com/repos/"+ownerRepo+"/tags", nil)
	if err != nil {
		return "", err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tags API status %d", resp.StatusCode)
	}

	var tags []struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return "", err
	}
	if len(tags) == 0 {
		return "", nil
	}
	return tags[0].Name, nil
}

func githubOwnerRepo(repoURL string) (string, bool) {
	for _, prefix := range []string{"https://github.com/", "git@github.com:"} {
		if rest, ok := strings.CutPrefix(repoURL, prefix); ok {
			rest = strings.TrimSuffix(rest, ".git")
			if strings.Count(rest, "/") == 1 {
				return rest, true
			}
		}
	}
	return "", false
}
