// Package githubstars syncs the repositories a user starred on GitHub.
package githubstars

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mmry-org/mmry-plugins/internal/components/telemetry"
	"github.com/mmry-org/mmry-plugins/lib/mmry"
	"github.com/mmry-org/mmry-plugins/lib/textutil"
	"github.com/mmry-org/mmry-plugins/plugins"
)

const (
	DefaultBaseURL = "https://api.github.com"

	InputToken = "GITHUB_TOKEN"
	CursorKey  = "lastSeenStarTimestamp"
)

//go:embed plugin.yaml
var manifestYaml []byte

var manifest = plugins.MustParseManifest(manifestYaml)

type Plugin struct {
	settings plugins.Settings
}

func New(settings plugins.Settings) Plugin {
	return Plugin{settings: settings}
}

func (Plugin) Manifest() plugins.Manifest {
	return manifest
}

func statusForError(err error) string {
	var apiErr apiError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401:
			return "Invalid GitHub token - check your permissions"
		case 403:
			return "Rate limit exceeded - try again later"
		default:
			return fmt.Sprintf("GitHub API error: %d", apiErr.StatusCode)
		}
	}
	return "Failed to fetch starred repositories"
}

func (p Plugin) Run(ctx context.Context, c *mmry.Client) error {
	tel := telemetry.NewScopedAPI("github_stars", c.Tel())

	token, err := plugins.RequireInput(c, InputToken, "GitHub token is required")
	if err != nil {
		return err
	}
	state, err := c.State()
	if err != nil {
		return err
	}
	cursor := state.Cursor(CursorKey)
	lastSeen, hasLastSeen, err := cursor.Get(ctx)
	if err != nil {
		return err
	}
	if hasLastSeen {
		tel.ReportInfo(fmt.Sprintf("Starting sync. Last seen star timestamp: %s", lastSeen))
	} else {
		tel.ReportInfo("Starting sync. Last seen star timestamp: Never")
	}

	cl, err := newClient(p.settings.HTTPOptions(DefaultBaseURL, "mmry-plugins/github-stars"), token, tel)
	if err != nil {
		return err
	}

	c.Status("Fetching starred repositories...")
	newStars := 0

pages:
	for page := 1; ; page++ {
		c.Status(fmt.Sprintf("Fetching page %d of starred repositories...", page))
		stars, err := cl.starred(ctx, page)
		if err != nil {
			c.Status(statusForError(err))
			return fmt.Errorf("fetch starred page %d: %w", page, err)
		}
		if len(stars) == 0 {
			tel.ReportDebug("no more starred repositories found")
			break
		}

		for _, s := range stars {
			if hasLastSeen && s.StarredAt != "" && s.StarredAt <= lastSeen {
				tel.ReportInfo(fmt.Sprintf(
					"Found star from %s, which was already seen (last seen: %s). Caught up.",
					s.StarredAt, lastSeen,
				))
				break pages
			}

			newStars++
			tel.ReportInfo(fmt.Sprintf("Processing new star #%d (%s)", newStars, s.Repo.FullName))

			if s.StarredAt != "" {
				err = cursor.Set(ctx, s.StarredAt)
				if err != nil {
					return err
				}
				lastSeen, hasLastSeen = s.StarredAt, true
			}

			_, err = c.Add(ctx, toItem(s, mmry.ISOTime(c.Clock().Now())))
			if err != nil {
				return err
			}

			if p.settings.LimitReached(newStars) {
				tel.ReportInfo(fmt.Sprintf("Hit the item limit of %d, stopping sync.", p.settings.ItemLimit))
				break pages
			}
		}

		if len(stars) < perPage {
			tel.ReportDebug("reached end of starred repositories (partial page)")
			break
		}
	}

	tel.ReportInfo(fmt.Sprintf("Done. Processed %d new starred repositories.", newStars))
	c.Status(fmt.Sprintf("%d new stars imported", newStars))
	return nil
}

func or(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func toItem(s star, now string) mmry.Item {
	repo := s.Repo
	topics := repo.Topics
	if topics == nil {
		topics = []string{}
	}
	ownerLogin := "Unknown"
	if repo.Owner != nil && repo.Owner.Login != "" {
		ownerLogin = repo.Owner.Login
	}

	content := textutil.FormatFields(
		textutil.Field{Name: "Title", Value: or(repo.Name, "Unknown")},
		textutil.Field{Name: "Description", Value: or(deref(repo.Description), "No description")},
		textutil.Field{Name: "Language", Value: or(deref(repo.Language), "Not specified")},
		textutil.Field{Name: "Stars", Value: strconv.Itoa(repo.StargazersCount)},
		textutil.Field{Name: "Forks", Value: strconv.Itoa(repo.ForksCount)},
		textutil.Field{Name: "Topics", Value: strings.Join(topics, ", "), Optional: true},
		textutil.Field{Name: "Owner", Value: ownerLogin},
	)

	var urls []string
	if repo.HtmlURL != "" {
		urls = append(
			urls,
			repo.HtmlURL,
			fmt.Sprintf("%s/blob/%s/README.md", repo.HtmlURL, or(repo.DefaultBranch, "main")),
		)
	}
	if homepage := deref(repo.Homepage); homepage != "" {
		urls = append(urls, homepage)
	}

	var language any
	if l := deref(repo.Language); l != "" {
		language = l
	}

	return mmry.Item{
		ExternalID: strconv.FormatInt(repo.ID, 10),
		Content:    content,
		CreatedAt:  or(s.StarredAt, now),
		UpdatedAt:  or(repo.UpdatedAt, now),
		URLs:       urls,
		Metadata: map[string]any{
			"language":       language,
			"starCount":      repo.StargazersCount,
			"forkCount":      repo.ForksCount,
			"topics":         topics,
			"owner":          ownerLogin,
			"repositoryName": or(repo.Name, "Unknown"),
			"fullName":       or(repo.FullName, "Unknown"),
		},
	}
}
