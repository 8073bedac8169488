package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ListSource fetches the playlists offered in the list browser.
type ListSource interface {
	FetchLists(ctx context.Context) ([]ListItem, error)
}

// volumioPlaylists reads playlist names from Volumio's REST API.
type volumioPlaylists struct {
	baseURL string
	client  *http.Client
}

func newVolumioPlaylists(baseURL string) *volumioPlaylists {
	return &volumioPlaylists{baseURL: strings.TrimSuffix(baseURL, "/"), client: &http.Client{}}
}

func (v *volumioPlaylists) FetchLists(ctx context.Context) ([]ListItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/api/v1/listplaylists", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list playlists: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list playlists: HTTP %d", resp.StatusCode)
	}

	var names []string
	if err := json.NewDecoder(resp.Body).Decode(&names); err != nil {
		return nil, fmt.Errorf("list playlists: response is not an array of names: %w", err)
	}

	items := make([]ListItem, 0, len(names))
	for _, name := range names {
		items = append(items, ListItem{
			Name: name,
			URI:  "volumio://playlist/" + url.PathEscape(name),
		})
	}
	return items, nil
}

// mpcPlaylists lists stored MPD playlists through the mpc CLI.
type mpcPlaylists struct {
	runner CommandRunner
}

func (m mpcPlaylists) FetchLists(ctx context.Context) ([]ListItem, error) {
	out, err := m.runner.Run(ctx, "mpc lsplaylists")
	if err != nil {
		return nil, fmt.Errorf("mpc lsplaylists: %w", err)
	}
	var items []ListItem
	for _, line := range strings.Split(string(out), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			items = append(items, ListItem{Name: name})
		}
	}
	return items, nil
}

// newListSource picks the playlist source for a platform.
func newListSource(p Platform, volumioURL string, runner CommandRunner) ListSource {
	if p == PlatformVolumio {
		return newVolumioPlaylists(volumioURL)
	}
	return mpcPlaylists{runner: runner}
}
