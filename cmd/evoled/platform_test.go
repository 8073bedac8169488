package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

// scriptedRunner answers command lines from a table; unknown lines fail.
type scriptedRunner map[string]string

func (s scriptedRunner) Run(_ context.Context, line string) ([]byte, error) {
	out, ok := s[line]
	if !ok {
		return nil, errors.New("command not found")
	}
	return []byte(out), nil
}

func TestResolvePlatform(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	p, err := resolvePlatform(ctx, "auto", scriptedRunner{"volumio status": "{}"}, logger)
	if err != nil || p != PlatformVolumio {
		t.Fatalf("auto with volumio CLI = %q, %v", p, err)
	}

	p, err = resolvePlatform(ctx, "", scriptedRunner{}, logger)
	if err != nil || p != PlatformMoode {
		t.Fatalf("auto without volumio CLI = %q, %v", p, err)
	}

	p, err = resolvePlatform(ctx, "MOODE", scriptedRunner{"volumio status": ""}, logger)
	if err != nil || p != PlatformMoode {
		t.Fatalf("explicit moode = %q, %v", p, err)
	}

	if _, err := resolvePlatform(ctx, "mopidy", scriptedRunner{}, logger); err == nil {
		t.Fatalf("expected error for unknown platform")
	}
}

func TestCommandSet_OverridesAndPlayList(t *testing.T) {
	c := defaultCommandSet(PlatformMoode).withOverrides(CommandTemplates{Toggle: "mpc -q toggle"})

	if c.Toggle != "mpc -q toggle" {
		t.Fatalf("Toggle = %q", c.Toggle)
	}
	if c.VolumeUp != "mpc volume +5" {
		t.Fatalf("VolumeUp = %q, want built-in", c.VolumeUp)
	}

	got := c.PlayListLine(ListItem{Name: "Rock 'n' Roll"})
	want := `mpc clear && mpc load 'Rock '\''n'\'' Roll' && mpc play`
	if got != want {
		t.Fatalf("PlayListLine = %q, want %q", got, want)
	}

	if line := (CommandSet{}).PlayListLine(ListItem{Name: "x"}); line != "" {
		t.Fatalf("empty template produced %q", line)
	}
}

func TestMpcPlaylists(t *testing.T) {
	src := newListSource(PlatformMoode, "", scriptedRunner{"mpc lsplaylists": "Jazz\n\n  Late Night  \nRadio\n"})
	items, err := src.FetchLists(context.Background())
	if err != nil {
		t.Fatalf("FetchLists: %v", err)
	}
	if len(items) != 3 || items[0].Name != "Jazz" || items[1].Name != "Late Night" || items[2].Name != "Radio" {
		t.Fatalf("items = %+v", items)
	}

	if _, err := (mpcPlaylists{runner: scriptedRunner{}}).FetchLists(context.Background()); err == nil {
		t.Fatalf("expected error when mpc fails")
	}
}

func TestVolumioPlaylists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/listplaylists" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`["Jazz","Late Night"]`))
	}))
	defer srv.Close()

	src := newListSource(PlatformVolumio, srv.URL+"/", nil)
	items, err := src.FetchLists(context.Background())
	if err != nil {
		t.Fatalf("FetchLists: %v", err)
	}
	if len(items) != 2 || items[1].Name != "Late Night" || items[1].URI != "volumio://playlist/Late%20Night" {
		t.Fatalf("items = %+v", items)
	}
}

func TestVolumioPlaylists_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := newVolumioPlaylists(srv.URL).FetchLists(context.Background()); err == nil {
		t.Fatalf("expected error on HTTP 500")
	}
}
