package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/varghele/QLCplusShowCreator/internal/events"
	"github.com/varghele/QLCplusShowCreator/internal/fixture"
	"github.com/varghele/QLCplusShowCreator/internal/logbuffer"
	"github.com/varghele/QLCplusShowCreator/internal/show"
	"github.com/varghele/QLCplusShowCreator/internal/workspace"
)

func testService() *show.Service {
	lib := fixture.NewLibrary()
	lib.Add(&fixture.Definition{
		Manufacturer: "Generic", Model: "RGB Par",
		Channels: []fixture.Channel{
			{Name: "Dimmer", Preset: "IntensityMasterDimmer"},
			{Name: "Red", Preset: "IntensityRed"},
			{Name: "Green", Preset: "IntensityGreen"},
			{Name: "Blue", Preset: "IntensityBlue"},
		},
		Modes: []fixture.Mode{{Name: "4ch", Channels: []string{"Dimmer", "Red", "Green", "Blue"}}},
	})
	doc := &workspace.Document{
		Name: "rig",
		Fixtures: []fixture.Fixture{
			{Universe: 0, Address: 1, Manufacturer: "Generic", Model: "RGB Par", Name: "par-1", Group: "wash", Mode: "4ch"},
		},
		Shows: []workspace.Show{{
			Name:  "opener",
			Parts: []workspace.Part{{Name: "intro", Signature: "4/4", BPM: 120, Bars: 8}},
			Lanes: []workspace.Lane{{
				Name: "wash", Group: "wash",
				Envelopes: []workspace.Envelope{{
					Name:      "look",
					Intensity: []workspace.IntensityBlock{{Start: 0, End: 4, Level: 200}},
				}},
			}},
		}},
	}
	return show.NewService(zerolog.Nop(), events.NewBus(), doc, lib, nil, 60, nil)
}

func testServer() *httptest.Server {
	svc := testService()
	return httptest.NewServer(New(zerolog.Nop(), svc, events.NewBus(), nil).Router())
}

func getJSON(t *testing.T, url string, into any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if into != nil {
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	resp.Body.Close()
	return resp
}

func TestHealth(t *testing.T) {
	ts := testServer()
	defer ts.Close()

	var body map[string]any
	resp := getJSON(t, ts.URL+"/api/v1/health", &body)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health = %d %+v", resp.StatusCode, body)
	}
}

func TestShowLifecycle(t *testing.T) {
	ts := testServer()
	defer ts.Close()

	var list struct {
		Shows []string `json:"shows"`
	}
	getJSON(t, ts.URL+"/api/v1/shows", &list)
	if len(list.Shows) != 1 || list.Shows[0] != "opener" {
		t.Fatalf("shows = %+v", list.Shows)
	}

	if resp := postJSON(t, ts.URL+"/api/v1/shows/nope/load", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("loading unknown show: status %d", resp.StatusCode)
	}
	if resp := postJSON(t, ts.URL+"/api/v1/shows/opener/load", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("load: status %d", resp.StatusCode)
	}

	var status map[string]any
	getJSON(t, ts.URL+"/api/v1/playback/status", &status)
	if status["show"] != "opener" || status["state"] != "stopped" {
		t.Fatalf("status = %+v", status)
	}
}

func TestPlayRequiresLoadedShow(t *testing.T) {
	ts := testServer()
	defer ts.Close()

	if resp := postJSON(t, ts.URL+"/api/v1/playback/play", ""); resp.StatusCode != http.StatusConflict {
		t.Fatalf("play without show: status %d", resp.StatusCode)
	}
}

func TestSeekValidation(t *testing.T) {
	ts := testServer()
	defer ts.Close()

	if resp := postJSON(t, ts.URL+"/api/v1/playback/seek", `{"position":-1}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("negative seek: status %d", resp.StatusCode)
	}
	if resp := postJSON(t, ts.URL+"/api/v1/playback/seek", `{"position":3.5}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("seek: status %d", resp.StatusCode)
	}
}

func TestUniverseBuffer(t *testing.T) {
	ts := testServer()
	defer ts.Close()

	var body struct {
		Universe int   `json:"universe"`
		Channels []int `json:"channels"`
	}
	getJSON(t, ts.URL+"/api/v1/universes/0", &body)
	if len(body.Channels) != 512 {
		t.Fatalf("got %d channels, want 512", len(body.Channels))
	}

	if resp := getJSON(t, ts.URL+"/api/v1/universes/abc", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid id: status %d", resp.StatusCode)
	}
}

func TestCompileEndpoint(t *testing.T) {
	ts := testServer()
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/shows/opener/compile", "application/json", nil)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("compile: status %d", resp.StatusCode)
	}
	var body struct {
		Tracks map[string][]struct {
			Name  string `json:"name"`
			Steps int    `json:"steps"`
		} `json:"tracks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Tracks["wash"]) != 1 || body.Tracks["wash"][0].Steps != 1 {
		t.Fatalf("tracks = %+v", body.Tracks)
	}
}

func TestLogsEndpoint(t *testing.T) {
	svc := testService()
	buf := logbuffer.New(10)
	log := zerolog.New(buf).With().Str("component", "playback").Logger()
	log.Warn().Msg("dropped frame")

	ts := httptest.NewServer(New(zerolog.Nop(), svc, events.NewBus(), buf).Router())
	defer ts.Close()

	var body struct {
		Entries []struct {
			Level   string `json:"level"`
			Message string `json:"message"`
		} `json:"entries"`
		Components []string `json:"components"`
	}
	getJSON(t, ts.URL+"/api/v1/logs?level=warn", &body)
	if len(body.Entries) != 1 || body.Entries[0].Message != "dropped frame" {
		t.Fatalf("entries = %+v", body.Entries)
	}
	if len(body.Components) != 1 || body.Components[0] != "playback" {
		t.Fatalf("components = %+v", body.Components)
	}
}

func TestLogsEndpointWithoutBuffer(t *testing.T) {
	ts := testServer()
	defer ts.Close()

	if resp := getJSON(t, ts.URL+"/api/v1/logs", nil); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("logs without buffer: status %d", resp.StatusCode)
	}
}

func TestExportEndpoint(t *testing.T) {
	ts := testServer()
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/shows/opener/export")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/xml" {
		t.Fatalf("content type = %q", ct)
	}
}
