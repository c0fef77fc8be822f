package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
)

const trackYAML = `
name: Grobnik
lengthM: 4168
start: {latitude: 45.0, longitude: 14.0}
sectors:
  - {latitude: 45.01, longitude: 14.0}
`

const fixesYAML = `
fixes:
  - {latitude: 45.0, longitude: 14.0, offset: 0s}
  - {latitude: 45.005, longitude: 14.0, offset: 10s}
  - {latitude: 45.01, longitude: 14.0, offset: 20s}
  - {latitude: 45.0, longitude: 14.0, offset: 45s}
  - {latitude: 45.0, longitude: 14.0, offset: 47s}
  - {latitude: 45.0, longitude: 14.0, offset: 1m30s}
`

type cli struct {
	t    *testing.T
	data string
	dir  string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	color.NoColor = true
	t.Setenv("UPLOAD_ENDPOINT", "http://127.0.0.1:1")
	t.Setenv("REDIS_ADDR", "127.0.0.1:1")
	t.Setenv("NATS_URL", "")
	t.Setenv("LOG_LEVEL", "error")
	dir := t.TempDir()
	return &cli{t: t, data: filepath.Join(dir, "stoperica.db"), dir: dir}
}

func (c *cli) file(name, content string) string {
	c.t.Helper()
	path := filepath.Join(c.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		c.t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	return c.runWithInput("", args...)
}

func (c *cli) runWithInput(input string, args ...string) (string, error) {
	c.t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(input))
	cmd.SetArgs(append([]string{"--data", c.data}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	if err != nil {
		c.t.Fatalf("%v: %v\n%s", args, err, out)
	}
	return out
}

func TestHistoryEmpty(t *testing.T) {
	c := newCLI(t)
	if out := c.mustRun("history", "list"); !strings.Contains(out, "no sessions") {
		t.Fatalf("unexpected output %q", out)
	}
	if out := c.mustRun("history", "analytics"); !strings.Contains(out, "Fastest lap: N/A") {
		t.Fatalf("unexpected analytics %q", out)
	}
}

func TestMarkersImportShowReset(t *testing.T) {
	c := newCLI(t)
	track := c.file("track.yaml", trackYAML)

	if out := c.mustRun("markers", "import", track); !strings.Contains(out, "1 sector marker(s)") {
		t.Fatalf("unexpected import output %q", out)
	}
	out := c.mustRun("markers", "show")
	if !strings.Contains(out, "start    45.000000, 14.000000") || !strings.Contains(out, "sector 1 45.010000, 14.000000") {
		t.Fatalf("unexpected markers %q", out)
	}
	c.mustRun("markers", "reset")
	if out := c.mustRun("markers", "show"); !strings.Contains(out, "no markers") {
		t.Fatalf("markers not cleared: %q", out)
	}
}

func TestReplayWithoutSave(t *testing.T) {
	c := newCLI(t)
	track := c.file("track.yaml", trackYAML)
	fixes := c.file("fixes.yaml", fixesYAML)

	out := c.mustRun("replay", fixes, "--track", track)
	for _, want := range []string{"Lap 1: 00:45:00", "Sector 1: 00:20:00", "Lap 2: 00:45:00", "Grobnik"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in\n%s", want, out)
		}
	}
	if out := c.mustRun("history", "list"); !strings.Contains(out, "no sessions") {
		t.Fatalf("replay without --save must not store: %q", out)
	}
}

func TestReplayNeedsMarkers(t *testing.T) {
	c := newCLI(t)
	fixes := c.file("fixes.yaml", fixesYAML)
	if _, err := c.run("replay", fixes); err == nil {
		t.Fatalf("expected error without markers")
	}
}

func TestReplaySaveQueuesUploadOffline(t *testing.T) {
	c := newCLI(t)
	track := c.file("track.yaml", trackYAML)
	fixes := c.file("fixes.yaml", fixesYAML)

	c.mustRun("markers", "import", track)
	out := c.mustRun("replay", fixes, "--save")
	if !strings.Contains(out, "Session 1") {
		t.Fatalf("expected saved session, got\n%s", out)
	}

	if out := c.mustRun("replay", fixes, "--save"); !strings.Contains(out, "identical session already saved") {
		t.Fatalf("expected duplicate notice, got\n%s", out)
	}

	list := c.mustRun("history", "list")
	if strings.Count(list, "Session ") != 1 || !strings.Contains(list, "failed:") {
		t.Fatalf("unexpected history\n%s", list)
	}
	if out := c.mustRun("uploads", "status"); !strings.Contains(out, "1 session(s) waiting") {
		t.Fatalf("unexpected upload status %q", out)
	}
	if out := c.mustRun("history", "analytics"); !strings.Contains(out, "Fastest lap: 00:45:00 in Session 1") {
		t.Fatalf("unexpected analytics %q", out)
	}
}

func TestWhoamiOffline(t *testing.T) {
	c := newCLI(t)
	out := c.mustRun("whoami", "--set-username", "ana")
	if !strings.Contains(out, "username: ana") || !strings.Contains(out, "not signed in") {
		t.Fatalf("unexpected whoami output %q", out)
	}
}

func TestLiveUnreachableRedis(t *testing.T) {
	c := newCLI(t)
	if _, err := c.run("live", "list"); err == nil {
		t.Fatalf("expected error when redis is unreachable")
	}
}

func TestRunQuitsOnInput(t *testing.T) {
	c := newCLI(t)
	a, err := loadApp(&globalFlags{dataPath: c.data})
	if err != nil {
		t.Fatalf("load app: %v", err)
	}
	defer a.Close()

	var out bytes.Buffer
	err = runStopwatch(context.Background(), a, runOptions{}, strings.NewReader("p\nq\n"), &out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "idle  total 00:00:00") {
		t.Fatalf("unexpected output %q", out.String())
	}
}
