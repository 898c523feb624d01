package templates

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const rssTelegramMeta = `id: rss_to_telegram
name: RSS to Telegram
intents:
  - rss to telegram
tags:
  - rss
  - telegram
inputs:
  required:
    - key: feed_url
      description: RSS feed URL
secrets:
  - TELEGRAM_TOKEN
compat:
  n8n:
    nodes_whitelist:
      - cron
      - rssFeedRead
      - telegram
constraints:
  max_nodes: 15
`

const rssTelegramWorkflow = `{
  "name": "RSS to Telegram",
  "nodes": [
    {"id": "n1", "name": "Cron", "type": "n8n-nodes-base.cron", "position": [0, 0], "parameters": {}},
    {"id": "n2", "name": "Read Feed", "type": "n8n-nodes-base.rssFeedRead", "position": [200, 0], "parameters": {"url": "={{$env.FEED_URL}}"}},
    {"id": "n3", "name": "Send", "type": "n8n-nodes-base.telegram", "position": [400, 0], "parameters": {"token": "={{$env.TELEGRAM_TOKEN}}"}}
  ],
  "connections": {"Cron": {"main": [[{"node": "Read Feed", "type": "main", "index": 0}]]}}
}`

func writeBundle(t *testing.T, root, dir, meta, workflow string) string {
	t.Helper()
	path := filepath.Join(root, dir)
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir bundle dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(path, MetaFileName), []byte(meta), 0o644); err != nil {
		t.Fatalf("write meta: %v", err)
	}
	if err := os.WriteFile(filepath.Join(path, WorkflowFileName), []byte(workflow), 0o644); err != nil {
		t.Fatalf("write workflow: %v", err)
	}
	return path
}

func TestSlugify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"RSS to Telegram", "rss_to_telegram"},
		{"  spaced   out  ", "spaced_out"},
		{"Hourly-Check!", "hourlycheck"},
		{"already_slug", "already_slug"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Fatalf("Slugify(%q)=%q want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadBundle(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	dir := writeBundle(t, root, "rss_to_telegram", rssTelegramMeta, rssTelegramWorkflow)

	bundle, err := NewStore(root).LoadBundle(dir)
	if err != nil {
		t.Fatalf("LoadBundle: %v", err)
	}
	if bundle.Meta.ID != "rss_to_telegram" || bundle.Meta.Name != "RSS to Telegram" {
		t.Fatalf("unexpected meta: %#v", bundle.Meta)
	}
	if len(bundle.Meta.Secrets) != 1 || bundle.Meta.Secrets[0] != "TELEGRAM_TOKEN" {
		t.Fatalf("unexpected secrets: %v", bundle.Meta.Secrets)
	}
	if got := bundle.Meta.Inputs.Required[0].Key; got != "feed_url" {
		t.Fatalf("unexpected required input: %q", got)
	}
	if _, ok := bundle.Workflow["nodes"]; !ok {
		t.Fatalf("workflow document not loaded: %#v", bundle.Workflow)
	}
}

func TestLoadBundleDefaultsIDFromDirName(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	dir := writeBundle(t, root, "Hourly HTTP Check", "name: Hourly HTTP Check\n", rssTelegramWorkflow)

	bundle, err := NewStore(root).LoadBundle(dir)
	if err != nil {
		t.Fatalf("LoadBundle: %v", err)
	}
	if bundle.Meta.ID != "hourly_http_check" {
		t.Fatalf("id=%q want hourly_http_check", bundle.Meta.ID)
	}
	if bundle.Meta.Constraints.MaxNodes != 0 || bundle.Meta.maxNodes() != defaultMaxNodes {
		t.Fatalf("expected default max nodes, got %d", bundle.Meta.maxNodes())
	}
}

func TestLoadBundleMalformed(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		meta     string
		workflow string
	}{
		{name: "bad yaml", meta: "name: [unclosed", workflow: rssTelegramWorkflow},
		{name: "missing name", meta: "id: x\n", workflow: rssTelegramWorkflow},
		{name: "bad json", meta: rssTelegramMeta, workflow: "{not json"},
		{name: "input missing key", meta: "name: X\ninputs:\n  required:\n    - description: no key\n", workflow: rssTelegramWorkflow},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			root := t.TempDir()
			dir := writeBundle(t, root, "broken", tt.meta, tt.workflow)

			_, err := NewStore(root).LoadBundle(dir)
			var malformed *MalformedBundleError
			if !errors.As(err, &malformed) {
				t.Fatalf("expected MalformedBundleError, got %v", err)
			}
		})
	}
}
