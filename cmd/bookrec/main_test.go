package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
)

const testSeed = `[
  {"id": 1, "kind": "book", "title": "A", "author": "Tolkien", "genre": "Fiction", "category": "Fantasy", "visual_features": [1, 0, 0]},
  {"id": 2, "kind": "book", "title": "B", "author": "Tolkien", "genre": "Fiction", "category": "Fantasy", "visual_features": [0.9, 0.1, 0]},
  {"id": 3, "kind": "book", "title": "C", "author": "Gibbon", "genre": "History", "category": "Rome"}
]`

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	seed := filepath.Join(dir, "seed.json")
	if err := os.WriteFile(seed, []byte(testSeed), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := "log:\n  level: disabled\n" +
		"catalog:\n  driver: memory\n  seed: " + seed + "\n" +
		"model:\n  path: " + filepath.Join(dir, "recommender.json.gz") + "\n" +
		"cache:\n  backend: none\n"
	path := filepath.Join(dir, "bookrec.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	cmd := NewBookrecCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("bookrec %v: %v", args, err)
	}
	return out.String()
}

func TestTrainAndRecommend(t *testing.T) {
	cfg := writeConfig(t)

	var summary trainSummary
	if err := json.Unmarshal([]byte(run(t, "train", "-c", cfg)), &summary); err != nil {
		t.Fatalf("decode train output: %v", err)
	}
	if summary.Items != 3 || summary.Clusters != 3 || summary.ArtifactID == "" {
		t.Errorf("train summary = %+v", summary)
	}

	var res itemsResult
	if err := json.Unmarshal([]byte(run(t, "recommend", "1", "-c", cfg)), &res); err != nil {
		t.Fatalf("decode recommend output: %v", err)
	}
	if res.Status != "ok" || len(res.Items) != 1 || res.Items[0].ID != 2 {
		t.Errorf("recommend = %+v", res)
	}
}

func TestSimilarByVectorFile(t *testing.T) {
	cfg := writeConfig(t)
	vec := filepath.Join(t.TempDir(), "q.json")
	_ = os.WriteFile(vec, []byte("[1, 0, 0]"), 0o644)

	var res matchesResult
	if err := json.Unmarshal([]byte(run(t, "similar", "--vector-file", vec, "-c", cfg)), &res); err != nil {
		t.Fatalf("decode similar output: %v", err)
	}
	if res.Status != "ok" || len(res.Matches) != 2 || res.Matches[0].Item.ID != 1 {
		t.Errorf("similar = %+v", res)
	}
}

func TestSimilarRequiresOneQuery(t *testing.T) {
	cmd := NewBookrecCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"similar"})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "exactly one") {
		t.Errorf("Execute() error = %v", err)
	}
}

func TestIndexCommand(t *testing.T) {
	out := run(t, "index", "-c", writeConfig(t))
	var summary map[string]any
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode index output: %v", err)
	}
	if summary["entries"] != float64(2) || summary["dimension"] != float64(3) {
		t.Errorf("index summary = %v", summary)
	}
}
