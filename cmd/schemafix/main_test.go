package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JonMunkholm/schemafix/internal/schema"
)

const testSchema = `{
  "order_id": {"synonyms": ["order no"]},
  "quantity": {"synonyms": ["qty"]},
  "postal_code": {"synonyms": ["pin"], "type": "postal_code"}
}`

const ordersCSV = "Order No,Qty,Pin,Gift Wrap\nORD-0001,2,PIN 560-001,yes\n"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ASSIST_API_KEY", "")
	t.Setenv("SCHEMA_STORE", "file")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSchemaInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "truth.json")

	out, err := run(t, "schema", "init", path)
	if err != nil {
		t.Fatalf("schema init error = %v", err)
	}
	if !strings.Contains(out, "wrote") {
		t.Errorf("output = %q", out)
	}

	model, err := schema.NewFileStore(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !model.Has("order_id") {
		t.Errorf("fields = %v", model.Fields())
	}

	if _, err := run(t, "schema", "init", path); err == nil {
		t.Error("second init without --force succeeded")
	}
	if _, err := run(t, "schema", "init", "--force", path); err != nil {
		t.Errorf("init --force error = %v", err)
	}
}

func TestSchemaShow(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "schema.json", testSchema)

	out, err := run(t, "--schema", schemaPath, "schema", "show")
	if err != nil {
		t.Fatalf("schema show error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.HasPrefix(lines[1], "order_id") || !strings.HasPrefix(lines[3], "postal_code") {
		t.Errorf("fields out of order: %q", lines)
	}

	out, err = run(t, "--schema", schemaPath, "schema", "show", "--format", "json")
	if err != nil {
		t.Fatalf("schema show --format json error = %v", err)
	}
	if !strings.Contains(out, `"quantity"`) {
		t.Errorf("json output = %s", out)
	}

	if _, err := run(t, "--schema", schemaPath, "schema", "show", "--format", "xml"); err == nil {
		t.Error("unknown format accepted")
	}
}

func TestSchemaShow_MissingSchema(t *testing.T) {
	_, err := run(t, "--schema", filepath.Join(t.TempDir(), "absent.json"), "schema", "show")
	if err == nil || !strings.Contains(err.Error(), "SCH001") {
		t.Errorf("error = %v, want SCH001", err)
	}
}

func TestMap(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "schema.json", testSchema)
	input := writeFile(t, dir, "orders.csv", ordersCSV)

	out, err := run(t, "--schema", schemaPath, "map", input)
	if err != nil {
		t.Fatalf("map error = %v", err)
	}
	for _, want := range []string{"Order No", "order_id", "synonym", "Gift Wrap", "unmapped"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, "--schema", schemaPath, "map", "--json", input)
	if err != nil {
		t.Fatalf("map --json error = %v", err)
	}
	var got struct {
		Unmatched []string `json:"unmatched"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Unmatched) != 1 || got.Unmatched[0] != "Gift Wrap" {
		t.Errorf("Unmatched = %v", got.Unmatched)
	}
}

func TestMap_AssistUnavailable(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "schema.json", testSchema)
	input := writeFile(t, dir, "orders.csv", ordersCSV)

	_, err := run(t, "--schema", schemaPath, "map", "--assist", input)
	if err == nil || !strings.Contains(err.Error(), "AST001") {
		t.Errorf("error = %v, want AST001", err)
	}
}

func TestClean(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "schema.json", testSchema)
	first := writeFile(t, dir, "orders.csv", ordersCSV)
	second := writeFile(t, dir, "returns.csv", "order_id,quantity\nORD-0002,1\n")
	outDir := filepath.Join(dir, "out")

	out, err := run(t, "--schema", schemaPath, "clean", "--out", outDir, "--apply-fixes", first, second)
	if err != nil {
		t.Fatalf("clean error = %v", err)
	}
	if strings.Count(out, "->") != 2 {
		t.Errorf("summary = %q", out)
	}

	csv, err := os.ReadFile(filepath.Join(outDir, "orders.clean.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if want := "order_id,quantity,postal_code\nORD-0001,2,560001\n"; string(csv) != want {
		t.Errorf("orders.clean.csv =\n%s\nwant\n%s", csv, want)
	}

	raw, err := os.ReadFile(filepath.Join(outDir, "orders.issues.json"))
	if err != nil {
		t.Fatal(err)
	}
	var rep struct {
		SessionID string   `json:"session_id"`
		Source    string   `json:"source"`
		Unmatched []string `json:"unmatched"`
		Fixed     int      `json:"fixed"`
		Rows      int      `json:"rows"`
	}
	if err := json.Unmarshal(raw, &rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if rep.SessionID == "" || rep.Source != "orders.csv" || rep.Rows != 1 || rep.Fixed != 1 {
		t.Errorf("report = %+v", rep)
	}
	if len(rep.Unmatched) != 1 || rep.Unmatched[0] != "Gift Wrap" {
		t.Errorf("Unmatched = %v", rep.Unmatched)
	}

	if _, err := os.Stat(filepath.Join(outDir, "returns.clean.csv")); err != nil {
		t.Errorf("second file not written: %v", err)
	}
}

func TestClean_Errors(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "schema.json", testSchema)
	input := writeFile(t, dir, "orders.csv", ordersCSV)
	sub := filepath.Join(dir, "eu")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad overrides json", []string{"--overrides", "{", input}, "--overrides"},
		{"unknown override target", []string{"--overrides", `{"Gift Wrap":"nope"}`, input}, "MAP001"},
		{"unsupported format", []string{writeFile(t, dir, "orders.pdf", "x")}, "FILE004"},
		{"empty input", []string{writeFile(t, dir, "empty.csv", "")}, "FILE005"},
		{"same name other dir", []string{input, writeFile(t, sub, "orders.csv", ordersCSV)}, "both write orders.clean.csv"},
		{"same name other format", []string{input, writeFile(t, dir, "orders.xlsx", "x")}, "both write orders.clean.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--schema", schemaPath, "clean", "--out", t.TempDir()}, tt.args...)
			_, err := run(t, args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestSchemaPromote(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFile(t, dir, "schema.json", testSchema)
	report := writeFile(t, dir, "orders.issues.json", `{
  "session_id": "6f1c2b8e-3d4a-4b5c-9e8f-0a1b2c3d4e5f",
  "mapping": [{"source": "Qty", "canonical": "quantity", "confidence": 0.95, "method": "synonym"}],
  "proposals": [{"source_header": "Gift Wrap", "header": "gift_wrap", "description": "Gift wrapping requested"}],
  "candidate_synonyms": {"quantity": ["Units Ordered"]}
}`)

	out, err := run(t, "--schema", schemaPath, "schema", "promote", "--synonyms", report)
	if err != nil {
		t.Fatalf("promote error = %v", err)
	}
	if !strings.Contains(out, "add_header") || !strings.Contains(out, "promote_synonym") {
		t.Errorf("output = %q", out)
	}

	model, err := schema.NewFileStore(schemaPath).Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !model.Has("gift_wrap") {
		t.Errorf("fields = %v", model.Fields())
	}
	q, _ := model.Field("quantity")
	if !strings.Contains(strings.Join(q.Synonyms, "|"), "Units Ordered") {
		t.Errorf("quantity synonyms = %v", q.Synonyms)
	}

	out, err = run(t, "--schema", schemaPath, "schema", "promote", "--synonyms", report)
	if err != nil {
		t.Fatalf("second promote error = %v", err)
	}
	if !strings.Contains(out, "schema unchanged") {
		t.Errorf("second promote output = %q", out)
	}
}
