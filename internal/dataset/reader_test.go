package dataset

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func configFromJSON(t *testing.T, doc string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader([]byte(doc))); err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}
	return v
}

func drain(t *testing.T, src Source) []*Instance {
	t.Helper()
	var instances []*Instance
	for {
		inst, err := src.Next()
		if err == io.EOF {
			return instances
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		instances = append(instances, inst)
	}
}

func TestJSONLinesReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.jsonl")
	content := "{\"a\": 1}\n\n{\"a\": 2}\n   \n{\"a\": 3}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write dataset: %v", err)
	}

	reader, err := FromConfig(configFromJSON(t, `{"type": "json_lines"}`))
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}

	src, err := reader.Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	instances := drain(t, src)
	if len(instances) != 3 {
		t.Fatalf("Expected 3 instances, got %d", len(instances))
	}
	for i, inst := range instances {
		if got := inst.Fields["a"].(float64); got != float64(i+1) {
			t.Errorf("Instance %d has a=%v, expected %d", i, got, i+1)
		}
	}
}

func TestJSONLinesReaderLongLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.jsonl")
	long := strings.Repeat("x", 100*1024)
	content := "{\"text\": \"" + long + "\"}\n{\"a\": 1}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write dataset: %v", err)
	}

	reader, err := FromConfig(configFromJSON(t, `{"type": "json_lines"}`))
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	src, err := reader.Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	instances := drain(t, src)
	if len(instances) != 2 {
		t.Fatalf("Expected 2 instances, got %d", len(instances))
	}
	if got := instances[0].Fields["text"].(string); len(got) != len(long) {
		t.Errorf("Long field truncated: got %d bytes, expected %d", len(got), len(long))
	}
}

func TestFromConfigNilAndEmpty(t *testing.T) {
	reader, err := FromConfig(nil)
	if err != nil {
		t.Fatalf("FromConfig(nil) failed: %v", err)
	}
	if reader != nil {
		t.Error("Expected nil reader for nil config")
	}

	reader, err = FromConfig(configFromJSON(t, `{}`))
	if err != nil {
		t.Fatalf("FromConfig({}) failed: %v", err)
	}
	if reader != nil {
		t.Error("Expected nil reader for config without type")
	}
}

func TestFromConfigUnknownType(t *testing.T) {
	_, err := FromConfig(configFromJSON(t, `{"type": "no_such_reader"}`))
	if err == nil {
		t.Fatal("Expected error for unknown reader type")
	}
}

func TestMultiTaskReaderRouting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.jsonl")
	if err := os.WriteFile(path, []byte("{\"a\": 1}\n{\"a\": 2}\n"), 0o644); err != nil {
		t.Fatalf("Failed to write dataset: %v", err)
	}

	cfg := configFromJSON(t, `{
		"type": "multitask",
		"heads": {
			"ner": {"type": "json_lines"},
			"tagger": {"type": "json_lines"}
		}
	}`)
	reader, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}

	mt, ok := reader.(MultiTask)
	if !ok {
		t.Fatal("Expected a multitask-capable reader")
	}

	heads := mt.Heads()
	if len(heads) != 2 || heads[0] != "ner" || heads[1] != "tagger" {
		t.Errorf("Unexpected heads: %v", heads)
	}

	src, err := mt.ReadTask(path, "ner")
	if err != nil {
		t.Fatalf("ReadTask failed: %v", err)
	}
	instances := drain(t, src)
	if len(instances) != 2 {
		t.Fatalf("Expected 2 instances, got %d", len(instances))
	}
	for _, inst := range instances {
		if inst.Head != "ner" {
			t.Errorf("Expected head ner, got %q", inst.Head)
		}
	}
}

func TestMultiTaskReaderUnknownHead(t *testing.T) {
	cfg := configFromJSON(t, `{"type": "multitask", "heads": {"ner": {"type": "json_lines"}}}`)
	reader, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}

	mt := reader.(MultiTask)
	if _, err := mt.ReadTask("data.jsonl", "missing"); err == nil {
		t.Fatal("Expected error for unknown head")
	}
}

func TestMultiTaskReaderRejectsHeadlessRead(t *testing.T) {
	cfg := configFromJSON(t, `{"type": "multitask", "heads": {"ner": {"type": "json_lines"}}}`)
	reader, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	if _, err := reader.Read("data.jsonl"); err == nil {
		t.Fatal("Expected error when reading a multitask reader without a head")
	}
}

func TestInstanceString(t *testing.T) {
	inst := &Instance{Fields: map[string]interface{}{"b": 2, "a": 1}}
	got := inst.String()
	if got != "Instance(a=1, b=2)" {
		t.Errorf("Unexpected string form: %s", got)
	}

	inst.Head = "ner"
	if !strings.HasPrefix(inst.String(), "Instance(head=ner, ") {
		t.Errorf("Expected head prefix, got: %s", inst.String())
	}
}
