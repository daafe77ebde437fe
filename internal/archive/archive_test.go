package archive

import (
	"archive/tar"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
)

const testConfig = `{
	"predictor": "tensor",
	"weights": "model.onnx",
	"engine": {"type": "mock", "output_dim": 2},
	"dataset_reader": {"type": "json_lines"}
}`

func writeArchiveDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(testConfig), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "model.onnx"), []byte("weights"), 0o644); err != nil {
		t.Fatalf("Failed to write weights: %v", err)
	}
	return dir
}

func packArchive(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.tar.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create archive: %v", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	for _, name := range []string{"config.json", "model.onnx"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("Failed to read %s: %v", name, err)
		}
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(data))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("Failed to write tar header: %v", err)
		}
		if _, err := tw.Write(data); err != nil {
			t.Fatalf("Failed to write tar entry: %v", err)
		}
	}
	return path
}

func TestLoadFromDirectory(t *testing.T) {
	dir := writeArchiveDir(t)

	a, err := Load(dir, "", "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if a.Config.GetString("predictor") != "tensor" {
		t.Errorf("Unexpected predictor: %s", a.Config.GetString("predictor"))
	}
	if a.WeightsPath != filepath.Join(dir, "model.onnx") {
		t.Errorf("Unexpected weights path: %s", a.WeightsPath)
	}
}

func TestLoadFromTarball(t *testing.T) {
	path := packArchive(t, writeArchiveDir(t))

	a, err := Load(path, "", "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if a.Config.GetInt("engine.output_dim") != 2 {
		t.Errorf("Unexpected output_dim: %d", a.Config.GetInt("engine.output_dim"))
	}
	if _, err := os.Stat(a.WeightsPath); err != nil {
		t.Errorf("Extracted weights missing: %v", err)
	}
}

func TestCloseRemovesExtractionDir(t *testing.T) {
	path := packArchive(t, writeArchiveDir(t))

	a, err := Load(path, "", "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := os.Stat(a.Dir); !os.IsNotExist(err) {
		t.Errorf("Expected extraction dir to be removed, stat: %v", err)
	}
}

func TestCloseKeepsArchiveDirectory(t *testing.T) {
	dir := writeArchiveDir(t)

	a, err := Load(dir, "", "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.json")); err != nil {
		t.Errorf("Expected pre-extracted dir to survive Close: %v", err)
	}
}

func TestLoadAppliesOverrides(t *testing.T) {
	dir := writeArchiveDir(t)

	// Dotted and nested forms both address the same setting.
	a, err := Load(dir, "", `{"engine.output_dim": 5, "predictor": "other"}`)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := a.Config.GetInt("engine.output_dim"); got != 5 {
		t.Errorf("Override not applied, output_dim = %d", got)
	}
	if got := a.Config.GetString("predictor"); got != "other" {
		t.Errorf("Override not applied, predictor = %s", got)
	}

	a, err = Load(dir, "", `{"engine": {"output_dim": 7}}`)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := a.Config.GetInt("engine.output_dim"); got != 7 {
		t.Errorf("Nested override not applied, output_dim = %d", got)
	}
}

func TestLoadBadOverrides(t *testing.T) {
	dir := writeArchiveDir(t)
	if _, err := Load(dir, "", "{not json"); err == nil {
		t.Fatal("Expected error for malformed overrides")
	}
}

func TestLoadWeightsFileOverride(t *testing.T) {
	dir := writeArchiveDir(t)
	custom := filepath.Join(t.TempDir(), "custom.onnx")
	if err := os.WriteFile(custom, []byte("other weights"), 0o644); err != nil {
		t.Fatalf("Failed to write weights: %v", err)
	}

	a, err := Load(dir, custom, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if a.WeightsPath != custom {
		t.Errorf("Expected weights override %s, got %s", custom, a.WeightsPath)
	}
}

func TestLoadMissingArchive(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.tar.gz"), "", ""); err == nil {
		t.Fatal("Expected error for missing archive")
	}
}
