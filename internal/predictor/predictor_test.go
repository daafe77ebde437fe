package predictor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Dbhasin1/allennlp/internal/archive"
	"github.com/Dbhasin1/allennlp/internal/dataset"
)

func TestMockEngine_Predict(t *testing.T) {
	mock := NewMockEngine(3)

	batch := [][]float32{
		{0.5, 0.5},
		{1.0, 2.0},
	}
	outputs, err := mock.Predict(batch)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if len(outputs) != 2 {
		t.Fatalf("Expected 2 outputs, got %d", len(outputs))
	}

	// Each output is the element sum repeated OutputDim times.
	for _, want := range []struct {
		row int
		sum float32
	}{{0, 1.0}, {1, 3.0}} {
		out := outputs[want.row]
		if len(out) != 3 {
			t.Fatalf("Output %d has length %d, expected 3", want.row, len(out))
		}
		for j, v := range out {
			if v != want.sum {
				t.Errorf("Output[%d][%d] = %f, expected %f", want.row, j, v, want.sum)
			}
		}
	}

	if mock.CallCount != 1 {
		t.Errorf("Expected CallCount=1, got %d", mock.CallCount)
	}
}

func TestMockEngine_PredictError(t *testing.T) {
	mock := NewMockEngine(1)
	mock.SetError("test error")

	_, err := mock.Predict([][]float32{{1}})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if err.Error() != "test error" {
		t.Errorf("Expected 'test error', got '%s'", err.Error())
	}

	mock.ClearError()
	if _, err := mock.Predict([][]float32{{1}}); err != nil {
		t.Errorf("Expected no error after ClearError, got: %v", err)
	}
}

func TestMockEngine_EmptyBatch(t *testing.T) {
	mock := NewMockEngine(1)
	if _, err := mock.Predict([][]float32{}); err == nil {
		t.Fatal("Expected error for empty batch")
	}
}

func writeArchive(t *testing.T, config string) *archive.Archive {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(config), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	a, err := archive.Load(dir, "", "")
	if err != nil {
		t.Fatalf("Failed to load archive: %v", err)
	}
	return a
}

const mockArchiveConfig = `{
	"predictor": "tensor",
	"engine": {"type": "mock", "output_dim": 2},
	"dataset_reader": {"type": "json_lines"},
	"validation_dataset_reader": {"type": "json_lines"}
}`

func TestFromArchiveBuildsDefaultPredictor(t *testing.T) {
	a := writeArchive(t, mockArchiveConfig)

	p, err := FromArchive(a, "", "validation", -1, nil)
	if err != nil {
		t.Fatalf("FromArchive failed: %v", err)
	}
	defer p.Close()

	if p.DatasetReader() == nil {
		t.Error("Expected a dataset reader from the archive config")
	}
}

func TestFromArchiveUnknownPredictor(t *testing.T) {
	a := writeArchive(t, mockArchiveConfig)

	if _, err := FromArchive(a, "no_such_predictor", "validation", -1, nil); err == nil {
		t.Fatal("Expected error for unknown predictor name")
	}
}

func TestFromArchiveReaderChoiceFallback(t *testing.T) {
	// No validation reader configured: the validation choice falls back to
	// the train reader.
	a := writeArchive(t, `{
		"engine": {"type": "mock", "output_dim": 1},
		"dataset_reader": {"type": "json_lines"}
	}`)

	p, err := FromArchive(a, "", "validation", -1, nil)
	if err != nil {
		t.Fatalf("FromArchive failed: %v", err)
	}
	defer p.Close()

	if p.DatasetReader() == nil {
		t.Error("Expected fallback to the train dataset reader")
	}
}

func TestTensorPredictorRoundTrip(t *testing.T) {
	a := writeArchive(t, mockArchiveConfig)
	p, err := FromArchive(a, "", "validation", -1, nil)
	if err != nil {
		t.Fatalf("FromArchive failed: %v", err)
	}
	defer p.Close()

	record, err := p.LoadLine(`{"inputs": [1, 2, 3]}`)
	if err != nil {
		t.Fatalf("LoadLine failed: %v", err)
	}

	result, err := p.PredictJSON(record)
	if err != nil {
		t.Fatalf("PredictJSON failed: %v", err)
	}

	line := p.DumpLine(result)
	if line != `{"prediction":[6,6]}` {
		t.Errorf("Unexpected output line: %s", line)
	}
}

func TestTensorPredictorBatchMatchesSingle(t *testing.T) {
	a := writeArchive(t, mockArchiveConfig)
	p, err := FromArchive(a, "", "validation", -1, nil)
	if err != nil {
		t.Fatalf("FromArchive failed: %v", err)
	}
	defer p.Close()

	inputs := []Record{
		{"inputs": []interface{}{1.0, 2.0}},
		{"inputs": []interface{}{3.0, 4.0}},
	}

	batched, err := p.PredictBatchJSON(inputs)
	if err != nil {
		t.Fatalf("PredictBatchJSON failed: %v", err)
	}
	if len(batched) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(batched))
	}

	for i, input := range inputs {
		single, err := p.PredictJSON(input)
		if err != nil {
			t.Fatalf("PredictJSON failed: %v", err)
		}
		if p.DumpLine(single) != p.DumpLine(batched[i]) {
			t.Errorf("Record %d: single %s != batched %s",
				i, p.DumpLine(single), p.DumpLine(batched[i]))
		}
	}
}

func TestTensorPredictorInstances(t *testing.T) {
	a := writeArchive(t, mockArchiveConfig)
	p, err := FromArchive(a, "", "validation", -1, nil)
	if err != nil {
		t.Fatalf("FromArchive failed: %v", err)
	}
	defer p.Close()

	insts := []*dataset.Instance{
		{Fields: map[string]interface{}{"inputs": []interface{}{1.0}}},
		{Fields: map[string]interface{}{"inputs": []interface{}{2.0}}},
	}

	results, err := p.PredictBatchInstance(insts)
	if err != nil {
		t.Fatalf("PredictBatchInstance failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}

	single, err := p.PredictInstance(insts[0])
	if err != nil {
		t.Fatalf("PredictInstance failed: %v", err)
	}
	if p.DumpLine(single) != p.DumpLine(results[0]) {
		t.Error("Instance prediction differs between single and batch dispatch")
	}
}

func TestTensorPredictorMissingFeatureField(t *testing.T) {
	a := writeArchive(t, mockArchiveConfig)
	p, err := FromArchive(a, "", "validation", -1, nil)
	if err != nil {
		t.Fatalf("FromArchive failed: %v", err)
	}
	defer p.Close()

	_, err = p.PredictJSON(Record{"other": 1})
	if err == nil {
		t.Fatal("Expected error for missing feature field")
	}
	if !strings.Contains(err.Error(), "inputs") {
		t.Errorf("Expected the field name in the error, got: %v", err)
	}
}

func TestTensorPredictorExtraArgs(t *testing.T) {
	a := writeArchive(t, mockArchiveConfig)
	p, err := FromArchive(a, "", "validation", -1, map[string]interface{}{
		"input_field":   "x",
		"include_input": true,
	})
	if err != nil {
		t.Fatalf("FromArchive failed: %v", err)
	}
	defer p.Close()

	result, err := p.PredictJSON(Record{"x": []interface{}{2.0}})
	if err != nil {
		t.Fatalf("PredictJSON failed: %v", err)
	}
	if _, ok := result["x"]; !ok {
		t.Errorf("Expected input echoed into result, got: %s", p.DumpLine(result))
	}
}

func TestEngineFromConfigUnknownType(t *testing.T) {
	a := writeArchive(t, `{"engine": {"type": "quantum"}}`)
	if _, err := FromArchive(a, "", "validation", -1, nil); err == nil {
		t.Fatal("Expected error for unknown engine type")
	}
}
