package predictor

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/spf13/viper"

	"github.com/Dbhasin1/allennlp/internal/dataset"
)

// tensorPredictor is the default predictor: each record carries a numeric
// feature vector under a configurable field, and the prediction result is
// the engine's output vector for it.
type tensorPredictor struct {
	engine       Engine
	reader       dataset.Reader
	inputField   string
	includeInput bool
}

func init() {
	Register("tensor", newTensorPredictor)
}

func newTensorPredictor(cfg *viper.Viper, eng Engine, reader dataset.Reader, extraArgs map[string]interface{}) (Predictor, error) {
	p := &tensorPredictor{
		engine:     eng,
		reader:     reader,
		inputField: "inputs",
	}
	if field := cfg.GetString("input_field"); field != "" {
		p.inputField = field
	}
	if field, ok := extraArgs["input_field"].(string); ok && field != "" {
		p.inputField = field
	}
	if include, ok := extraArgs["include_input"].(bool); ok {
		p.includeInput = include
	}
	return p, nil
}

func (p *tensorPredictor) LoadLine(line string) (Record, error) {
	record := Record{}
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		return nil, fmt.Errorf("failed to parse input line: %w", err)
	}
	return record, nil
}

func (p *tensorPredictor) DumpLine(output Record) string {
	data, err := json.Marshal(output)
	if err != nil {
		// Records come out of this predictor and are always plain JSON
		// values; a marshal failure here is a bug.
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}

func (p *tensorPredictor) PredictJSON(input Record) (Record, error) {
	results, err := p.predictFields([]map[string]interface{}{input})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

func (p *tensorPredictor) PredictBatchJSON(inputs []Record) ([]Record, error) {
	fields := make([]map[string]interface{}, len(inputs))
	for i, input := range inputs {
		fields[i] = input
	}
	return p.predictFields(fields)
}

func (p *tensorPredictor) PredictInstance(inst *dataset.Instance) (Record, error) {
	results, err := p.predictFields([]map[string]interface{}{inst.Fields})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

func (p *tensorPredictor) PredictBatchInstance(insts []*dataset.Instance) ([]Record, error) {
	fields := make([]map[string]interface{}, len(insts))
	for i, inst := range insts {
		fields[i] = inst.Fields
	}
	return p.predictFields(fields)
}

func (p *tensorPredictor) DatasetReader() dataset.Reader {
	return p.reader
}

func (p *tensorPredictor) Close() error {
	return p.engine.Close()
}

func (p *tensorPredictor) predictFields(batch []map[string]interface{}) ([]Record, error) {
	features := make([][]float32, len(batch))
	for i, fields := range batch {
		row, err := p.featuresOf(fields)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		features[i] = row
	}

	outputs, err := p.engine.Predict(features)
	if err != nil {
		return nil, err
	}
	if len(outputs) != len(batch) {
		return nil, fmt.Errorf("engine returned %d outputs for %d records", len(outputs), len(batch))
	}

	results := make([]Record, len(batch))
	for i, out := range outputs {
		result := Record{"prediction": out}
		if p.includeInput {
			result[p.inputField] = batch[i][p.inputField]
		}
		results[i] = result
	}
	return results, nil
}

// featuresOf pulls the feature vector out of a record's fields.
func (p *tensorPredictor) featuresOf(fields map[string]interface{}) ([]float32, error) {
	raw, ok := fields[p.inputField]
	if !ok {
		return nil, fmt.Errorf("missing feature field %q", p.inputField)
	}
	values, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("feature field %q is not an array", p.inputField)
	}

	row := make([]float32, len(values))
	for i, v := range values {
		switch n := v.(type) {
		case float64:
			row[i] = float32(n)
		case float32:
			row[i] = n
		case int:
			row[i] = float32(n)
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return nil, fmt.Errorf("feature field %q element %d: %w", p.inputField, i, err)
			}
			row[i] = float32(f)
		default:
			return nil, fmt.Errorf("feature field %q element %d is not a number", p.inputField, i)
		}
	}
	return row, nil
}

var _ Predictor = (*tensorPredictor)(nil)
