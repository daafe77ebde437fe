// Package predictor maps input records to prediction results. A predictor
// owns an inference engine, knows how to turn a JSON record or a dataset
// instance into model features, and serializes results back to JSON lines.
package predictor

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/Dbhasin1/allennlp/internal/archive"
	"github.com/Dbhasin1/allennlp/internal/dataset"
)

// Record is an untyped key-value JSON object: one input record on the way
// in, one prediction result on the way out.
type Record map[string]interface{}

// Predictor maps input records to prediction results. Single-record and
// batch operations exist separately because they may have different overhead
// in the underlying engine; both preserve input order and return exactly one
// result per input.
type Predictor interface {
	// LoadLine parses one line of raw input into a record.
	LoadLine(line string) (Record, error)
	// DumpLine serializes one prediction result to its output line form,
	// without a trailing newline.
	DumpLine(output Record) string

	// PredictJSON predicts a single JSON record.
	PredictJSON(input Record) (Record, error)
	// PredictBatchJSON predicts a batch of JSON records.
	PredictBatchJSON(inputs []Record) ([]Record, error)

	// PredictInstance predicts a single dataset instance.
	PredictInstance(inst *dataset.Instance) (Record, error)
	// PredictBatchInstance predicts a batch of dataset instances.
	PredictBatchInstance(insts []*dataset.Instance) ([]Record, error)

	// DatasetReader returns the reader the predictor was constructed with,
	// or nil when the model has none.
	DatasetReader() dataset.Reader

	// Close releases the underlying engine.
	Close() error
}

// Constructor builds a named predictor from the archive configuration, a
// ready engine, the model's dataset reader (possibly nil) and any extra
// arguments passed on the command line.
type Constructor func(cfg *viper.Viper, eng Engine, reader dataset.Reader, extraArgs map[string]interface{}) (Predictor, error)

var registry = map[string]Constructor{}

// Register makes a predictor constructor available under the given name.
func Register(name string, ctor Constructor) {
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("predictor %q registered twice", name))
	}
	registry[name] = ctor
}

// FromArchive builds the predictor for a loaded archive. name selects a
// registered predictor explicitly; empty means the archive's configured
// default. readerChoice is "validation" or "train" and picks which of the
// model's dataset reader configs to instantiate, with validation falling
// back to the train reader when the model has no separate one.
func FromArchive(a *archive.Archive, name, readerChoice string, cudaDevice int, extraArgs map[string]interface{}) (Predictor, error) {
	reader, err := readerFromArchive(a, readerChoice)
	if err != nil {
		return nil, err
	}

	eng, err := engineFromConfig(a.Config.Sub("engine"), a.WeightsPath, cudaDevice)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = a.Config.GetString("predictor")
	}
	if name == "" {
		name = "tensor"
	}
	ctor, ok := registry[name]
	if !ok {
		eng.Close()
		return nil, fmt.Errorf("unknown predictor %q", name)
	}

	p, err := ctor(a.Config, eng, reader, extraArgs)
	if err != nil {
		eng.Close()
		return nil, err
	}
	return p, nil
}

func readerFromArchive(a *archive.Archive, choice string) (dataset.Reader, error) {
	var cfg *viper.Viper
	switch choice {
	case "validation", "":
		cfg = a.Config.Sub("validation_dataset_reader")
		if cfg == nil {
			cfg = a.Config.Sub("dataset_reader")
		}
	case "train":
		cfg = a.Config.Sub("dataset_reader")
	default:
		return nil, fmt.Errorf("unknown dataset reader choice %q", choice)
	}
	return dataset.FromConfig(cfg)
}
