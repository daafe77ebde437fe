// Package predict drives end-to-end batch prediction: it owns the input
// source, the output sink, the batching policy and a predictor handle.
package predict

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Dbhasin1/allennlp/internal/config"
	"github.com/Dbhasin1/allennlp/internal/dataset"
	"github.com/Dbhasin1/allennlp/internal/fileutil"
	"github.com/Dbhasin1/allennlp/internal/metrics"
	"github.com/Dbhasin1/allennlp/internal/predictor"
	"github.com/Dbhasin1/allennlp/internal/tracing"
)

// ErrConfiguration marks incompatible flag combinations and missing
// collaborators. These errors are raised before any record is read and are
// never retried.
var ErrConfiguration = errors.New("configuration error")

// Manager reads input records, groups them into fixed-size order-preserving
// batches, dispatches them to the predictor and emits results to the console
// and/or an output file.
type Manager struct {
	predictor predictor.Predictor
	inputFile string

	batchSize      int
	printToConsole bool
	compression    string

	useReader     bool
	reader        dataset.Reader
	multitaskHead string

	output       io.WriteCloser
	outputClosed bool

	// console and stdin default to the process streams; tests swap them.
	console io.Writer
	stdin   io.Reader

	log zerolog.Logger
}

// New validates the flag combination and opens the output sink. Validation
// failures happen here, before any record is read.
func New(p predictor.Predictor, cfg *config.Config, log zerolog.Logger) (*Manager, error) {
	m := &Manager{
		predictor:      p,
		inputFile:      cfg.InputFile,
		batchSize:      cfg.BatchSize,
		printToConsole: !cfg.Silent,
		compression:    cfg.CompressionType,
		useReader:      cfg.UseDatasetReader,
		multitaskHead:  cfg.MultitaskHead,
		console:        os.Stdout,
		stdin:          os.Stdin,
		log:            log,
	}
	if m.batchSize < 1 {
		m.batchSize = 1
	}
	if m.useReader {
		m.reader = p.DatasetReader()
	}

	if m.multitaskHead != "" {
		if m.reader == nil {
			return nil, fmt.Errorf("%w: you must use a dataset reader when using --multitask-head", ErrConfiguration)
		}
		if _, ok := m.reader.(dataset.MultiTask); !ok {
			return nil, fmt.Errorf("%w: --multitask-head only works with a multitask dataset reader", ErrConfiguration)
		}
	}
	if _, ok := m.reader.(dataset.MultiTask); ok && m.multitaskHead == "" {
		return nil, fmt.Errorf("%w: you must specify --multitask-head when using a multitask dataset reader", ErrConfiguration)
	}

	if cfg.OutputFile != "" {
		out, err := os.Create(cfg.OutputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open output file %s: %w", cfg.OutputFile, err)
		}
		m.output = out
	}
	return m, nil
}

// Run predicts every input record in order. The output sink is closed
// exactly once on the way out, even when no records were processed.
func (m *Manager) Run(ctx context.Context) (err error) {
	defer func() {
		if cerr := m.closeOutput(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	ctx, span := tracing.Tracer().Start(ctx, "predict.run")
	defer span.End()

	if m.useReader {
		return m.runInstances(ctx)
	}
	return m.runJSON(ctx)
}

func (m *Manager) runJSON(ctx context.Context) error {
	src, err := m.openJSONSource()
	if err != nil {
		if errors.Is(err, fileutil.ErrUnknownCompression) {
			m.reportCompressionFailure(err)
			return nil
		}
		return err
	}
	defer src.Close()

	index := 0
	for {
		batch, readErr := nextBatch(src, m.batchSize)
		if len(batch) > 0 {
			results, err := m.predictJSON(ctx, batch)
			if err != nil {
				return err
			}
			for i, record := range batch {
				input, merr := json.Marshal(record)
				if merr != nil {
					m.log.Warn().Err(merr).Int("record", index).Msg("could not render input record")
					input = []byte("{}")
				}
				m.emit(index, string(input), m.predictor.DumpLine(results[i]))
				index++
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			// Corrupt compressed data only shows up once the stream is read,
			// well after the magic bytes checked out at open time.
			if errors.Is(readErr, fileutil.ErrUnknownCompression) {
				m.reportCompressionFailure(readErr)
				return nil
			}
			return readErr
		}
	}
	m.log.Info().Int("records", index).Msg("prediction complete")
	return nil
}

func (m *Manager) runInstances(ctx context.Context) error {
	if m.inputFile == "-" {
		return fmt.Errorf("%w: stdin is not an option when using a dataset reader", ErrConfiguration)
	}
	if m.reader == nil {
		return fmt.Errorf("%w: to generate instances directly, pass a dataset reader", ErrConfiguration)
	}

	var src dataset.Source
	var err error
	if mt, ok := m.reader.(dataset.MultiTask); ok {
		// The constructor guarantees the head is set here.
		src, err = mt.ReadTask(m.inputFile, m.multitaskHead)
	} else {
		src, err = m.reader.Read(m.inputFile)
	}
	if err != nil {
		return err
	}

	index := 0
	for {
		batch, readErr := nextInstanceBatch(src, m.batchSize)
		if len(batch) > 0 {
			results, err := m.predictInstances(ctx, batch)
			if err != nil {
				return err
			}
			for i, inst := range batch {
				m.emit(index, inst.String(), m.predictor.DumpLine(results[i]))
				index++
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}
	m.log.Info().Int("records", index).Msg("prediction complete")
	return nil
}

// predictJSON dispatches one batch, using the single-record operation for a
// batch of one: the two predictor operations may behave differently in the
// underlying engine.
func (m *Manager) predictJSON(ctx context.Context, batch []predictor.Record) ([]predictor.Record, error) {
	_, span := m.batchSpan(ctx, len(batch))
	defer span.End()

	start := time.Now()
	var results []predictor.Record
	var err error
	if len(batch) == 1 {
		var one predictor.Record
		one, err = m.predictor.PredictJSON(batch[0])
		results = []predictor.Record{one}
	} else {
		results, err = m.predictor.PredictBatchJSON(batch)
	}
	metrics.RecordPredictLatency(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if len(results) != len(batch) {
		return nil, fmt.Errorf("predictor returned %d results for %d records", len(results), len(batch))
	}
	metrics.RecordBatch(len(batch))
	return results, nil
}

func (m *Manager) predictInstances(ctx context.Context, batch []*dataset.Instance) ([]predictor.Record, error) {
	_, span := m.batchSpan(ctx, len(batch))
	defer span.End()

	start := time.Now()
	var results []predictor.Record
	var err error
	if len(batch) == 1 {
		var one predictor.Record
		one, err = m.predictor.PredictInstance(batch[0])
		results = []predictor.Record{one}
	} else {
		results, err = m.predictor.PredictBatchInstance(batch)
	}
	metrics.RecordPredictLatency(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if len(results) != len(batch) {
		return nil, fmt.Errorf("predictor returned %d results for %d records", len(results), len(batch))
	}
	metrics.RecordBatch(len(batch))
	return results, nil
}

func (m *Manager) batchSpan(ctx context.Context, size int) (context.Context, trace.Span) {
	return tracing.Tracer().Start(ctx, "predict.batch",
		trace.WithAttributes(attribute.Int("batch.size", size)))
}

// reportCompressionFailure tells the user the input could not be read as the
// detected or requested compression format. The run stops without producing
// further records but does not fail the process.
func (m *Manager) reportCompressionFailure(err error) {
	if m.compression == "" {
		fmt.Fprintln(m.console, "Automatic detection failed, please specify the compression type argument.")
	} else {
		fmt.Fprintln(m.console, "please specify the correct compression type argument.")
	}
	m.log.Warn().Err(err).Msg("could not read input")
}

// emit prints one (record, result) pair to the console and/or appends the
// result line to the output sink.
func (m *Manager) emit(index int, input, prediction string) {
	if m.printToConsole {
		fmt.Fprintf(m.console, "input %d: %s\n", index, input)
		fmt.Fprintf(m.console, "prediction: %s\n", prediction)
	}
	if m.output != nil {
		fmt.Fprintln(m.output, prediction)
	}
}

func (m *Manager) closeOutput() error {
	if m.output == nil || m.outputClosed {
		return nil
	}
	m.outputClosed = true
	if err := m.output.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	return nil
}
