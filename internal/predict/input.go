package predict

import (
	"bufio"
	"io"
	"strings"

	"github.com/Dbhasin1/allennlp/internal/dataset"
	"github.com/Dbhasin1/allennlp/internal/fileutil"
	"github.com/Dbhasin1/allennlp/internal/predictor"
)

// jsonSource lazily yields records from line-delimited JSON input. Sources
// are single-pass; Next returns io.EOF at the end of the stream.
type jsonSource interface {
	Next() (predictor.Record, error)
	Close() error
}

// maxLineBytes caps a single input line. The scanner default of 64 KiB is far
// too small for long-document inputs.
const maxLineBytes = 16 * 1024 * 1024

func newLineScanner(r io.Reader) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return s
}

// openJSONSource picks the raw-JSON input: stdin for "-", otherwise a local
// or downloaded file, decompressed as needed.
func (m *Manager) openJSONSource() (jsonSource, error) {
	if m.inputFile == "-" {
		return &lineSource{
			scanner: newLineScanner(m.stdin),
			load:    m.predictor.LoadLine,
			close:   func() error { return nil },
		}, nil
	}

	path, err := fileutil.CachedPath(m.inputFile)
	if err != nil {
		return nil, err
	}
	rc, err := fileutil.OpenCompressed(path, m.compression)
	if err != nil {
		return nil, err
	}
	return &lineSource{
		scanner: newLineScanner(rc),
		load:    m.predictor.LoadLine,
		close:   rc.Close,
	}, nil
}

// lineSource yields one record per non-blank line.
type lineSource struct {
	scanner *bufio.Scanner
	load    func(string) (predictor.Record, error)
	close   func() error
}

func (s *lineSource) Next() (predictor.Record, error) {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		return s.load(line)
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (s *lineSource) Close() error {
	return s.close()
}

// nextBatch pulls up to size records from src. The final batch of a stream
// may be smaller; record order is preserved. The returned error is io.EOF
// exactly when the source is exhausted.
func nextBatch(src jsonSource, size int) ([]predictor.Record, error) {
	batch := make([]predictor.Record, 0, size)
	for len(batch) < size {
		record, err := src.Next()
		if err != nil {
			return batch, err
		}
		batch = append(batch, record)
	}
	return batch, nil
}

// nextInstanceBatch is nextBatch for dataset reader sources.
func nextInstanceBatch(src dataset.Source, size int) ([]*dataset.Instance, error) {
	batch := make([]*dataset.Instance, 0, size)
	for len(batch) < size {
		inst, err := src.Next()
		if err != nil {
			return batch, err
		}
		batch = append(batch, inst)
	}
	return batch, nil
}
