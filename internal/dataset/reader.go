// Package dataset provides the dataset reader abstraction: readers parse a
// path into framework-native instances that predictors can consume directly,
// bypassing the raw JSON-lines input path.
package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/viper"
)

// Instance is a single structured record produced by a dataset reader. It is
// read once, predicted once and discarded.
type Instance struct {
	// Fields holds the named values of the instance.
	Fields map[string]interface{}
	// Head names the task this instance belongs to when it was produced by a
	// multitask reader; empty otherwise.
	Head string
}

// String renders the instance with its fields in a stable order.
func (i *Instance) String() string {
	keys := make([]string, 0, len(i.Fields))
	for k := range i.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("Instance(")
	if i.Head != "" {
		fmt.Fprintf(&b, "head=%s", i.Head)
		if len(keys) > 0 {
			b.WriteString(", ")
		}
	}
	for n, k := range keys {
		if n > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", k, i.Fields[k])
	}
	b.WriteString(")")
	return b.String()
}

// Source yields instances one at a time. Sources are single-pass and
// finite but of unknown length; Next returns io.EOF when exhausted and any
// other error terminally.
type Source interface {
	Next() (*Instance, error)
}

// Reader parses a path into a stream of instances.
type Reader interface {
	Read(path string) (Source, error)
}

// Constructor builds a reader from its section of the archive configuration.
type Constructor func(cfg *viper.Viper) (Reader, error)

var registry = map[string]Constructor{}

// Register makes a reader constructor available under the given name.
// Registering a duplicate name panics, mirroring how predictors are
// registered.
func Register(name string, ctor Constructor) {
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("dataset reader %q registered twice", name))
	}
	registry[name] = ctor
}

// FromConfig constructs the reader named by the "type" key of cfg. A nil or
// empty config yields a nil reader and no error: models without a reader
// section simply have no reader.
func FromConfig(cfg *viper.Viper) (Reader, error) {
	if cfg == nil {
		return nil, nil
	}
	name := cfg.GetString("type")
	if name == "" {
		return nil, nil
	}
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown dataset reader type %q", name)
	}
	return ctor(cfg)
}

func init() {
	Register("json_lines", newJSONLinesReader)
}

// maxLineBytes caps a single dataset line. The scanner default of 64 KiB is
// far too small for long-document inputs.
const maxLineBytes = 16 * 1024 * 1024

// jsonLinesReader reads one JSON object per line, skipping blank lines.
type jsonLinesReader struct{}

func newJSONLinesReader(cfg *viper.Viper) (Reader, error) {
	return &jsonLinesReader{}, nil
}

func (r *jsonLinesReader) Read(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %s: %w", path, err)
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &jsonLinesSource{path: path, file: f, scanner: scanner}, nil
}

type jsonLinesSource struct {
	path    string
	file    *os.File
	scanner *bufio.Scanner
	line    int
}

func (s *jsonLinesSource) Next() (*Instance, error) {
	for s.scanner.Scan() {
		s.line++
		text := strings.TrimSpace(s.scanner.Text())
		if text == "" {
			continue
		}
		fields := map[string]interface{}{}
		if err := json.Unmarshal([]byte(text), &fields); err != nil {
			s.file.Close()
			return nil, fmt.Errorf("%s line %d: %w", s.path, s.line, err)
		}
		return &Instance{Fields: fields}, nil
	}
	if err := s.scanner.Err(); err != nil {
		s.file.Close()
		return nil, err
	}
	s.file.Close()
	return nil, io.EOF
}
