package dataset

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/viper"
)

// MultiTask is the capability of a reader that serves several named task
// heads. Reading from such a reader requires choosing one head.
type MultiTask interface {
	Reader
	// ReadTask reads the instances of a single head.
	ReadTask(path, head string) (Source, error)
	// Heads lists the head names the reader knows about, sorted.
	Heads() []string
}

// MultiTaskReader routes reads to the sub-reader of a named head. Its config
// section looks like:
//
//	{"type": "multitask", "heads": {"ner": {"type": "json_lines"}, ...}}
type MultiTaskReader struct {
	readers map[string]Reader
}

func init() {
	Register("multitask", newMultiTaskReader)
}

func newMultiTaskReader(cfg *viper.Viper) (Reader, error) {
	heads := cfg.GetStringMap("heads")
	if len(heads) == 0 {
		return nil, fmt.Errorf("multitask dataset reader requires at least one head")
	}

	readers := make(map[string]Reader, len(heads))
	for head := range heads {
		sub := cfg.Sub("heads." + head)
		if sub == nil {
			return nil, fmt.Errorf("multitask head %q has no reader config", head)
		}
		reader, err := FromConfig(sub)
		if err != nil {
			return nil, fmt.Errorf("multitask head %q: %w", head, err)
		}
		if reader == nil {
			return nil, fmt.Errorf("multitask head %q has no reader type", head)
		}
		readers[head] = reader
	}
	return &MultiTaskReader{readers: readers}, nil
}

// Heads returns the known head names in sorted order.
func (r *MultiTaskReader) Heads() []string {
	heads := make([]string, 0, len(r.readers))
	for head := range r.readers {
		heads = append(heads, head)
	}
	sort.Strings(heads)
	return heads
}

// Read without a head is not meaningful for a multitask reader. The predict
// manager validates the head up front, so this only trips misuse.
func (r *MultiTaskReader) Read(path string) (Source, error) {
	return nil, fmt.Errorf("multitask dataset reader requires a task head")
}

// ReadTask reads instances for one head, tagging each with the head name.
func (r *MultiTaskReader) ReadTask(path, head string) (Source, error) {
	sub, ok := r.readers[head]
	if !ok {
		return nil, fmt.Errorf("unknown multitask head %q (known heads: %v)", head, r.Heads())
	}
	src, err := sub.Read(path)
	if err != nil {
		return nil, err
	}
	return &headSource{src: src, head: head}, nil
}

type headSource struct {
	src  Source
	head string
}

func (s *headSource) Next() (*Instance, error) {
	inst, err := s.src.Next()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, err
	}
	inst.Head = s.head
	return inst, nil
}

var _ MultiTask = (*MultiTaskReader)(nil)
