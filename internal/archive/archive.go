// Package archive loads packaged trained models. An archive is a gzipped
// tarball holding config.json plus the model weights; an already-extracted
// directory is accepted as well.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/viper"
)

const (
	configName     = "config.json"
	defaultWeights = "model.onnx"
)

// Archive is a loaded model archive: its parsed configuration, the directory
// its contents live in, and the resolved weights path.
type Archive struct {
	Config      *viper.Viper
	Dir         string
	WeightsPath string

	extracted bool
}

// Close removes the temporary extraction directory. An archive opened from an
// already-extracted directory leaves it untouched.
func (a *Archive) Close() error {
	if !a.extracted {
		return nil
	}
	a.extracted = false
	return os.RemoveAll(a.Dir)
}

// Load opens the archive at path. weightsFile, when non-empty, replaces the
// weights named by the archive configuration. overrides is an optional JSON
// object applied on top of the configuration; nested objects and dotted keys
// both address nested settings.
func Load(path, weightsFile, overrides string) (*Archive, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive %s: %w", path, err)
	}

	dir := path
	if !info.IsDir() {
		dir, err = extract(path)
		if err != nil {
			return nil, err
		}
	}

	cfg := viper.New()
	cfg.SetConfigFile(filepath.Join(dir, configName))
	cfg.SetConfigType("json")
	if err := cfg.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read archive config: %w", err)
	}

	if err := applyOverrides(cfg, overrides); err != nil {
		return nil, err
	}

	weightsPath := weightsFile
	if weightsPath == "" {
		name := cfg.GetString("weights")
		if name == "" {
			name = defaultWeights
		}
		weightsPath = filepath.Join(dir, name)
	}

	return &Archive{Config: cfg, Dir: dir, WeightsPath: weightsPath, extracted: !info.IsDir()}, nil
}

// extract unpacks a .tar.gz archive into a fresh temp directory and returns
// the directory path.
func extract(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("%s is not a gzipped archive: %w", path, err)
	}
	defer gz.Close()

	dir, err := os.MkdirTemp("", "allennlp-archive-*")
	if err != nil {
		return "", fmt.Errorf("failed to create extraction dir: %w", err)
	}

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read archive %s: %w", path, err)
		}

		name := filepath.Clean(hdr.Name)
		if name == "." || strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			continue
		}
		target := filepath.Join(dir, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return "", err
			}
			out, err := os.Create(target)
			if err != nil {
				return "", err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return "", fmt.Errorf("failed to extract %s: %w", hdr.Name, err)
			}
			if err := out.Close(); err != nil {
				return "", err
			}
		}
	}
	return dir, nil
}

// applyOverrides deep-merges a JSON object of settings into cfg. Keys may be
// dotted ("engine.output_dim") or nested objects; both forms address the
// same settings. Merging into the config layer (rather than viper's override
// layer) keeps untouched sibling keys visible through cfg.Sub.
func applyOverrides(cfg *viper.Viper, overrides string) error {
	overrides = strings.TrimSpace(overrides)
	if overrides == "" {
		return nil
	}

	parsed := map[string]interface{}{}
	if err := json.Unmarshal([]byte(overrides), &parsed); err != nil {
		return fmt.Errorf("failed to parse overrides: %w", err)
	}
	if err := cfg.MergeConfigMap(expandKeys(parsed)); err != nil {
		return fmt.Errorf("failed to apply overrides: %w", err)
	}
	return nil
}

// expandKeys rewrites dotted keys into nested maps, so that
// {"engine.output_dim": 4} and {"engine": {"output_dim": 4}} merge the same
// way.
func expandKeys(value map[string]interface{}) map[string]interface{} {
	expanded := map[string]interface{}{}
	for key, val := range value {
		if nested, ok := val.(map[string]interface{}); ok {
			val = expandKeys(nested)
		}

		parts := strings.Split(key, ".")
		node := expanded
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]interface{})
			if !ok {
				child = map[string]interface{}{}
				node[part] = child
			}
			node = child
		}
		leaf := parts[len(parts)-1]
		if existing, ok := node[leaf].(map[string]interface{}); ok {
			if incoming, ok := val.(map[string]interface{}); ok {
				for k, v := range incoming {
					existing[k] = v
				}
				continue
			}
		}
		node[leaf] = val
	}
	return expanded
}
