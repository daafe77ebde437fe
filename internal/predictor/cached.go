package predictor

import (
	"crypto/sha256"
	"encoding/hex"
)

// Store is the key-value backend of a caching predictor. Get reports whether
// the key was present.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// Cached wraps a predictor and memoizes JSON predictions in a Store. Cache
// problems never fail a prediction; the wrapped predictor is simply asked
// again. Instance predictions pass through uncached: instances have no
// stable serialized identity.
type Cached struct {
	Predictor
	store Store

	// Hits and Misses count cache outcomes across both JSON operations.
	Hits   int
	Misses int
}

// NewCached wraps p with a prediction cache backed by store.
func NewCached(p Predictor, store Store) *Cached {
	return &Cached{Predictor: p, store: store}
}

func (c *Cached) PredictJSON(input Record) (Record, error) {
	results, err := c.PredictBatchJSON([]Record{input})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// PredictBatchJSON serves cached records from the store and predicts the
// misses as one sub-batch, reassembling everything in input order.
func (c *Cached) PredictBatchJSON(inputs []Record) ([]Record, error) {
	results := make([]Record, len(inputs))
	keys := make([]string, len(inputs))

	var missed []Record
	var missedAt []int
	for i, input := range inputs {
		keys[i] = c.keyOf(input)
		if value, ok, err := c.store.Get(keys[i]); err == nil && ok {
			if cached, err := c.Predictor.LoadLine(value); err == nil {
				c.Hits++
				results[i] = cached
				continue
			}
		}
		c.Misses++
		missed = append(missed, input)
		missedAt = append(missedAt, i)
	}

	if len(missed) > 0 {
		var fresh []Record
		var err error
		if len(missed) == 1 {
			var one Record
			one, err = c.Predictor.PredictJSON(missed[0])
			fresh = []Record{one}
		} else {
			fresh, err = c.Predictor.PredictBatchJSON(missed)
		}
		if err != nil {
			return nil, err
		}
		for n, i := range missedAt {
			results[i] = fresh[n]
			// Best effort: a failed write just means a miss next time.
			_ = c.store.Set(keys[i], c.Predictor.DumpLine(fresh[n]))
		}
	}
	return results, nil
}

func (c *Cached) keyOf(input Record) string {
	sum := sha256.Sum256([]byte(c.Predictor.DumpLine(input)))
	return hex.EncodeToString(sum[:])
}
