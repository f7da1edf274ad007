package exec

import (
	"fmt"

	"github.com/weft-ml/weft/internal/graph"
	"github.com/weft-ml/weft/internal/tensor"
)

// FeedList is an ordered feed dictionary. Unlike a plain map it
// preserves insertion order and rejects duplicate keys at insertion,
// where the mistake happened, instead of silently keeping the last
// value.
type FeedList struct {
	keys   []*graph.Tensor
	values []*tensor.TensorData
}

// NewFeedList returns an empty feed list.
func NewFeedList() *FeedList {
	return &FeedList{}
}

// Add appends a binding. A second binding for the same tensor is an
// error.
func (fl *FeedList) Add(t *graph.Tensor, td *tensor.TensorData) error {
	if t == nil {
		return fmt.Errorf("feed list: nil tensor key")
	}
	if td == nil {
		return fmt.Errorf("feed list: nil value for %q", t.Name())
	}
	for _, k := range fl.keys {
		if k == t {
			return fmt.Errorf("feed list: duplicate binding for %q", t.Name())
		}
	}
	fl.keys = append(fl.keys, t)
	fl.values = append(fl.values, td)
	return nil
}

// Len returns the number of bindings.
func (fl *FeedList) Len() int {
	return len(fl.keys)
}

// Map returns the bindings as a feed dictionary.
func (fl *FeedList) Map() map[*graph.Tensor]*tensor.TensorData {
	out := make(map[*graph.Tensor]*tensor.TensorData, len(fl.keys))
	for i, k := range fl.keys {
		out[k] = fl.values[i]
	}
	return out
}

// Types returns the bindings as a shaped-type dictionary, for Compile
// and Specialize.
func (fl *FeedList) Types() map[*graph.Tensor]tensor.ShapedType {
	out := make(map[*graph.Tensor]tensor.ShapedType, len(fl.keys))
	for i, k := range fl.keys {
		out[k] = fl.values[i].ShapedType()
	}
	return out
}
