package codec

import "encoding/json"

// JSON is the default session codec. The zero value is ready to use.
// Session and User carry json tags, so the stored entry and the broadcast
// payload stay readable when inspected on a shared medium.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
