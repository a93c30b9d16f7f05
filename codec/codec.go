package codec

// Codec encodes/decodes values V to []byte for the persistence medium and
// the cross-context broadcast payload. Both sides of a broadcast channel
// must agree on the codec.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
