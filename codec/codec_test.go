package codec

import (
	"strings"
	"testing"
)

type payload struct {
	Token string `json:"token" msgpack:"token" cbor:"token"`
	Email string `json:"email" msgpack:"email" cbor:"email"`
}

func TestLimitRejectsOversizedDecode(t *testing.T) {
	inner := JSON[payload]{}
	big, err := inner.Encode(payload{Token: strings.Repeat("x", 256)})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	c := Limit[payload]{Inner: inner, MaxDecode: 64}
	if _, err := c.Decode(big); err == nil {
		t.Fatal("oversized payload should fail before reaching the inner codec")
	}

	small, _ := inner.Encode(payload{Token: "t"})
	if _, err := c.Decode(small); err != nil {
		t.Fatalf("in-bounds payload rejected: %v", err)
	}
}

func TestLimitZeroDisablesCheck(t *testing.T) {
	inner := JSON[payload]{}
	big, _ := inner.Encode(payload{Token: strings.Repeat("x", 4096)})

	c := Limit[payload]{Inner: inner}
	if _, err := c.Decode(big); err != nil {
		t.Fatalf("MaxDecode=0 should pass everything through: %v", err)
	}
}

func TestDecodeFailureReturnsZeroValue(t *testing.T) {
	for name, dec := range map[string]func([]byte) (payload, error){
		"json":    JSON[payload]{}.Decode,
		"msgpack": Msgpack[payload]{}.Decode,
		"cbor":    MustCBOR[payload](false).Decode,
	} {
		v, err := dec([]byte{0xff, 0x00, 0x01})
		if err == nil {
			t.Fatalf("%s: garbage should not decode", name)
		}
		if v != (payload{}) {
			t.Fatalf("%s: failed decode leaked a partial value: %+v", name, v)
		}
	}
}
