package blob

import (
	"bytes"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("time-series payload "), 1000)
	packed := Compress(payload)
	if len(packed) >= len(payload) {
		t.Errorf("repetitive payload grew from %d to %d bytes", len(payload), len(packed))
	}
	got, err := Decompress(packed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("round trip altered the payload")
	}
}

func TestDecompress_Garbage(t *testing.T) {
	if _, err := Decompress([]byte("not a zstd stream")); err == nil {
		t.Error("garbage input accepted")
	}
}
