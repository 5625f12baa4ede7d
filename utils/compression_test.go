package utils

import (
	"strings"
	"testing"
)

func TestCompressTextSmallPayloadStaysPlain(t *testing.T) {
	data, algo, err := CompressText("short snapshot")
	if err != nil {
		t.Fatalf("CompressText: %v", err)
	}
	if algo != CompressionNone {
		t.Fatalf("algo = %s, want none", algo)
	}
	if string(data) != "short snapshot" {
		t.Fatal("small payload should be stored verbatim")
	}
}

func TestCompressTextRoundTrip(t *testing.T) {
	text := strings.Repeat("the context window holds retrieved chunks. ", 50)
	data, algo, err := CompressText(text)
	if err != nil {
		t.Fatalf("CompressText: %v", err)
	}
	if algo != CompressionGzip {
		t.Fatalf("algo = %s, want gzip", algo)
	}
	if len(data) >= len(text) {
		t.Fatalf("compressed %d bytes >= original %d", len(data), len(text))
	}

	back, err := DecompressText(data, algo)
	if err != nil {
		t.Fatalf("DecompressText: %v", err)
	}
	if back != text {
		t.Fatal("round trip changed the text")
	}
}

func TestDecompressDataRejectsUnknownAlgorithm(t *testing.T) {
	if _, err := DecompressData([]byte("x"), CompressionAlgorithm("brotli")); err == nil {
		t.Fatal("expected error for unknown algorithm")
	}
}

func TestZlibRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat("abc123", 200))
	compressed, err := CompressData(payload, CompressionZlib)
	if err != nil {
		t.Fatalf("CompressData: %v", err)
	}
	back, err := DecompressData(compressed, CompressionZlib)
	if err != nil {
		t.Fatalf("DecompressData: %v", err)
	}
	if string(back) != string(payload) {
		t.Fatal("zlib round trip changed the payload")
	}
}
