package vector

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestPointID(t *testing.T) {
	got := PointID("d94d4d3e0bd5f6b1b6a26a4e6a3c9f42", 7)
	want := "d94d4d3e0bd5f6b1b6a26a4e6a3c9f42_chunk_7"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestEffectiveBatchSize(t *testing.T) {
	cases := []struct {
		configured int
		want       int
	}{
		{0, DefaultBatchSize},
		{-1, DefaultBatchSize},
		{25, 25},
		{500, 500},
	}
	for _, tc := range cases {
		cfg := Config{BatchSize: tc.configured}
		if got := cfg.EffectiveBatchSize(); got != tc.want {
			t.Errorf("batch size %d: expected %d, got %d", tc.configured, tc.want, got)
		}
	}
}

func TestTruncateForPayload_ShortTextUnchanged(t *testing.T) {
	text := "grace period of thirty days"
	if got := TruncateForPayload(text); got != text {
		t.Errorf("expected unchanged text, got %q", got)
	}
}

func TestTruncateForPayload_CutsAtLimit(t *testing.T) {
	text := strings.Repeat("a", 1500)
	got := TruncateForPayload(text)
	if len(got) != MetadataTextLimit {
		t.Errorf("expected %d bytes, got %d", MetadataTextLimit, len(got))
	}
}

func TestTruncateForPayload_RespectsRuneBoundary(t *testing.T) {
	// 999 ASCII bytes then a multi-byte rune straddling the limit
	text := strings.Repeat("a", 999) + "é" + strings.Repeat("b", 100)
	got := TruncateForPayload(text)

	if !utf8.ValidString(got) {
		t.Fatal("truncation split a UTF-8 sequence")
	}
	if len(got) > MetadataTextLimit {
		t.Errorf("expected at most %d bytes, got %d", MetadataTextLimit, len(got))
	}
	if got != strings.Repeat("a", 999) {
		t.Errorf("expected cut before the straddling rune, got %d bytes", len(got))
	}
}

func TestSanitizeUTF8_ValidUnchanged(t *testing.T) {
	text := "policy covers maternité with a €500 deductible (§4.2)"
	if got := SanitizeUTF8(text); got != text {
		t.Errorf("expected unchanged text, got %q", got)
	}
}

func TestSanitizeUTF8_DropsInvalidBytes(t *testing.T) {
	text := "abc\xffdef"
	got := SanitizeUTF8(text)
	if got != "abcdef" {
		t.Errorf("expected invalid byte dropped, got %q", got)
	}
	if !utf8.ValidString(got) {
		t.Error("output still invalid")
	}
}

func TestSanitizeUTF8_DropsNUL(t *testing.T) {
	text := "abc\x00def"
	if got := SanitizeUTF8(text); got != "abcdef" {
		t.Errorf("expected NUL dropped, got %q", got)
	}
}

func TestIndexWriteError(t *testing.T) {
	inner := errors.New("connection reset")
	err := &IndexWriteError{Batch: 3, Err: inner}

	if !strings.Contains(err.Error(), "batch 3") {
		t.Errorf("expected batch number in message, got %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("expected Unwrap to reach the inner error")
	}
}

func TestDimensionMismatchError(t *testing.T) {
	err := &DimensionMismatchError{Got: 384, Want: 1536}
	if !strings.Contains(err.Error(), "384") || !strings.Contains(err.Error(), "1536") {
		t.Errorf("expected both dimensions in message, got %q", err.Error())
	}
}
