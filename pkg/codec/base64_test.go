package codec_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/filebus-org/go-filebus/pkg/codec"
)

func TestRoundTrip(t *testing.T) {
	inputs := [][]byte{
		{},
		[]byte("a"),
		[]byte("ab"),
		[]byte("abc"),
		[]byte("abcd"),
		[]byte("hello world"),
		{0x00},
		{0x00, 0x00, 0x00},
		[]byte("with\x00embedded\x00nuls"),
		{0xFF, 0xFE, 0xFD, 0x01, 0x02},
	}

	for _, in := range inputs {
		enc := codec.Encode(in)
		if len(enc) != codec.EncodedLen(len(in)) {
			t.Errorf("Encode(%q): length %d, want %d", in, len(enc), codec.EncodedLen(len(in)))
		}
		if len(enc)%4 != 0 {
			t.Errorf("Encode(%q): length %d not a multiple of 4", in, len(enc))
		}
		dec, err := codec.Decode(enc)
		if err != nil {
			t.Fatalf("Decode(Encode(%q)) failed: %v", in, err)
		}
		if !bytes.Equal(dec, in) {
			t.Errorf("round trip mismatch: got %q, want %q", dec, in)
		}
	}
}

func TestRoundTripAllByteValues(t *testing.T) {
	in := make([]byte, 256)
	for i := range in {
		in[i] = byte(i)
	}
	dec, err := codec.Decode(codec.Encode(in))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(dec, in) {
		t.Fatal("round trip of all byte values mismatched")
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"bad length", "abcde"},
		{"invalid character", "ab!d"},
		{"padding in non-final group", "ab==abcd"},
		{"padding in first position", "=abc"},
		{"padding in second position", "a=bc"},
		{"data after padding", "ab=c"},
		{"triple padding", "a==="},
		{"nul byte", "ab\x00d"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := codec.Decode(tc.input)
			if err == nil {
				t.Fatalf("Decode(%q) = %q, want error", tc.input, out)
			}
			if !errors.Is(err, codec.ErrInvalid) {
				t.Errorf("Decode(%q) error %v does not wrap ErrInvalid", tc.input, err)
			}
		})
	}
}

func TestDecodeStripsTrailingLineNoise(t *testing.T) {
	enc := codec.Encode([]byte("payload"))
	dec, err := codec.Decode(enc + "\r\n")
	if err != nil {
		t.Fatalf("Decode with trailing CRLF failed: %v", err)
	}
	if string(dec) != "payload" {
		t.Errorf("got %q, want %q", dec, "payload")
	}
}

func TestDecodeEmpty(t *testing.T) {
	dec, err := codec.Decode("")
	if err != nil {
		t.Fatalf("Decode(\"\") failed: %v", err)
	}
	if len(dec) != 0 {
		t.Errorf("Decode(\"\") = %q, want empty", dec)
	}
}
