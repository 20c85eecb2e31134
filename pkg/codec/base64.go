// Package codec implements the binary-safe text encoding used for channel
// records: standard-alphabet base64 with strict validation on decode.
//
// Decode is strict by contract. Any input that is not the exact output of
// Encode for some byte sequence is rejected with an error; there is no
// best-effort partial result. Garbage tolerated here would be re-read by
// every other participant of the channel.
package codec

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is wrapped by every Decode failure.
var ErrInvalid = errors.New("invalid base64 input")

const encodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

const (
	padMarker    = 64   // decode value for '='
	invalidEntry = 0xFF // sentinel: distinct from every data value and the pad marker
)

// decodeTable maps each byte to its 6-bit value, padMarker for '=', and
// invalidEntry otherwise. Fixed at package load, never written again,
// so concurrent decoders share it without any initialization ordering.
// The sentinel keeps "decodes to zero" ('A') distinct from "invalid".
var decodeTable = func() (t [256]byte) {
	for i := range t {
		t[i] = invalidEntry
	}
	for i := 0; i < len(encodeAlphabet); i++ {
		t[encodeAlphabet[i]] = byte(i)
	}
	t['='] = padMarker
	return t
}()

// Encode returns the base64 text for src. The result length is always
// ceil(len(src)/3)*4, padded with '=' to a multiple of four.
func Encode(src []byte) string {
	var b strings.Builder
	b.Grow((len(src) + 2) / 3 * 4)

	i := 0
	for ; i+2 < len(src); i += 3 {
		triple := uint32(src[i])<<16 | uint32(src[i+1])<<8 | uint32(src[i+2])
		b.WriteByte(encodeAlphabet[triple>>18&0x3F])
		b.WriteByte(encodeAlphabet[triple>>12&0x3F])
		b.WriteByte(encodeAlphabet[triple>>6&0x3F])
		b.WriteByte(encodeAlphabet[triple&0x3F])
	}

	if i < len(src) {
		triple := uint32(src[i]) << 16
		twoBytes := i+1 < len(src)
		if twoBytes {
			triple |= uint32(src[i+1]) << 8
		}
		b.WriteByte(encodeAlphabet[triple>>18&0x3F])
		b.WriteByte(encodeAlphabet[triple>>12&0x3F])
		if twoBytes {
			b.WriteByte(encodeAlphabet[triple>>6&0x3F])
		} else {
			b.WriteByte('=')
		}
		b.WriteByte('=')
	}

	return b.String()
}

// Decode reverses Encode. Trailing newlines, carriage returns and spaces
// are stripped first, since inputs arrive as file lines. After stripping,
// the input must be canonical base64: length a multiple of four, only
// alphabet characters, padding confined to the last one or two positions
// of the final group.
func Decode(s string) ([]byte, error) {
	s = strings.TrimRight(s, "\n\r ")
	if len(s) == 0 {
		return []byte{}, nil
	}
	if len(s)%4 != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of 4", ErrInvalid, len(s))
	}

	for i := 0; i < len(s); i++ {
		v := decodeTable[s[i]]
		if v == invalidEntry {
			return nil, fmt.Errorf("%w: character %q at position %d is outside the alphabet", ErrInvalid, s[i], i)
		}
		if v != padMarker {
			continue
		}
		// Padding rules: '=' only in the final group, never in the
		// first two positions, and nothing but '=' may follow it.
		blockStart := i / 4 * 4
		if blockStart+4 != len(s) {
			return nil, fmt.Errorf("%w: padding at position %d outside the final group", ErrInvalid, i)
		}
		if i-blockStart < 2 {
			return nil, fmt.Errorf("%w: padding at position %d in the first two positions of a group", ErrInvalid, i)
		}
		for k := i + 1; k < len(s); k++ {
			if s[k] != '=' {
				return nil, fmt.Errorf("%w: character %q at position %d follows padding", ErrInvalid, s[k], k)
			}
		}
		break
	}

	outLen := len(s) / 4 * 3
	if s[len(s)-1] == '=' {
		outLen--
	}
	if s[len(s)-2] == '=' {
		outLen--
	}

	out := make([]byte, 0, outLen)
	for i := 0; i < len(s); i += 4 {
		triple := uint32(decodeTable[s[i]]&0x3F)<<18 |
			uint32(decodeTable[s[i+1]]&0x3F)<<12 |
			uint32(decodeTable[s[i+2]]&0x3F)<<6 |
			uint32(decodeTable[s[i+3]]&0x3F)
		out = append(out, byte(triple>>16))
		if len(out) < outLen {
			out = append(out, byte(triple>>8))
		}
		if len(out) < outLen {
			out = append(out, byte(triple))
		}
	}

	return out[:outLen], nil
}

// EncodedLen reports the encoded size of n input bytes.
func EncodedLen(n int) int {
	return (n + 2) / 3 * 4
}
