package pdu

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

// GSM 7-bit default alphabet, 3GPP TS 23.038. The septet value of a
// character is its index in this table. Index 27 (0x1B) is the escape
// to the extension table.
var gsm7Basic = []rune(
	"@£$¥èéùìòÇ\nØø\rÅåΔ_ΦΓΛΩΠΨΣΘΞ\x1bÆæßÉ !\"#¤%&'()*+,-./0123456789:;<=>?" +
		"¡ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÑÜ§¿abcdefghijklmnopqrstuvwxyzäöñüà")

// Extension table characters, reached via the 0x1B escape septet.
var gsm7Extended = map[rune]byte{
	'\f': 0x0A,
	'^':  0x14,
	'{':  0x28,
	'}':  0x29,
	'\\': 0x2F,
	'[':  0x3C,
	'~':  0x3D,
	']':  0x3E,
	'|':  0x40,
	'€':  0x65,
}

var (
	gsm7Index       = make(map[rune]byte, len(gsm7Basic))
	gsm7ExtendedRev = make(map[byte]rune, len(gsm7Extended))
)

func init() {
	for i, r := range gsm7Basic {
		gsm7Index[r] = byte(i)
	}
	for r, v := range gsm7Extended {
		gsm7ExtendedRev[v] = r
	}
}

const escape = 0x1B

// EncodeGSM7 encodes text using the GSM 7-bit default alphabet and packs
// the septets LSB-first into octets. It returns the packed octets and the
// septet count, which is what the TP-UDL field carries for 7-bit data
// (extension-table characters occupy two septets).
func EncodeGSM7(text string) ([]byte, int, error) {
	septets := make([]byte, 0, len(text))

	for _, r := range text {
		if v, ok := gsm7Index[r]; ok {
			septets = append(septets, v)
		} else if v, ok := gsm7Extended[r]; ok {
			septets = append(septets, escape, v)
		} else {
			return nil, 0, fmt.Errorf("character %q not in GSM 7-bit alphabet", r)
		}
	}

	return packSeptets(septets), len(septets), nil
}

// DecodeGSM7 unpacks exactly septetCount septets from data and maps them
// back to characters. Unknown septet values and unknown extension codes
// decode to '?'.
func DecodeGSM7(data []byte, septetCount int) string {
	septets := unpackSeptets(data, septetCount)

	out := make([]rune, 0, len(septets))
	for i := 0; i < len(septets); i++ {
		if septets[i] == escape {
			i++
			if i >= len(septets) {
				break
			}
			if r, ok := gsm7ExtendedRev[septets[i]]; ok {
				out = append(out, r)
			} else {
				out = append(out, '?')
			}
			continue
		}
		if int(septets[i]) < len(gsm7Basic) {
			out = append(out, gsm7Basic[septets[i]])
		} else {
			out = append(out, '?')
		}
	}

	return string(out)
}

// FitsGSM7 reports whether every character of text is representable in
// the GSM 7-bit basic or extension alphabet.
func FitsGSM7(text string) bool {
	for _, r := range text {
		if _, ok := gsm7Index[r]; ok {
			continue
		}
		if _, ok := gsm7Extended[r]; ok {
			continue
		}
		return false
	}
	return true
}

// packSeptets packs 7-bit values into octets LSB-first. Each new septet
// is OR'd in at the current bit offset; completed octets are emitted as
// the accumulator fills, and a trailing partial octet is zero-padded.
func packSeptets(septets []byte) []byte {
	if len(septets) == 0 {
		return nil
	}

	octets := make([]byte, 0, (len(septets)*7+7)/8)
	var acc uint32
	bits := 0

	for _, s := range septets {
		acc |= uint32(s) << bits
		bits += 7
		for bits >= 8 {
			octets = append(octets, byte(acc))
			acc >>= 8
			bits -= 8
		}
	}
	if bits > 0 {
		octets = append(octets, byte(acc))
	}

	return octets
}

// unpackSeptets is the inverse of packSeptets, yielding at most count
// septet values.
func unpackSeptets(octets []byte, count int) []byte {
	if len(octets) == 0 || count <= 0 {
		return nil
	}

	septets := make([]byte, 0, count)
	var acc uint32
	bits := 0

	for _, o := range octets {
		acc |= uint32(o) << bits
		bits += 8
		for bits >= 7 && len(septets) < count {
			septets = append(septets, byte(acc&0x7F))
			acc >>= 7
			bits -= 7
		}
		if len(septets) >= count {
			break
		}
	}

	return septets
}

// EncodeUCS2 encodes text as UTF-16 big-endian.
func EncodeUCS2(text string) []byte {
	units := utf16.Encode([]rune(text))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.BigEndian.PutUint16(out[i*2:], u)
	}
	return out
}

// DecodeUCS2 decodes UTF-16 big-endian data. A trailing odd byte is
// ignored.
func DecodeUCS2(data []byte) string {
	units := make([]uint16, len(data)/2)
	for i := range units {
		units[i] = binary.BigEndian.Uint16(data[i*2:])
	}
	return string(utf16.Decode(units))
}
