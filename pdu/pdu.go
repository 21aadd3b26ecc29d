// Package pdu implements the GSM 03.40 SMS PDU wire format: the 7-bit
// default alphabet with LSB-first septet packing, UCS2, semi-octet phone
// numbers and timestamps, and SMS-SUBMIT / SMS-DELIVER assembly.
//
// All functions are pure and stateless. Concatenated (multi-part)
// messages are out of scope; callers use CalculateParts to detect text
// that would not fit a single message.
package pdu

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf16"
)

// Encoding selects the user-data alphabet.
type Encoding string

const (
	EncodingGSM7 Encoding = "gsm7"
	EncodingUCS2 Encoding = "ucs2"
	EncodingAuto Encoding = "auto"
)

// Type-of-address values for the semi-octet number format.
const (
	toaInternational = 0x91
	toaUnknown       = 0x81
)

// EncodePhoneNumber encodes a phone number as swapped-nibble semi-octets.
// A leading '+' selects the international type-of-address; all other
// non-digit characters are dropped. Odd-length digit strings are padded
// with an 0xF nibble. The returned digit count is the TP address length.
func EncodePhoneNumber(number string) (data []byte, typeOfAddr byte, digits int) {
	typeOfAddr = toaUnknown
	if strings.HasPrefix(number, "+") {
		number = number[1:]
		typeOfAddr = toaInternational
	}

	var b strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	num := b.String()
	digits = len(num)

	if len(num)%2 == 1 {
		num += "F"
	}

	data = make([]byte, 0, len(num)/2)
	for i := 0; i < len(num); i += 2 {
		data = append(data, nibble(num[i+1])<<4|nibble(num[i]))
	}

	return data, typeOfAddr, digits
}

func nibble(c byte) byte {
	if c == 'F' {
		return 0xF
	}
	return c - '0'
}

// DecodePhoneNumber extracts digits digits from swapped-nibble data,
// dropping 0xF filler. The international bits of typeOfAddr add a
// leading '+'.
func DecodePhoneNumber(data []byte, digits int, typeOfAddr byte) string {
	var b strings.Builder
	for _, octet := range data {
		low := octet & 0x0F
		high := (octet >> 4) & 0x0F
		if low != 0xF {
			b.WriteByte('0' + low)
		}
		if high != 0xF {
			b.WriteByte('0' + high)
		}
	}

	number := b.String()
	if digits < len(number) {
		number = number[:digits]
	}

	if typeOfAddr&0x70 == 0x10 {
		number = "+" + number
	}
	return number
}

// EncodeTimestamp encodes t as the 7-byte semi-octet TP-SCTS field.
// The timezone octet is written as zero (GMT), matching what service
// centers accept for SMS-SUBMIT.
func EncodeTimestamp(t time.Time) []byte {
	fields := []int{t.Year() % 100, int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second()}

	out := make([]byte, 0, 7)
	for _, f := range fields {
		out = append(out, byte(f%10)<<4|byte(f/10))
	}
	return append(out, 0x00)
}

// DecodeTimestamp decodes a 7-byte semi-octet timestamp into the
// "YY/MM/DD,HH:MM:SS±TZ" form. The timezone is in quarter-hours with
// bit 0x08 of the final octet as the sign.
func DecodeTimestamp(data []byte) (string, error) {
	if len(data) < 7 {
		return "", fmt.Errorf("timestamp too short: %d bytes", len(data))
	}

	semi := func(octet byte) int {
		low := int(octet>>4) & 0x0F
		high := int(octet) & 0x0F
		return high*10 + low
	}

	sign := "+"
	if data[6]&0x08 != 0 {
		sign = "-"
	}
	tz := semi(data[6] &^ 0x08)

	return fmt.Sprintf("%02d/%02d/%02d,%02d:%02d:%02d%s%02d",
		semi(data[0]), semi(data[1]), semi(data[2]),
		semi(data[3]), semi(data[4]), semi(data[5]), sign, tz), nil
}

// SubmitOptions control optional SMS-SUBMIT fields.
type SubmitOptions struct {
	// Encoding selects the user-data alphabet. EncodingAuto tries GSM7
	// and falls back to UCS2 if the text does not fit the alphabet.
	Encoding Encoding
	// ValidityMinutes, when positive, adds a relative-format TP-VP.
	ValidityMinutes int
	// Flash marks the message class 0 (immediate display).
	Flash bool
	// RequestStatus sets the status-report-request flag.
	RequestStatus bool
}

// EncodeSubmit assembles an SMS-SUBMIT PDU and returns it hex-encoded.
// The SMSC field is left empty (length 0) so the modem applies its
// configured service center.
func EncodeSubmit(number, text string, opts SubmitOptions) (string, error) {
	enc := opts.Encoding
	if enc == "" || enc == EncodingAuto {
		if FitsGSM7(text) {
			enc = EncodingGSM7
		} else {
			enc = EncodingUCS2
		}
	}

	var (
		userData []byte
		udl      int
		dcs      byte
	)
	switch enc {
	case EncodingGSM7:
		data, septets, err := EncodeGSM7(text)
		if err != nil {
			return "", err
		}
		userData, udl, dcs = data, septets, 0x00
	case EncodingUCS2:
		userData = EncodeUCS2(text)
		udl, dcs = len(userData), 0x08
	default:
		return "", fmt.Errorf("unsupported encoding: %q", enc)
	}
	if opts.Flash {
		dcs |= 0x10
	}

	pduType := byte(0x01) // SMS-SUBMIT
	if opts.ValidityMinutes > 0 {
		pduType |= 0x10 // TP-VPF: relative
	}
	if opts.RequestStatus {
		pduType |= 0x20
	}

	addr, toa, digits := EncodePhoneNumber(number)

	out := make([]byte, 0, 16+len(addr)+len(userData))
	out = append(out, 0x00) // SMSC length: use modem default
	out = append(out, pduType)
	out = append(out, 0x00) // message reference: assigned by modem
	out = append(out, byte(digits), toa)
	out = append(out, addr...)
	out = append(out, 0x00) // protocol identifier
	out = append(out, dcs)
	if opts.ValidityMinutes > 0 {
		out = append(out, relativeValidity(opts.ValidityMinutes))
	}
	out = append(out, byte(udl))
	out = append(out, userData...)

	return strings.ToUpper(hex.EncodeToString(out)), nil
}

// relativeValidity maps minutes to the TP-VP relative-format byte.
// Four tiers per TS 23.040: 5-minute steps to 12h, 30-minute steps to
// 24h, days to 30 days, weeks beyond.
func relativeValidity(minutes int) byte {
	var vp int
	switch {
	case minutes <= 720:
		vp = minutes/5 - 1
	case minutes <= 1440:
		vp = (minutes-720)/30 + 143
	case minutes <= 43200:
		vp = minutes/1440 + 166
	default:
		vp = minutes/10080 + 192
	}

	if vp < 0 {
		vp = 0
	}
	if vp > 255 {
		vp = 255
	}
	return byte(vp)
}

// Deliver holds the fields of a decoded SMS-DELIVER PDU.
type Deliver struct {
	Sender    string
	Timestamp string
	Text      string
	Encoding  Encoding
}

// DecodeDeliver parses a hex-encoded SMS-DELIVER PDU as stored by the
// modem (SMSC header included).
func DecodeDeliver(pduHex string) (Deliver, error) {
	data, err := hex.DecodeString(strings.TrimSpace(pduHex))
	if err != nil {
		return Deliver{}, fmt.Errorf("invalid PDU hex: %w", err)
	}

	idx := 0
	need := func(n int) error {
		if idx+n > len(data) {
			return fmt.Errorf("PDU truncated at offset %d", idx)
		}
		return nil
	}

	if err := need(1); err != nil {
		return Deliver{}, err
	}
	smscLen := int(data[idx])
	idx += 1 + smscLen

	if err := need(1); err != nil {
		return Deliver{}, err
	}
	pduType := data[idx]
	idx++
	if pduType&0x03 != 0x00 {
		return Deliver{}, fmt.Errorf("not an SMS-DELIVER PDU: type %#02x", pduType)
	}

	if err := need(2); err != nil {
		return Deliver{}, err
	}
	senderDigits := int(data[idx])
	senderType := data[idx+1]
	idx += 2

	senderOctets := (senderDigits + 1) / 2
	if err := need(senderOctets); err != nil {
		return Deliver{}, err
	}
	sender := DecodePhoneNumber(data[idx:idx+senderOctets], senderDigits, senderType)
	idx += senderOctets

	if err := need(2); err != nil {
		return Deliver{}, err
	}
	idx++ // protocol identifier
	dcs := data[idx]
	idx++

	if err := need(7); err != nil {
		return Deliver{}, err
	}
	timestamp, err := DecodeTimestamp(data[idx : idx+7])
	if err != nil {
		return Deliver{}, err
	}
	idx += 7

	if err := need(1); err != nil {
		return Deliver{}, err
	}
	udl := int(data[idx])
	idx++
	userData := data[idx:]

	d := Deliver{Sender: sender, Timestamp: timestamp}
	if dcs&0x0C == 0x08 {
		if udl > len(userData) {
			udl = len(userData)
		}
		d.Text = DecodeUCS2(userData[:udl])
		d.Encoding = EncodingUCS2
	} else {
		d.Text = DecodeGSM7(userData, udl)
		d.Encoding = EncodingGSM7
	}

	return d, nil
}

// CalculateParts returns how many SMS parts text would occupy.
// GSM7 counts septets (extension characters count twice): 160 fits one
// part, 153 per part after that. UCS2 counts UTF-16 code units: 70 for
// one part, 67 per part after.
//
// Sending concatenated messages is not implemented; callers that get a
// result greater than one should expect truncation to the first part.
func CalculateParts(text string, enc Encoding) (int, error) {
	if enc == "" || enc == EncodingAuto {
		if FitsGSM7(text) {
			enc = EncodingGSM7
		} else {
			enc = EncodingUCS2
		}
	}

	switch enc {
	case EncodingGSM7:
		septets := 0
		for _, r := range text {
			if _, ok := gsm7Extended[r]; ok {
				septets += 2
			} else {
				septets++
			}
		}
		if septets <= 160 {
			return 1, nil
		}
		return (septets + 152) / 153, nil

	case EncodingUCS2:
		units := len(utf16.Encode([]rune(text)))
		if units <= 70 {
			return 1, nil
		}
		return (units + 66) / 67, nil

	default:
		return 0, fmt.Errorf("unsupported encoding: %q", enc)
	}
}

// Truncate cuts text down to what fits in a single SMS part for enc:
// 160 septets for GSM7 (extension characters count twice), 70 UTF-16
// code units for UCS2. Text that already fits is returned unchanged.
func Truncate(text string, enc Encoding) string {
	if enc == "" || enc == EncodingAuto {
		if FitsGSM7(text) {
			enc = EncodingGSM7
		} else {
			enc = EncodingUCS2
		}
	}

	switch enc {
	case EncodingGSM7:
		septets := 0
		for i, r := range text {
			cost := 1
			if _, ok := gsm7Extended[r]; ok {
				cost = 2
			}
			if septets+cost > 160 {
				return text[:i]
			}
			septets += cost
		}
		return text

	case EncodingUCS2:
		units := 0
		for i, r := range text {
			cost := 1
			if utf16.RuneLen(r) == 2 {
				cost = 2
			}
			if units+cost > 70 {
				return text[:i]
			}
			units += cost
		}
		return text

	default:
		return text
	}
}
