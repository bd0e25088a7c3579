package condrv

import (
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// CodePage identifies the active multi-byte<->UTF-16 conversion table for an
// input or output handle. condrv's default is CodePageUTF8 (65001); the zero
// value is not a valid code page and converts like CodePageLatin1.
type CodePage uint32

const (
	CodePageUTF8    CodePage = 65001
	CodePageDOS437  CodePage = 437
	CodePageDOS850  CodePage = 850
	CodePageLatin1  CodePage = 1252
	CodePageShiftJIS CodePage = 932
	CodePageGBK     CodePage = 936
	CodePageEUCKR   CodePage = 949
	CodePageBig5    CodePage = 950
)

// IsDoubleByte reports whether a code page may consume two bytes to decode a
// single scalar.
func (cp CodePage) IsDoubleByte() bool {
	switch cp {
	case CodePageShiftJIS, CodePageGBK, CodePageEUCKR, CodePageBig5:
		return true
	default:
		return false
	}
}

// codePageEncoding resolves a CodePage to the x/text encoding.Encoding that
// converts it to/from UTF-8, mirroring the platform's MultiByteToWideChar
// table for that code page number. UTF-8 itself has no encoding.Encoding
// (it IS the intermediate form x/text targets), so it is handled specially
// by ByteCodec rather than appearing here.
func codePageEncoding(cp CodePage) encoding.Encoding {
	switch cp {
	case CodePageDOS437:
		return charmap.CodePage437
	case CodePageDOS850:
		return charmap.CodePage850
	case CodePageLatin1:
		return charmap.Windows1252
	case CodePageShiftJIS:
		return japanese.ShiftJIS
	case CodePageGBK:
		return simplifiedchinese.GBK
	case CodePageEUCKR:
		return korean.EUCKR
	case CodePageBig5:
		return traditionalchinese.Big5
	default:
		return charmap.Windows1252
	}
}

// ByteCodec is the streaming byte<->UTF-16 conversion component of an
// input or output handle. It consumes whole scalars only: a partial lead byte or continuation
// sequence straddling two host reads is retained across calls rather than
// guessed at or dropped. Not safe for concurrent use from multiple
// goroutines; callers serialize access the same way the dispatcher
// serializes dispatch.
type ByteCodec struct {
	page CodePage

	// pending holds bytes consumed from the host but not yet decoded into
	// a complete scalar.
	pending []byte

	// pendingLow holds a low surrogate computed during a prior Decode call
	// that had no room left in the caller's output span. Delivered before
	// any further decoding.
	pendingLow    uint16
	hasPendingLow bool
}

// NewByteCodec returns a codec for the given code page with empty pending
// state.
func NewByteCodec(page CodePage) *ByteCodec {
	return &ByteCodec{page: page}
}

// CodePage reports the codec's active code page.
func (c *ByteCodec) CodePage() CodePage { return c.page }

// SetCodePage switches the active code page. Any bytes already pending are
// kept and reinterpreted under the new page on the next Decode call, so a
// scalar left incomplete under the old page is finished under the new one.
func (c *ByteCodec) SetCodePage(page CodePage) { c.page = page }

// PendingBytes reports the number of undecoded bytes currently retained
// (the byte-conservation accounting tests rely on this).
func (c *ByteCodec) PendingBytes() int { return len(c.pending) }

// HasPendingLowSurrogate reports whether a low surrogate is queued for
// delivery on the next Decode call.
func (c *ByteCodec) HasPendingLowSurrogate() bool { return c.hasPendingLow }

// Decode converts newly arrived host bytes into UTF-16 units, appending them
// to out and returning the extended slice along with the number of input
// bytes decoded into units. Bytes that do not yet form a complete scalar are
// moved to the codec's pending buffer, contribute no units, and are not
// counted as decoded; they are retried, as a prefix, on the next call.
func (c *ByteCodec) Decode(in []byte, out []uint16) ([]uint16, int) {
	if c.hasPendingLow {
		out = append(out, c.pendingLow)
		c.hasPendingLow = false
	}

	if len(c.pending) > 0 {
		in = append(append([]byte(nil), c.pending...), in...)
	}
	consumedOfPending := len(c.pending)
	c.pending = nil

	if c.page == CodePageUTF8 {
		return c.decodeUTF8(in, out, consumedOfPending)
	}
	return c.decodeLegacy(in, out, consumedOfPending)
}

func (c *ByteCodec) decodeUTF8(in []byte, out []uint16, consumedOfPending int) ([]uint16, int) {
	consumed := 0
	for consumed < len(in) {
		r, size := utf8.DecodeRune(in[consumed:])
		if r == utf8.RuneError && size <= 1 {
			if !utf8.FullRune(in[consumed:]) && len(in)-consumed < utf8.UTFMax {
				// Possibly just truncated, not malformed: retain as pending.
				break
			}
			// Genuinely malformed: emit the replacement character and skip
			// one byte, matching the streaming decoder's obligation to
			// make forward progress on bad input.
			out = append(out, uint16(utf8.RuneError))
			consumed++
			continue
		}
		out = appendRune(out, r)
		consumed += size
	}
	c.pending = append(c.pending, in[consumed:]...)
	total := consumed - consumedOfPending
	if total < 0 {
		total = 0
	}
	return out, total
}

func (c *ByteCodec) decodeLegacy(in []byte, out []uint16, consumedOfPending int) ([]uint16, int) {
	if len(in) == 0 {
		return out, 0
	}
	// One Transform pass with atEOF=false: the decoder stops short of an
	// incomplete DBCS lead byte (ErrShortSrc) and reports how many source
	// bytes it actually consumed, which is exactly the retention boundary
	// the retention contract asks for. Single-byte pages always consume
	// everything.
	dec := codePageEncoding(c.page).NewDecoder()
	dst := make([]byte, len(in)*utf8.UTFMax+utf8.UTFMax)
	nDst, nSrc, _ := dec.Transform(dst, in, false)
	for _, r := range string(dst[:nDst]) {
		out = appendRune(out, r)
	}
	c.pending = append(c.pending, in[nSrc:]...)
	total := nSrc - consumedOfPending
	if total < 0 {
		total = 0
	}
	return out, total
}

// appendRune appends the UTF-16 encoding of r to units, splitting surrogate
// pairs as two units the way utf16.Encode does.
func appendRune(units []uint16, r rune) []uint16 {
	if r < 0x10000 {
		return append(units, uint16(r))
	}
	r1, r2 := utf16.EncodeRune(r)
	return append(units, uint16(r1), uint16(r2))
}

// DeliverWithBudget copies units into a caller buffer bounded by budget
// UTF-16 units, splitting a trailing surrogate pair across calls: if
// only one unit of room remains for a surrogate pair (its high half lands in
// the last slot), the high surrogate is delivered now and the low
// surrogate is stashed in pendingLow for the next call, rather than either
// truncating mid-pair or overrunning the budget.
func (c *ByteCodec) DeliverWithBudget(units []uint16, budget int) []uint16 {
	if budget >= len(units) {
		return units
	}
	if budget <= 0 {
		return nil
	}
	if isHighSurrogate(units[budget-1]) && isLowSurrogate(units[budget]) {
		c.hasPendingLow = true
		c.pendingLow = units[budget]
	}
	return units[:budget]
}

// EncodeForOutput converts UTF-16 units back to bytes in the active code
// page for delivery to the host/output sink. In UTF-8 mode, output MUST NOT
// be truncated mid-scalar: if the caller's budget cannot hold the
// next full scalar's encoding, encoding stops before it rather than writing
// a partial sequence.
func (c *ByteCodec) EncodeForOutput(units []uint16, byteBudget int) []byte {
	out, _ := c.EncodeUnitsForOutput(units, byteBudget)
	return out
}

// EncodeUnitsForOutput is EncodeForOutput plus a count of how many of the
// input units the encoding consumed, so a caller delivering into a bounded
// client buffer can retain exactly the unencoded remainder (the
// tail-buffer rule for non-Unicode reads). A surrogate pair counts as two
// units consumed by its one scalar.
func (c *ByteCodec) EncodeUnitsForOutput(units []uint16, byteBudget int) ([]byte, int) {
	buf := make([]byte, 0, byteBudget)
	consumed := 0

	var enc *encoding.Encoder
	if c.page != CodePageUTF8 {
		enc = codePageEncoding(c.page).NewEncoder()
	}

	for consumed < len(units) {
		r := rune(units[consumed])
		width := 1
		if utf16.IsSurrogate(r) && consumed+1 < len(units) {
			if dr := utf16.DecodeRune(r, rune(units[consumed+1])); dr != utf8.RuneError {
				r = dr
				width = 2
			}
		}

		var encoded []byte
		if c.page == CodePageUTF8 {
			n := utf8.RuneLen(r)
			if n < 0 {
				r = utf8.RuneError
				n = utf8.RuneLen(r)
			}
			encoded = make([]byte, n)
			utf8.EncodeRune(encoded, r)
		} else {
			s, err := enc.String(string(r))
			if err != nil {
				s = "?"
			}
			encoded = []byte(s)
		}

		if len(buf)+len(encoded) > byteBudget {
			break
		}
		buf = append(buf, encoded...)
		consumed += width
	}
	return buf, consumed
}
