// Package pdfmeta reads the document title embedded in a PDF's Info dictionary.
package pdfmeta

import (
	"bytes"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf16"
)

var (
	literalTitle = regexp.MustCompile(`/Title\s*\(`)
	hexTitle     = regexp.MustCompile(`/Title\s*<([0-9A-Fa-f\s]*)>`)
	unsafeChars  = regexp.MustCompile(`[^\p{L}\p{N}._ -]+`)
	spaceRuns    = regexp.MustCompile(`[\s_]+`)
)

const maxNameLen = 120

// Title returns the first /Title entry found in content. Only uncompressed
// Info dictionaries are visible; titles inside object streams are not found.
func Title(content []byte) (string, bool) {
	if !bytes.HasPrefix(bytes.TrimLeft(content, "\x00\t\r\n "), []byte("%PDF")) {
		return "", false
	}
	if loc := literalTitle.FindIndex(content); loc != nil {
		if title, ok := readLiteral(content[loc[1]:]); ok && strings.TrimSpace(title) != "" {
			return strings.TrimSpace(title), true
		}
	}
	if m := hexTitle.FindSubmatch(content); m != nil {
		raw := bytes.Join(bytes.Fields(m[1]), nil)
		if len(raw)%2 == 1 {
			raw = append(raw, '0')
		}
		decoded := make([]byte, hex.DecodedLen(len(raw)))
		if _, err := hex.Decode(decoded, raw); err == nil {
			if title := strings.TrimSpace(decodeText(decoded)); title != "" {
				return title, true
			}
		}
	}
	return "", false
}

// FileName turns a title into a safe file name stem. It returns "" when
// nothing usable remains.
func FileName(title string) string {
	clean := unsafeChars.ReplaceAllString(title, " ")
	clean = strings.TrimSpace(spaceRuns.ReplaceAllString(clean, " "))
	clean = strings.Trim(clean, ". ")
	if r := []rune(clean); len(r) > maxNameLen {
		clean = strings.TrimSpace(string(r[:maxNameLen]))
	}
	return clean
}

// readLiteral reads a PDF literal string body (after the opening paren),
// honouring nested parentheses and backslash escapes.
func readLiteral(b []byte) (string, bool) {
	var out []byte
	depth := 1
	for i := 0; i < len(b); i++ {
		c := b[i]
		switch c {
		case '\\':
			if i+1 >= len(b) {
				return "", false
			}
			i++
			switch e := b[i]; e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b', 'f':
			case '\r', '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for n := 0; n < 2 && i+1 < len(b) && b[i+1] >= '0' && b[i+1] <= '7'; n++ {
						i++
						v = v*8 + int(b[i]-'0')
					}
					out = append(out, byte(v))
					continue
				}
				out = append(out, e)
			}
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return decodeText(out), true
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return "", false
}

// decodeText handles UTF-16BE strings with a BOM; everything else is treated
// as Latin-1 (close enough to PDFDocEncoding for file naming).
func decodeText(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		b = b[2:]
		units := make([]uint16, 0, len(b)/2)
		for i := 0; i+1 < len(b); i += 2 {
			units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(units))
	}
	runes := make([]rune, 0, len(b))
	for _, c := range b {
		r := rune(c)
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			continue
		}
		runes = append(runes, r)
	}
	return string(runes)
}
