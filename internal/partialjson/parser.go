// Package partialjson decodes JSON text that may have been cut off at any byte.
//
// The decoder returns everything that can be decoded without guessing:
// complete members of unterminated objects and arrays, the safe prefix of an
// unterminated string, and numbers that are already valid. A member whose key
// or scalar value is unfinished is left out entirely.
package partialjson

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	json "github.com/goccy/go-json"
)

// State describes how a value was obtained from the input text.
type State int

const (
	// UndefinedInput means the input holds nothing decodable yet.
	UndefinedInput State = iota
	// SuccessfulParse means the input was complete, valid JSON.
	SuccessfulParse
	// RepairedParse means the input was truncated and a prefix was decoded.
	RepairedParse
	// FailedParse means the input is not a prefix of any valid JSON text.
	FailedParse
)

func (s State) String() string {
	switch s {
	case UndefinedInput:
		return "undefined-input"
	case SuccessfulParse:
		return "successful-parse"
	case RepairedParse:
		return "repaired-parse"
	case FailedParse:
		return "failed-parse"
	default:
		return "unknown"
	}
}

var errSyntax = errors.New("partialjson: syntax error")

// Parse decodes text as far as it can. It never panics. Objects decode to
// map[string]any, arrays to []any and numbers to float64, exactly like a
// standard decode into an interface value.
func Parse(text string) (any, State) {
	if strings.TrimSpace(text) == "" {
		return nil, UndefinedInput
	}

	p := &parser{s: text}
	v, present, err := p.value()
	if err != nil {
		return nil, FailedParse
	}
	if !p.eof {
		p.ws()
		if p.i < len(p.s) {
			return nil, FailedParse
		}
	}
	// only a lone number can end the input and still be complete
	if !p.eof || validNumber(strings.TrimSpace(text)) {
		var full any
		if err := json.Unmarshal([]byte(text), &full); err != nil {
			return nil, FailedParse
		}
		return full, SuccessfulParse
	}
	if !present {
		return nil, UndefinedInput
	}
	return v, RepairedParse
}

type parser struct {
	s   string
	i   int
	eof bool
}

func (p *parser) ws() {
	for p.i < len(p.s) {
		switch p.s[p.i] {
		case ' ', '\t', '\n', '\r':
			p.i++
		default:
			return
		}
	}
}

func (p *parser) atEnd() bool {
	if p.i >= len(p.s) {
		p.eof = true
		return true
	}
	return false
}

// value decodes the next value. present is false when the input ended before
// the value could be decoded at all.
func (p *parser) value() (any, bool, error) {
	p.ws()
	if p.atEnd() {
		return nil, false, nil
	}
	switch c := p.s[p.i]; {
	case c == '{':
		return p.object()
	case c == '[':
		return p.array()
	case c == '"':
		s, _, err := p.str()
		if err != nil {
			return nil, false, err
		}
		return s, true, nil
	case c == 't':
		return p.literal("true", true)
	case c == 'f':
		return p.literal("false", false)
	case c == 'n':
		return p.literal("null", nil)
	case c == '-' || (c >= '0' && c <= '9'):
		return p.number()
	default:
		return nil, false, errSyntax
	}
}

func (p *parser) object() (any, bool, error) {
	p.i++
	obj := map[string]any{}

	p.ws()
	if p.atEnd() {
		return obj, true, nil
	}
	if p.s[p.i] == '}' {
		p.i++
		return obj, true, nil
	}

	for {
		p.ws()
		if p.atEnd() {
			return obj, true, nil
		}
		if p.s[p.i] != '"' {
			return nil, false, errSyntax
		}
		key, complete, err := p.str()
		if err != nil {
			return nil, false, err
		}
		if !complete {
			return obj, true, nil
		}

		p.ws()
		if p.atEnd() {
			return obj, true, nil
		}
		if p.s[p.i] != ':' {
			return nil, false, errSyntax
		}
		p.i++

		val, present, err := p.value()
		if err != nil {
			return nil, false, err
		}
		if present {
			obj[key] = val
		}
		if p.eof {
			return obj, true, nil
		}

		p.ws()
		if p.atEnd() {
			return obj, true, nil
		}
		switch p.s[p.i] {
		case ',':
			p.i++
		case '}':
			p.i++
			return obj, true, nil
		default:
			return nil, false, errSyntax
		}
	}
}

func (p *parser) array() (any, bool, error) {
	p.i++
	arr := []any{}

	p.ws()
	if p.atEnd() {
		return arr, true, nil
	}
	if p.s[p.i] == ']' {
		p.i++
		return arr, true, nil
	}

	for {
		val, present, err := p.value()
		if err != nil {
			return nil, false, err
		}
		if present {
			arr = append(arr, val)
		}
		if p.eof {
			return arr, true, nil
		}

		p.ws()
		if p.atEnd() {
			return arr, true, nil
		}
		switch p.s[p.i] {
		case ',':
			p.i++
		case ']':
			p.i++
			return arr, true, nil
		default:
			return nil, false, errSyntax
		}
	}
}

// str decodes a string starting at the opening quote. complete is false when
// the input ended before the closing quote; the returned content then stops
// before any unfinished escape sequence or multi-byte character.
func (p *parser) str() (string, bool, error) {
	p.i++
	var sb strings.Builder
	for {
		if p.atEnd() {
			return trimPartialRune(sb.String()), false, nil
		}
		c := p.s[p.i]
		switch {
		case c == '"':
			p.i++
			return sb.String(), true, nil
		case c == '\\':
			r, n, ok, err := p.escape(p.i)
			if err != nil {
				return "", false, err
			}
			if !ok {
				p.i = len(p.s)
				p.eof = true
				return trimPartialRune(sb.String()), false, nil
			}
			sb.WriteRune(r)
			p.i += n
		case c < 0x20:
			return "", false, errSyntax
		default:
			sb.WriteByte(c)
			p.i++
		}
	}
}

// escape decodes the escape sequence at position at. ok is false when the
// sequence is cut off by the end of the input.
func (p *parser) escape(at int) (rune, int, bool, error) {
	if at+1 >= len(p.s) {
		return 0, 0, false, nil
	}
	switch p.s[at+1] {
	case '"':
		return '"', 2, true, nil
	case '\\':
		return '\\', 2, true, nil
	case '/':
		return '/', 2, true, nil
	case 'b':
		return '\b', 2, true, nil
	case 'f':
		return '\f', 2, true, nil
	case 'n':
		return '\n', 2, true, nil
	case 'r':
		return '\r', 2, true, nil
	case 't':
		return '\t', 2, true, nil
	case 'u':
		r, ok, err := p.hex4(at + 2)
		if err != nil || !ok {
			return 0, 0, ok, err
		}
		if !utf16.IsSurrogate(r) {
			return r, 6, true, nil
		}
		// a high surrogate needs its low half before it can be written
		if at+6 >= len(p.s) || (at+7 >= len(p.s) && p.s[at+6] == '\\') {
			return 0, 0, false, nil
		}
		if p.s[at+6] != '\\' || p.s[at+7] != 'u' {
			return utf8.RuneError, 6, true, nil
		}
		lo, ok, err := p.hex4(at + 8)
		if err != nil || !ok {
			return 0, 0, ok, err
		}
		if dec := utf16.DecodeRune(r, lo); dec != utf8.RuneError {
			return dec, 12, true, nil
		}
		return utf8.RuneError, 6, true, nil
	default:
		return 0, 0, false, errSyntax
	}
}

func (p *parser) hex4(at int) (rune, bool, error) {
	if at+4 > len(p.s) {
		for i := at; i < len(p.s); i++ {
			if !isHex(p.s[i]) {
				return 0, false, errSyntax
			}
		}
		return 0, false, nil
	}
	v, err := strconv.ParseUint(p.s[at:at+4], 16, 32)
	if err != nil {
		return 0, false, errSyntax
	}
	return rune(v), true, nil
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func trimPartialRune(s string) string {
	for i := 0; i < utf8.UTFMax-1 && len(s) > 0; i++ {
		r, size := utf8.DecodeLastRuneInString(s)
		if r != utf8.RuneError || size != 1 {
			break
		}
		s = s[:len(s)-1]
	}
	return s
}

func (p *parser) literal(word string, val any) (any, bool, error) {
	rest := p.s[p.i:]
	if strings.HasPrefix(rest, word) {
		p.i += len(word)
		return val, true, nil
	}
	if len(rest) < len(word) && strings.HasPrefix(word, rest) {
		p.i = len(p.s)
		p.eof = true
		return nil, false, nil
	}
	return nil, false, errSyntax
}

func (p *parser) number() (any, bool, error) {
	start := p.i
	for p.i < len(p.s) && strings.IndexByte("+-0123456789.eE", p.s[p.i]) >= 0 {
		p.i++
	}
	lit := p.s[start:p.i]

	if p.i >= len(p.s) {
		p.eof = true
		if !validNumber(lit) {
			// every unfinished number is completed by one more digit
			if !validNumber(lit + "0") {
				return nil, false, errSyntax
			}
			return nil, false, nil
		}
	} else if !validNumber(lit) {
		return nil, false, errSyntax
	}

	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return nil, false, errSyntax
	}
	return f, true, nil
}

// validNumber checks lit against the JSON number grammar.
func validNumber(lit string) bool {
	i := 0
	if i < len(lit) && lit[i] == '-' {
		i++
	}
	switch {
	case i < len(lit) && lit[i] == '0':
		i++
	case i < len(lit) && lit[i] >= '1' && lit[i] <= '9':
		for i < len(lit) && isDigit(lit[i]) {
			i++
		}
	default:
		return false
	}
	if i < len(lit) && lit[i] == '.' {
		i++
		if i >= len(lit) || !isDigit(lit[i]) {
			return false
		}
		for i < len(lit) && isDigit(lit[i]) {
			i++
		}
	}
	if i < len(lit) && (lit[i] == 'e' || lit[i] == 'E') {
		i++
		if i < len(lit) && (lit[i] == '+' || lit[i] == '-') {
			i++
		}
		if i >= len(lit) || !isDigit(lit[i]) {
			return false
		}
		for i < len(lit) && isDigit(lit[i]) {
			i++
		}
	}
	return i == len(lit)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
