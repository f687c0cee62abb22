package encoding

import (
	"encoding/base64"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Encoder names.
const (
	HTMLEntities    = "html_entities"
	URL             = "url"
	DoubleURL       = "double_url"
	UnicodeEscape   = "unicode_escape"
	HexEscape       = "hex_escape"
	Base64Eval      = "base64"
	DecimalEntities = "decimal_entities"
	URLAll          = "url_all"
	UnicodeAll      = "unicode_all"
	HTMLDecimalAll  = "html_decimal_all"
	HTMLHexAll      = "html_hex_all"
	Base64Raw       = "base64_raw"
	HTMLEscape      = "html_escape"
)

const markupChars = `<>"'&`

func init() {
	Register(&HTMLEntitiesEncoder{})
	Register(&URLEncoder{})
	Register(&DoubleURLEncoder{})
	Register(&UnicodeEscapeEncoder{})
	Register(&HexEscapeEncoder{})
	Register(&Base64EvalEncoder{})
	Register(&DecimalEntitiesEncoder{})
	Register(&URLAllEncoder{})
	Register(&UnicodeAllEncoder{})
	Register(&HTMLDecimalAllEncoder{})
	Register(&HTMLHexAllEncoder{})
	Register(&Base64RawEncoder{})
	Register(&HTMLEscapeEncoder{})
}

// Ampersand goes first in a single pass, so entities are never double escaped.
var htmlEntityReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
)

// HTMLEntitiesEncoder escapes markup characters as named entities.
type HTMLEntitiesEncoder struct{}

func (e *HTMLEntitiesEncoder) Name() string { return HTMLEntities }
func (e *HTMLEntitiesEncoder) Encode(p string) (string, error) {
	return htmlEntityReplacer.Replace(p), nil
}
func (e *HTMLEntitiesEncoder) Decode(p string) (string, error) { return html.UnescapeString(p), nil }

// HTMLEscapeEncoder matches the html escaping used to detect encoded reflections.
type HTMLEscapeEncoder struct{}

func (e *HTMLEscapeEncoder) Name() string { return HTMLEscape }
func (e *HTMLEscapeEncoder) Encode(p string) (string, error) {
	return htmlEntityReplacer.Replace(p), nil
}
func (e *HTMLEscapeEncoder) Decode(p string) (string, error) { return html.UnescapeString(p), nil }

// QuoteSafe percent-encodes every byte outside the unreserved set and the
// extra safe characters, using uppercase hex digits.
func QuoteSafe(s, safe string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) || strings.IndexByte(safe, c) >= 0 {
			sb.WriteByte(c)
			continue
		}
		fmt.Fprintf(&sb, "%%%02X", c)
	}
	return sb.String()
}

// Quote percent-encodes everything outside the unreserved set.
func Quote(s string) string { return QuoteSafe(s, "") }

func isUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
		c == '_' || c == '.' || c == '-' || c == '~'
}

var percentRe = regexp.MustCompile(`%[0-9a-fA-F]{2}`)

// Unquote decodes valid %XX sequences and leaves malformed ones untouched.
// Plus signs are kept. The result may not be valid UTF-8.
func Unquote(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	return percentRe.ReplaceAllStringFunc(s, func(m string) string {
		b, err := strconv.ParseUint(m[1:], 16, 8)
		if err != nil {
			return m
		}
		return string([]byte{byte(b)})
	})
}

// URLEncoder percent-encodes everything outside the unreserved set.
type URLEncoder struct{}

func (e *URLEncoder) Name() string                    { return URL }
func (e *URLEncoder) Encode(p string) (string, error) { return Quote(p), nil }
func (e *URLEncoder) Decode(p string) (string, error) { return url.PathUnescape(p) }

// DoubleURLEncoder applies URL encoding twice.
type DoubleURLEncoder struct{}

func (e *DoubleURLEncoder) Name() string                    { return DoubleURL }
func (e *DoubleURLEncoder) Encode(p string) (string, error) { return Quote(Quote(p)), nil }
func (e *DoubleURLEncoder) Decode(p string) (string, error) {
	once, err := url.PathUnescape(p)
	if err != nil {
		return "", err
	}
	return url.PathUnescape(once)
}

var (
	unicodeEscapeRe = regexp.MustCompile(`\\u([0-9a-fA-F]{4})`)
	hexEscapeRe     = regexp.MustCompile(`\\x([0-9a-fA-F]{2})`)
)

func decodeEscapes(re *regexp.Regexp, s string) string {
	return re.ReplaceAllStringFunc(s, func(m string) string {
		n, err := strconv.ParseUint(m[2:], 16, 32)
		if err != nil {
			return m
		}
		return string(rune(n))
	})
}

// DecodeJSEscapes resolves \uXXXX and \xXX sequences.
func DecodeJSEscapes(s string) string {
	return decodeEscapes(hexEscapeRe, decodeEscapes(unicodeEscapeRe, s))
}

// UnicodeEscapeEncoder writes non-ASCII and markup characters as \uXXXX.
type UnicodeEscapeEncoder struct{}

func (e *UnicodeEscapeEncoder) Name() string { return UnicodeEscape }
func (e *UnicodeEscapeEncoder) Encode(p string) (string, error) {
	var sb strings.Builder
	for _, r := range p {
		if r > 127 || strings.ContainsRune(markupChars, r) {
			fmt.Fprintf(&sb, "\\u%04x", r)
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String(), nil
}
func (e *UnicodeEscapeEncoder) Decode(p string) (string, error) {
	return decodeEscapes(unicodeEscapeRe, p), nil
}

// HexEscapeEncoder writes markup characters as \xXX.
type HexEscapeEncoder struct{}

func (e *HexEscapeEncoder) Name() string { return HexEscape }
func (e *HexEscapeEncoder) Encode(p string) (string, error) {
	var sb strings.Builder
	for _, r := range p {
		if strings.ContainsRune(markupChars, r) {
			fmt.Fprintf(&sb, "\\x%02x", r)
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String(), nil
}
func (e *HexEscapeEncoder) Decode(p string) (string, error) {
	return decodeEscapes(hexEscapeRe, p), nil
}

const (
	evalAtobPrefix = "eval(atob('"
	evalAtobSuffix = "'))"
)

// Base64EvalEncoder wraps the base64 form in eval(atob('...')).
type Base64EvalEncoder struct{}

func (e *Base64EvalEncoder) Name() string { return Base64Eval }
func (e *Base64EvalEncoder) Encode(p string) (string, error) {
	return evalAtobPrefix + base64.StdEncoding.EncodeToString([]byte(p)) + evalAtobSuffix, nil
}
func (e *Base64EvalEncoder) Decode(p string) (string, error) {
	if !strings.HasPrefix(p, evalAtobPrefix) || !strings.HasSuffix(p, evalAtobSuffix) {
		return "", fmt.Errorf("missing eval(atob()) wrapper")
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(p, evalAtobPrefix), evalAtobSuffix)
	data, err := base64.StdEncoding.DecodeString(inner)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Base64RawEncoder is plain standard base64.
type Base64RawEncoder struct{}

func (e *Base64RawEncoder) Name() string { return Base64Raw }
func (e *Base64RawEncoder) Encode(p string) (string, error) {
	return base64.StdEncoding.EncodeToString([]byte(p)), nil
}
func (e *Base64RawEncoder) Decode(p string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecimalEntitiesEncoder writes markup characters as &#N;.
type DecimalEntitiesEncoder struct{}

func (e *DecimalEntitiesEncoder) Name() string { return DecimalEntities }
func (e *DecimalEntitiesEncoder) Encode(p string) (string, error) {
	var sb strings.Builder
	for _, r := range p {
		if strings.ContainsRune(markupChars, r) {
			fmt.Fprintf(&sb, "&#%d;", r)
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String(), nil
}
func (e *DecimalEntitiesEncoder) Decode(p string) (string, error) { return html.UnescapeString(p), nil }

// URLAllEncoder percent-encodes every byte with lowercase hex.
type URLAllEncoder struct{}

func (e *URLAllEncoder) Name() string { return URLAll }
func (e *URLAllEncoder) Encode(p string) (string, error) {
	var sb strings.Builder
	for i := 0; i < len(p); i++ {
		fmt.Fprintf(&sb, "%%%02x", p[i])
	}
	return sb.String(), nil
}
func (e *URLAllEncoder) Decode(p string) (string, error) { return url.PathUnescape(p) }

// UnicodeAllEncoder writes every character as \uXXXX.
type UnicodeAllEncoder struct{}

func (e *UnicodeAllEncoder) Name() string { return UnicodeAll }
func (e *UnicodeAllEncoder) Encode(p string) (string, error) {
	var sb strings.Builder
	for _, r := range p {
		fmt.Fprintf(&sb, "\\u%04x", r)
	}
	return sb.String(), nil
}
func (e *UnicodeAllEncoder) Decode(p string) (string, error) {
	return decodeEscapes(unicodeEscapeRe, p), nil
}

// HTMLDecimalAllEncoder writes every character as &#N;.
type HTMLDecimalAllEncoder struct{}

func (e *HTMLDecimalAllEncoder) Name() string { return HTMLDecimalAll }
func (e *HTMLDecimalAllEncoder) Encode(p string) (string, error) {
	var sb strings.Builder
	for _, r := range p {
		fmt.Fprintf(&sb, "&#%d;", r)
	}
	return sb.String(), nil
}
func (e *HTMLDecimalAllEncoder) Decode(p string) (string, error) { return html.UnescapeString(p), nil }

// HTMLHexAllEncoder writes every character as &#xN;.
type HTMLHexAllEncoder struct{}

func (e *HTMLHexAllEncoder) Name() string { return HTMLHexAll }
func (e *HTMLHexAllEncoder) Encode(p string) (string, error) {
	var sb strings.Builder
	for _, r := range p {
		fmt.Fprintf(&sb, "&#x%02x;", r)
	}
	return sb.String(), nil
}
func (e *HTMLHexAllEncoder) Decode(p string) (string, error) { return html.UnescapeString(p), nil }
