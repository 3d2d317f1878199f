package rewrite

import (
	"strings"
)

// attrSpan locates one attribute inside the raw bytes of a start tag.
type attrSpan struct {
	name     string
	valStart int // -1 when the attribute has no value
	valEnd   int
	quote    byte // '"', '\'' or 0 for unquoted values
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f':
		return true
	}
	return false
}

// scanAttrs walks a complete start tag ("<img ...>") the same way the HTML
// tokenizer does and returns the byte spans of its attribute values. ok is
// false when the tag ends inside a quoted value.
func scanAttrs(raw []byte) (spans []attrSpan, ok bool) {
	n := len(raw)
	i := 1
	for i < n && !isSpace(raw[i]) && raw[i] != '/' && raw[i] != '>' {
		i++
	}

	for {
		for i < n && (isSpace(raw[i]) || raw[i] == '/') {
			i++
		}
		if i >= n || raw[i] == '>' {
			return spans, true
		}

		// A leading '=' is part of the name
		start := i
		i++
		for i < n && !isSpace(raw[i]) && raw[i] != '/' && raw[i] != '>' && raw[i] != '=' {
			i++
		}
		span := attrSpan{name: asciiLower(raw[start:i]), valStart: -1}

		j := i
		for j < n && isSpace(raw[j]) {
			j++
		}
		if j >= n || raw[j] != '=' {
			spans = append(spans, span)
			i = j
			continue
		}
		j++
		for j < n && isSpace(raw[j]) {
			j++
		}

		if j < n && (raw[j] == '"' || raw[j] == '\'') {
			q := raw[j]
			vs := j + 1
			ve := vs
			for ve < n && raw[ve] != q {
				ve++
			}
			if ve >= n {
				return spans, false
			}
			span.valStart, span.valEnd, span.quote = vs, ve, q
			i = ve + 1
		} else {
			vs := j
			for j < n && !isSpace(raw[j]) && raw[j] != '>' {
				j++
			}
			span.valStart, span.valEnd = vs, j
			i = j
		}
		spans = append(spans, span)
	}
}

// asciiLower matches the tokenizer, which only folds ASCII letters.
func asciiLower(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

var (
	doubleQuoted = strings.NewReplacer("&", "&amp;", `"`, "&#34;")
	singleQuoted = strings.NewReplacer("&", "&amp;", "'", "&#39;")
)

// encodeValue renders v for an attribute that used the given quote. An
// unquoted value gains double quotes only when v could not stand unquoted.
func encodeValue(v string, quote byte) string {
	switch quote {
	case '"':
		return doubleQuoted.Replace(v)
	case '\'':
		return singleQuoted.Replace(v)
	}
	if v == "" || strings.ContainsAny(v, " \t\n\r\f\"'=<>`") {
		return `"` + doubleQuoted.Replace(v) + `"`
	}
	return strings.ReplaceAll(v, "&", "&amp;")
}

// escapeValue escapes v for use inside an existing attribute value that
// used the given quote. No quotes are added.
func escapeValue(v string, quote byte) string {
	switch quote {
	case '"':
		return doubleQuoted.Replace(v)
	case '\'':
		return singleQuoted.Replace(v)
	}
	return strings.ReplaceAll(v, "&", "&amp;")
}

// srcsetURLs returns the [start, end) spans of the candidate URLs in a
// srcset value. Descriptors and separators are left out.
func srcsetURLs(s string) [][2]int {
	var spans [][2]int
	i, n := 0, len(s)
	for i < n {
		for i < n && (isSpace(s[i]) || s[i] == ',') {
			i++
		}
		if i >= n {
			break
		}
		start := i
		for i < n && !isSpace(s[i]) {
			i++
		}
		end := i
		for end > start && s[end-1] == ',' {
			end--
		}
		if end > start {
			spans = append(spans, [2]int{start, end})
		}
		if end < i {
			// Trailing commas ended the candidate
			continue
		}
		depth := 0
	descriptors:
		for i < n {
			switch s[i] {
			case '(':
				depth++
			case ')':
				if depth > 0 {
					depth--
				}
			case ',':
				if depth == 0 {
					break descriptors
				}
			}
			i++
		}
	}
	return spans
}
