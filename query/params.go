package query

import (
	"strconv"
	"strings"
)

// scanPlaceholders walks a statement and collects the distinct @name value
// placeholders in order of first appearance. String literals, delimited
// identifiers, comments and @@server_globals are skipped. When ordinal is set
// the returned text has every placeholder replaced by its $n position.
func scanPlaceholders(text string, ordinal bool) (string, []string) {
	var (
		out   strings.Builder
		names []string
		index = map[string]int{}
	)
	out.Grow(len(text))

	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == '\'' || c == '"' || c == '[':
			end := closingDelimiter(text, i)
			out.WriteString(text[i:end])
			i = end
		case c == '-' && i+1 < len(text) && text[i+1] == '-':
			end := strings.IndexByte(text[i:], '\n')
			if end < 0 {
				end = len(text)
			} else {
				end += i
			}
			out.WriteString(text[i:end])
			i = end
		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				end = len(text)
			} else {
				end += i + 4
			}
			out.WriteString(text[i:end])
			i = end
		case c == '@' && i+1 < len(text) && text[i+1] == '@':
			j := i + 2
			for j < len(text) && isNameByte(text[j]) {
				j++
			}
			out.WriteString(text[i:j])
			i = j
		case c == '@' && i+1 < len(text) && isNameStart(text[i+1]):
			j := i + 1
			for j < len(text) && isNameByte(text[j]) {
				j++
			}
			name := text[i+1 : j]
			pos, seen := index[name]
			if !seen {
				names = append(names, name)
				pos = len(names)
				index[name] = pos
			}
			if ordinal {
				out.WriteString("$" + strconv.Itoa(pos))
			} else {
				out.WriteString(text[i:j])
			}
			i = j
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String(), names
}

// closingDelimiter returns the index just past the quoted region opened at
// start. Doubled closing characters are treated as escapes.
func closingDelimiter(text string, start int) int {
	closing := text[start]
	if closing == '[' {
		closing = ']'
	}
	for i := start + 1; i < len(text); i++ {
		if text[i] != closing {
			continue
		}
		if i+1 < len(text) && text[i+1] == closing {
			i++
			continue
		}
		return i + 1
	}
	return len(text)
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameByte(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}
