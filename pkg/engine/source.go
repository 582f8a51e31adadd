package engine

import "strings"

// kwPrefix marks keyword names rewritten by preprocessSource.
const kwPrefix = "__kw_"

// preprocessSource rewrites script source into what zygomys accepts:
//
//   - :name becomes the string "__kw_name", so keywords need no global
//     symbol and cannot collide with a variable of the same name.
//   - save-stl becomes save_stl. zygomys reads a hyphen as subtraction;
//     only a hyphen between identifier characters is rewritten.
//   - ; comments become // comments.
//
// String literals, both "..." and `...`, pass through untouched.
func preprocessSource(source string) string {
	var out strings.Builder
	out.Grow(len(source) + len(source)/4)
	b := source
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c == '"' || c == '`':
			j := literalEnd(b, i)
			out.WriteString(b[i:j])
			i = j
		case c == ';':
			for i < len(b) && b[i] == ';' {
				i++
			}
			j := strings.IndexByte(b[i:], '\n')
			if j < 0 {
				j = len(b) - i
			}
			out.WriteString("//")
			out.WriteString(b[i : i+j])
			i += j
		case c == ':' && i+1 < len(b) && b[i+1] == '=':
			out.WriteString(":=")
			i += 2
		case c == ':' && i+1 < len(b) && isLetter(b[i+1]):
			j := i + 1
			for j < len(b) && isKWChar(b[j]) {
				j++
			}
			out.WriteString(`"` + kwPrefix + b[i+1:j] + `"`)
			i = j
		case c == '-' && i > 0 && i+1 < len(b) && isIdentChar(b[i-1]) && isLetter(b[i+1]):
			out.WriteByte('_')
			i++
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String()
}

// literalEnd returns the index just past the string literal opening at i.
// Double quoted literals honour backslash escapes.
func literalEnd(b string, i int) int {
	q := b[i]
	for j := i + 1; j < len(b); j++ {
		switch {
		case q == '"' && b[j] == '\\':
			j++
		case b[j] == q:
			return j + 1
		}
	}
	return len(b)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}
