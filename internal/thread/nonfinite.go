package thread

import (
	"bytes"
	"math"
)

// substituteNonFinite replaces the bare NaN, Infinity and -Infinity tokens
// Python's json module writes by default with the number 0, so the standard
// decoder accepts the line. The returned map is keyed by the ordinal of the
// number token among all number tokens of the line, in document order, and
// holds the value the token stood for. It is nil when there was nothing to
// replace, in which case line is returned as is.
func substituteNonFinite(line []byte) ([]byte, map[int]float64) {
	if !bytes.Contains(line, []byte("NaN")) && !bytes.Contains(line, []byte("Infinity")) {
		return line, nil
	}

	var (
		out      = make([]byte, 0, len(line))
		values   map[int]float64
		ordinal  int
		inString bool
	)
	replace := func(v float64) {
		if values == nil {
			values = make(map[int]float64)
		}
		values[ordinal] = v
		ordinal++
		out = append(out, '0')
	}

	for i := 0; i < len(line); {
		c := line[i]
		if inString {
			out = append(out, c)
			switch c {
			case '\\':
				if i+1 < len(line) {
					out = append(out, line[i+1])
					i++
				}
			case '"':
				inString = false
			}
			i++
			continue
		}

		switch {
		case c == '"':
			inString = true
			out = append(out, c)
			i++
		case literalAt(line, out, i, "NaN"):
			replace(math.NaN())
			i += len("NaN")
		case literalAt(line, out, i, "Infinity"):
			replace(math.Inf(1))
			i += len("Infinity")
		case literalAt(line, out, i, "-Infinity"):
			replace(math.Inf(-1))
			i += len("-Infinity")
		case c == '-' || (c >= '0' && c <= '9'):
			j := i + 1
			for j < len(line) && isNumberByte(line[j]) {
				j++
			}
			out = append(out, line[i:j]...)
			ordinal++
			i = j
		default:
			out = append(out, c)
			i++
		}
	}

	if values == nil {
		return line, nil
	}
	return out, values
}

// literalAt reports whether lit starts at line[i] as a token of its own.
// A literal glued to a sign, a number or a word is left for the decoder
// to reject, so "-NaN" or "1NaN" never turn into valid numbers.
func literalAt(line, out []byte, i int, lit string) bool {
	if !bytes.HasPrefix(line[i:], []byte(lit)) {
		return false
	}
	if n := len(out); n > 0 && isWordByte(out[n-1]) {
		return false
	}
	if j := i + len(lit); j < len(line) && isWordByte(line[j]) {
		return false
	}
	return true
}

func isWordByte(c byte) bool {
	return isNumberByte(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isNumberByte(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-'
}
