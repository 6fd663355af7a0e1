package thread

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// valueDecoder builds plain JSON values from a token stream. Numbers stay
// json.Number, except the ones standing in for non-finite literals, which
// become the float64 they denote.
type valueDecoder struct {
	dec       *json.Decoder
	numbers   int
	nonFinite map[int]float64
	depth     int
}

// token reads the next token. Running out of input inside an object or
// array is reported as io.ErrUnexpectedEOF.
func (d *valueDecoder) token() (json.Token, error) {
	tok, err := d.dec.Token()
	if errors.Is(err, io.EOF) && d.depth > 0 {
		return nil, io.ErrUnexpectedEOF
	}
	return tok, err
}

func (d *valueDecoder) value() (any, error) {
	tok, err := d.token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			d.depth++
			defer func() { d.depth-- }()
			return d.object()
		case '[':
			d.depth++
			defer func() { d.depth-- }()
			return d.array()
		}
		return nil, fmt.Errorf("unexpected %q", rune(t))
	case json.Number:
		n := d.numbers
		d.numbers++
		if f, ok := d.nonFinite[n]; ok {
			return f, nil
		}
		return t, nil
	default: // string, bool, nil
		return t, nil
	}
}

func (d *valueDecoder) object() (map[string]any, error) {
	obj := make(map[string]any)
	for d.dec.More() {
		tok, err := d.token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("object key %v is not a string", tok)
		}
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		obj[key] = v // last duplicate wins, as in Python
	}
	if _, err := d.token(); err != nil {
		return nil, err
	}
	return obj, nil
}

func (d *valueDecoder) array() ([]any, error) {
	arr := []any{}
	for d.dec.More() {
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)
	}
	if _, err := d.token(); err != nil {
		return nil, err
	}
	return arr, nil
}
