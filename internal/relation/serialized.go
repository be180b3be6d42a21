package relation

import (
	"fmt"
	"strconv"
	"strings"

	"lms-migrate/internal/errors"
)

// decodeSerialized decodes the legacy serialized format the source LMS used
// for array metadata, e.g.
//
//	a:3:{i:0;i:12;i:1;s:2:"15";i:2;s:13:"Section Title";}
//
// Arrays decode to []any in key order; scalars decode to int64, float64,
// string, bool or nil. Objects are rejected. The whole input must be consumed.
func decodeSerialized(s string) (any, error) {
	d := &serialDecoder{s: s}
	v, err := d.value()
	if err != nil {
		return nil, err
	}
	if d.pos != len(d.s) {
		return nil, errors.Newf("serialized: trailing data at offset %d", d.pos)
	}
	return v, nil
}

// looksSerialized is a cheap prefix check so freeform text never reaches the decoder.
func looksSerialized(s string) bool {
	if len(s) < 2 {
		return false
	}
	switch s[0] {
	case 'a', 'i', 'd', 's', 'b':
		return s[1] == ':'
	case 'N':
		return s == "N;"
	}
	return false
}

type serialDecoder struct {
	s   string
	pos int
}

func (d *serialDecoder) value() (any, error) {
	if d.pos >= len(d.s) {
		return nil, errors.New("serialized: unexpected end of input")
	}
	tag := d.s[d.pos]
	switch tag {
	case 'N':
		if err := d.expect("N;"); err != nil {
			return nil, err
		}
		return nil, nil
	case 'i':
		d.pos++
		if err := d.expect(":"); err != nil {
			return nil, err
		}
		raw, err := d.until(';')
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errors.Newf("serialized: bad integer %q", raw)
		}
		return n, nil
	case 'd':
		d.pos++
		if err := d.expect(":"); err != nil {
			return nil, err
		}
		raw, err := d.until(';')
		if err != nil {
			return nil, err
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.Newf("serialized: bad float %q", raw)
		}
		return f, nil
	case 'b':
		d.pos++
		if err := d.expect(":"); err != nil {
			return nil, err
		}
		raw, err := d.until(';')
		if err != nil {
			return nil, err
		}
		return raw == "1", nil
	case 's':
		d.pos++
		if err := d.expect(":"); err != nil {
			return nil, err
		}
		raw, err := d.until(':')
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, errors.Newf("serialized: bad string length %q", raw)
		}
		if err := d.expect(`"`); err != nil {
			return nil, err
		}
		if d.pos+n > len(d.s) {
			return nil, errors.Newf("serialized: string length %d overruns input", n)
		}
		str := d.s[d.pos : d.pos+n]
		d.pos += n
		if err := d.expect(`";`); err != nil {
			return nil, err
		}
		return str, nil
	case 'a':
		d.pos++
		if err := d.expect(":"); err != nil {
			return nil, err
		}
		raw, err := d.until(':')
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, errors.Newf("serialized: bad array length %q", raw)
		}
		if err := d.expect("{"); err != nil {
			return nil, err
		}
		out := make([]any, 0, n)
		for i := 0; i < n; i++ {
			if _, err := d.value(); err != nil { // key
				return nil, err
			}
			v, err := d.value()
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		if err := d.expect("}"); err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, errors.Newf("serialized: unsupported type %q at offset %d", tag, d.pos)
}

func (d *serialDecoder) expect(lit string) error {
	if !strings.HasPrefix(d.s[d.pos:], lit) {
		return errors.Newf("serialized: expected %q at offset %d", lit, d.pos)
	}
	d.pos += len(lit)
	return nil
}

func (d *serialDecoder) until(stop byte) (string, error) {
	i := strings.IndexByte(d.s[d.pos:], stop)
	if i < 0 {
		return "", errors.Newf("serialized: missing %q after offset %d", stop, d.pos)
	}
	raw := d.s[d.pos : d.pos+i]
	d.pos += i + 1
	return raw, nil
}

// EncodeSerialized writes ids in the legacy serialized array format. It is the
// inverse of the decoder for integer lists and is what tests and fixtures use.
func EncodeSerialized(ids []int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "a:%d:{", len(ids))
	for i, id := range ids {
		fmt.Fprintf(&b, "i:%d;i:%d;", i, id)
	}
	b.WriteString("}")
	return b.String()
}

// EncodeSerializedStrings is EncodeSerialized for mixed string entries, the
// way the source stored curricula with inline section titles.
func EncodeSerializedStrings(items []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "a:%d:{", len(items))
	for i, s := range items {
		fmt.Fprintf(&b, "i:%d;s:%d:\"%s\";", i, len(s), s)
	}
	b.WriteString("}")
	return b.String()
}
