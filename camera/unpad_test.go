package camera

import (
	"bytes"
	"testing"
)

func TestUnpadNoPadding(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5, 6, 7}
	for _, stride := range []int{0, 3} {
		out, err := Unpad(buf, stride, 3, 2)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(out, []byte{1, 2, 3, 4, 5, 6}) {
			t.Errorf("stride %d: got %v", stride, out)
		}
		if &out[0] != &buf[0] {
			t.Errorf("stride %d: buffer was copied", stride)
		}
	}
}

func TestUnpadStrips(t *testing.T) {
	buf := []byte{1, 2, 0, 0, 3, 4, 0, 0, 5, 6}
	out, err := Unpad(buf, 4, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if exp := []byte{1, 2, 3, 4, 5, 6}; !bytes.Equal(out, exp) {
		t.Errorf("expected %v got %v", exp, out)
	}
}

func TestUnpadErrors(t *testing.T) {
	cases := []struct {
		name                   string
		buf                    int
		stride, lineBytes, nln int
	}{
		{"short stride", 100, 2, 4, 2},
		{"short padded buffer", 9, 4, 2, 3},
		{"short packed buffer", 5, 0, 3, 2},
	}
	for _, c := range cases {
		if _, err := Unpad(make([]byte, c.buf), c.stride, c.lineBytes, c.nln); err == nil {
			t.Errorf("%s: expected an error", c.name)
		}
	}
}
