package bgen

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestBitReader(t *testing.T) {
	var target uint64 = 3
	data := make([]byte, 8) // Big enough to hold a uint64

	binary.LittleEndian.PutUint64(data, target)

	var val uint64
	br := newBitReader(bytes.NewBuffer(data))
	for i := 0; i < 8*len(data); i++ {
		truth, err := br.ReadBit()
		if err != nil {
			t.Fatal(err)
		}
		if truth {
			val |= 1 << uint(i)
		}
	}

	if target != val {
		t.Errorf("Got %d, expected %d", val, target)
	}
}

func TestBitReadUint(t *testing.T) {
	var target uint64 = 3
	data := make([]byte, 8) // Big enough to hold a uint64

	binary.LittleEndian.PutUint64(data, target)

	br := newBitReader(bytes.NewBuffer(data))

	val, err := br.ReadUint(8)
	if err != nil {
		t.Error(err)
	}

	if target != val {
		t.Errorf("Got %d, expected %d", val, target)
	}
}

func TestBitReadUintUnaligned(t *testing.T) {
	// 0xE6 = 1110 0110
	br := newBitReader(bytes.NewBuffer([]byte{0xE6, 0x34, 0x12}))

	cases := []struct {
		nbits int
		want  uint64
	}{
		{2, 2},
		{3, 1},
		{3, 7},
		{12, 0x234},
		{4, 1},
	}
	for _, c := range cases {
		got, err := br.ReadUint(c.nbits)
		if err != nil {
			t.Fatal(err)
		}
		if got != c.want {
			t.Errorf("ReadUint(%d): got %#x, expected %#x", c.nbits, got, c.want)
		}
	}

	if _, err := br.ReadUint(1); err == nil {
		t.Error("expected an error past the end of the data")
	}
}
