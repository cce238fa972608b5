package protocol

import "testing"

func TestChecksum(t *testing.T) {
	tests := []struct {
		line     string
		expected uint8
	}{
		{"", 0},
		{"N1 G28", 'N' ^ '1' ^ ' ' ^ 'G' ^ '2' ^ '8'},
		{"AA", 0},
		{"A", 'A'},
	}

	for _, test := range tests {
		if got := Checksum([]byte(test.line)); got != test.expected {
			t.Errorf("Checksum(%q) = %d, expected %d", test.line, got, test.expected)
		}
	}

	// XOR of a line with itself appended is zero
	line := []byte("N12 G1 X10.5 Y-3")
	doubled := append(append([]byte{}, line...), line...)
	if Checksum(doubled) != 0 {
		t.Errorf("Expected zero checksum for doubled line, got %d", Checksum(doubled))
	}
}

func TestAppendChecksum(t *testing.T) {
	framed := AppendChecksum("N1 G28")
	expected := "N1 G28*" + itoa(int(Checksum([]byte("N1 G28"))))
	if framed != expected {
		t.Errorf("Expected %q, got %q", expected, framed)
	}
}
