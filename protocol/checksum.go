package protocol

// Checksum calculates the XOR checksum the host appends to numbered lines
// as "*<checksum>". It covers every byte before the '*'.
func Checksum(data []byte) uint8 {
	var cs uint8
	for _, b := range data {
		cs ^= b
	}
	return cs
}

// AppendChecksum returns line with its checksum suffix appended, the way a
// host frames a numbered line.
func AppendChecksum(line string) string {
	cs := Checksum([]byte(line))
	return line + string(ChecksumMarker) + itoa(int(cs))
}
