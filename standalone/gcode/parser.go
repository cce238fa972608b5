package gcode

import (
	"errors"
	"strconv"
)

// ErrMissingNumber is returned for a command letter without a number, e.g. "G X10"
var ErrMissingNumber = errors.New("gcode: command letter without number")

// ParseLine parses a single line of G-code. Blank lines yield a nil
// command; comment-only lines yield a command with only Comment set.
func ParseLine(line string) (*Command, error) {
	i := skipBlanks(line, 0)
	if i >= len(line) {
		return nil, nil
	}

	cmd := &Command{
		Parameters: make(map[byte]float64),
		Text:       line,
	}

	// Check for comment
	if line[i] == ';' || line[i] == '(' {
		cmd.Comment = line[i:]
		return cmd, nil
	}

	// Parse command type (G, M, T)
	switch c := toUpper(line[i]); c {
	case 'G', 'M', 'T':
		cmd.Type = c
		i++

		n := scanInt(line[i:])
		if n == 0 {
			return nil, ErrMissingNumber
		}
		num, err := strconv.Atoi(trimBlanks(line[i : i+n]))
		if err != nil {
			return nil, ErrMissingNumber
		}
		cmd.Number = num
		i += n
	}

	// Parse parameters
	for i < len(line) {
		i = skipBlanks(line, i)
		if i >= len(line) {
			break
		}

		// Check for comment
		if line[i] == ';' || line[i] == '(' {
			cmd.Comment = line[i:]
			break
		}

		if !isLetter(line[i]) {
			i++
			continue
		}
		letter := toUpper(line[i])
		i++

		// A bare letter counts as present with value 0, as in "G28 X"
		n := scanFloat(line[i:])
		if n == 0 {
			cmd.Parameters[letter] = 0
			continue
		}
		cmd.Parameters[letter] = readFloat(line, i, i+n)
		i += n
	}

	return cmd, nil
}

// Argument returns the free text following the command word, used by
// commands such as M117 that take a message rather than parameters.
func (cmd *Command) Argument() string {
	s := cmd.Text
	i := skipBlanks(s, 0)
	if i < len(s) && isLetter(s[i]) {
		i++
		i += scanInt(s[i:])
	}
	if i < len(s) && s[i] == ' ' {
		i++
	}
	return s[i:]
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
