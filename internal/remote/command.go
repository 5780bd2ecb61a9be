package remote

import (
	"errors"
	"fmt"
	"strconv"

	"mediaroom/internal/keys"
)

// MaxNumber is the exclusive upper bound for numeric commands
const MaxNumber = 999

// ErrUnknownCommand is returned for names missing from the key table and numbers outside [0, MaxNumber)
var ErrUnknownCommand = errors.New("unknown command")

// Command is either a symbolic key name or a number typed digit by digit
type Command struct {
	name    string
	number  int
	numeric bool
}

// Key creates a symbolic command such as "Power"
func Key(name string) Command {
	return Command{name: name}
}

// Number creates a numeric command such as a channel number
func Number(n int) Command {
	return Command{number: n, numeric: true}
}

// ParseCommand treats an all-digit string as a number and anything else as a key name
func ParseCommand(s string) Command {
	if s == "" || !isDigits(s) {
		return Key(s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// Too many digits for an int, never a valid channel
		return Number(-1)
	}
	return Number(n)
}

// IsNumeric reports whether the command is a number
func (c Command) IsNumeric() bool {
	return c.numeric
}

func (c Command) String() string {
	if c.numeric {
		return strconv.Itoa(c.number)
	}
	return c.name
}

// Resolve maps the command to the key codes to press, in order
func (c Command) Resolve(table keys.Table) ([]keys.Code, error) {
	if !c.numeric {
		code, ok := table.Lookup(c.name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, c.name)
		}
		return []keys.Code{code}, nil
	}

	if c.number < 0 || c.number >= MaxNumber {
		return nil, fmt.Errorf("%w: %d is outside [0, %d)", ErrUnknownCommand, c.number, MaxNumber)
	}

	digits := strconv.Itoa(c.number)
	codes := make([]keys.Code, 0, len(digits))
	for _, r := range digits {
		code, err := table.Digit(int(r - '0'))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnknownCommand, err)
		}
		codes = append(codes, code)
	}
	return codes, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
