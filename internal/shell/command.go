// Package shell runs a line-oriented command interpreter over a datastore.
package shell

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Command is one parsed shell line.
//
// The meaning of Key and Val depends on the command (e.g. GET, SET, DELETE).
type Command struct {
	Cmd string // lower-cased command name
	Key string // may be empty
	Val string // may be empty
}

var ErrEmptyLine = errors.New("empty command line")

// arity is the number of arguments each command takes.
var arity = map[string]int{
	"get":      1,
	"set":      2,
	"delete":   1,
	"exists":   1,
	"count":    0,
	"list":     0,
	"sync":     0,
	"stats":    0,
	"recovery": 0,
	"help":     0,
	"exit":     0,
}

// ParseCommand splits line with shell quoting rules, so
//
//	set city "new york"
//
// stores a value containing a space.
func ParseCommand(line string) (*Command, error) {
	words, err := shellquote.Split(line)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", line, err)
	}
	if len(words) == 0 {
		return nil, ErrEmptyLine
	}

	cmd := &Command{Cmd: strings.ToLower(words[0])}
	args := words[1:]

	want, known := arity[cmd.Cmd]
	if !known {
		return cmd, nil
	}
	if len(args) != want {
		return nil, fmt.Errorf("%s takes %d argument(s), got %d", cmd.Cmd, want, len(args))
	}

	if want > 0 {
		cmd.Key = args[0]
	}
	if want > 1 {
		cmd.Val = args[1]
	}
	return cmd, nil
}
