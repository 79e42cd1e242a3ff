package domain

import (
	"fmt"
	"strings"
)

// Command is a lifecycle action issued against one or more tasks.
type Command string

const (
	CommandPause  Command = "pause"
	CommandResume Command = "resume"
	CommandStop   Command = "stop"
)

func ParseCommand(s string) (Command, error) {
	c := Command(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case CommandPause, CommandResume, CommandStop:
		return c, nil
	}
	return "", fmt.Errorf("unknown command %q", s)
}
