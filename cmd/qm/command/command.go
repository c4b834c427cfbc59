// Package command parses qm's argv into a Command: a subcommand, a
// handful of flags, and (for submit) the raw remote command-line.
package command

import (
	"fmt"
	"strconv"
	"strings"
)

type SubCommand int

const (
	Daemon SubCommand = iota
	Submit
	Remove
	Kill
	Status
	Start
	Stop
)

var subCommandStrings = [...]string{
	"daemon",
	"submit",
	"remove",
	"kill",
	"status",
	"start",
	"stop",
}

func ParseSubCommand(s string) (SubCommand, error) {
	for i, v := range subCommandStrings {
		if v == s {
			return SubCommand(i), nil
		}
	}
	return 0, fmt.Errorf("unsupported subcommand: %s", s)
}

type Flag int

const (
	Help Flag = iota
	Host
	JobID
)

var (
	flagStrings = [...]string{
		"--help",
		"--host",
		"--job-id",
	}
	flagStringMap = map[string]Flag{
		"--help":   Help,
		"-h":       Help,
		"--host":   Host,
		"-D":       Host,
		"--job-id": JobID,
	}
)

// ParseFlag parses a single "--flag" or "--flag=value" argument.
func ParseFlag(s string) (flag Flag, value string, err error) {
	parts := strings.SplitN(s, "=", 2)
	flag, ok := flagStringMap[parts[0]]
	if !ok {
		return 0, "", fmt.Errorf("unsupported flag: %s", s)
	}
	if len(parts) == 1 {
		return flag, "", nil
	}
	return flag, parts[1], nil
}

func (f Flag) String() string {
	return flagStrings[f]
}

// Command is a fully parsed invocation of qm.
type Command struct {
	SubCommand SubCommand
	Host       string
	JobID      uint64
	Cmdline    string
	HelpWanted bool
}

// NewCommand parses os.Args[1:] into a Command.
func NewCommand(args []string) (*Command, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no command provided")
	}

	c := &Command{}
	if args[0] == "--help" || args[0] == "-h" {
		c.HelpWanted = true
		return c, nil
	}

	sub, err := ParseSubCommand(args[0])
	if err != nil {
		return nil, err
	}
	c.SubCommand = sub

	args = args[1:]
	var cmdlineParts []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			cmdlineParts = append(cmdlineParts, args[i+1:]...)
			break
		}
		if len(arg) > 0 && arg[0] == '-' {
			flag, value, err := ParseFlag(arg)
			if err != nil {
				return nil, err
			}
			switch flag {
			case Help:
				c.HelpWanted = true
				return c, nil
			case Host:
				c.Host = value
			case JobID:
				id, err := strconv.ParseUint(value, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("invalid --job-id %q: %w", value, err)
				}
				c.JobID = id
			}
			continue
		}
		cmdlineParts = append(cmdlineParts, arg)
	}
	c.Cmdline = strings.Join(cmdlineParts, " ")

	switch c.SubCommand {
	case Submit:
		if c.Cmdline == "" {
			return nil, fmt.Errorf("no command provided to submit")
		}
	case Remove, Kill:
		if c.JobID == 0 {
			return nil, fmt.Errorf("no --job-id provided")
		}
	}
	return c, nil
}

const Usage = `
NAME
    qm - the qmanager command-line client

SYNOPSIS
    qm daemon
    qm submit [--host=address:port] -- <cmdline>
    qm remove --job-id=N [--host=address:port]
    qm kill --job-id=N [--host=address:port]
    qm status [--host=address:port]
    qm start [--host=address:port]
    qm stop [--host=address:port]
    qm [-h | --help]

NOTES
    qm daemon runs qmanagerd from PATH in the foreground. The daemon takes
    its settings from QMANAGER_* environment variables; --host has no
    effect on it.
`
