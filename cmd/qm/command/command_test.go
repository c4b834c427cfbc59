package command

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  *Command
		err   bool
	}{
		{
			name:  "no command provided",
			input: "",
			err:   true,
		},
		{
			name:  "help wanted --help",
			input: "--help",
			want:  &Command{HelpWanted: true},
		},
		{
			name:  "unrecognized subcommand",
			input: "unknown",
			err:   true,
		},
		{
			name:  "submit without a command is an error",
			input: "submit",
			err:   true,
		},
		{
			name:  "submit with a cmdline",
			input: "submit echo hello world",
			want:  &Command{SubCommand: Submit, Cmdline: "echo hello world"},
		},
		{
			name:  "submit with host flag",
			input: "submit --host=localhost:7654 echo hi",
			want:  &Command{SubCommand: Submit, Host: "localhost:7654", Cmdline: "echo hi"},
		},
		{
			name:  "remove without job-id is an error",
			input: "remove",
			err:   true,
		},
		{
			name:  "remove with job-id",
			input: "remove --job-id=42",
			want:  &Command{SubCommand: Remove, JobID: 42},
		},
		{
			name:  "kill with job-id",
			input: "kill --job-id=7 --host=10.0.0.1:7654",
			want:  &Command{SubCommand: Kill, JobID: 7, Host: "10.0.0.1:7654"},
		},
		{
			name:  "status",
			input: "status --host=localhost:7654",
			want:  &Command{SubCommand: Status, Host: "localhost:7654"},
		},
		{
			name:  "start",
			input: "start",
			want:  &Command{SubCommand: Start},
		},
		{
			name:  "stop",
			input: "stop",
			want:  &Command{SubCommand: Stop},
		},
		{
			name:  "daemon",
			input: "daemon",
			want:  &Command{SubCommand: Daemon},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var args []string
			if tt.input != "" {
				args = strings.Fields(tt.input)
			}
			got, err := NewCommand(args)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFlagRejectsUnknown(t *testing.T) {
	t.Parallel()

	_, _, err := ParseFlag("--nope")
	require.Error(t, err)
}
