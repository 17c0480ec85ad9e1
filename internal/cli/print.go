package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// subcommandsAnnotation marks a command whose Long text already lists its subcommands.
const subcommandsAnnotation = "runcheck/subcommands-listed"

// out writes formatted output, ignoring write errors.
func out(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

// outln writes a line, ignoring write errors.
func outln(w io.Writer, args ...any) {
	_, _ = fmt.Fprintln(w, args...)
}

// walkCommands visits every command in the tree depth-first.
func walkCommands(cmd *cobra.Command, fn func(*cobra.Command)) {
	fn(cmd)
	for _, sub := range cmd.Commands() {
		walkCommands(sub, fn)
	}
}

// listSubcommands appends the available subcommands to a parent command's
// Long description. It runs once per command.
func listSubcommands(cmd *cobra.Command) {
	if !cmd.HasParent() || !cmd.HasSubCommands() {
		return
	}
	if _, done := cmd.Annotations[subcommandsAnnotation]; done {
		return
	}

	var sb strings.Builder
	sb.WriteString(cmd.Long)
	sb.WriteString("\n\nSubcommands:\n")
	for _, sub := range cmd.Commands() {
		if sub.IsAvailableCommand() {
			fmt.Fprintf(&sb, "  %-16s %s\n", sub.Name(), sub.Short)
		}
	}
	cmd.Long = sb.String()

	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[subcommandsAnnotation] = "true"
}
