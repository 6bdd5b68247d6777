package agent

import (
	"fmt"
	"strings"
)

// Per-tool output caps applied before a result is fed back to the model.
// read_file enforces its own 10k cap and marker, so its limit here sits
// above that and never fires.
var defaultToolCharLimits = map[string]int{
	ToolReadFile:  20000,
	ToolRunScript: 30000,
	ToolListFiles: 20000,
	ToolWriteFile: 1000,
}

const fallbackCharLimit = 30000

// truncateMiddle keeps the head and tail of output, cutting the middle. Tool
// failures often show up at both ends (the command echo and the final error),
// so both are preserved.
func truncateMiddle(output string, maxChars int) string {
	if len(output) <= maxChars {
		return output
	}
	half := maxChars / 2
	removed := len(output) - maxChars
	return output[:half] +
		fmt.Sprintf("\n\n[NOTE: tool output was truncated; %d characters were removed from the middle. "+
			"Re-run the tool with more targeted parameters to see specific parts.]\n\n", removed) +
		output[len(output)-half:]
}

// TruncateLines caps output at maxLines using a head/tail split.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return output
	}
	head := maxLines / 2
	tail := maxLines - head
	omitted := len(lines) - head - tail
	return strings.Join(lines[:head], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tail:], "\n")
}

// TruncateToolOutput applies the per-tool character cap to raw tool output.
func TruncateToolOutput(output, toolName string) string {
	maxChars, ok := defaultToolCharLimits[toolName]
	if !ok {
		maxChars = fallbackCharLimit
	}
	return truncateMiddle(output, maxChars)
}
