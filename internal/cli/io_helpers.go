package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func promptConfirm(prompt string) (bool, error) {
	if !stdinIsTTY() {
		return false, errors.New("confirmation required (rerun with --yes in non-interactive mode)")
	}
	fmt.Fprint(stdout, prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func stdinIsTTY() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// fieldFlags collects repeated --field key=value flags.
type fieldFlags map[string]string

func (f fieldFlags) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+f[k])
	}
	return strings.Join(parts, ",")
}

func (f fieldFlags) Set(raw string) error {
	k, v, ok := strings.Cut(raw, "=")
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return fmt.Errorf("expected key=value, got %q", raw)
	}
	f[k] = strings.TrimSpace(v)
	return nil
}

// parseAssignments reads positional key=value arguments.
func parseAssignments(args []string) (map[string]string, error) {
	out := fieldFlags{}
	for _, a := range args {
		if err := out.Set(a); err != nil {
			return nil, err
		}
	}
	return out, nil
}
