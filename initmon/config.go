package initmon

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"git.unix.lgbt/diamondburned/initmon/initmon/exec"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// MaxChildren is the default capacity of the process table, i.e. the maximum
// number of children a configuration may describe.
var MaxChildren = 32

// ChildSpec describes one supervised child. It is not modified after being
// loaded.
type ChildSpec struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
	Input   string   `json:"input"`
	Output  string   `json:"output"`
}

// Validate checks the shape of the ChildSpec.
func (spec ChildSpec) Validate() error {
	switch {
	case spec.Command == "":
		return errors.New("missing command")
	case len(spec.Args) == 0:
		return errors.New("empty argument vector")
	case spec.Input == "":
		return errors.New("missing input file")
	case spec.Output == "":
		return errors.New("missing output file")
	}
	return nil
}

// String formats the ChildSpec back into its configuration line.
func (spec ChildSpec) String() string {
	fields := make([]string, 0, len(spec.Args)+2)
	fields = append(fields, spec.Args...)
	fields = append(fields, spec.Input, spec.Output)
	return strings.Join(fields, " ")
}

func (spec ChildSpec) command(slot int) exec.Command {
	return exec.Command{
		Slot:   slot,
		Path:   spec.Command,
		Args:   slices.Clone(spec.Args),
		Stdin:  spec.Input,
		Stdout: spec.Output,
	}
}

// ConfigWarning describes a configuration line that was skipped.
type ConfigWarning struct {
	Line   int    `json:"line"` // 1-indexed
	Reason string `json:"reason"`
}

func (w ConfigWarning) String() string {
	return fmt.Sprintf("line %d: %s", w.Line, w.Reason)
}

// Parse parses the configuration. Each non-empty line describes a child:
//
//	command [args...] input_file output_file
//
// The command is also the first argument. Lines starting with # are comments.
// Lines with fewer than 3 fields are skipped with a warning, and so is
// everything after the first max children.
func Parse(r io.Reader, max int) ([]ChildSpec, []ConfigWarning, error) {
	var specs []ChildSpec
	var warnings []ConfigWarning

	scanner := bufio.NewScanner(r)

	for line := 1; scanner.Scan(); line++ {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		if len(fields) < 3 {
			warnings = append(warnings, ConfigWarning{
				Line:   line,
				Reason: fmt.Sprintf("invalid config line: need at least 3 fields, got %d", len(fields)),
			})
			continue
		}

		if len(specs) >= max {
			warnings = append(warnings, ConfigWarning{
				Line:   line,
				Reason: fmt.Sprintf("maximum number of processes (%d) reached", max),
			})
			break
		}

		n := len(fields)
		specs = append(specs, ChildSpec{
			Command: fields[0],
			Args:    fields[:n-2:n-2],
			Input:   fields[n-2],
			Output:  fields[n-1],
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "failed to read config")
	}

	return specs, warnings, nil
}

// LoadConfig parses the configuration file at path.
func LoadConfig(path string, max int) ([]ChildSpec, []ConfigWarning, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open config file")
	}
	defer f.Close()

	return Parse(f, max)
}

// Snapshot is the configuration in effect.
type Snapshot struct {
	Path     string
	Children []ChildSpec
	Loaded   time.Time
}

// LoadSnapshot loads the configuration file at path and journals every
// warning and the result.
func LoadSnapshot(path string, max int, j Journaler) (*Snapshot, error) {
	specs, warnings, err := LoadConfig(path, max)
	if err != nil {
		return nil, err
	}

	for _, w := range warnings {
		j.Write(&EventConfigWarning{
			Path:   path,
			Line:   w.Line,
			Reason: w.Reason,
		})
	}

	j.Write(&EventConfigLoaded{
		Path:     path,
		Children: len(specs),
		Skipped:  len(warnings),
	})

	return &Snapshot{
		Path:     path,
		Children: specs,
		Loaded:   time.Now(),
	}, nil
}
