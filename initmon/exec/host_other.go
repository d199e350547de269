//go:build !linux

package exec

import (
	"os"

	"github.com/pkg/errors"
)

// HostOptions configures the process host returned by NewHost.
type HostOptions struct {
	Executable string
	Report     *os.File
}

// NewHost returns an error: the launch shim and the subreaper are Linux-only.
func NewHost(opts HostOptions) (Host, error) {
	return nil, errors.New("process host is only supported on linux")
}
