//go:build !linux

package exec

import "github.com/pkg/errors"

func shim(reportFD int, stdin, stdout, path string, argv []string) error {
	return errors.New("launch shim is only supported on linux")
}
