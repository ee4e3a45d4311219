package executor

import (
	"os/exec"
	"strings"
)

// ProbeAlignerVersion runs "<binary> --version" and returns the first
// line of output. The sweep records it as provenance so results from
// different aligner builds stay distinguishable.
func ProbeAlignerVersion(binary string) (string, error) {
	out, err := exec.Command(binary, "--version").Output()
	if err != nil {
		return "", &ToolError{Binary: binary, Err: err}
	}

	version := strings.TrimSpace(string(out))
	if idx := strings.IndexByte(version, '\n'); idx >= 0 {
		version = strings.TrimSpace(version[:idx])
	}

	return version, nil
}
