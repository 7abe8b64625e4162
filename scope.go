package dogapi

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Scope is the host and device a submitted metric or event applies to.
type Scope struct {
	Host   string
	Device string
}

func NewScope(host, device string) Scope {
	return Scope{Host: host, Device: device}
}

var localhost struct {
	once sync.Once
	name string
	err  error
}

// FindLocalhost returns the fully qualified name of this machine. The result is
// computed once per process.
func FindLocalhost() (string, error) {
	localhost.once.Do(func() {
		localhost.name, localhost.err = lookupFQDN()
	})
	return localhost.name, localhost.err
}

func lookupFQDN() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if out, err := exec.CommandContext(ctx, "hostname", "-f").Output(); err == nil {
		if name := strings.TrimSpace(string(out)); name != "" {
			return name, nil
		}
	}

	name, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("cannot determine local hostname: %w", err)
	}
	return name, nil
}
