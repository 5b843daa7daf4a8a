//go:build !windows

package helper

import (
	"fmt"
	"net"
)

func init() {
	dialPipe = func(name string) (net.Conn, error) {
		return nil, fmt.Errorf("helper: session-0 bridge is not supported on this platform")
	}
}
