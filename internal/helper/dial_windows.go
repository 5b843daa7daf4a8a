//go:build windows

package helper

import (
	"net"

	"github.com/Microsoft/go-winio"
)

func init() {
	dialPipe = func(name string) (net.Conn, error) {
		timeout := connectTimeout
		return winio.DialPipe(name, &timeout)
	}
}
