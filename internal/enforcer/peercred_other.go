//go:build !linux && !darwin

package enforcer

import (
	"fmt"
	"net"
)

// getPeerCredentials is unavailable on platforms without Unix socket peer
// credentials. Mutation endpoints reject all requests there.
func getPeerCredentials(_ net.Conn) (*PeerCredentials, error) {
	return nil, fmt.Errorf("enforcer: auth: peer credentials unsupported on this platform")
}
