//go:build darwin

package enforcer

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// getPeerCredentials extracts peer credentials from a Unix socket connection
// using the LOCAL_PEERCRED and LOCAL_PEERPID socket options.
func getPeerCredentials(conn net.Conn) (*PeerCredentials, error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, fmt.Errorf("enforcer: auth: not a Unix socket connection")
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("enforcer: auth: get syscall conn: %w", err)
	}
	var (
		cred    *unix.Xucred
		pid     int
		credErr error
	)
	err = raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptXucred(int(fd), unix.SOL_LOCAL, unix.LOCAL_PEERCRED)
		if credErr != nil {
			return
		}
		// PID is a separate option on Darwin; failure to get it is not
		// fatal since authorization only needs uid and gid.
		pid, _ = unix.GetsockoptInt(int(fd), unix.SOL_LOCAL, unix.LOCAL_PEERPID)
	})
	if err != nil {
		return nil, fmt.Errorf("enforcer: auth: control: %w", err)
	}
	if credErr != nil {
		return nil, fmt.Errorf("enforcer: auth: getsockopt LOCAL_PEERCRED: %w", credErr)
	}
	pc := &PeerCredentials{
		PID: uint32(pid),
		UID: cred.Uid,
	}
	if cred.Ngroups > 0 {
		pc.GID = cred.Groups[0]
	}
	return pc, nil
}
