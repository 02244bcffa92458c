package enforcer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/user"
	"strconv"
)

// PeerCredentials holds the peer credentials extracted from a Unix socket
// connection.
type PeerCredentials struct {
	PID uint32
	UID uint32
	GID uint32
}

// GroupChecker checks group membership for a given user.
type GroupChecker interface {
	// IsInGroup reports whether the user identified by uid belongs to the
	// named group, or if the user's primary group (gid) matches the group.
	IsInGroup(uid, gid uint32, groupName string) bool
}

// OSGroupChecker checks group membership using the OS user and group
// database.
type OSGroupChecker struct{}

func (OSGroupChecker) IsInGroup(uid, gid uint32, groupName string) bool {
	grp, err := user.LookupGroup(groupName)
	if err != nil {
		return false
	}
	groupGID, err := strconv.ParseUint(grp.Gid, 10, 32)
	if err != nil {
		return false
	}
	if gid == uint32(groupGID) {
		return true
	}
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return false
	}
	groupIDs, err := u.GroupIds()
	if err != nil {
		return false
	}
	for _, g := range groupIDs {
		if g == grp.Gid {
			return true
		}
	}
	return false
}

// PeerCredGetter extracts peer credentials from an HTTP request's underlying
// connection.
type PeerCredGetter interface {
	GetPeerCredentials(r *http.Request) (*PeerCredentials, error)
}

// peerCredKey is the context key for storing PeerCredentials.
type peerCredKey struct{}

// connContextWithPeerCred returns a ConnContext function for http.Server
// that extracts Unix socket peer credentials and stores them in the context.
func connContextWithPeerCred(logger *slog.Logger) func(ctx context.Context, c net.Conn) context.Context {
	return func(ctx context.Context, c net.Conn) context.Context {
		cred, err := getPeerCredentials(c)
		if err != nil {
			logger.Debug("failed to get peer credentials", "error", err)
			return ctx
		}
		return context.WithValue(ctx, peerCredKey{}, cred)
	}
}

// contextPeerCredGetter extracts peer credentials from the request context.
type contextPeerCredGetter struct{}

func (contextPeerCredGetter) GetPeerCredentials(r *http.Request) (*PeerCredentials, error) {
	cred, ok := r.Context().Value(peerCredKey{}).(*PeerCredentials)
	if !ok || cred == nil {
		return nil, fmt.Errorf("enforcer: peer credentials not available")
	}
	return cred, nil
}

// MutationAuthMiddleware returns HTTP middleware restricting access to rule
// mutation endpoints. Access is granted to root (UID 0) or processes whose
// user is a member of the named group. Everything else is rejected before the
// handler runs.
func MutationAuthMiddleware(checker GroupChecker, getter PeerCredGetter, group string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred, err := getter.GetPeerCredentials(r)
			if err != nil {
				logger.Error("failed to get peer credentials", "error", err)
				writeAuthError(w)
				return
			}
			if cred.UID == 0 {
				next.ServeHTTP(w, r)
				return
			}
			if checker.IsInGroup(cred.UID, cred.GID, group) {
				next.ServeHTTP(w, r)
				return
			}
			logger.Warn("rule mutation denied",
				"uid", cred.UID,
				"gid", cred.GID,
				"path", r.URL.Path,
			)
			writeAuthError(w)
		})
	}
}

func writeAuthError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "forbidden: insufficient privileges for rule mutation"})
}

// applySocketPermissions sets ownership and permissions on the daemon socket.
// If the configured group exists, the socket is chowned to root:group with
// mode 0660 so group members can connect. A missing group downgrades to 0666
// with a warning: the mutation endpoints still verify peer credentials.
func applySocketPermissions(socketPath, group string, logger *slog.Logger) {
	grp, err := user.LookupGroup(group)
	if err != nil {
		logger.Warn("socket group not found, using permissive socket permissions",
			"group", group,
			"error", err,
		)
		if err := os.Chmod(socketPath, 0o666); err != nil {
			logger.Warn("failed to chmod socket", "error", err)
		}
		return
	}
	gid, err := strconv.Atoi(grp.Gid)
	if err != nil {
		logger.Warn("failed to parse socket group gid", "gid", grp.Gid, "error", err)
		return
	}
	if err := os.Chown(socketPath, 0, gid); err != nil {
		logger.Warn("failed to chown socket", "error", err)
		return
	}
	if err := os.Chmod(socketPath, 0o660); err != nil {
		logger.Warn("failed to chmod socket", "error", err)
	}
}
