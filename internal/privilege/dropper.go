// Package privilege drops root privileges after the HTTP listener has
// bound its port, the same "bind low, then drop" sequence as
// original_source/podping/src/main.rs's set_user_group call (invoked right
// after net.Listen in cmd/gateway). Failure here is logged and ignored:
// on a host where the gateway already runs unprivileged, or where the
// group "nogroup" does not exist, dropping is a best-effort hardening
// step, not a hard startup requirement.
package privilege

import (
	"fmt"
	"os/user"
	"strconv"
	"syscall"
)

// DropTo switches the process to runAsUser and the "nogroup" group. An
// empty runAsUser is a no-op (stay as the current user).
func DropTo(runAsUser string) error {
	if runAsUser == "" {
		return nil
	}

	u, err := user.Lookup(runAsUser)
	if err != nil {
		return fmt.Errorf("privilege: lookup user %q: %w", runAsUser, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("privilege: parse uid %q: %w", u.Uid, err)
	}

	gid := -1
	if g, err := user.LookupGroup("nogroup"); err == nil {
		if parsed, err := strconv.Atoi(g.Gid); err == nil {
			gid = parsed
		}
	}
	if gid < 0 {
		// Fall back to the target user's own primary group when "nogroup"
		// isn't present on this host.
		parsed, err := strconv.Atoi(u.Gid)
		if err != nil {
			return fmt.Errorf("privilege: parse gid %q: %w", u.Gid, err)
		}
		gid = parsed
	}

	if err := syscall.Setgid(gid); err != nil {
		return fmt.Errorf("privilege: setgid(%d): %w", gid, err)
	}
	if err := syscall.Setuid(uid); err != nil {
		return fmt.Errorf("privilege: setuid(%d): %w", uid, err)
	}
	return nil
}
