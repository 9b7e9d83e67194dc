//go:build linux || darwin || freebsd

package fota

import "golang.org/x/sys/unix"

// freeSpace returns the bytes available to unprivileged users in the
// filesystem containing dir.
func freeSpace(dir string) (uint64, bool, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, false, err
	}
	return uint64(st.Bavail) * uint64(st.Bsize), true, nil
}
