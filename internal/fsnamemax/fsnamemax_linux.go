package fsnamemax

import "golang.org/x/sys/unix"

// Of returns the maximum filename length (in bytes) for the filesystem
// containing dir, via statfs(2)'s f_namelen field.
func Of(dir string) int {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return Fallback
	}
	if stat.Namelen <= 0 {
		return Fallback
	}
	return int(stat.Namelen)
}
