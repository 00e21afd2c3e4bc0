//go:build unix && !linux

package fsnamemax

// Of returns Fallback: unlike Linux, the BSD/Darwin Statfs_t layouts
// golang.org/x/sys/unix exposes don't carry a trustworthy namelen field,
// so this platform always assumes the conservative constant.
func Of(dir string) int {
	return Fallback
}
