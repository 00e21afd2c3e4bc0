// Package fsnamemax reports the maximum filename length the destination
// filesystem allows, so the ZIM reader can skip titles too long to
// materialize as a file the same way the original converter does.
//
// Platform-specific Statfs field layouts mean only Linux exposes a
// namelen field through golang.org/x/sys/unix in a form worth trusting;
// other platforms fall back to a conservative constant.
package fsnamemax

// Fallback is used whenever the platform-specific probe is unavailable
// or fails: the lowest common denominator across ext4, APFS, and NTFS.
const Fallback = 255
