//go:build linux || darwin

package vm

import (
	"golang.org/x/sys/unix"
)

// unlimitedStack 超过这个值视为不限制
const unlimitedStack = 1 << 40

// platformStackLimit 读取 RLIMIT_STACK 的软限制
func platformStackLimit() int {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_STACK, &rl); err != nil {
		return defaultPlatformStack
	}
	if rl.Cur == 0 || rl.Cur >= unlimitedStack {
		return defaultPlatformStack
	}
	if rl.Cur > 1<<30 {
		return 1 << 30
	}
	return int(rl.Cur)
}
