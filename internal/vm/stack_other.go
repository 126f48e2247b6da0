//go:build !linux && !darwin

package vm

func platformStackLimit() int {
	return defaultPlatformStack
}
