//go:build !(linux || darwin || freebsd)

package sourcefile

func platformAccelerator() Accelerator { return nil }
