//go:build !linux

package exec

import "syscall"

func setSubreaper() error { return nil }

func sysProcAttr() *syscall.SysProcAttr { return nil }
