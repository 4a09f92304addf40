//go:build !linux

package launch

func setProcTitle(title string) {}
