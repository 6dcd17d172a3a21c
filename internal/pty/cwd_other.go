//go:build !linux

package pty

import "errors"

func processCwd(int) (string, error) {
	return "", errors.New("process cwd not available on this platform")
}
