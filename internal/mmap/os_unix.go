//go:build unix || linux || darwin || freebsd || openbsd || netbsd

package mmap

import (
	"os"

	"golang.org/x/sys/unix"
)

func mapFile(f *os.File, size int) ([]byte, func([]byte) error, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}
	return data, unix.Munmap, nil
}

func advise(data []byte, advice Advice) error {
	flag := unix.MADV_NORMAL
	switch advice {
	case Sequential:
		flag = unix.MADV_SEQUENTIAL
	case Random:
		flag = unix.MADV_RANDOM
	}
	return unix.Madvise(data, flag)
}
