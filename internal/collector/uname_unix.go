//go:build linux || darwin || freebsd || netbsd || openbsd

package collector

import (
	"golang.org/x/sys/unix"
)

func readUname() (unameFields, error) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return unameFields{}, err
	}
	return unameFields{
		Version: unix.ByteSliceToString(u.Version[:]),
		Release: unix.ByteSliceToString(u.Release[:]),
		Machine: unix.ByteSliceToString(u.Machine[:]),
	}, nil
}
