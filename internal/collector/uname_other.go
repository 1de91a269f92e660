//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package collector

func readUname() (unameFields, error) {
	return unameFields{}, ErrUnavailable
}
