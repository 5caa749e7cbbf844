//go:build !unix

package cache

func isNoSpace(err error) bool {
	return false
}
