//go:build !linux

package script

// limitAddressSpace is a no-op where RLIMIT_AS is unavailable or unreliable;
// the worker then relies on its soft memory limit alone.
func limitAddressSpace(int64) error {
	return nil
}
