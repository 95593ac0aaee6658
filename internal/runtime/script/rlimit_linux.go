package script

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"syscall"
)

// addressSpaceSlack covers thread stacks and runtime metadata that grow
// alongside the heap.
const addressSpaceSlack = 64 << 20

// limitAddressSpace caps the virtual memory of the calling process at what it
// already maps plus limit, so later allocations past that fail.
func limitAddressSpace(limit int64) error {
	mapped, err := mappedBytes()
	if err != nil {
		return err
	}
	ceiling := uint64(mapped) + uint64(limit) + addressSpaceSlack
	return syscall.Setrlimit(syscall.RLIMIT_AS, &syscall.Rlimit{Cur: ceiling, Max: ceiling})
}

func mappedBytes() (int64, error) {
	status, err := os.ReadFile("/proc/self/status")
	if err != nil {
		return 0, fmt.Errorf("read process status: %w", err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(status))
	for scanner.Scan() {
		fields := bytes.Fields(scanner.Bytes())
		if len(fields) == 3 && string(fields[0]) == "VmSize:" {
			kb, err := strconv.ParseInt(string(fields[1]), 10, 64)
			if err != nil {
				return 0, fmt.Errorf("parse VmSize: %w", err)
			}
			return kb << 10, nil
		}
	}
	return 0, fmt.Errorf("VmSize missing from process status")
}
