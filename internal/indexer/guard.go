package indexer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// CheckNoOtherIndexer scans the process table for another dropindex process
// that writes the state database ("index" or "watch"). It is a best-effort
// guard, not a lock: two processes started in the same instant can both
// pass it.
func CheckNoOtherIndexer(ctx context.Context) error {
	out, err := exec.CommandContext(ctx, "ps", "ax", "-o", "pid=,command=").Output()
	if err != nil {
		// no usable ps: do not block indexing
		return nil
	}
	if pid, found := findIndexer(out, os.Getpid(), os.Getppid()); found {
		return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}
	return nil
}

// findIndexer returns the first pid in ps output, other than the excluded
// ones, whose command runs an indexing subcommand of the dropindex binary.
func findIndexer(psOutput []byte, exclude ...int) (int, bool) {
	sc := bufio.NewScanner(bytes.NewReader(psOutput))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil || isExcluded(pid, exclude) {
			continue
		}
		if filepath.Base(fields[1]) != "dropindex" {
			continue
		}
		for _, arg := range fields[2:] {
			if indexerCommands[arg] {
				return pid, true
			}
			if otherCommands[arg] {
				break
			}
		}
	}
	return 0, false
}

// indexerCommands run the indexer unattended. "mcp" is left out: an MCP
// server stays up for the client's whole session and only indexes on request,
// where the in-process lock covers it.
var indexerCommands = map[string]bool{"index": true, "watch": true}

// otherCommands end the argument scan so "dropindex search index" does not match
var otherCommands = map[string]bool{
	"search": true, "status": true, "ocr": true, "mcp": true,
	"probe": true, "version": true, "help": true,
}

func isExcluded(pid int, exclude []int) bool {
	for _, p := range exclude {
		if p == pid {
			return true
		}
	}
	return false
}
