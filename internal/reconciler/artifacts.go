package reconciler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"crawlfleet/pkg/constants"
)

var errMissingRows = errors.New("results have no rows field")

// readProgressIndex reads the plain-text progress index from an output dir
func readProgressIndex(outputDir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(outputDir, constants.ProgressIndexFile))
	if err != nil {
		return 0, err
	}
	index, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed progress index: %w", err)
	}
	return index, nil
}

type results struct {
	Rows *[]json.RawMessage `json:"rows"`
}

// readPackageCount reads the results file and returns its row count
func readPackageCount(outputDir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(outputDir, constants.ResultsFile))
	if err != nil {
		return 0, err
	}
	var r results
	if err := json.Unmarshal(data, &r); err != nil {
		return 0, fmt.Errorf("malformed results: %w", err)
	}
	if r.Rows == nil {
		return 0, errMissingRows
	}
	return len(*r.Rows), nil
}

// logHasSentinel reports whether the log at path contains the completion
// sentinel. A missing log has no sentinel.
func logHasSentinel(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()
	return containsSentinel(f, []byte(constants.DoneSentinel))
}

// containsSentinel scans r in chunks, carrying over enough bytes to match a
// sentinel split across reads.
func containsSentinel(r io.Reader, sentinel []byte) (bool, error) {
	buf := make([]byte, 64*1024)
	carry := 0
	for {
		n, err := r.Read(buf[carry:])
		window := buf[:carry+n]
		if bytes.Contains(window, sentinel) {
			return true, nil
		}
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}

		keep := len(sentinel) - 1
		if keep > len(window) {
			keep = len(window)
		}
		copy(buf, window[len(window)-keep:])
		carry = keep
	}
}
