package model

import (
	"fmt"
	"strings"
)

var imageSanitizer = strings.NewReplacer("/", "-", ":", "-")

// WorkerName derives the unique worker (container) name from image, tag and id.
func WorkerName(image, tag string, id int) string {
	base := imageSanitizer.Replace(image)
	if tag == "" {
		return fmt.Sprintf("%s-%d", base, id)
	}
	return fmt.Sprintf("%s-%s-%d", base, tag, id)
}

// FileName derives the stem used for per-worker output, tmp and log files.
func FileName(tag string, id int) string {
	if tag == "" {
		return fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("%s_%d", tag, id)
}

// OutputDirName name of the worker output directory on the shared volume
func OutputDirName(tag string, id int) string {
	return FileName(tag, id) + "_output"
}

// TmpDirName name of the worker scratch directory on the shared volume
func TmpDirName(tag string, id int) string {
	return FileName(tag, id) + "_tmp"
}

// LogFileName name of the worker's combined stdout/stderr log
func LogFileName(tag string, id int) string {
	return FileName(tag, id) + "_container.log"
}
