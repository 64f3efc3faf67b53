package msconvert

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
)

// ExeName is the converter binary name, without extension.
const ExeName = "msconvert"

// candidateDirs are the usual ProteoWizard install locations checked when
// the binary is neither given explicitly nor on PATH.
var candidateDirs = []string{
	`C:\DMS_Programs\ProteoWizard`,
	`C:\Program Files\ProteoWizard`,
	`C:\Program Files (x86)\ProteoWizard`,
	`/usr/local/bin`,
	`/opt/proteowizard`,
}

// Locate finds the msconvert executable. An explicitly configured path wins;
// otherwise PATH is consulted, then the typical ProteoWizard install
// directories (including versioned subdirectories, newest first).
func Locate(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("configured msconvert path %s is not usable: %w", explicitPath, err)
		}
		return explicitPath, nil
	}

	if path, err := exec.LookPath(ExeName); err == nil {
		return path, nil
	}

	exe := ExeName
	if runtime.GOOS == "windows" {
		exe += ".exe"
	}

	for _, dir := range candidateDirs {
		if path, ok := findIn(dir, exe); ok {
			return path, nil
		}
	}

	return "", fmt.Errorf(
		"could not find %s; install ProteoWizard (typically under C:\\Program Files\\ProteoWizard or C:\\DMS_Programs\\ProteoWizard) or point --msconvert at the binary",
		ExeName)
}

// findIn checks dir and its immediate subdirectories (ProteoWizard installs
// versioned folders), preferring the lexically newest subdirectory.
func findIn(dir, exe string) (string, bool) {
	direct := filepath.Join(dir, exe)
	if info, err := os.Stat(direct); err == nil && !info.IsDir() {
		return direct, true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}

	var subdirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			subdirs = append(subdirs, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(subdirs)))

	for _, sub := range subdirs {
		nested := filepath.Join(dir, sub, exe)
		if info, err := os.Stat(nested); err == nil && !info.IsDir() {
			return nested, true
		}
	}
	return "", false
}
