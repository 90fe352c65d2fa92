package onnxpolicy

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var ortInitOnce sync.Once
var ortInitErr error

// initRuntime locates the shared library and initialises the process-wide
// ORT environment once.
func initRuntime() error {
	if runtime.GOOS == "linux" {
		ensureLinuxLibraryPath()
		if p := os.Getenv("ORT_SHARED_LIBRARY_PATH"); p != "" {
			ort.SetSharedLibraryPath(p)
		} else if p := findLocalLibrary(); p != "" {
			ort.SetSharedLibraryPath(p)
		}
	}

	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return fmt.Errorf("failed to init ort: %w", ortInitErr)
	}
	return nil
}

func findLocalLibrary() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for _, name := range []string{"libonnxruntime.so", "libonnxruntime.so.1"} {
		abs := filepath.Join(cwd, name)
		if _, err := os.Stat(abs); err == nil {
			return abs
		}
	}
	return ""
}

// ensureLinuxLibraryPath prepends the working directory and any pip-installed
// CUDA library folders under .venv to LD_LIBRARY_PATH.
func ensureLinuxLibraryPath() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	candidateDirs := []string{cwd}
	patterns := []string{
		filepath.Join(cwd, ".venv", "lib", "python*", "site-packages", "nvidia", "*", "lib"),
		filepath.Join(cwd, ".venv", "lib", "python*", "site-packages", "onnxruntime", "capi"),
	}
	for _, pat := range patterns {
		matches, _ := filepath.Glob(pat)
		candidateDirs = append(candidateDirs, matches...)
	}

	existing := os.Getenv("LD_LIBRARY_PATH")
	have := map[string]bool{}
	for _, p := range strings.Split(existing, ":") {
		if p != "" {
			have[p] = true
		}
	}

	var add []string
	for _, d := range candidateDirs {
		if have[d] {
			continue
		}
		if st, err := os.Stat(d); err == nil && st.IsDir() {
			add = append(add, d)
		}
	}
	if len(add) == 0 {
		return
	}

	val := strings.Join(add, ":")
	if existing != "" {
		val = val + ":" + existing
	}
	_ = os.Setenv("LD_LIBRARY_PATH", val)
}
