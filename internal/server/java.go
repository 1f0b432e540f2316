package server

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
)

// javaSearchPatterns are globs for java binaries in the usual JDK install roots
var javaSearchPatterns = map[string][]string{
	"linux": {
		"/usr/lib/jvm/*/bin/java",
		"/usr/lib64/jvm/*/bin/java",
		"/usr/java/*/bin/java",
		"/opt/java/*/bin/java",
		"/opt/*jdk*/bin/java",
		"/opt/*jre*/bin/java",
	},
	"darwin": {
		"/Library/Java/JavaVirtualMachines/*/Contents/Home/bin/java",
		"/opt/homebrew/opt/openjdk*/bin/java",
		"/usr/local/opt/openjdk*/bin/java",
	},
	"windows": {
		`C:\Program Files\Java\*\bin\java.exe`,
		`C:\Program Files\Eclipse Adoptium\*\bin\java.exe`,
		`C:\Program Files\Microsoft\jdk-*\bin\java.exe`,
		`C:\Program Files\Zulu\*\bin\java.exe`,
	},
}

func javaName() string {
	if runtime.GOOS == "windows" {
		return "java.exe"
	}
	return "java"
}

// DiscoverJava lists java executables from JAVA_HOME, PATH and the common
// install roots, in that order. Symlinks to the same binary are reported once.
func DiscoverJava() []string {
	return discoverJava(javaSearchPatterns[runtime.GOOS])
}

func discoverJava(patterns []string) []string {
	var found []string
	seen := make(map[string]bool)
	add := func(path string) {
		if !isExecutableFile(path) {
			return
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return
		}
		key := abs
		if real, err := filepath.EvalSymlinks(abs); err == nil {
			key = real
		}
		if seen[key] {
			return
		}
		seen[key] = true
		found = append(found, abs)
	}

	if home := os.Getenv("JAVA_HOME"); home != "" {
		add(filepath.Join(home, "bin", javaName()))
	}
	if path, err := exec.LookPath(javaName()); err == nil {
		add(path)
	}
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		sort.Strings(matches)
		for _, match := range matches {
			add(match)
		}
	}
	return found
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return runtime.GOOS == "windows" || info.Mode().Perm()&0111 != 0
}
