package server

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// LaunchSpec describes how to start the server process
type LaunchSpec struct {
	Executable string   `json:"executable"`
	Args       []string `json:"args"`
	WorkingDir string   `json:"working_dir"`
	// Env is appended to the supervisor's own environment
	Env []string `json:"-"`

	// jarSlot is one past the "-jar" flag whose jar is picked at start
	jarSlot int
}

// NewJavaLaunchSpec builds "java <jvm args> -jar <jar> <server args>".
// An empty javaPath is resolved from JAVA_HOME or PATH at start, and an
// empty jar becomes the first *.jar found in workingDir.
func NewJavaLaunchSpec(javaPath string, jvmArgs []string, jar string, serverArgs []string, workingDir string) LaunchSpec {
	args := make([]string, 0, len(jvmArgs)+len(serverArgs)+2)
	for _, arg := range jvmArgs {
		if strings.TrimSpace(arg) != "" {
			args = append(args, arg)
		}
	}
	args = append(args, "-jar")
	spec := LaunchSpec{Executable: javaPath, WorkingDir: workingDir}
	if jar = strings.TrimSpace(jar); jar != "" {
		args = append(args, jar)
	} else {
		spec.jarSlot = len(args)
	}
	spec.Args = append(args, serverArgs...)
	return spec
}

// FindServerJar returns the name of the first *.jar file in dir
func FindServerJar(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("looking for server jar: %w", err)
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.EqualFold(filepath.Ext(entry.Name()), ".jar") {
			return entry.Name(), nil
		}
	}
	return "", fmt.Errorf("no .jar file in %s", dir)
}

// resolveArgs fills in the server jar when it was left to discovery
func (spec LaunchSpec) resolveArgs() ([]string, error) {
	if spec.jarSlot == 0 {
		return spec.Args, nil
	}
	jar, err := FindServerJar(spec.WorkingDir)
	if err != nil {
		return nil, &StartError{Reason: ErrExecutableNotFound, Err: err}
	}
	i := spec.jarSlot
	args := make([]string, 0, len(spec.Args)+1)
	args = append(args, spec.Args[:i]...)
	args = append(args, jar)
	return append(args, spec.Args[i:]...), nil
}

func (spec LaunchSpec) clone() LaunchSpec {
	out := spec
	out.Args = append([]string(nil), spec.Args...)
	out.Env = append([]string(nil), spec.Env...)
	return out
}

// String renders the command line for logs
func (spec LaunchSpec) String() string {
	parts := append([]string{spec.Executable}, spec.Args...)
	return strings.Join(parts, " ")
}

// resolveExecutable returns an absolute path to the executable. Relative
// paths containing a separator are taken relative to WorkingDir.
func (spec LaunchSpec) resolveExecutable() (string, error) {
	executable := strings.TrimSpace(spec.Executable)
	if executable == "" {
		executable = defaultJava()
	}

	if !filepath.IsAbs(executable) && strings.ContainsRune(executable, filepath.Separator) && spec.WorkingDir != "" {
		executable = filepath.Join(spec.WorkingDir, executable)
	}

	path, err := exec.LookPath(executable)
	if err != nil {
		return "", &StartError{Reason: ErrExecutableNotFound, Err: err}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &StartError{Reason: ErrExecutableNotFound, Err: err}
	}
	return abs, nil
}

func (spec LaunchSpec) checkWorkingDir() error {
	if spec.WorkingDir == "" {
		return nil
	}
	info, err := os.Stat(spec.WorkingDir)
	if err != nil {
		return &StartError{Reason: ErrSpawnFailed, Err: fmt.Errorf("working directory: %w", err)}
	}
	if !info.IsDir() {
		return &StartError{Reason: ErrSpawnFailed, Err: fmt.Errorf("working directory %s is not a directory", spec.WorkingDir)}
	}
	return nil
}

func defaultJava() string {
	name := javaName()
	if home := os.Getenv("JAVA_HOME"); home != "" {
		candidate := filepath.Join(home, "bin", name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return name
}
