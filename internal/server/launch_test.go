package server

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
)

func TestJavaLaunchSpecWithJar(t *testing.T) {
	spec := NewJavaLaunchSpec("/usr/bin/java", []string{"-Xmx2G", " "}, "paper.jar", []string{"nogui"}, "/srv/mc")

	want := []string{"-Xmx2G", "-jar", "paper.jar", "nogui"}
	if !reflect.DeepEqual(spec.Args, want) {
		t.Fatalf("unexpected args %v", spec.Args)
	}
	args, err := spec.resolveArgs()
	if err != nil {
		t.Fatalf("resolveArgs: %v", err)
	}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("configured jar must be kept, got %v", args)
	}
}

func TestJavaLaunchSpecFindsJar(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"eula.txt", "server.jar", "zz-old.jar"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "a.jar"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	spec := NewJavaLaunchSpec("", []string{"-Xmx1G"}, "", []string{"nogui"}, dir)
	args, err := spec.clone().resolveArgs()
	if err != nil {
		t.Fatalf("resolveArgs: %v", err)
	}
	want := []string{"-Xmx1G", "-jar", "server.jar", "nogui"}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("expected %v, got %v", want, args)
	}
}

func TestJavaLaunchSpecWithoutJar(t *testing.T) {
	spec := NewJavaLaunchSpec("", nil, "", nil, t.TempDir())
	_, err := spec.resolveArgs()
	if !errors.Is(err, ErrExecutableNotFound) {
		t.Fatalf("expected ErrExecutableNotFound, got %v", err)
	}
}

func TestDiscoverJava(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses unix permission bits")
	}

	writeJava := func(dir string) string {
		t.Helper()
		bin := filepath.Join(dir, "bin")
		if err := os.MkdirAll(bin, 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		path := filepath.Join(bin, "java")
		if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0755); err != nil {
			t.Fatalf("write java: %v", err)
		}
		return path
	}

	root := t.TempDir()
	home := writeJava(filepath.Join(root, "home-jdk"))
	jvm := filepath.Join(root, "jvm")
	jdk17 := writeJava(filepath.Join(jvm, "jdk-17"))
	writeJava(filepath.Join(jvm, "jdk-21"))
	if err := os.Symlink(filepath.Join(jvm, "jdk-21"), filepath.Join(jvm, "default")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	notExec := filepath.Join(jvm, "broken", "bin", "java")
	if err := os.MkdirAll(filepath.Dir(notExec), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(notExec, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("JAVA_HOME", filepath.Join(root, "home-jdk"))
	t.Setenv("PATH", filepath.Dir(jdk17))

	found := discoverJava([]string{filepath.Join(jvm, "*", "bin", "java")})
	// default links to jdk-21 and is reported once
	want := []string{home, jdk17, filepath.Join(jvm, "default", "bin", "java")}
	if !reflect.DeepEqual(found, want) {
		t.Fatalf("expected %v, got %v", want, found)
	}
}
