package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/morozRed/classlens/internal/cli"
)

func TestVersionCommand(t *testing.T) {
	root := cli.NewRootCommand(version)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if strings.TrimSpace(out.String()) != "classlens "+version {
		t.Fatalf("unexpected version output %q", out.String())
	}
}
