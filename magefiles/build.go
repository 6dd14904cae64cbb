//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/naga"
	"github.com/magefile/mage/mg"
)

const (
	shaderSourceDir = "Content/Shaders/Source"
	spirvOutputDir  = "Content/Shaders/Compiled/SPIRV"
)

type Build mg.Namespace

// Compiles every WGSL shader under Content/Shaders/Source to SPIR-V.
func (Build) Shaders() error {
	return buildShaders()
}

// Compiles the shaders and builds the binary.
func (Build) Binary() error {
	mg.Deps(Build.Shaders)
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/texel", "."), withEnv("CGO_ENABLED=1"), withStream()); err != nil {
		return err
	}
	return nil
}

func buildShaders() error {
	sources, err := filepath.Glob(filepath.Join(shaderSourceDir, "*.wgsl"))
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return fmt.Errorf("no shaders found in %s", shaderSourceDir)
	}
	if err := os.MkdirAll(spirvOutputDir, 0o755); err != nil {
		return err
	}

	for _, src := range sources {
		// RawTriangle.vert.wgsl -> RawTriangle.vert.spv
		name := strings.TrimSuffix(filepath.Base(src), ".wgsl")
		dst := filepath.Join(spirvOutputDir, name+".spv")

		code, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		spirv, err := naga.Compile(string(code))
		if err != nil {
			return fmt.Errorf("failed to compile %s: %w", src, err)
		}
		if err := os.WriteFile(dst, spirv, 0o644); err != nil {
			return err
		}
		if mg.Verbose() {
			fmt.Printf("%s -> %s (%d bytes)\n", src, dst, len(spirv))
		}
	}
	fmt.Printf("compiled %d shaders\n", len(sources))
	return nil
}
