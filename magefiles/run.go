//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the triangle variant.
func (Run) Triangle() error {
	return run("triangle")
}

// Compiles the shaders and runs the textured quad variant.
func (Run) Textured() error {
	return run("textured")
}

func run(variant string) error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Printf("Run %s...\n", variant)
	if _, err := executeCmd("go", withArgs("run", ".", "-variant", variant), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the package tests.
func Test() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}
