/*
texel renders a textured quad, or a single triangle, through the Vulkan
backend until the window is closed or Escape is pressed.
*/
package main

import (
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/texel/engine"
	"github.com/spaghettifunk/texel/engine/core"
	"github.com/spaghettifunk/texel/engine/platform"
	"github.com/spaghettifunk/texel/engine/renderer/vulkan"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML config, ignored when missing")
	variant := flag.String("variant", "", "overrides the configured variant (triangle or textured)")
	image := flag.String("image", "", "overrides the configured image")
	validation := flag.Bool("validation", false, "enable the Vulkan validation layers")
	flag.Parse()

	cfg, err := engine.LoadConfig(*configPath)
	if errors.Is(err, fs.ErrNotExist) {
		core.LogDebug("no config at %s, using defaults", *configPath)
		cfg, err = engine.DefaultApplicationConfig(), nil
	}
	if err != nil {
		core.LogFatal("%s", err)
	}
	if *variant != "" {
		cfg.Variant = engine.Variant(*variant)
	}
	if *image != "" {
		cfg.Image = *image
	}
	if *validation {
		cfg.Validation = true
	}

	e, err := engine.New(cfg, platform.New(), vulkan.Factory)
	if err != nil {
		core.LogFatal("%s", err)
	}

	if err := e.Initialize(); err != nil {
		core.LogFatal("%s: %s", core.Classify(err), err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		<-sigCh
		e.RequestStop()
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown: %s", err)
	}
	if runErr != nil {
		core.LogFatal("%s: %s", core.Classify(runErr), runErr)
	}
}
