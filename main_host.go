package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"kestrel/app"
	"kestrel/hal"
)

func main() {
	var cfg hal.HeadlessConfig
	var cmdline string
	var ramMiB int
	flag.BoolVar(&cfg.Enabled, "headless", false, "Run without a window.")
	flag.IntVar(&cfg.Hz, "hz", 60, "Frame rate in headless mode.")
	flag.Uint64Var(&cfg.Frames, "frames", 0, "Stop after N frames in headless mode (0 = run until done).")
	flag.StringVar(&cmdline, "cmdline", "", `Kernel command line, e.g. "cores=4 demo=fairness ticks=5000".`)
	flag.IntVar(&ramMiB, "ram", 16, "Size of the simulated RAM in MiB.")
	flag.Parse()

	if err := run(cfg, cmdline, ramMiB); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg hal.HeadlessConfig, cmdline string, ramMiB int) error {
	boot, err := app.ParseCmdline(cmdline)
	if err != nil {
		return err
	}

	h, err := hal.New(hal.HostConfig{RAMBytes: ramMiB << 20, Hz: boot.Hz})
	if err != nil {
		return err
	}
	defer h.Close()

	sys, err := app.New(h, boot)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go sys.Run(ctx)

	if cfg.Enabled {
		err = hal.RunHeadless(ctx, h, sys.Step, cfg)
		if err == context.Canceled {
			return nil
		}
		return err
	}
	return hal.RunWindow(h, sys.Step)
}
