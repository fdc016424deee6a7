package app

import (
	"fmt"
	"strconv"
	"strings"

	"kestrel/kernel/lock"
	"kestrel/kernel/sched"

	"github.com/google/shlex"
)

// Config is the boot configuration of the system.
type Config struct {
	// Cores is the number of logical cores to bring up.
	Cores int
	// Hz is the timer interrupt rate.
	Hz int
	// Ticks stops the system once uptime reaches it. Zero runs until the
	// demo ends or the host stops.
	Ticks uint64
	// Demo names the workload run by the init thread; empty runs none.
	Demo string
	// Console mirrors the kernel log on the framebuffer.
	Console bool
	// MaxThreads sizes the thread table.
	MaxThreads int
}

// DefaultConfig returns the configuration used for an empty command line.
func DefaultConfig() Config {
	return Config{
		Cores:      min(2, lock.MaxCores),
		Hz:         1000,
		Console:    true,
		MaxThreads: sched.DefaultMaxThreads,
	}
}

// Demos lists the workloads accepted by demo=.
var Demos = []string{"priority", "fairness", "mutex", "join"}

// ParseCmdline parses a kernel command line such as
//
//	cores=4 hz=1000 ticks=5000 demo=fairness console=off
//
// on top of DefaultConfig. Values may be quoted.
func ParseCmdline(cmdline string) (Config, error) {
	cfg := DefaultConfig()

	words, err := shlex.Split(cmdline)
	if err != nil {
		return cfg, fmt.Errorf("cmdline: %w", err)
	}
	for _, w := range words {
		key, val, ok := strings.Cut(w, "=")
		if !ok || key == "" {
			return cfg, fmt.Errorf("cmdline: %q is not key=value", w)
		}
		if err := cfg.set(key, val); err != nil {
			return cfg, fmt.Errorf("cmdline: %s: %w", key, err)
		}
	}
	return cfg, nil
}

func (c *Config) set(key, val string) error {
	switch key {
	case "cores":
		n, err := parsePositive(val)
		if err != nil {
			return err
		}
		c.Cores = n
	case "hz":
		n, err := parsePositive(val)
		if err != nil {
			return err
		}
		c.Hz = n
	case "maxthreads":
		n, err := parsePositive(val)
		if err != nil {
			return err
		}
		c.MaxThreads = n
	case "ticks":
		n, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return err
		}
		c.Ticks = n
	case "demo":
		if val != "" && !isDemo(val) {
			return fmt.Errorf("unknown demo %q (want one of %s)", val, strings.Join(Demos, ", "))
		}
		c.Demo = val
	case "console":
		on, err := parseSwitch(val)
		if err != nil {
			return err
		}
		c.Console = on
	default:
		return fmt.Errorf("unknown key")
	}
	return nil
}

func parsePositive(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("%d is not positive", n)
	}
	return n, nil
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "yes", "1", "true":
		return true, nil
	case "off", "no", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("%q is not on or off", s)
}

func isDemo(name string) bool {
	for _, d := range Demos {
		if d == name {
			return true
		}
	}
	return false
}
