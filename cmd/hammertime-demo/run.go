package main

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vusec/hammertime-go/pkg/flowloop"
	"github.com/vusec/hammertime-go/pkg/hamconfig"
	"github.com/vusec/hammertime-go/pkg/hammerlog"
	"github.com/vusec/hammertime-go/pkg/hammetrics"
	"github.com/vusec/hammertime-go/pkg/memfile"
	"github.com/vusec/hammertime-go/pkg/predictor"
	"github.com/vusec/hammertime-go/pkg/probe"
	"github.com/vusec/hammertime-go/pkg/ramses"
	"github.com/vusec/hammertime-go/pkg/shutdown"
)

func runDemo(cmd *cobra.Command, args []string) error {
	execProgram, _ := cmd.Flags().GetString("exec")
	systemWide, _ := cmd.Flags().GetBool("system")

	cfg, err := hamconfig.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logLevel := cfg.Log.Level
	if verbose {
		logLevel = hammerlog.LevelDebug
	}
	log := hammerlog.New(hammerlog.Config{Level: logLevel, Format: cfg.Log.Format, Output: os.Stdout})

	reg := prometheus.NewRegistry()
	m := hammetrics.New(reg)
	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Listen, mux); err != nil {
				log.Warn("metrics listener exited", "err", err.Error())
			}
		}()
		log.Info("metrics listening", "addr", cfg.Metrics.Listen)
	}

	msys, err := loadMemsys(cfg.Memsys, log)
	if err != nil {
		return err
	}
	ft, err := loadFliptable(cfg.Fliptable)
	if err != nil {
		return err
	}
	defer ft.Close()

	pred, err := buildPredictor(cfg, ft, m)
	if err != nil {
		return err
	}

	sc := shutdown.New(log)
	sc.Watch()

	switch {
	case systemWide:
		return runSystemWide(sc, log, m, msys, pred)
	case execProgram != "":
		return runExec(sc, log, m, msys, pred, execProgram, args)
	case len(args) == 1:
		pid, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid PID %q: %w", args[0], err)
		}
		return runPid(sc, log, m, msys, pred, pid)
	default:
		return cmd.Usage()
	}
}

func runSystemWide(sc *shutdown.Controller, log *hammerlog.Logger, m *hammetrics.Metrics, msys *ramses.MemorySystem, pred *predictor.FliptablePredictor) error {
	fd, err := memfile.OpenDevMem(true)
	if err != nil {
		return fmt.Errorf("opening /dev/mem: %w", err)
	}
	defer fd.Close()

	ring, err := probe.NewRing(2<<20, probe.FlagVirtAddr)
	if err != nil {
		return fmt.Errorf("creating probe ring: %w", err)
	}
	sc.OnStop(func() { ring.Finish() })
	go runDemoProbe(ring, sc.Done())

	log.Warn("running in system-wide (/dev/mem) mode")
	flowloop.RunPmemLoop(flowloop.PmemConfig{
		Ring: ring, Pred: pred, Msys: msys, Fd: int(fd.Fd()), Log: log, Metrics: m,
	})
	return nil
}

func runPid(sc *shutdown.Controller, log *hammerlog.Logger, m *hammetrics.Metrics, msys *ramses.MemorySystem, pred *predictor.FliptablePredictor, pid int) error {
	ring, err := probe.NewRing(2<<20, probe.FlagVirtAddr)
	if err != nil {
		return fmt.Errorf("creating probe ring: %w", err)
	}
	sc.OnStop(func() { ring.Finish() })
	go runDemoProbe(ring, sc.Done())

	log.Info("attached", "pid", pid)
	flowloop.RunVmemLoop(flowloop.VmemConfig{
		Ring: ring, Pred: pred, Msys: msys, Pid: pid, Log: log, Metrics: m,
	})
	return nil
}

func runExec(sc *shutdown.Controller, log *hammerlog.Logger, m *hammetrics.Metrics, msys *ramses.MemorySystem, pred *predictor.FliptablePredictor, program string, args []string) error {
	child := exec.Command(program, args...)
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr
	if err := child.Start(); err != nil {
		return fmt.Errorf("launching %s: %w", program, err)
	}
	sc.OnStop(func() { _ = child.Process.Kill() })

	return runPid(sc, log, m, msys, pred, child.Process.Pid)
}
