package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cncplan/common/config"
	"cncplan/common/logger"
	"cncplan/common/utils/sys"
	"cncplan/project"
	"cncplan/project/report"
	"cncplan/project/stepper"

	"code.hybscloud.com/iox"
)

const (
	execPeriod    = 250 * time.Microsecond
	writerPeriod  = time.Millisecond
	serialBacklog = 256
)

type options struct {
	configPath string
	movesPath  string
	port       string
	logLevel   string
	dryRun     bool
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "machine config (.toml, .yaml, .json)")
	flag.StringVar(&opts.movesPath, "moves", "", "move file to stream, '-' for stdin; without one the planner idles until interrupted")
	flag.StringVar(&opts.port, "port", "", "stepper serial port, overrides the config")
	flag.StringVar(&opts.logLevel, "log-level", "", "log level, overrides the config")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "record segments instead of opening the stepper port")
	flag.Parse()
	return opts
}

func main() {
	opts := parseFlags()
	if err := run(opts); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

func loadConfig(opts options) (*config.MachineConfig, error) {
	if opts.configPath == "" {
		return config.Defaults(), nil
	}
	return config.Load(opts.configPath)
}

func run(opts options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if opts.port != "" {
		cfg.Serial.Port = opts.port
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger.InitLogger(logger.Options{
		Level:      level,
		File:       cfg.Log.File,
		Color:      cfg.Log.Color,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	})
	logger.Debugf("main thread %d running", sys.GetGID())

	kin, err := project.NewKinematics(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var sink project.StepperPrep
	var recorder *stepper.Recorder
	if cfg.Serial.Port != "" && !opts.dryRun {
		link, err := stepper.OpenSerialPrep(cfg.Serial.Port, cfg.Serial.Baud, serialBacklog)
		if err != nil {
			return err
		}
		defer link.Close()
		go func() {
			defer sys.CatchPanic(nil)
			if err := link.Run(ctx, writerPeriod); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("stepper link stopped: %v", err)
				cancel()
			}
		}()
		sink = link
	} else {
		recorder = stepper.NewRecorder()
		sink = recorder
	}

	planner := project.NewPlanner(cfg, sink, kin)
	reporter, err := report.NewReporter(os.Stdout, report.OptionsFromConfig(cfg.Report))
	if err != nil {
		return err
	}
	planner.SetReportRequester(reporter)
	planner.SetCycleNotifier(reporter)

	source, closeSource, err := openMoves(opts.movesPath, planner.PlanPosition())
	if err != nil {
		return err
	}
	defer closeSource()

	controller := project.NewController(planner, source, reporter)
	executor := project.NewExecutor(planner, execPeriod)
	execDone := make(chan error, 1)
	go func() { execDone <- executor.Run(ctx) }()

	signals := make(chan os.Signal, 4)
	signal.Notify(signals, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(signals)
	go forwardSignals(ctx, signals, controller)

	err = mainLoop(ctx, controller, planner, execDone)
	cancel()

	final := planner.Status()
	logger.Infof("finished at line %d, %d segments", final.Linenum, final.Segments)
	if recorder != nil {
		pos := kin.Forward(recorder.Totals())
		logger.Infof("dry run: %.1f ms of motion, head at %v", recorder.MotionTime()/1000, pos)
	}
	return err
}

func openMoves(path string, start [config.Axes]float64) (project.MoveSource, func(), error) {
	switch path {
	case "":
		return nil, func() {}, nil
	case "-":
		return project.NewReaderSource(os.Stdin, start), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return project.NewReaderSource(f, start), func() { f.Close() }, nil
}

func forwardSignals(ctx context.Context, signals <-chan os.Signal, c *project.Controller) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-signals:
			var err error
			switch s {
			case syscall.SIGUSR1:
				err = c.Signal(project.SignalFeedhold)
			case syscall.SIGUSR2:
				err = c.Signal(project.SignalCycleStart)
			}
			if err != nil {
				logger.Warnf("%v: %v", s, err)
			}
		}
	}
}

// mainLoop ticks the controller until the source is drained and the machine
// is idle. It backs off while nothing makes progress.
func mainLoop(ctx context.Context, c *project.Controller, p *project.Planner, execDone <-chan error) error {
	var bo iox.Backoff
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-execDone:
			return err
		default:
		}
		res, err := c.Tick()
		if res == project.ExecFatal {
			return err
		}
		if c.Drained() && p.BuffersAvailable() == p.PoolSize() && !p.IsBusy() {
			return nil
		}
		if res == project.ExecDone {
			bo.Reset()
		} else {
			bo.Wait()
		}
	}
}
