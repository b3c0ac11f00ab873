package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"reflect"
	"runtime"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/encodeous/skein/perf"
	"github.com/encodeous/skein/state"
	"github.com/encodeous/tint"
	"github.com/goccy/go-yaml"
	slogmulti "github.com/samber/slog-multi"
)

func ReadCentralConfig(centralPath string) (*state.CentralCfg, error) {
	var centralCfg state.CentralCfg
	file, err := os.ReadFile(centralPath)
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(file, &centralCfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", centralPath, err)
	}
	centralCfg.Dsr = centralCfg.Dsr.WithDefaults()
	return &centralCfg, nil
}

func ReadNodeConfig(nodePath string) (*state.LocalCfg, error) {
	var nodeCfg state.LocalCfg
	file, err := os.ReadFile(nodePath)
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(file, &nodeCfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", nodePath, err)
	}
	return &nodeCfg, nil
}

// Options are the process level settings of a node
type Options struct {
	// ConfigPath is the central config the node was started from
	ConfigPath string
	LogPath    string
	Verbose    bool
	Trace      bool
	DebugAddr  string
}

// Bootstrap loads and validates the configuration, then runs the node until it is stopped
func Bootstrap(centralPath, nodePath string, opts Options) error {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	centralCfg, err := ReadCentralConfig(centralPath)
	if err != nil {
		return err
	}
	nodeCfg, err := ReadNodeConfig(nodePath)
	if err != nil {
		return err
	}
	if opts.LogPath != "" {
		nodeCfg.LogPath = opts.LogPath
	}
	opts.ConfigPath = centralPath
	if err = state.CentralConfigValidator(centralCfg); err != nil {
		return err
	}
	if err = state.LocalConfigValidator(nodeCfg, centralCfg); err != nil {
		return err
	}
	return Start(*centralCfg, *nodeCfg, level, opts, nil)
}

func Start(ccfg state.CentralCfg, ncfg state.LocalCfg, logLevel slog.Level, opts Options, initState **state.State) error {
	ctx, cancel := context.WithCancelCause(context.Background())

	dispatch := make(chan func(env *state.State) error, state.DispatchBufferLen)

	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        logLevel,
			AddSource:    false,
			CustomPrefix: string(ncfg.Id),
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}))

	if ncfg.LogPath != "" {
		err := os.MkdirAll(path.Dir(ncfg.LogPath), 0700)
		if err != nil {
			return err
		}
		f, err := os.OpenFile(ncfg.LogPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
		if err != nil {
			return err
		}
		defer f.Close()
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: logLevel}))
	}

	logger := slog.New(
		slogmulti.Fanout(handlers...))

	s := state.State{
		Modules: make(map[string]state.NyModule),
		Env: &state.Env{
			Context:         ctx,
			Cancel:          cancel,
			DispatchChannel: dispatch,
			CentralCfg:      ccfg,
			LocalCfg:        ncfg,
			Book:            state.NewAddressBook(ccfg.Nodes),
			Clock:           clock.New(),
			Log:             logger,
			ConfigPath:      opts.ConfigPath,
			DebugAddr:       opts.DebugAddr,
			Trace:           opts.Trace,
		},
	}
	if initState != nil {
		*initState = &s
	}

	s.Log.Info("init modules")
	err := initModules(&s)
	if err != nil {
		Stop(&s)
		return err
	}
	s.Log.Info("init modules complete")

	s.Log.Info("skein has been initialized. To gracefully exit, send SIGINT or Ctrl+C.")

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)
	go func() {
		select {
		case <-c:
			s.Cancel(errors.New("received shutdown signal"))
		case <-ctx.Done():
			return
		}
	}()

	return MainLoop(&s, dispatch)
}

func initModules(s *state.State) error {
	var modules []state.NyModule
	modules = append(modules, &Tracer{})
	modules = append(modules, &Node{})
	modules = append(modules, &Probe{})
	modules = append(modules, &Debug{})

	for _, module := range modules {
		s.Modules[reflect.TypeOf(module).String()] = module
		if err := module.Init(s); err != nil {
			return err
		}
	}
	return nil
}

func MainLoop(s *state.State, dispatch <-chan func(*state.State) error) error {
	s.Log.Debug("started main loop")
	s.Started.Store(true)
	for {
		select {
		case fun := <-dispatch:
			if fun == nil {
				goto endLoop
			}
			start := time.Now()
			err := fun(s)
			if err != nil {
				s.Log.Error("error occurred during dispatch: ", "error", err)
				s.Cancel(err)
			}
			elapsed := time.Since(start)
			perf.DispatchLatency.Add(float64(elapsed.Microseconds()))
			if elapsed > state.DispatchWarnThreshold {
				s.Log.Warn("dispatch took a long time!", "fun", runtime.FuncForPC(reflect.ValueOf(fun).Pointer()).Name(), "elapsed", elapsed, "len", len(dispatch))
			}
		case <-s.Context.Done():
			goto endLoop
		}
	}
endLoop:
	s.Log.Info("stopped main loop", "reason", context.Cause(s.Context).Error())
	Stop(s)
	return nil
}

func Stop(s *state.State) {
	if s.Stopping.Swap(true) {
		return // don't stop twice
	}
	s.Cancel(context.Canceled)
	s.Log.Info("cleaning up modules")
	for moduleName, module := range s.Modules {
		err := module.Cleanup(s)
		if err != nil {
			s.Log.Error("error occurred during Stop: ", "module", moduleName, "error", err)
		}
	}
	s.Log.Info("stopped")
}
