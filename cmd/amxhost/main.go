// amxhost - standalone host for the script runtime
//
// Loads amxhost.toml, boots the script runtime against a local native
// machine and pumps the tick loop until interrupted.
//
// Build: go build ./cmd/amxhost
// Usage:
//   amxhost [--config amxhost.toml] [--verbose]
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/seaborne/amxjs/amx"
	"github.com/seaborne/amxjs/runtime"
)

var log = commonlog.GetLogger("amxjs.host")

// stdoutDelegate surfaces script output and errors on the console.
type stdoutDelegate struct{}

func (d *stdoutDelegate) OnScriptOutput(message string) {
	fmt.Println(message)
}

func (d *stdoutDelegate) OnScriptError(source string, line int, message string) {
	fmt.Fprintf(os.Stderr, "[%s:%d] %s\n", source, line, message)
}

func (d *stdoutDelegate) OnScriptTestsDone(total, failed int) {
	fmt.Printf("tests finished: %d total, %d failed\n", total, failed)
}

// declareHostNatives registers the natives a standalone host provides
// itself. An embedding game server would declare its own set instead.
func declareHostNatives(machine *amx.AMX) error {
	if _, err := machine.DeclareNative("print", "s", func(m *amx.AMX, params []amx.Cell) amx.Cell {
		text, err := m.ReadString(params[1])
		if err != nil {
			return 0
		}
		fmt.Println(text)
		return 1
	}); err != nil {
		return err
	}
	_, err := machine.DeclareNative("GetTickCount", "", func(m *amx.AMX, params []amx.Cell) amx.Cell {
		return amx.Cell(time.Now().UnixMilli())
	})
	return err
}

func run() error {
	configPath := flag.String("config", "amxhost.toml", "host configuration file")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	config, err := LoadConfig(*configPath)
	if err != nil {
		return err
	}

	machine := amx.New()
	if err := declareHostNatives(machine); err != nil {
		return err
	}

	r := runtime.New(&stdoutDelegate{}, machine, runtime.Options{
		SourceDirectory: config.SourcePath(),
		ExecutorWorkers: config.Server.ExecutorWorkers,
	})
	if err := r.Initialize(); err != nil {
		return err
	}
	defer func() {
		if err := r.Dispose(); err != nil {
			log.Errorf("dispose failed: %v", err)
		}
	}()

	if config.Profile.TraceOutput != "" {
		r.Profiler().StartTrace()
	}

	if err := r.LoadMainModule(config.Script.Entry); err != nil {
		return err
	}
	if err := r.SpinUntilReady(); err != nil {
		return err
	}
	log.Infof("runtime ready, ticking every %dms", config.Server.TickRateMs)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Duration(config.Server.TickRateMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.OnTick()
		case sig := <-signals:
			log.Noticef("received %s, shutting down", sig)
			if config.Profile.TraceOutput != "" {
				r.Profiler().StopTrace()
				if err := r.Profiler().Write(config.Profile.TraceOutput, true); err != nil {
					log.Errorf("writing trace capture: %v", err)
				}
			}
			duration, fps := r.GetAndResetFrameCounter()
			log.Infof("served %.0fms at %.1f ticks/s", duration, fps)
			return nil
		}
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "amxhost: %v\n", err)
		os.Exit(1)
	}
}
