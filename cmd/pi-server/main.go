// Command pi-server runs the single-board surveillance server: it captures
// frames from the local camera, streams them to one monitoring client, and
// raises an email alert when motion is first observed. Keystrokes mirror
// the client command vocabulary for local operation.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rboyer503/pi-server/config"
	"github.com/rboyer503/pi-server/pipeline"
)

func main() {
	var (
		exitCode    int
		flagDevice  string
		flagMonPort int
		flagCmdPort int
		flagToken   string
		flagDebug   bool
	)

	root := &cobra.Command{
		Use:           "pi-server",
		Short:         "single-board camera surveillance server",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			exitCode = run(cmd, flagDevice, flagMonPort, flagCmdPort, flagToken, flagDebug)
		},
	}
	root.Flags().StringVar(&flagDevice, "device", "", "camera device path (overrides PISERVER_DEVICE)")
	root.Flags().IntVar(&flagMonPort, "monitor-port", 0, "monitor channel port (overrides PISERVER_MONITOR_PORT)")
	root.Flags().IntVar(&flagCmdPort, "command-port", 0, "command channel port (overrides PISERVER_COMMAND_PORT)")
	root.Flags().StringVar(&flagToken, "token", "", "authorization token file path (overrides PISERVER_TOKEN_PATH)")
	root.Flags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
	os.Exit(exitCode)
}

func run(cmd *cobra.Command, device string, monPort, cmdPort int, token string, debug bool) int {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("configuration invalid")
		return 1
	}
	if cmd.Flags().Changed("device") {
		cfg.Device = device
	}
	if cmd.Flags().Changed("monitor-port") {
		cfg.MonitorPort = monPort
	}
	if cmd.Flags().Changed("command-port") {
		cfg.CommandPort = cmdPort
	}
	if cmd.Flags().Changed("token") {
		cfg.TokenPath = token
	}

	mgr := pipeline.New(cfg, log)
	if err := mgr.Initialize(); err != nil {
		log.Error().Err(err).Msg("initialization failed")
		return mgr.ErrorCode().ExitCode()
	}

	// Character-at-a-time keyboard input while the server runs.
	stdinFd := int(os.Stdin.Fd())
	if term.IsTerminal(stdinFd) {
		state, err := term.MakeRaw(stdinFd)
		if err == nil {
			defer func() {
				if err := term.Restore(stdinFd, state); err != nil {
					log.Warn().Err(err).Msg("terminal restore failed")
				}
			}()
		} else {
			log.Warn().Err(err).Msg("raw terminal mode unavailable")
		}
	}

	keys := make(chan byte, 8)
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil || n == 0 {
				return
			}
			keys <- buf[0]
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

loop:
	for {
		select {
		case <-mgr.Done():
			break loop
		case <-sigs:
			mgr.Terminate()
		case key := <-keys:
			handleKey(mgr, key)
		}
	}

	mgr.Wait()
	code := mgr.ErrorCode()
	if code != pipeline.ErrNone {
		log.Error().Stringer("error", code).Msg("server exited")
	}
	return code.ExitCode()
}

func handleKey(mgr *pipeline.Manager, key byte) {
	switch key {
	case 'q':
		mgr.Shutdown()
	case 0x03: // Ctrl-C reaches us as a byte in raw mode
		mgr.Terminate()
	case 's':
		mgr.OutputStatus()
	case 'c':
		mgr.OutputConfig()
	case 'm':
		mgr.AdvanceMode()
	case 'p':
		mgr.AdvancePage()
	case 'd':
		mgr.DebugTrigger()
	case '[':
		mgr.AdjustParam(1, false)
	case ']':
		mgr.AdjustParam(1, true)
	case '{':
		mgr.AdjustParam(2, false)
	case '}':
		mgr.AdjustParam(2, true)
	}
}
