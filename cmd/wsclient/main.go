// Wsclient is a minimal command-line WebSocket client: it connects to a
// server, optionally sends one text message, and prints every message
// it receives to stdout until the connection closes.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli/v3"

	"github.com/opsocket/opsocket/internal/authtok"
	"github.com/opsocket/opsocket/internal/logger"
	"github.com/opsocket/opsocket/internal/metrics"
	"github.com/opsocket/opsocket/pkg/websocket"
	"github.com/tzrikka/xdg"
)

const (
	configDirName  = "wsclient"
	configFileName = "config.toml"
)

func main() {
	bi, _ := debug.ReadBuildInfo()

	cmd := &cli.Command{
		Name:      "wsclient",
		Usage:     "connect to a WebSocket server and exchange messages",
		Version:   bi.Main.Version,
		Flags:     flags(configFile()),
		Arguments: []cli.Argument{&cli.StringArg{Name: "url"}},
		Action:    run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	l := logger.New(cmd.Bool("dev"))
	ctx = logger.InContext(ctx, l)

	url := cmd.StringArg("url")
	if url == "" {
		return fmt.Errorf("missing required argument: url")
	}

	opts, err := dialOpts(cmd, l)
	if err != nil {
		return err
	}

	conn, err := websocket.Dial(ctx, url, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to %q: %w", url, err)
	}
	l.Info().Str("conn_id", conn.ID()).Msg("connected")

	if text := cmd.String("send-text"); text != "" {
		if err := <-conn.SendTextMessage([]byte(text)); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
	}

	for msg := range conn.IncomingMessages() {
		fmt.Printf("[%s] %s\n", msg.Opcode, msg.Data)
	}

	if err := conn.CloseError(); err != nil {
		var wsErr *websocket.Error
		if errors.As(err, &wsErr) && wsErr.Kind == websocket.KindClose {
			l.Info().Stringer("code", wsErr.Code).Str("reason", wsErr.Reason).Msg("connection closed")
			return nil
		}
		return err
	}
	return nil
}

// dialOpts translates CLI flags into [websocket.DialOpt] values.
func dialOpts(cmd *cli.Command, l zerolog.Logger) ([]websocket.DialOpt, error) {
	opts := []websocket.DialOpt{
		websocket.WithAsyncIterator(),
		websocket.WithLogger(l),
		websocket.WithAutoPong(cmd.Bool("auto-pong")),
	}

	if d := cmd.String("timeout"); d != "" {
		timeout, err := time.ParseDuration(d)
		if err != nil {
			return nil, fmt.Errorf("invalid --timeout value %q: %w", d, err)
		}
		opts = append(opts, websocket.WithTimeout(timeout))
	}

	if n := cmd.Int("max-payload-bytes"); n >= 0 {
		opts = append(opts, websocket.WithMaxPayloadBytes(uint64(n)))
	}

	issuer, key := cmd.String("bearer-token-issuer"), cmd.String("bearer-token-key")
	if issuer != "" && key != "" {
		token, err := authtok.Mint(issuer, key)
		if err != nil {
			return nil, fmt.Errorf("failed to mint bearer token: %w", err)
		}
		opts = append(opts, websocket.WithBearerToken(token))
	}

	if f := cmd.String("metrics-file"); f != "" {
		opts = append(opts, websocket.WithMetrics(metrics.NewRecorder(f, l)))
	}

	return opts, nil
}

// configFile returns the path to the app's configuration file,
// creating an empty one if it doesn't already exist.
func configFile() altsrc.StringSourcer {
	path, err := xdg.CreateFile(xdg.ConfigHome, configDirName, configFileName)
	if err != nil {
		logger.FatalError("failed to create config file", err)
	}
	return altsrc.StringSourcer(path)
}
