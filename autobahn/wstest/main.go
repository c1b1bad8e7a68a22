// Wstest exercises opsocket's [WebSocket client] against the fuzzing
// server of the [Autobahn Testsuite].
//
// [WebSocket client]: https://pkg.go.dev/github.com/opsocket/opsocket/pkg/websocket
// [Autobahn Testsuite]: https://github.com/crossbario/autobahn-testsuite
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/opsocket/opsocket/internal/logger"
	"github.com/opsocket/opsocket/pkg/websocket"
)

const (
	baseURL = "ws://127.0.0.1:9001"
	agent   = "opsocket"
)

func main() {
	l := logger.New(false)

	n := getCaseCount(l)
	l.Info().Int("n", n+1).Msg("case count")

	// Not implemented (so excluded in "config/fuzzingserver.json"):
	//   - 12.* and 13.*: WebSocket compression.
	for i := range n {
		runCase(l, i+1)
	}

	updateReports(l)
}

func dial(url string) (*websocket.Conn, error) {
	return websocket.Dial(context.Background(), url, websocket.WithAsyncIterator())
}

// getCaseCount retrieves the number of enabled test cases from
// the Autobahn fuzzing server, using a WebSocket request.
func getCaseCount(l zerolog.Logger) int {
	conn, err := dial(baseURL + "/getCaseCount")
	if err != nil {
		logger.FatalError("dial error", err)
	}

	msg, ok := <-conn.IncomingMessages()
	if !ok {
		l.Debug().Msg("connection closed")
		return 0
	}

	n, err := strconv.Atoi(string(msg.Data))
	if err != nil {
		logger.FatalError("invalid test case count", err)
	}

	return n
}

// updateReports instructs the Autobahn fuzzing server to generate/update
// all the HTML and JSON files for all the test-case results.
func updateReports(l zerolog.Logger) {
	l.Info().Msg("updating reports")

	url := fmt.Sprintf("%s/updateReports?agent=%s", baseURL, agent)
	if _, err := dial(url); err != nil {
		logger.FatalError("dial error", err)
	}
}

func runCase(l zerolog.Logger, i int) {
	ll := l.With().Int("case", i).Logger()
	ll.Info().Msg("starting test")

	conn, err := dial(fmt.Sprintf("%s/runCase?case=%d&agent=%s", baseURL, i, agent))
	if err != nil {
		logger.FatalError("dial error", err)
	}

	// Echo loop.
	for msg := range conn.IncomingMessages() {
		ll = ll.With().Str("opcode", msg.Opcode.String()).Logger()
		ll.Info().Int("length", len(msg.Data)).Msg("received message")

		switch msg.Opcode {
		case websocket.OpcodeText:
			err = <-conn.SendTextMessage(msg.Data)
		case websocket.OpcodeBinary:
			err = <-conn.SendBinaryMessage(msg.Data)
		default:
			ll.Error().Msg("unexpected opcode in data message")
			os.Exit(1)
		}

		if err != nil {
			ll.Error().Err(err).Msg("echo error")
			<-conn.Close(websocket.StatusNormalClosure, "echo error")
			return
		}
	}

	ll.Debug().Msg("connection closed")
}
