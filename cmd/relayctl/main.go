// Package main is relayctl, a NATS client for the hookrelay dispatch API.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/driftware/hookrelay/pkg/commsutil"
	"github.com/driftware/hookrelay/pkg/dispatcher"
)

const usage = `Usage: relayctl <command> [args]

Commands:
  send <kind> <json> [waitMs]   Submit a durable send; optionally wait for the terminal result.
  ephemeral <kind> <json>       Submit an ephemeral send and print the decoded response.
  status                        Print in-flight tasks and registered handler kinds.
  health                        Check relay health.

Environment: COMMS_URL (default nats://127.0.0.1:4222), RELAY_DISPATCH_SUBJECT.
`

const requestTimeout = 30 * time.Second

func main() {
	args := os.Args[1:]
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		fmt.Print(usage)
		return
	}

	var req *dispatcher.RelayRequest
	switch args[0] {
	case "send":
		if len(args) < 3 {
			log.Fatalf("relayctl send: require <kind> and <json>")
		}
		waitMs := 0
		if len(args) > 3 {
			ms, err := strconv.Atoi(args[3])
			if err != nil {
				log.Fatalf("relayctl send: invalid waitMs %q", args[3])
			}
			waitMs = ms
		}
		params, err := json.Marshal(dispatcher.SendInput{
			Kind:    args[1],
			Payload: json.RawMessage(args[2]),
			WaitMs:  waitMs,
		})
		if err != nil {
			log.Fatalf("relayctl send: encode params: %v", err)
		}
		req = &dispatcher.RelayRequest{ID: newRequestID(), Method: "send", Params: params}
	case "ephemeral":
		if len(args) < 3 {
			log.Fatalf("relayctl ephemeral: require <kind> and <json>")
		}
		params, err := json.Marshal(dispatcher.SendInput{
			Kind:    args[1],
			Payload: json.RawMessage(args[2]),
		})
		if err != nil {
			log.Fatalf("relayctl ephemeral: encode params: %v", err)
		}
		req = &dispatcher.RelayRequest{ID: newRequestID(), Method: "sendEphemeral", Params: params}
	case "status":
		req = &dispatcher.RelayRequest{ID: newRequestID(), Method: "status", Params: json.RawMessage(`{}`)}
	case "health":
		req = &dispatcher.RelayRequest{ID: newRequestID(), Method: "health", Params: json.RawMessage(`{}`)}
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", args[0], usage)
		os.Exit(1)
	}

	resp, err := doRequest(req)
	if err != nil {
		log.Fatalf("relayctl %s: %v", args[0], err)
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		log.Fatalf("relayctl %s: encode response: %v", args[0], err)
	}
	fmt.Println(string(out))

	if !resp.Ok {
		os.Exit(1)
	}
}

func doRequest(req *dispatcher.RelayRequest) (*dispatcher.RelayResponse, error) {
	commsURL := os.Getenv("COMMS_URL")
	if commsURL == "" {
		commsURL = "nats://127.0.0.1:4222"
	}
	subject := os.Getenv("RELAY_DISPATCH_SUBJECT")
	if subject == "" {
		subject = commsutil.SubjectDispatch
	}

	nc, err := commsutil.Connect(commsURL, "relayctl")
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	defer nc.Close()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	msg, err := nc.Request(subject, data, requestTimeout)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", subject, err)
	}

	var resp dispatcher.RelayResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

var requestSeq atomic.Uint64

func newRequestID() string {
	return fmt.Sprintf("relayctl-%d-%d", time.Now().UnixNano(), requestSeq.Add(1))
}
