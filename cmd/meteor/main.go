// Package main is the entrypoint for the meteor host process and caller CLI.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/MeteorMsg/Meteor/internal/config"
	"github.com/MeteorMsg/Meteor/internal/server"
	"github.com/MeteorMsg/Meteor/pkg/meteor"
	"github.com/MeteorMsg/Meteor/pkg/serializer"
)

const usage = `Usage: meteor [command]
       meteor serve                         Host MathFunctions on the configured bus (HTTP health on METEOR_HTTP_ADDR).
       meteor call [-n namespace] <method> <ints...>
                                            Call multiply, add or substract on a serve process sharing the bus.
       meteor demo                          Run the MathFunctions example on an in-process loopback bus.

Commands:
  serve   (default) Start the host process.
  call    Invoke one remote procedure and print the result. Requires a shared bus (not loopback).
  demo    Register procedures and implementations in two namespaces and call them locally.
  help    Show this message.

Environment: METEOR_TRANSPORT (loopback|nats|postgres|mqtt), METEOR_CHANNEL, METEOR_SERIALIZER (json|msgpack),
METEOR_INVOCATION_TIMEOUT, METEOR_IGNORE_UNKNOWN_PROCEDURES, COMMS_URL, SERVICE_NAME, DATABASE_URL,
MQTT_BROKER, MQTT_CLIENT_ID, METEOR_HTTP_ADDR, HTTP_PORT, LOG_LEVEL, METEOR_CONFIG_FILE (YAML overlay).
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "call":
		if err := runCall(args[1:]); err != nil {
			log.Fatalf("meteor call: %v", err)
		}
		return
	case "demo":
		if err := runDemo(); err != nil {
			log.Fatalf("meteor demo: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
		break
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("meteor: %v", err)
	}
}

// parseCallArgs splits call operands into namespace, method and integers.
func parseCallArgs(args []string) (namespace, method string, operands []int, err error) {
	if len(args) >= 2 && (args[0] == "-n" || args[0] == "--namespace") {
		namespace = args[1]
		args = args[2:]
	}
	if len(args) == 0 {
		return "", "", nil, fmt.Errorf("%w: method is required\n%s", server.ErrUsage, usage)
	}
	operands, err = server.ParseInts(args[1:])
	if err != nil {
		return "", "", nil, err
	}
	return namespace, args[0], operands, nil
}

func runCall(args []string) error {
	namespace, method, operands, err := parseCallArgs(args)
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	server.SetupLogging(cfg.LogLevel)
	if err := cfg.ValidateForCall(); err != nil {
		return err
	}

	result, err := server.Call(context.Background(), cfg, namespace, method, operands)
	if err != nil {
		return err
	}
	fmt.Println(result)
	return nil
}

func runDemo() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	server.SetupLogging(cfg.LogLevel)
	s, err := serializer.ByName(cfg.Serializer)
	if err != nil {
		return err
	}
	return server.Demo(context.Background(), os.Stdout, meteor.WithSerializer(s), meteor.WithTimeout(cfg.InvocationTimeout))
}
