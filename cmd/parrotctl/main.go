package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"parrot/internal/client"
)

const usage = `usage: parrotctl [-addr URL] <command> [args]

commands:
  push [-retries N] <message>   enqueue a message (reads stdin when message is "-")
  cat [-max N]                  open the device and print messages until a read is empty
  reset                         empty the channel
  status                        print channel and session state
`

func main() {
	log.SetFlags(0)
	log.SetPrefix("parrotctl: ")

	addr := flag.String("addr", envOr("PARROT_ADDR", "http://localhost:8420"), "server base URL")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := client.New(*addr)
	if err := run(ctx, c, flag.Arg(0), flag.Args()[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, c *client.Client, cmd string, args []string) error {
	switch cmd {
	case "push":
		fs := flag.NewFlagSet("push", flag.ExitOnError)
		retries := fs.Int("retries", 0, "retries when the channel is full")
		fs.Parse(args)
		if fs.NArg() != 1 {
			return fmt.Errorf("push needs exactly one message")
		}

		data, err := messageArg(fs.Arg(0))
		if err != nil {
			return err
		}
		res, err := c.Push(ctx, data, *retries)
		if err != nil {
			return err
		}
		if res.Short {
			log.Printf("short write: %d of %d bytes accepted", res.Accepted, len(data))
		}
		fmt.Println(res.Accepted)

	case "cat":
		fs := flag.NewFlagSet("cat", flag.ExitOnError)
		maxLen := fs.Int("max", 0, "maximum bytes per read (0 = ring capacity)")
		fs.Parse(args)
		if _, err := c.Cat(ctx, os.Stdout, *maxLen); err != nil {
			return err
		}

	case "reset":
		return c.Reset(ctx)

	case "status":
		body, err := c.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Println(string(body))

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func messageArg(arg string) ([]byte, error) {
	if arg != "-" {
		return []byte(arg), nil
	}
	return io.ReadAll(os.Stdin)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
