package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
)

const clientKey = "client"

func newApp() *cli.App {
	return &cli.App{
		Name:     "moonctl",
		Usage:    "Moonstone administration tool",
		Metadata: map[string]any{},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "server address",
				EnvVars: []string{"MOONSTONE_ADDR"},
				Value:   "127.0.0.1:6380",
			},
			&cli.StringFlag{
				Name:    "password",
				Aliases: []string{"p"},
				Usage:   "password sent with AUTH",
				EnvVars: []string{"MOONSTONE_PASSWORD"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "per-command timeout",
				Value: 10 * time.Second,
			},
		},
		Before: func(c *cli.Context) error {
			c.App.Metadata[clientKey] = redis.NewClient(&redis.Options{
				Addr:     c.String("addr"),
				Password: c.String("password"),
				Protocol: 2,
			})
			return nil
		},
		After: func(c *cli.Context) error {
			if rdb, ok := c.App.Metadata[clientKey].(*redis.Client); ok {
				return rdb.Close()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "ping",
				Usage:  "Check that the server answers",
				Action: run("PING"),
			},
			{
				Name:      "exec",
				Usage:     "Run an arbitrary command",
				ArgsUsage: "<command> [arg...]",
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return errors.New("exec needs a command")
					}
					return do(c, c.Args().Slice()...)
				},
			},
			{
				Name:   "save",
				Usage:  "Write a snapshot synchronously",
				Action: run("SAVE"),
			},
			{
				Name:   "dbsize",
				Usage:  "Print the number of keys",
				Action: run("DBSIZE"),
			},
			{
				Name:      "keys",
				Usage:     "List keys matching a glob pattern",
				ArgsUsage: "[pattern]",
				Action: func(c *cli.Context) error {
					pattern := "*"
					if c.NArg() > 0 {
						pattern = c.Args().First()
					}
					return do(c, "KEYS", pattern)
				},
			},
		},
	}
}

func run(name string) cli.ActionFunc {
	return func(c *cli.Context) error {
		return do(c, name)
	}
}

func client(c *cli.Context) (*redis.Client, error) {
	rdb, ok := c.App.Metadata[clientKey].(*redis.Client)
	if !ok {
		return nil, errors.New("client not initialized")
	}
	return rdb, nil
}

// do sends one command and prints the reply
func do(c *cli.Context, args ...string) error {
	rdb, err := client(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	cmdArgs := make([]any, len(args))
	for i, a := range args {
		cmdArgs[i] = a
	}

	reply, err := rdb.Do(ctx, cmdArgs...).Result()
	switch {
	case errors.Is(err, redis.Nil):
		reply = nil
	case err != nil:
		var rerr redis.Error
		if errors.As(err, &rerr) {
			fmt.Fprintf(c.App.Writer, "(error) %s\n", rerr.Error())
			return nil
		}
		return fmt.Errorf("%s: %w", strings.ToLower(args[0]), err)
	}

	printReply(c.App.Writer, reply, "")
	return nil
}

// printReply renders a reply the way redis-cli does
func printReply(w io.Writer, v any, indent string) {
	switch v := v.(type) {
	case nil:
		fmt.Fprintln(w, "(nil)")
	case int64:
		fmt.Fprintf(w, "(integer) %d\n", v)
	case string:
		fmt.Fprintln(w, v)
	case []any:
		if len(v) == 0 {
			fmt.Fprintln(w, "(empty array)")
			return
		}
		width := len(fmt.Sprint(len(v)))
		for i, item := range v {
			prefix := fmt.Sprintf("%*d) ", width, i+1)
			if i > 0 {
				fmt.Fprint(w, indent)
			}
			fmt.Fprint(w, prefix)
			printReply(w, item, indent+strings.Repeat(" ", len(prefix)))
		}
	default:
		fmt.Fprintln(w, v)
	}
}
