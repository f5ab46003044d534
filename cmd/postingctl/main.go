// Command postingctl triggers and inspects background jobs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/peterpeto56u-code/MarcoERP-sub007/cmd/postingctl/cli"
)

func main() {
	_ = godotenv.Load()
	redisAddr := flag.String("redis", envOr("REDIS_ADDR", "127.0.0.1:6379"), "redis address")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: postingctl [-redis addr] trigger <job> [fiscal-year-id...] | stats\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	c := cli.NewJobsCLI(*redisAddr)
	defer c.Close()

	switch flag.Arg(0) {
	case "trigger":
		if flag.NArg() < 2 {
			flag.Usage()
			os.Exit(2)
		}
		info, err := c.Trigger(context.Background(), flag.Arg(1), flag.Args()[2:])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := c.InspectQueue()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
