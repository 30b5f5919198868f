package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pior/kvserver/client"
	"github.com/pior/kvserver/metrics"
)

func main() {
	var (
		servers     string
		timeout     time.Duration
		retransmit  time.Duration
		metricsAddr string
		breaker     bool
		verbose     bool
	)

	flag.StringVar(&servers, "servers", envOrDefault("KV_SERVERS", "127.0.0.1:50000"), "comma-separated server addresses")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "per-command timeout")
	flag.DurationVar(&retransmit, "retransmit", client.DefaultRetransmitTimeout, "resend a request after this long without a response")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "HTTP address for client /metrics (empty disables)")
	flag.BoolVar(&breaker, "circuit-breaker", false, "enable per-server circuit breakers")
	flag.BoolVar(&verbose, "v", false, "debug logging")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{Level: log.WarnLevel})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}

	config := client.Config{
		RetransmitTimeout: retransmit,
		Logger:            logger,
	}
	if breaker {
		config.NewCircuitBreaker = client.NewCircuitBreakerConfig(3, time.Minute, 10*time.Second)
	}

	kv, err := client.New(strings.Split(servers, ","), config)
	if err != nil {
		fmt.Printf("Failed to create client: %v\n", err)
		os.Exit(1)
	}
	defer kv.Close()

	if metricsAddr != "" {
		router := metrics.NewRouter(metrics.NewRegistry(metrics.NewClientCollector(kv)))
		go func() {
			if err := http.ListenAndServe(metricsAddr, router); err != nil {
				logger.Error("metrics server stopped", "err", err)
			}
		}()
	}

	fmt.Println("Key-Value CLI")
	fmt.Println("=============")
	fmt.Println("Commands: get <key>, put <key> <value>, delete <key>, stats, help, quit")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		command := strings.ToLower(parts[0])
		ctx, cancel := context.WithTimeout(context.Background(), timeout)

		switch command {
		case "get":
			if len(parts) != 2 {
				fmt.Println("Usage: get <key>")
				break
			}
			handleGet(ctx, kv, parts[1])

		case "put", "set":
			if len(parts) < 3 {
				fmt.Println("Usage: put <key> <value>")
				break
			}
			handlePut(ctx, kv, parts[1], strings.Join(parts[2:], " "))

		case "delete", "del":
			if len(parts) != 2 {
				fmt.Println("Usage: delete <key>")
				break
			}
			handleDelete(ctx, kv, parts[1])

		case "stats":
			handleStats(kv)

		case "help":
			fmt.Println("Commands:")
			fmt.Println("  get <key>            - Get a value by key")
			fmt.Println("  put <key> <value>    - Store a value")
			fmt.Println("  delete <key>         - Delete a key")
			fmt.Println("  stats                - Show client and pool statistics")
			fmt.Println("  quit                 - Exit the CLI")

		case "quit", "exit":
			cancel()
			fmt.Println("Goodbye!")
			return

		default:
			fmt.Printf("Unknown command: %s. Type 'help' for available commands.\n", command)
		}

		cancel()
	}

	if err := scanner.Err(); err != nil {
		fmt.Printf("Error reading input: %v\n", err)
	}
}

func handleGet(ctx context.Context, kv *client.Client, key string) {
	start := time.Now()
	value, err := kv.Get(ctx, key)
	duration := time.Since(start)

	switch {
	case errors.Is(err, client.ErrNotFound):
		fmt.Printf("Key not found (took %v)\n", duration)
	case err != nil:
		fmt.Printf("Error: %v (took %v)\n", err, duration)
	default:
		fmt.Printf("Value: %s (took %v)\n", value, duration)
	}
}

func handlePut(ctx context.Context, kv *client.Client, key, value string) {
	start := time.Now()
	updated, err := kv.Put(ctx, key, value)
	duration := time.Since(start)

	switch {
	case errors.Is(err, client.ErrRejected):
		fmt.Printf("Rejected: keys are 1-20 characters without spaces, values under 120 (took %v)\n", duration)
	case err != nil:
		fmt.Printf("Error: %v (took %v)\n", err, duration)
	case updated:
		fmt.Printf("Updated (took %v)\n", duration)
	default:
		fmt.Printf("Stored (took %v)\n", duration)
	}
}

func handleDelete(ctx context.Context, kv *client.Client, key string) {
	start := time.Now()
	err := kv.Delete(ctx, key)
	duration := time.Since(start)

	switch {
	case errors.Is(err, client.ErrNotFound):
		fmt.Printf("Key not found (took %v)\n", duration)
	case err != nil:
		fmt.Printf("Error: %v (took %v)\n", err, duration)
	default:
		fmt.Printf("Deleted (took %v)\n", duration)
	}
}

func handleStats(kv *client.Client) {
	s := kv.Stats()
	fmt.Printf("gets=%d hits=%d puts=%d updates=%d deletes=%d retransmits=%d errors=%d\n",
		s.Gets, s.GetHits, s.Puts, s.Updates, s.Deletes, s.Retransmits, s.Errors)

	for _, sp := range kv.PoolStats() {
		p := sp.PoolStats
		fmt.Printf("%s: conns=%d active=%d idle=%d created=%d destroyed=%d breaker=%s\n",
			sp.Addr, p.TotalConns, p.ActiveConns, p.IdleConns, p.CreatedConns, p.DestroyedConns, sp.CircuitBreakerState)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
