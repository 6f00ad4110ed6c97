package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"payvault.org/internal/auth"
	"payvault.org/internal/demo"
	"payvault.org/internal/keeper"
	"payvault.org/internal/payroll"
	"payvault.org/internal/payroll/remote"
)

func main() {
	var (
		baseURL     = flag.String("base-url", "http://localhost:8080", "API base URL")
		workers     = flag.Int("workers", 2, "Concurrent deposit worker count")
		duration    = flag.Duration("duration", 2*time.Minute, "Duration of the demo run")
		seed        = flag.Int64("seed", 0, "Deposit generator seed (0 = time-based)")
		settleEvery = flag.Duration("settle-every", 5*time.Second, "Keeper poll interval")
		openAIModel = flag.String("openai-model", "gpt-4o-mini", "OpenAI model for summaries (optional)")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.Printf("Launching payroll demo: base=%s workers=%d duration=%s", *baseURL, *workers, *duration)

	token, err := remote.MintToken(ctx, *baseURL, "demo-payroll", []string{auth.RoleEmployer})
	if err != nil {
		log.Fatalf("mint token: %v", err)
	}
	client, err := remote.New(*baseURL, remote.WithToken(token))
	if err != nil {
		log.Fatalf("client: %v", err)
	}

	gen := demo.NewGenerator(*seed)
	roster := gen.Roster()
	for _, hire := range roster {
		_, err := client.AddEmployee(ctx, hire.Address, hire.Salary, hire.IntervalSeconds)
		switch {
		case err == nil:
			log.Printf("hired %s (%s): %d units every %ds", hire.Address, hire.Label, hire.Salary, hire.IntervalSeconds)
		case errors.Is(err, payroll.ErrAlreadyActive):
			log.Printf("reusing active employee %s", hire.Address)
		default:
			log.Fatalf("hire %s: %v", hire.Address, err)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	var (
		mu      sync.Mutex
		counter demo.Counter

		failures int64
	)

	// Payments are counted off the event stream so the demo sees exactly what
	// SSE subscribers see.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		watchStream(runCtx, *baseURL, func(evt payroll.Event) {
			if evt.Type == payroll.EventSalaryPaid {
				mu.Lock()
				counter.AddPayment(evt.Amount)
				mu.Unlock()
			}
		})
	}()

	// The keeper probes for due salaries and fires settlement passes, same as
	// the standalone payvault-keeper binary.
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = keeper.New(client, *settleEvery).Run(runCtx)
	}()

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id*9973)))
			wgen := demo.NewGenerator(*seed + int64(id+1))
			for {
				select {
				case <-runCtx.Done():
					return
				default:
				}
				d := wgen.NextDeposit()
				if _, err := client.Deposit(runCtx, d.Amount); err != nil {
					if runCtx.Err() != nil {
						return
					}
					atomic.AddInt64(&failures, 1)
					log.Printf("worker %d deposit: %v", id, err)
					time.Sleep(250 * time.Millisecond)
					continue
				}
				mu.Lock()
				counter.AddDeposit(d)
				mu.Unlock()
				log.Printf("worker %d: %s (+%d units)", id, d.Narrative, d.Amount)
				time.Sleep(time.Duration(300+rnd.Intn(500)) * time.Millisecond)
			}
		}(i)
	}

	wg.Wait()
	cancel()

	mu.Lock()
	final := counter
	mu.Unlock()

	balance, err := client.Balance(context.Background())
	if err != nil {
		log.Printf("final balance: %v", err)
	}
	log.Printf("Run complete: %d deposits (%.2f major units in), %d salaries paid (%.2f out), %d failures, vault=%d",
		final.Deposits, final.DepositMajor(), final.Payments, final.PaidMajor(), failures, balance)

	if key := os.Getenv("OPENAI_API_KEY"); key != "" && final.Payments > 0 {
		summary, err := demo.Summarize(ctx, demo.SummaryStats{
			Deposits:   final.Deposits,
			Inflow:     final.DepositMajor(),
			Payments:   final.Payments,
			PaidOut:    final.PaidMajor(),
			Duration:   *duration,
			RosterSize: len(roster),
		}, demo.SummaryRequest{APIKey: key, Model: *openAIModel})
		if err != nil {
			log.Printf("AI summary error: %v", err)
		} else {
			log.Println("AI Executive Summary:")
			log.Println(summary)
		}
	} else {
		log.Println("Set OPENAI_API_KEY to enable AI narrative summaries.")
	}
}

// watchStream tails the SSE feed and hands each decoded event to fn,
// reconnecting until ctx ends.
func watchStream(ctx context.Context, baseURL string, fn func(payroll.Event)) {
	for ctx.Err() == nil {
		if err := tailOnce(ctx, baseURL, fn); err != nil && ctx.Err() == nil {
			log.Printf("stream: %v (reconnecting)", err)
			time.Sleep(time.Second)
		}
	}
}

func tailOnce(ctx context.Context, baseURL string, fn func(payroll.Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/payroll/stream", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream status %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt payroll.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt); err != nil {
			continue
		}
		fn(evt)
	}
	return scanner.Err()
}
