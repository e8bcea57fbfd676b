package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/multimind-ai/multimind/internal/ai"
	"github.com/multimind-ai/multimind/internal/config"
	"github.com/multimind-ai/multimind/internal/db"
	"github.com/multimind-ai/multimind/internal/logger"
	"github.com/multimind-ai/multimind/internal/store/rabbitmq"
	"github.com/multimind-ai/multimind/internal/usage"
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg := config.Load()

	zlog, err := logger.New(cfg.AppMode)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zlog.Sync()

	gdb := db.Connect(cfg.DBDSN)
	usageRepo := usage.NewRepo(gdb)
	// no publisher here: republishing consumed events would loop
	tracker := usage.NewTracker(usageRepo, nil, zlog)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		zlog.Fatal("rabbit dial", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		zlog.Fatal("rabbit channel", "err", err)
	}
	defer ch.Close()

	// declare the main/retry/DLQ trio so the worker can start first
	if _, err := ch.QueueDeclare(cfg.RabbitQueue+".dlq", true, false, false, false, nil); err != nil {
		zlog.Fatal("dlq declare", "err", err)
	}
	if _, err := ch.QueueDeclare(cfg.RabbitQueue+".retry", true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.RabbitQueue,
	}); err != nil {
		zlog.Fatal("retry queue declare", "err", err)
	}
	if _, err := ch.QueueDeclare(cfg.RabbitQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.RabbitQueue + ".dlq",
	}); err != nil {
		zlog.Fatal("queue declare", "err", err)
	}

	concurrency := workerConcurrency()

	if err := ch.Qos(concurrency, 0, false); err != nil {
		zlog.Fatal("qos", "err", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		zlog.Fatal("consume", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zlog.Info("worker started", "queue", cfg.RabbitQueue, "concurrency", concurrency)

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var ev rabbitmq.UsageEvent
				if err := json.Unmarshal(d.Body, &ev); err != nil || ev.UserID == 0 || ev.ModelID == "" {
					zlog.Warn("bad usage event", "worker", workerID, "err", err)
					_ = d.Nack(false, false)
					continue
				}

				u := ai.Usage{
					PromptTokens:     ev.PromptTokens,
					CompletionTokens: ev.CompletionTokens,
					TotalTokens:      ev.TotalTokens,
				}
				start := time.Now()
				if err := tracker.Track(ctx, ev.UserID, ev.ModelID, u); err != nil {
					zlog.Error("usage apply failed", "worker", workerID,
						"user_id", ev.UserID, "model_id", ev.ModelID,
						"cost", time.Since(start), "err", err)
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					zlog.Error("ack failed", "worker", workerID, "err", err)
				}
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			zlog.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				zlog.Warn("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}
