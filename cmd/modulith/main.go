package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kamruddin/modulith-go/internal/cache"
	"github.com/kamruddin/modulith-go/internal/config"
	"github.com/kamruddin/modulith-go/internal/consumer"
	"github.com/kamruddin/modulith-go/internal/db"
	"github.com/kamruddin/modulith-go/internal/events"
	"github.com/kamruddin/modulith-go/internal/inventory"
	"github.com/kamruddin/modulith-go/internal/ledger"
	"github.com/kamruddin/modulith-go/internal/lock"
	"github.com/kamruddin/modulith-go/internal/messaging"
	"github.com/kamruddin/modulith-go/internal/models"
)

// BrokerListenerID names the externalizing listener in the publication
// ledger. Its completion means the broker accepted the message.
const BrokerListenerID = "amqp.OrderEventsExternalizer"

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL
	database, err := db.NewPostgresDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	// Connect to Redis
	redisCache, err := cache.NewRedisCache(cfg.RedisHost, cfg.RedisPort, cfg.CacheTTL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisCache.Close()

	// Connect to RabbitMQ
	rabbitMQ, err := messaging.NewRabbitMQ(cfg.RabbitHost, cfg.RabbitPort, cfg.RabbitUser, cfg.RabbitPassword)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer rabbitMQ.Close()

	if err := rabbitMQ.DeclareTopology(); err != nil {
		log.Fatalf("Failed to declare broker topology: %v", err)
	}

	// Repositories and services
	productRepo := db.NewProductRepository(database)
	cachedProducts := db.NewCachedProductRepository(productRepo, redisCache)
	inventoryService := inventory.NewService(cachedProducts)

	locks := lock.NewManager(database, cfg.AppName, cfg.LockTTL)
	publicationLedger := ledger.NewStore(database)

	dispatcher := events.NewDispatcher(publicationLedger)
	if cfg.Externalize {
		// The broker owns the stock effect: the dispatcher only hands the
		// event to the exchange, the consumer pool applies it under lock.
		dispatcher.Register(models.OrderPlacedEventType, events.Listener{
			ID: BrokerListenerID,
			Handle: func(ctx context.Context, payload []byte) error {
				return rabbitMQ.Publish(ctx, messaging.OrderPlacedRoutingKey, payload)
			},
		})
	} else {
		dispatcher.Register(models.OrderPlacedEventType, events.Listener{
			ID:     inventory.OrderPlacedListenerID,
			Handle: inventoryService.HandleOrderPlaced,
		})
	}

	publications := events.NewPublicationService(publicationLedger, dispatcher)

	if cfg.ResubmitInterval > 0 {
		go resubmitLoop(ctx, publications, cfg.ResubmitInterval, cfg.ResubmitAge)
	}

	log.Printf("🚀 modulith starting (externalize=%v, workers=%d)", cfg.Externalize, cfg.ConsumerWorkers)

	if cfg.Externalize {
		deliveries, err := rabbitMQ.Consume(messaging.OrderEventsQueue, cfg.ConsumerWorkers)
		if err != nil {
			log.Fatalf("Failed to consume messages: %v", err)
		}

		inventoryConsumer := consumer.NewInventoryConsumer(inventoryService, locks, cfg.LockWaitTimeout)
		inventoryConsumer.Run(ctx, deliveries, cfg.ConsumerWorkers)
	} else {
		<-ctx.Done()
	}

	log.Println("Shutting down...")
}

// resubmitLoop periodically resubmits publications that stayed incomplete
// longer than age, so crashed deliveries recover without operator action.
func resubmitLoop(ctx context.Context, publications *events.PublicationService, interval, age time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := publications.ResubmitOlderThan(ctx, age)
			if err != nil {
				log.Printf("❌ Resubmission sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("🔁 Resubmitted %d incomplete publications", n)
			}
		}
	}
}
