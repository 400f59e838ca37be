// modulithctl is the operator CLI: product and order administration plus
// the event publication resubmission operations.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kamruddin/modulith-go/internal/cache"
	"github.com/kamruddin/modulith-go/internal/config"
	"github.com/kamruddin/modulith-go/internal/db"
	"github.com/kamruddin/modulith-go/internal/events"
	"github.com/kamruddin/modulith-go/internal/inventory"
	"github.com/kamruddin/modulith-go/internal/ledger"
	"github.com/kamruddin/modulith-go/internal/messaging"
	"github.com/kamruddin/modulith-go/internal/models"
	"github.com/kamruddin/modulith-go/internal/order"
)

// BrokerListenerID must match the service binary so resubmission finds
// the externalizing listener for ledger rows either binary recorded.
const BrokerListenerID = "amqp.OrderEventsExternalizer"

func usage() {
	fmt.Fprintln(os.Stderr, `usage: modulithctl <command> [flags]

commands:
  add-product         -name <name> [-description <text>] -price <price> -stock <n>
  list-products
  place-order         -product <id> -quantity <n>
  list-orders
  resubmit-all        resubmit every incomplete event publication
  resubmit-failed     resubmit publications whose status cannot be determined as successful
  resubmit-older-than -age <duration>`)
	os.Exit(2)
}

type app struct {
	orders       *order.Service
	inventory    *inventory.Service
	publications *events.PublicationService
}

func setup(ctx context.Context, cfg config.Config) (*app, func()) {
	database, err := db.NewPostgresDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	redisCache, err := cache.NewRedisCache(cfg.RedisHost, cfg.RedisPort, cfg.CacheTTL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	rabbitMQ, err := messaging.NewRabbitMQ(cfg.RabbitHost, cfg.RabbitPort, cfg.RabbitUser, cfg.RabbitPassword)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	if err := rabbitMQ.DeclareTopology(); err != nil {
		log.Fatalf("Failed to declare broker topology: %v", err)
	}

	productRepo := db.NewProductRepository(database)
	cachedProducts := db.NewCachedProductRepository(productRepo, redisCache)
	inventoryService := inventory.NewService(cachedProducts)

	publicationLedger := ledger.NewStore(database)
	dispatcher := events.NewDispatcher(publicationLedger)
	if cfg.Externalize {
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

	cleanup := func() {
		rabbitMQ.Close()
		redisCache.Close()
		database.Close()
	}

	return &app{
		orders:       order.NewService(db.NewOrderRepository(database), dispatcher),
		inventory:    inventoryService,
		publications: events.NewPublicationService(publicationLedger, dispatcher),
	}, cleanup
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	ctx := context.Background()
	a, cleanup := setup(ctx, config.Load())
	defer cleanup()

	switch os.Args[1] {
	case "add-product":
		fs := flag.NewFlagSet("add-product", flag.ExitOnError)
		name := fs.String("name", "", "product name")
		description := fs.String("description", "", "product description")
		price := fs.Float64("price", 0, "unit price")
		stock := fs.Int("stock", 0, "initial stock quantity")
		fs.Parse(os.Args[2:])

		product := &models.Product{Name: *name, Description: *description, Price: *price, StockQuantity: *stock}
		if err := a.inventory.AddProduct(ctx, product); err != nil {
			log.Fatalf("Failed to add product: %v", err)
		}
		fmt.Printf("Product %d created\n", product.ID)

	case "list-products":
		products, err := a.inventory.FindAll(ctx)
		if err != nil {
			log.Fatalf("Failed to list products: %v", err)
		}
		for _, p := range products {
			fmt.Printf("%d\t%s\t$%.2f\tstock=%d\n", p.ID, p.Name, p.Price, p.StockQuantity)
		}

	case "place-order":
		fs := flag.NewFlagSet("place-order", flag.ExitOnError)
		productID := fs.Int64("product", 0, "product id")
		quantity := fs.Int("quantity", 0, "quantity")
		fs.Parse(os.Args[2:])

		placed, err := a.orders.PlaceOrder(ctx, *productID, *quantity)
		if err != nil {
			log.Fatalf("Failed to place order: %v", err)
		}
		fmt.Printf("Order %d placed (status %s)\n", placed.ID, placed.Status)

	case "list-orders":
		orders, err := a.orders.FindAll(ctx)
		if err != nil {
			log.Fatalf("Failed to list orders: %v", err)
		}
		for _, o := range orders {
			fmt.Printf("%d\tproduct=%d\tquantity=%d\t%s\t%s\n", o.ID, o.ProductID, o.Quantity, o.Status, o.OrderDate.Format(time.RFC3339))
		}

	case "resubmit-all":
		n, err := a.publications.ResubmitAllIncomplete(ctx)
		if err != nil {
			log.Fatalf("Failed to resubmit publications: %v", err)
		}
		fmt.Printf("Resubmitted %d publications\n", n)

	case "resubmit-failed":
		n, err := a.publications.ResubmitFailed(ctx)
		if err != nil {
			log.Fatalf("Failed to resubmit publications: %v", err)
		}
		fmt.Printf("Resubmitted %d publications\n", n)

	case "resubmit-older-than":
		fs := flag.NewFlagSet("resubmit-older-than", flag.ExitOnError)
		age := fs.Duration("age", time.Minute, "minimum incomplete age")
		fs.Parse(os.Args[2:])

		n, err := a.publications.ResubmitOlderThan(ctx, *age)
		if err != nil {
			log.Fatalf("Failed to resubmit publications: %v", err)
		}
		fmt.Printf("Resubmitted %d publications\n", n)

	default:
		usage()
	}
}
