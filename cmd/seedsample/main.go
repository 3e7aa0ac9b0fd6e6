package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	decimal "github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/chatsell/agency_dash/backend/internal/config"
	"github.com/chatsell/agency_dash/backend/internal/database"
	"github.com/chatsell/agency_dash/backend/internal/store"
)

type plan struct {
	price int64
	limit int64
}

var (
	plans   = []plan{{49, 2000}, {99, 5000}, {299, 10000}}
	clients = []string{"Acme Retail", "Blue Harbor", "Cobalt Labs", "Dune Outfitters", "Evergreen Dental"}
)

func main() {
	tenant := flag.String("tenant", "test_company", "white-label company to seed")
	users := flag.Int("users", 150, "registered users to create")
	billing := flag.Int("billing", 200, "billing records to create")
	configFile := flag.String("config", "", "path to analytics.yaml")
	flag.Parse()

	cfg, err := config.Load(config.Options{ConfigFile: *configFile})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	client, err := database.Connect(ctx, cfg.Mongo, slog.Default())
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer client.Disconnect(ctx)

	db := client.Database(cfg.Mongo.Database)
	filter := bson.D{{Key: store.FieldTenant, Value: *tenant}}
	for _, name := range []string{store.CollectionUsers, store.CollectionBilling, store.CollectionConfigurators} {
		res, err := db.Collection(name).DeleteMany(ctx, filter)
		if err != nil {
			log.Fatalf("clear %s: %v", name, err)
		}
		log.Printf("cleared %d documents from %s", res.DeletedCount, name)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	now := time.Now().UTC()

	userDocs := make([]any, 0, *users)
	for i := 0; i < *users; i++ {
		created := now.AddDate(0, 0, -rng.Intn(180))
		reset := now.AddDate(0, 0, -rng.Intn(46))
		count := int64(rng.Intn(3000))
		p := plans[rng.Intn(len(plans))]
		userDocs = append(userDocs, store.RegisteredUser{
			Tenant:            *tenant,
			CreatedAt:         &created,
			TrialMode:         rng.Float64() < 0.3,
			LimitResetDate:    &reset,
			ConversationCount: &count,
			ConversationLimit: &p.limit,
			CompanyName:       clients[rng.Intn(len(clients))],
		})
	}
	if _, err := db.Collection(store.CollectionUsers).InsertMany(ctx, userDocs); err != nil {
		log.Fatalf("insert users: %v", err)
	}

	providerShare := decimal.RequireFromString("0.4")
	billingDocs := make([]any, 0, *billing)
	for i := 0; i < *billing; i++ {
		p := plans[rng.Intn(len(plans))]
		price := decimal.NewFromInt(p.price)
		billingDocs = append(billingDocs, store.BillingRecord{
			Tenant:            *tenant,
			CompanyName:       clients[rng.Intn(len(clients))],
			CreatedAt:         now.AddDate(0, 0, -rng.Intn(180)),
			IsActive:          rng.Float64() < 0.85,
			ClientPrice:       price.InexactFloat64(),
			ProviderPrice:     price.Mul(providerShare).InexactFloat64(),
			ConversationLimit: p.limit,
		})
	}
	if _, err := db.Collection(store.CollectionBilling).InsertMany(ctx, billingDocs); err != nil {
		log.Fatalf("insert billing: %v", err)
	}

	assignable := make([]string, 0, 15)
	for i := 0; i < 15; i++ {
		assignable = append(assignable, uuid.NewString())
	}
	if _, err := db.Collection(store.CollectionConfigurators).InsertOne(ctx, store.Configurator{
		Tenant:           *tenant,
		AssignableUsers:  assignable,
		CurrentUserEmail: "admin@" + *tenant + ".com",
	}); err != nil {
		log.Fatalf("insert configurator: %v", err)
	}

	log.Printf("seeded tenant %q: %d users, %d billing records, 1 configurator", *tenant, len(userDocs), len(billingDocs))
}
