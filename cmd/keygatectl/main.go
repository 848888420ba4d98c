// keygatectl is the operator tool for a keygate deployment. It runs
// migrations and manages credential keys directly against the database,
// bypassing the engine's token layer.
package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"

	"github.com/mehmetylmz/keygate"
	"github.com/mehmetylmz/keygate/store/postgres"
)

type config struct {
	DatabaseDSN string `env:"KEYGATE_DATABASE_DSN, required"`
	LogLevel    string `env:"KEYGATE_LOG_LEVEL, default=info"`
}

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	ctx := context.Background()

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	store := postgres.New(db)

	switch os.Args[1] {
	case "migrate":
		runMigrate(ctx, log, store)
	case "add-key":
		runAddKey(ctx, log, store, os.Args[2:])
	case "list-keys":
		runListKeys(ctx, log, store)
	case "delete-key":
		runDeleteKey(ctx, log, store, os.Args[2:])
	case "set-endpoint":
		runSetEndpoint(ctx, log, store, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: keygatectl <command> [flags]

commands:
  migrate       apply database migrations
  add-key       create a credential key
  list-keys     list all credential keys
  delete-key    delete a credential key
  set-endpoint  set the dispatch endpoint URL`)
}

func runMigrate(ctx context.Context, log zerolog.Logger, store *postgres.Store) {
	if err := store.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}
	log.Info().Msg("migrations applied")
}

func runAddKey(ctx context.Context, log zerolog.Logger, store *postgres.Store, args []string) {
	fs := flag.NewFlagSet("add-key", flag.ExitOnError)
	key := fs.String("key", "", "credential key (generated when empty)")
	userID := fs.String("user", "", "user id (generated when empty)")
	admin := fs.Bool("admin", false, "grant admin")
	userType := fs.String("type", string(keygate.UserTypeNormal), "user type: normal, premium or admin")
	days := fs.Int("days", 30, "validity in days (ignored for admins)")
	fs.Parse(args)

	if *key == "" {
		*key = generateKey()
	}
	if *userID == "" {
		*userID = uuid.NewString()
	}

	acct := &keygate.Account{
		Key:          *key,
		UserID:       *userID,
		IsAdmin:      *admin,
		UserType:     keygate.UserType(strings.ToLower(*userType)),
		CreatedAt:    time.Now().UTC(),
		LastResetDay: time.Now().UTC().Format("2006-01-02"),
	}
	if !*admin {
		expiry := time.Now().UTC().AddDate(0, 0, *days)
		acct.Expiry = &expiry
	}

	if err := store.Create(ctx, acct); err != nil {
		log.Fatal().Err(err).Msg("create key")
	}
	log.Info().
		Str("user_id", acct.UserID).
		Bool("admin", acct.IsAdmin).
		Str("type", string(acct.EffectiveType())).
		Msg("key created")
	fmt.Println(acct.Key)
}

func runListKeys(ctx context.Context, log zerolog.Logger, store *postgres.Store) {
	accounts, err := store.List(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("list keys")
	}
	for _, a := range accounts {
		expiry := "never"
		if a.Expiry != nil {
			expiry = a.Expiry.Format(time.RFC3339)
		}
		fmt.Printf("%s\tadmin=%t\ttype=%s\texpiry=%s\tused=%d\n",
			a.UserID, a.IsAdmin, a.EffectiveType(), expiry, a.DailyUsed)
	}
}

func runDeleteKey(ctx context.Context, log zerolog.Logger, store *postgres.Store, args []string) {
	fs := flag.NewFlagSet("delete-key", flag.ExitOnError)
	key := fs.String("key", "", "credential key to delete")
	fs.Parse(args)

	if *key == "" {
		log.Fatal().Msg("delete-key requires -key")
	}
	if err := store.Delete(ctx, *key); err != nil {
		log.Fatal().Err(err).Msg("delete key")
	}
	log.Info().Msg("key deleted")
}

func runSetEndpoint(ctx context.Context, log zerolog.Logger, store *postgres.Store, args []string) {
	fs := flag.NewFlagSet("set-endpoint", flag.ExitOnError)
	url := fs.String("url", "", "dispatch endpoint URL")
	fs.Parse(args)

	if *url == "" {
		log.Fatal().Msg("set-endpoint requires -url")
	}
	if err := store.Set(ctx, keygate.SettingDispatchEndpoint, *url); err != nil {
		log.Fatal().Err(err).Msg("set endpoint")
	}
	log.Info().Str("url", *url).Msg("dispatch endpoint updated")
}

func generateKey() string {
	raw := make([]byte, 30)
	if _, err := rand.Read(raw); err != nil {
		panic(err)
	}
	return "kg_" + base64.RawURLEncoding.EncodeToString(raw)
}
