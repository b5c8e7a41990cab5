// Applies the schema in migrations/ to the gateway database. The connection
// comes from the same YAML file the gateway reads, so the two never drift;
// DATABASE_URL overrides it for one-off targets.
//
// Usage: migrate [-config file] [-source dir] [-steps n] [up|down]
package main

import (
	"errors"
	"flag"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/routefabric/cluster-gateway/internal/config"
)

func main() {
	configPath := flag.String("config", "configs/gateway.yaml", "gateway configuration file")
	source := flag.String("source", "migrations", "directory holding the migration files")
	steps := flag.Int("steps", 0, "apply at most this many steps (0 means all)")
	flag.Parse()

	direction := flag.Arg(0)
	if direction == "" {
		direction = "up"
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		cfg := config.DefaultConfig()
		if err := config.LoadFile(*configPath, cfg); err != nil {
			log.Fatalf("load %s: %v", *configPath, err)
		}
		dsn = cfg.Database.DSN()
	}

	m, err := migrate.New("file://"+*source, dsn)
	if err != nil {
		log.Fatalf("open migrator: %v", err)
	}
	defer m.Close()

	switch direction {
	case "up":
		if *steps > 0 {
			err = m.Steps(*steps)
		} else {
			err = m.Up()
		}
	case "down":
		if *steps > 0 {
			err = m.Steps(-*steps)
		} else {
			err = m.Down()
		}
	default:
		log.Fatalf("unknown direction %q, want up or down", direction)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		log.Println("schema already current")
		return
	}
	if err != nil {
		log.Fatalf("apply migrations (%s): %v", direction, err)
	}

	version, dirty, verr := m.Version()
	if errors.Is(verr, migrate.ErrNilVersion) {
		log.Println("schema rolled back to empty")
		return
	}
	log.Printf("schema now at version %d (dirty=%v)", version, dirty)
}
