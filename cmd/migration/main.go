package main

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"strings"

	"epic_events/cmd/migration/versions"
	"epic_events/crm_api/schema"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openDialector(uri string) gorm.Dialector {
	if uri == "" {
		log.Fatalf("Missing --db_uri arg")
	}
	parts, err := url.Parse(uri)
	if err != nil {
		log.Fatalf("error parsing db uri: %v", err)
	}

	if parts.Scheme == "sqlite" {
		return sqlite.Open(strings.TrimPrefix(uri, "sqlite://"))
	}

	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return postgres.Open(fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port()))
}

func main() {
	dbUri := flag.String("db_uri", "", "Database URI, postgres://... or sqlite://path")
	rollback := flag.Bool("rollback_last", false, "Roll back the most recent migration instead of migrating")
	flag.Parse()

	db, err := gorm.Open(openDialector(*dbUri), &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	migration := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID:       "1",
			Migrate:  versions.Migration_1_case_insensitive_uniques,
			Rollback: versions.Rollback_1_case_insensitive_uniques,
		},
	})

	migration.InitSchema(func(txn *gorm.DB) error {
		log.Println("clean database detected, running full schema initialization")

		if err := schema.AutoMigrate(txn); err != nil {
			return err
		}
		return versions.Migration_1_case_insensitive_uniques(txn)
	})

	if *rollback {
		if err := migration.RollbackLast(); err != nil {
			log.Fatalf("rollback failed: %v", err)
		}
		log.Println("rollback completed successfully")
		return
	}

	if err := migration.Migrate(); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	log.Println("migration completed successfully")
}
