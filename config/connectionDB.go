package config

import (
	"log"
	"os"

	"codescribe-auth/internal/entity"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func ConnectionDb() *gorm.DB {
	if err := godotenv.Load(); err != nil {
		log.Printf("error load env %s", err)
	}

	dsn := os.Getenv("DATABASE_URL")
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		PrepareStmt: false,
	})
	if err != nil {
		log.Fatalf("error connect to database %s", err)
	}

	if os.Getenv("DB_AUTO_MIGRATE") != "false" {
		err := db.AutoMigrate(
			&entity.User{},
			&entity.AccountToken{},
			&entity.Session{},
			&entity.MFASecret{},
			&entity.SecurityLog{},
		)
		if err != nil {
			log.Fatalf("error migrate database %s", err)
		}
	}

	return db
}
