package database

import (
	"fmt"
	"log/slog"
	"time"

	"voeventdb/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	Debug    bool
}

func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func Connect(config Config) (*gorm.DB, error) {
	level := logger.Warn
	if config.Debug {
		level = logger.Info
	}

	db, err := gorm.Open(postgres.Open(config.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(level),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		// Unique violations surface as gorm.ErrDuplicatedKey.
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	slog.Info("database connected", "host", config.Host, "dbname", config.DBName)
	return db, nil
}

// Migrate installs the extensions, tables and indexes the archive needs. It
// is idempotent.
func Migrate(db *gorm.DB) error {
	for _, ext := range []string{"cube", "earthdistance", "pg_trgm"} {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS " + ext).Error; err != nil {
			return fmt.Errorf("failed to create %s extension: %w", ext, err)
		}
	}

	err := db.AutoMigrate(
		&models.Packet{},
		&models.Cite{},
		&models.Coord{},
		&models.IngestRun{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate models: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	slog.Info("database migration completed")
	return nil
}

var indexes = []string{
	// ivorn_contains / ivorn_prefix
	"CREATE INDEX IF NOT EXISTS idx_voevent_ivorn_trgm ON voevent USING gin(ivorn gin_trgm_ops)",
	"CREATE INDEX IF NOT EXISTS idx_voevent_stream_role ON voevent(stream, role)",
	// ref_contains
	"CREATE INDEX IF NOT EXISTS idx_cite_ref_ivorn_trgm ON cite USING gin(ref_ivorn gin_trgm_ops)",
	// cone
	"CREATE INDEX IF NOT EXISTS idx_coord_earth ON coord USING gist(ll_to_earth(dec, ra))",
}

func createIndexes(db *gorm.DB) error {
	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// Drop removes every archive table. Used by tests and the create --reset flag.
func Drop(db *gorm.DB) error {
	return db.Migrator().DropTable(&models.IngestRun{}, &models.Coord{}, &models.Cite{}, &models.Packet{})
}
