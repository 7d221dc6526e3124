package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"perio-go/internal/config"
	logging "perio-go/internal/logging"
	"perio-go/internal/models"
)

var DB *gorm.DB

// Init opens the postgres connection and migrates the schema.
func Init(cfg config.DatabaseConfig, log *zap.Logger) error {
	gormLogger := logging.NewGormZapLogger(log)
	gormLogger.LogLevel = logger.Info

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	DB = db

	log.Info("Database connection established successfully.", zap.String("host", cfg.Host), zap.String("dbname", cfg.DBName))
	return runMigrations(log)
}

// Close releases the underlying connection pool.
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func runMigrations(log *zap.Logger) error {
	// AutoMigrate creates tables, columns and foreign keys but not descending indexes.
	err := DB.AutoMigrate(
		&models.PeriodontalExam{},
		&models.ToothRecord{},
		&models.ExamMetric{},
	)
	if err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	log.Info("Database migrations completed successfully.")

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_exams_patient_timeline ON periodontal_exams (patient_id, examined_at DESC);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_tooth_data_exam_tooth ON periodontal_tooth_data (exam_id, tooth_number);`,
		`CREATE INDEX IF NOT EXISTS idx_exam_metrics_query ON exam_metrics (exam_id, scope, metric_key);`,
	}
	for _, stmt := range indexes {
		if err := DB.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create custom index: %w", err)
		}
	}
	log.Info("Custom indexes ensured successfully.")
	return nil
}
