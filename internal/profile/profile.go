// Package profile persists named targeting profiles so operators can
// switch tunings without editing the config file.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dtiendzai123/newheadlockengine/internal/aimlock"
	"github.com/dtiendzai123/newheadlockengine/internal/config"
	"github.com/dtiendzai123/newheadlockengine/internal/controller"
	"github.com/dtiendzai123/newheadlockengine/internal/detector"
)

// ErrNotFound is returned when a named profile does not exist.
var ErrNotFound = errors.New("profile not found")

// Params is the tuning bundle a profile stores.
type Params struct {
	Detection  detector.Config   `json:"detection"`
	AimLock    aimlock.Config    `json:"aimlock"`
	Controller controller.Config `json:"controller"`
}

// Validate checks every embedded config.
func (p Params) Validate() error {
	if err := p.Detection.Validate(); err != nil {
		return err
	}
	if err := p.AimLock.Validate(); err != nil {
		return err
	}
	return p.Controller.Validate()
}

// Profile is the persisted row. Params is stored as a JSON document.
type Profile struct {
	ID     uint           `gorm:"primarykey"`
	Name   string         `gorm:"uniqueIndex;not null"`
	Params datatypes.JSON `gorm:"not null"`
}

// Store manages profile persistence. The backing database is selected by
// configuration: SQLite by default, Postgres when configured and
// reachable, with SQLite as the fallback.
type Store struct {
	DB      *gorm.DB
	IsValid bool
	Logger  zerolog.Logger
}

// NewStore creates a profile store.
func NewStore(log zerolog.Logger) *Store {
	return &Store{Logger: log}
}

// Connect opens the configured database and migrates the schema.
func (s *Store) Connect() error {
	cfg := config.ProfileDB()

	var err error
	switch cfg.Driver {
	case "postgres":
		s.DB, err = s.openPostgres(cfg)
		if err != nil {
			s.Logger.Error().Err(err).Msg("Failed to connect to Postgres, falling back to SQLite")
			s.DB, err = s.openSqlite(cfg.Path)
		}
	default:
		s.DB, err = s.openSqlite(cfg.Path)
	}
	if err != nil {
		s.IsValid = false
		return fmt.Errorf("opening profile DB: %w", err)
	}

	if err := s.DB.AutoMigrate(&Profile{}); err != nil {
		s.IsValid = false
		return fmt.Errorf("migrating profile schema: %w", err)
	}

	s.IsValid = true
	s.Logger.Info().Str("driver", cfg.Driver).Msg("Profile store ready")
	return nil
}

func (s *Store) openPostgres(cfg config.ProfileDBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database)
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
}

func (s *Store) openSqlite(path string) (*gorm.DB, error) {
	if path == "" {
		path = "file::memory:?cache=shared"
	}
	return gorm.Open(sqlite.Open(path), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
}

// Save creates or replaces the named profile.
func (s *Store) Save(name string, params Params) error {
	if name == "" {
		return fmt.Errorf("profile name must not be empty")
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("profile %q: %w", name, err)
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal profile %q: %w", name, err)
	}

	p := Profile{Name: name, Params: datatypes.JSON(raw)}
	err = s.DB.Where(Profile{Name: name}).
		Assign(map[string]any{"params": p.Params}).
		FirstOrCreate(&p).Error
	if err != nil {
		return fmt.Errorf("save profile %q: %w", name, err)
	}
	return nil
}

// Load returns the named profile's params.
func (s *Store) Load(name string) (Params, error) {
	var p Profile
	err := s.DB.Where("name = ?", name).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Params{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return Params{}, fmt.Errorf("load profile %q: %w", name, err)
	}

	var params Params
	if err := json.Unmarshal(p.Params, &params); err != nil {
		return Params{}, fmt.Errorf("unmarshal profile %q: %w", name, err)
	}
	return params, nil
}

// List returns all profile names.
func (s *Store) List() ([]string, error) {
	var names []string
	if err := s.DB.Model(&Profile{}).Order("name").Pluck("name", &names).Error; err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return names, nil
}

// Delete removes the named profile. Deleting a missing profile is not an
// error.
func (s *Store) Delete(name string) error {
	if err := s.DB.Where("name = ?", name).Delete(&Profile{}).Error; err != nil {
		return fmt.Errorf("delete profile %q: %w", name, err)
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s.DB == nil {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
