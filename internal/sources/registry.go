package sources

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/carelink/emr-connector/internal/domain"
	"github.com/carelink/emr-connector/internal/platform/logger"

	"github.com/sirupsen/logrus"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

var (
	ErrHospitalUnknown  = errors.New("hospital is not configured")
	ErrHospitalDisabled = errors.New("hospital is disabled")
)

// HospitalConfig describes one source EMR database.  The set of configured
// hospitals is loaded from a JSON config file owned by the surrounding
// application.
type HospitalConfig struct {
	HospitalID domain.HospitalID `json:"hospital_id"`
	Name       string            `json:"name"`
	Driver     string            `json:"driver"`
	Host       string            `json:"host"`
	Port       int               `json:"port"`
	User       string            `json:"user"`
	Password   string            `json:"password"`
	Database   string            `json:"database"`
	Enabled    bool              `json:"enabled"`
}

// Registry owns one pooled connection per configured source hospital.  Pools
// are created lazily on first use and cached; CloseAll drains every pool at
// process shutdown.  A connection failure for one hospital never affects any
// other hospital.
type Registry struct {
	hospitals map[domain.HospitalID]HospitalConfig
	poolSize  int

	mutex sync.Mutex
	pools map[domain.HospitalID]*sql.DB
}

func NewRegistry(hospitals []HospitalConfig, poolSize int) *Registry {
	configured := make(map[domain.HospitalID]HospitalConfig)
	for _, h := range hospitals {
		configured[h.HospitalID] = h
	}

	return &Registry{
		hospitals: configured,
		poolSize:  poolSize,
		pools:     make(map[domain.HospitalID]*sql.DB),
	}
}

// NewRegistryFromConfigFile loads the hospital list from the JSON config file.
func NewRegistryFromConfigFile(configFile string, poolSize int) (*Registry, error) {
	logger.Log.Debug("Loading hospitals config file: ", configFile)

	f, err := os.Open(configFile)
	if err != nil {
		logger.Log.Error("Could not load hospitals config file: ", err)
		return nil, err
	}
	defer f.Close()

	var hospitals []HospitalConfig
	if err := json.NewDecoder(f).Decode(&hospitals); err != nil {
		logger.Log.Error("Could not parse hospitals config file: ", err)
		return nil, err
	}

	return NewRegistry(hospitals, poolSize), nil
}

// HospitalIDs returns every enabled hospital, in no particular order.
func (r *Registry) HospitalIDs() []domain.HospitalID {
	ids := make([]domain.HospitalID, 0, len(r.hospitals))
	for id, h := range r.hospitals {
		if h.Enabled {
			ids = append(ids, id)
		}
	}
	return ids
}

// Driver returns the configured driver name for a hospital, defaulting to
// mysql for unknown hospitals (GetConnection rejects those anyway).
func (r *Registry) Driver(hospitalID domain.HospitalID) string {
	if hospital, ok := r.hospitals[hospitalID]; ok {
		return hospital.Driver
	}
	return "mysql"
}

// GetConnection returns the pooled connection for a hospital, creating the
// pool on first use.
func (r *Registry) GetConnection(hospitalID domain.HospitalID) (*sql.DB, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if pool, ok := r.pools[hospitalID]; ok {
		return pool, nil
	}

	hospital, ok := r.hospitals[hospitalID]
	if !ok {
		return nil, ErrHospitalUnknown
	}

	if !hospital.Enabled {
		return nil, ErrHospitalDisabled
	}

	pool, err := openPool(hospital, r.poolSize)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"error": err, "hospital_id": hospitalID}).Error("Unable to open source database pool")
		return nil, err
	}

	r.pools[hospitalID] = pool
	return pool, nil
}

// CloseAll drains and releases every pool.
func (r *Registry) CloseAll() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for hospitalID, pool := range r.pools {
		if err := pool.Close(); err != nil {
			logger.Log.WithFields(logrus.Fields{"error": err, "hospital_id": hospitalID}).Warn("Error closing source database pool")
		}
		delete(r.pools, hospitalID)
	}
}

func openPool(hospital HospitalConfig, poolSize int) (*sql.DB, error) {

	var driver, dsn string

	switch hospital.Driver {
	case "postgres":
		driver = "postgres"
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			hospital.Host, hospital.Port, hospital.User, hospital.Password, hospital.Database)
	case "mysql":
		driver = "mysql"
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			hospital.User, hospital.Password, hospital.Host, hospital.Port, hospital.Database)
	default:
		return nil, errors.New("Invalid source database driver requested: " + hospital.Driver)
	}

	pool, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	pool.SetMaxOpenConns(poolSize)

	if err := pool.Ping(); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}
