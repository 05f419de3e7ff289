package repository

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"

	"github.com/diagnosis/autoescola/internal/wizard"
)

type CatalogRepository interface {
	Load(ctx context.Context) (*wizard.Catalog, error)
}

type catalogRepository struct {
	pool *pgxpool.Pool
}

func NewCatalogRepository(pool *pgxpool.Pool) CatalogRepository {
	return &catalogRepository{pool: pool}
}

func (r *catalogRepository) Load(ctx context.Context) (*wizard.Catalog, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	c := &wizard.Catalog{TimeSlots: wizard.DefaultTimeSlots}

	rows, err := r.pool.Query(ctx, `SELECT id, name, speciality, rating, available FROM instructors ORDER BY name`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var in wizard.Instructor
		if err := rows.Scan(&in.ID, &in.Name, &in.Speciality, &in.Rating, &in.Available); err != nil {
			rows.Close()
			return nil, err
		}
		c.Instructors = append(c.Instructors, in)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx, `SELECT id, type, description FROM vehicles WHERE active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var v wizard.Vehicle
		if err := rows.Scan(&v.ID, &v.Type, &v.Description); err != nil {
			rows.Close()
			return nil, err
		}
		c.Vehicles = append(c.Vehicles, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx, `SELECT name FROM meeting_points WHERE active ORDER BY position, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		c.Locations = append(c.Locations, name)
	}
	return c, rows.Err()
}

// cachedCatalog serves a recent catalog and collapses concurrent reloads.
type cachedCatalog struct {
	inner CatalogRepository
	ttl   time.Duration
	now   func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	catalog  *wizard.Catalog
	loadedAt time.Time
}

func NewCachedCatalog(inner CatalogRepository, ttl time.Duration) CatalogRepository {
	return &cachedCatalog{inner: inner, ttl: ttl, now: time.Now}
}

func (c *cachedCatalog) Load(ctx context.Context) (*wizard.Catalog, error) {
	c.mu.RLock()
	if c.catalog != nil && c.now().Sub(c.loadedAt) < c.ttl {
		cat := c.catalog
		c.mu.RUnlock()
		return cat, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do("catalog", func() (interface{}, error) {
		cat, err := c.inner.Load(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.catalog, c.loadedAt = cat, c.now()
		c.mu.Unlock()
		return cat, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*wizard.Catalog), nil
}
