package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/expresswash/jobsync/pkg/core"
	intctx "github.com/expresswash/jobsync/pkg/internal/context"
)

// Directory resolves users, washers and cars from the local database.
// Lookups made with a transaction-bound context read through that transaction.
type Directory struct {
	db *gorm.DB
}

// NewDirectory creates a Directory over db.
func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// Relations returns the lookup set backed by this directory.
func (d *Directory) Relations() core.Relations {
	return core.Relations{Users: d, Washers: d, Cars: d}
}

func (d *Directory) FindUser(ctx context.Context, userID int) (*core.User, error) {
	var user core.User
	if err := d.first(ctx, &user, "user_id = ?", userID); err != nil || user.UserID == 0 {
		return nil, err
	}
	return &user, nil
}

func (d *Directory) FindWasher(ctx context.Context, washerID int) (*core.Washer, error) {
	var washer core.Washer
	if err := d.first(ctx, &washer, "washer_id = ?", washerID); err != nil || washer.WasherID == 0 {
		return nil, err
	}
	return &washer, nil
}

func (d *Directory) FindCar(ctx context.Context, carID int) (*core.Car, error) {
	var car core.Car
	if err := d.first(ctx, &car, "car_id = ?", carID); err != nil || car.CarID == 0 {
		return nil, err
	}
	return &car, nil
}

// first loads one row. A missing row leaves dest untouched and returns nil.
func (d *Directory) first(ctx context.Context, dest any, query string, id int) error {
	err := intctx.DB(ctx, d.db).Where(query, id).First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

// SaveUser upserts a user.
func (d *Directory) SaveUser(ctx context.Context, user *core.User) error {
	return d.upsert(ctx, user)
}

// SaveWasher upserts a washer.
func (d *Directory) SaveWasher(ctx context.Context, washer *core.Washer) error {
	return d.upsert(ctx, washer)
}

// SaveCar upserts a car.
func (d *Directory) SaveCar(ctx context.Context, car *core.Car) error {
	return d.upsert(ctx, car)
}

func (d *Directory) upsert(ctx context.Context, value any) error {
	return intctx.DB(ctx, d.db).Clauses(clause.OnConflict{UpdateAll: true}).Create(value).Error
}
