package serial

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spokeworks/chainline/internal/clock"
	"github.com/spokeworks/chainline/internal/config"
	"github.com/spokeworks/chainline/internal/observability/metrics"
	"github.com/spokeworks/chainline/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidCount   = errors.New("invalid_count")
	ErrInvalidValue   = errors.New("invalid_value")
	ErrCounterMissing = errors.New("serial counter row missing")
)

const (
	counterID = 1

	// Retries on lock contention before the caller sees the failure.
	allocateRetries = 2
)

// Counter is the single-row table backing serial allocation.
type Counter struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	NextValue int64     `gorm:"not null" json:"next_value"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Counter) TableName() string {
	return "serial_counters"
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cfg   config.Config
	Clock clock.Clock
	Meter *metrics.Metrics `optional:"true"`
}

// Allocator hands out serial numbers from a monotonically increasing
// counter. Allocation commits in its own transaction, so numbers taken
// by a request that later fails are never reused.
type Allocator struct {
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	meter  *metrics.Metrics
	prefix string
	width  int
	start  int64
}

func New(p Params) *Allocator {
	return &Allocator{
		db:     p.DB,
		log:    p.Log.Named("serial.allocator"),
		clock:  p.Clock,
		meter:  p.Meter,
		prefix: p.Cfg.SerialPrefix,
		width:  p.Cfg.SerialWidth,
		start:  p.Cfg.SerialStart,
	}
}

// EnsureCounter creates the counter row if it does not exist yet.
func (a *Allocator) EnsureCounter(ctx context.Context) error {
	start := a.start
	if start < 1 {
		start = 1
	}
	err := a.db.WithContext(ctx).Exec(
		`INSERT INTO serial_counters (id, next_value, updated_at) VALUES (?, ?, ?)`,
		counterID, start, a.clock.Now(),
	).Error
	if err != nil && db.IsDuplicateKeyErr(err) {
		return nil
	}
	return err
}

// Allocate reserves count serials and returns them formatted. The
// counter advance commits immediately even if the caller's surrounding
// work later fails.
func (a *Allocator) Allocate(ctx context.Context, count int) ([]string, error) {
	if count < 1 {
		return nil, ErrInvalidCount
	}

	var first int64
	advance := func() error {
		err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&Counter{}).
				Where("id = ?", counterID).
				Updates(map[string]interface{}{
					"next_value": gorm.Expr("next_value + ?", count),
					"updated_at": a.clock.Now(),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrCounterMissing
			}

			var c Counter
			if err := tx.First(&c, "id = ?", counterID).Error; err != nil {
				return err
			}
			first = c.NextValue - int64(count)
			return nil
		})
		if err != nil && !db.IsLockContentionErr(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(advance, backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Millisecond), allocateRetries),
		ctx,
	))
	if err != nil {
		return nil, err
	}

	serials := make([]string, 0, count)
	for i := 0; i < count; i++ {
		serials = append(serials, a.Format(first+int64(i)))
	}

	a.meter.RecordSerialsAllocated(count)
	a.log.Debug("serials allocated",
		zap.Int("count", count),
		zap.String("first", serials[0]),
	)
	return serials, nil
}

// Peek returns the serials the next allocation of count would produce
// without advancing the counter.
func (a *Allocator) Peek(ctx context.Context, count int) ([]string, error) {
	if count < 1 {
		return nil, ErrInvalidCount
	}

	var c Counter
	if err := a.db.WithContext(ctx).First(&c, "id = ?", counterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCounterMissing
		}
		return nil, err
	}

	serials := make([]string, 0, count)
	for i := 0; i < count; i++ {
		serials = append(serials, a.Format(c.NextValue+int64(i)))
	}
	return serials, nil
}

// Next returns the next value the counter would hand out.
func (a *Allocator) Next(ctx context.Context) (int64, error) {
	var c Counter
	if err := a.db.WithContext(ctx).First(&c, "id = ?", counterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrCounterMissing
		}
		return 0, err
	}
	return c.NextValue, nil
}

// SetNext moves the counter to value. Intended for administrative
// resets; it does not guard against rewinding into issued serials.
func (a *Allocator) SetNext(ctx context.Context, value int64) error {
	if value < 1 {
		return ErrInvalidValue
	}

	res := a.db.WithContext(ctx).Model(&Counter{}).
		Where("id = ?", counterID).
		Updates(map[string]interface{}{
			"next_value": value,
			"updated_at": a.clock.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCounterMissing
	}

	a.log.Info("serial counter moved", zap.Int64("next_value", value))
	return nil
}

// Format renders a counter value as a serial. Values wider than the
// configured width keep all their digits.
func (a *Allocator) Format(value int64) string {
	return fmt.Sprintf("%s-%0*d", a.prefix, a.width, value)
}
