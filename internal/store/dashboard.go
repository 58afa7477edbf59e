package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sweeney/rest-monitor/internal/logic"
	"github.com/sweeney/rest-monitor/internal/status"
)

// DashboardOptions configures the Redis connection.
type DashboardOptions struct {
	Addr      string
	Password  string
	DB        int
	VehicleID string
	TTL       time.Duration // 0 keeps the last cycle forever
}

// Dashboard caches the latest rest cycle in Redis and announces new cycles
// on a pub/sub channel.
type Dashboard struct {
	client    *redis.Client
	vehicleID string
	ttl       time.Duration
}

// NewDashboard connects to Redis and checks the connection.
func NewDashboard(ctx context.Context, opts DashboardOptions) (*Dashboard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewDashboardWithClient(client, opts.VehicleID, opts.TTL), nil
}

// NewDashboardWithClient wraps an existing client.
func NewDashboardWithClient(client *redis.Client, vehicleID string, ttl time.Duration) *Dashboard {
	return &Dashboard{client: client, vehicleID: vehicleID, ttl: ttl}
}

// Close closes the Redis client.
func (d *Dashboard) Close() error {
	return d.client.Close()
}

// LastKey is the hash holding the latest cycle for vehicleID.
func LastKey(vehicleID string) string {
	return fmt.Sprintf("vehicle:%s:rest:last", vehicleID)
}

// Channel is the pub/sub channel announcing new cycles for vehicleID.
func Channel(vehicleID string) string {
	return fmt.Sprintf("vehicle:%s:rest", vehicleID)
}

// Cache stores c as the latest cycle and publishes it.
func (d *Dashboard) Cache(ctx context.Context, c logic.RestCycle) error {
	payload, err := json.Marshal(struct {
		VehicleID string `json:"vehicle_id"`
		status.CycleJSON
	}{d.vehicleID, status.NewCycleJSON(c)})
	if err != nil {
		return fmt.Errorf("failed to marshal cycle: %w", err)
	}

	key := LastKey(d.vehicleID)
	pipe := d.client.Pipeline()
	pipe.HSet(ctx, key, cycleFields(c))
	if d.ttl > 0 {
		pipe.Expire(ctx, key, d.ttl)
	}
	pipe.Publish(ctx, Channel(d.vehicleID), payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// Last returns the cached cycle. ok is false if nothing is cached.
func (d *Dashboard) Last(ctx context.Context) (c logic.RestCycle, ok bool, err error) {
	fields, err := d.client.HGetAll(ctx, LastKey(d.vehicleID)).Result()
	if err != nil {
		return logic.RestCycle{}, false, fmt.Errorf("redis hgetall failed: %w", err)
	}
	if len(fields) == 0 {
		return logic.RestCycle{}, false, nil
	}
	c, err = parseCycleFields(fields)
	if err != nil {
		return logic.RestCycle{}, false, err
	}
	return c, true, nil
}

func cycleFields(c logic.RestCycle) map[string]interface{} {
	return map[string]interface{}{
		"start_time":  c.StartTime.Unix(),
		"end_time":    c.EndTime.Unix(),
		"start_range": c.StartRange,
		"end_range":   c.EndRange,
		"start_soc":   c.StartSOC,
		"end_soc":     c.EndSOC,
		"lat":         c.Latitude,
		"lng":         c.Longitude,
	}
}

func parseCycleFields(f map[string]string) (logic.RestCycle, error) {
	var c logic.RestCycle
	var errs []error

	unix := func(name string) time.Time {
		n, err := strconv.ParseInt(f[name], 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		return time.Unix(n, 0).UTC()
	}
	float := func(name string) float64 {
		v, err := strconv.ParseFloat(f[name], 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		return v
	}

	c.StartTime = unix("start_time")
	c.EndTime = unix("end_time")
	c.StartRange = float("start_range")
	c.EndRange = float("end_range")
	c.StartSOC = float("start_soc")
	c.EndSOC = float("end_soc")
	c.Latitude = float("lat")
	c.Longitude = float("lng")

	if err := errors.Join(errs...); err != nil {
		return logic.RestCycle{}, fmt.Errorf("decode cached cycle: %w", err)
	}
	return c, nil
}
