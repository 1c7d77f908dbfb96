package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-raffle/internal/models"
)

// Redis holds short-lived number locks in front of the ticket ledger. The
// ledger transaction is the authority; these locks reject most conflicting
// reservations before they reach the database, and their TTL expiry feeds
// the sweeper through keyspace notifications.
type Redis struct {
	Client *redis.Client
	Logger *log.Logger
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{
		Client: client,
		Logger: log.Default(),
	}
}

// LockKey builds the redis key for one ticket number.
func LockKey(raffleID string, number int) string {
	return fmt.Sprintf("number_lock:%s:%s", raffleID, models.DisplayNumber(number))
}

// CheckNumberAvailability checks if a number is unlocked without locking it.
func (r *Redis) CheckNumberAvailability(raffleID string, number int) (bool, error) {
	_, err := r.Client.Get(context.Background(), LockKey(raffleID, number)).Result()
	if err == redis.Nil {
		// Key doesn't exist, number is available
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// LockNumber locks a single number for a purchase.
func (r *Redis) LockNumber(raffleID string, number int, purchaseID string, ttl time.Duration) (bool, error) {
	ok, err := r.Client.SetNX(context.Background(), LockKey(raffleID, number), purchaseID, ttl).Result()
	return ok, err
}

// UnlockNumber releases a number lock, but only if this purchase holds it.
func (r *Redis) UnlockNumber(raffleID string, number int, purchaseID string) error {
	ctx := context.Background()
	key := LockKey(raffleID, number)
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // already unlocked
	}
	if err != nil {
		return err
	}
	if val == purchaseID {
		_, err := r.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}

// LockNumbers locks a set of numbers for one purchase. If any number is
// already locked, every lock taken so far is rolled back and the conflicting
// numbers are reported.
func (r *Redis) LockNumbers(raffleID string, numbers []int, purchaseID string, ttl time.Duration) (bool, []int, error) {
	locked := []int{}
	for _, number := range numbers {
		ok, err := r.LockNumber(raffleID, number, purchaseID, ttl)
		if err != nil {
			for _, l := range locked {
				_ = r.UnlockNumber(raffleID, l, purchaseID)
			}
			return false, nil, err
		}
		if !ok {
			conflicts := []int{number}
			// Report the other still-contended numbers too, skipping the
			// ones this purchase just locked itself.
			ours := make(map[int]bool, len(locked))
			for _, l := range locked {
				ours[l] = true
			}
			for _, n := range numbers {
				if n == number || ours[n] {
					continue
				}
				if available, err := r.CheckNumberAvailability(raffleID, n); err == nil && !available {
					conflicts = append(conflicts, n)
				}
			}
			for _, l := range locked {
				_ = r.UnlockNumber(raffleID, l, purchaseID)
			}
			return false, conflicts, nil
		}
		locked = append(locked, number)
	}
	return true, nil, nil
}

// UnlockNumbers releases a purchase's number locks.
func (r *Redis) UnlockNumbers(raffleID string, numbers []int, purchaseID string) error {
	var firstErr error
	for _, number := range numbers {
		err := r.UnlockNumber(raffleID, number, purchaseID)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
