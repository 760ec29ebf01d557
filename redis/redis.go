package redis

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"gochainpay/config"
	"gochainpay/types"

	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
)

var pool *redis.Pool

func timeoutDialOptions() []redis.DialOption {
	return []redis.DialOption{
		redis.DialConnectTimeout(5 * time.Second),
		redis.DialReadTimeout(5 * time.Second),
		redis.DialWriteTimeout(5 * time.Second),
	}
}

func Init() {
	redisAddr := fmt.Sprintf("%s:%d", config.Config.Server.RedisHost, config.Config.Server.RedisPort)
	pool = &redis.Pool{
		MaxIdle: 5,
		Dial:    func() (redis.Conn, error) { return redis.Dial("tcp", redisAddr, timeoutDialOptions()...) },
	}
}

// Ping verifies the connection. Used by the health endpoint.
func Ping() error {
	conn := pool.Get()
	defer conn.Close()

	_, err := conn.Do("PING")
	return err
}

// note that multiple sets should not contain one payment
func UpsertPaymentRecord(rec *types.PaymentRecord) error {
	conn := pool.Get()
	defer conn.Close()

	if rec == nil {
		return errors.New("null object to store")
	}

	if rec.Status == "" {
		return errors.New("payment record cannot have empty status")
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	recordKey := fmt.Sprintf("payment:%s:%s", rec.Status, rec.ID)

	recJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("cannot marshal payment record to JSON: %s", err.Error())
	}

	_, err = conn.Do("SET", recordKey, recJSON)
	if err != nil {
		log.Printf("error Redis SET: %s", err.Error())
		return err
	}

	// also add the key to the corresponding SET
	_, err = conn.Do("SADD", config.PaymentStatusSets[rec.Status], recordKey)
	if err != nil {
		log.Printf("error Redis SADD: %s", err.Error())
		return err
	}

	return nil
}

func ChangePaymentStatus(rec *types.PaymentRecord, prevStatus string) error {
	conn := pool.Get()
	defer conn.Close()

	if rec == nil {
		return errors.New("null object to store")
	}

	if rec.Status == "" {
		return errors.New("payment record cannot have empty status")
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	prevRecordKey := fmt.Sprintf("payment:%s:%s", prevStatus, rec.ID)
	recordKey := fmt.Sprintf("payment:%s:%s", rec.Status, rec.ID)

	recJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("cannot marshal payment record to JSON: %s", err.Error())
	}

	_, err = conn.Do("SREM", config.PaymentStatusSets[prevStatus], prevRecordKey)
	if err != nil {
		log.Printf("error Redis SREM: %s", err.Error())
		return err
	}

	_, err = conn.Do("DEL", prevRecordKey)
	if err != nil {
		log.Printf("error Redis DEL: %s", err.Error())
		return err
	}

	_, err = conn.Do("SET", recordKey, recJSON)
	if err != nil {
		log.Printf("error Redis SET: %s", err.Error())
		return err
	}

	_, err = conn.Do("SADD", config.PaymentStatusSets[rec.Status], recordKey)
	if err != nil {
		log.Printf("error Redis SADD: %s", err.Error())
		return err
	}

	return nil
}

// FindPaymentStatus returns one payment currently in the given status, or nil.
func FindPaymentStatus(status string) (*types.PaymentRecord, error) {
	recs, err := scanStatusSet(status, func(rec *types.PaymentRecord) bool {
		return rec.Status == status
	}, true)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// Attention, this operation scans everything that is present.
// Older/processed should be moved to another place otherwise performance will degrade (although O(n) still)
func FindPaymentByID(id string) (*types.PaymentRecord, error) {
	for status := range config.PaymentStatusSets {
		recs, err := scanStatusSet(status, func(rec *types.PaymentRecord) bool {
			return rec.ID == id
		}, true)
		if err != nil {
			return nil, err
		}
		if len(recs) > 0 {
			return recs[0], nil
		}
	}
	return nil, nil
}

func FindAllPaymentsByStatus(status string) ([]*types.PaymentRecord, error) {
	if _, ok := config.PaymentStatusSets[status]; !ok {
		return nil, errors.New("redis key not found for status")
	}

	return scanStatusSet(status, func(rec *types.PaymentRecord) bool {
		return rec.Status == status
	}, false)
}

func scanStatusSet(status string, match func(*types.PaymentRecord) bool, first bool) ([]*types.PaymentRecord, error) {
	conn := pool.Get()
	defer conn.Close()

	recs := make([]*types.PaymentRecord, 0)

	// scan every payment present in Redis
	var cursor int64

	for {
		values, err := redis.Values(conn.Do("SSCAN", config.PaymentStatusSets[status], cursor))
		if err != nil {
			return nil, err
		}

		var recKeys []string
		_, err = redis.Scan(values, &cursor, &recKeys)
		if err != nil {
			return nil, err
		}

		for _, key := range recKeys {
			blob, err := redis.Bytes(conn.Do("GET", key))
			if errors.Is(err, redis.ErrNil) {
				// record expired between SSCAN and GET
				continue
			}
			if err != nil {
				log.Printf("error Redis GET: %s", err.Error())
				return nil, err
			}

			var rec types.PaymentRecord
			err = json.Unmarshal(blob, &rec)
			if err != nil {
				return nil, err
			}
			if match(&rec) {
				recs = append(recs, &rec)
				if first {
					return recs, nil
				}
			}
		}

		if cursor == 0 {
			break
		}
	}

	return recs, nil
}
