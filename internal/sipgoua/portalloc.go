package sipgoua

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chris17453/echomatrix/internal/commons"
)

// PortAllocator hands out even-numbered RTP ports (RTCP takes the next odd
// port per RFC 3550) from a configured range and reclaims them on Release.
type PortAllocator interface {
	Init(ctx context.Context) error
	Allocate() (int, error)
	Release(port int)
	InUse() (int, error)
	ReleaseAll(ctx context.Context)
}

// LocalPortAllocator is an in-process PortAllocator backed by a mutex and
// a set of free ports, used when no Redis URL is configured
// (single-instance agents).
type LocalPortAllocator struct {
	mu        sync.Mutex
	available map[int]struct{}
	portStart int
	portEnd   int
}

// NewLocalPortAllocator creates an allocator over the even ports in
// [portStart, portEnd).
func NewLocalPortAllocator(portStart, portEnd int) *LocalPortAllocator {
	return &LocalPortAllocator{portStart: portStart, portEnd: portEnd}
}

func (a *LocalPortAllocator) Init(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	start := a.portStart
	if start%2 != 0 {
		start++
	}
	a.available = make(map[int]struct{})
	for port := start; port < a.portEnd; port += 2 {
		a.available[port] = struct{}{}
	}
	if len(a.available) == 0 {
		return fmt.Errorf("sipgoua: no valid RTP ports in range %d-%d", a.portStart, a.portEnd)
	}
	return nil
}

func (a *LocalPortAllocator) Allocate() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for port := range a.available {
		delete(a.available, port)
		return port, nil
	}
	return 0, fmt.Errorf("sipgoua: no RTP ports available in range %d-%d", a.portStart, a.portEnd)
}

func (a *LocalPortAllocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.available[port] = struct{}{}
}

func (a *LocalPortAllocator) InUse() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	start := a.portStart
	if start%2 != 0 {
		start++
	}
	total := (a.portEnd - start) / 2
	return total - len(a.available), nil
}

func (a *LocalPortAllocator) ReleaseAll(ctx context.Context) {
	_ = a.Init(ctx)
}

const (
	// Hash-tagged so every RTP key lands on the same Redis Cluster slot.
	rtpAvailableKey    = "{rtp:ports}:available"
	rtpAllocatedPrefix = "{rtp:ports}:allocated:"
	rtpAllocatedTTL    = 10 * time.Minute
)

// RedisPortAllocator distributes RTP port allocation across multiple agent
// instances sharing one Redis. Per-instance allocated sets let a crashed
// instance's ports be reclaimed by the next one with the same instance ID.
type RedisPortAllocator struct {
	client     *redis.Client
	logger     commons.Logger
	portStart  int
	portEnd    int
	instanceID string
}

// NewRedisPortAllocator creates a distributed allocator over the even ports
// in [portStart, portEnd).
func NewRedisPortAllocator(client *redis.Client, logger commons.Logger, portStart, portEnd int) *RedisPortAllocator {
	hostname, _ := os.Hostname()
	return &RedisPortAllocator{
		client:     client,
		logger:     logger,
		portStart:  portStart,
		portEnd:    portEnd,
		instanceID: fmt.Sprintf("%s:%d", hostname, os.Getpid()),
	}
}

var initLuaScript = redis.NewScript(`
	local key = KEYS[1]
	local exists = redis.call('EXISTS', key)
	if exists == 0 then
		for i = 1, #ARGV do
			redis.call('SADD', key, ARGV[i])
		end
		return #ARGV
	end
	return 0
`)

func (a *RedisPortAllocator) Init(ctx context.Context) error {
	start := a.portStart
	if start%2 != 0 {
		start++
	}
	ports := make([]interface{}, 0, (a.portEnd-start)/2)
	for port := start; port < a.portEnd; port += 2 {
		ports = append(ports, port)
	}
	if len(ports) == 0 {
		return fmt.Errorf("sipgoua: no valid RTP ports in range %d-%d", a.portStart, a.portEnd)
	}

	added, err := initLuaScript.Run(ctx, a.client, []string{rtpAvailableKey}, ports...).Int()
	if err != nil {
		return fmt.Errorf("sipgoua: init RTP port pool: %w", err)
	}
	if added > 0 {
		a.logger.Infow("initialized RTP port pool", "ports_added", added, "range_start", a.portStart, "range_end", a.portEnd)
	} else {
		a.logger.Debugw("RTP port pool already exists, skipping init")
	}

	a.reclaimCrashedPorts(ctx)
	return nil
}

var allocateLuaScript = redis.NewScript(`
	local port = redis.call('SPOP', KEYS[1])
	if port == false then
		return -1
	end
	redis.call('SADD', KEYS[2], port)
	return port
`)

func (a *RedisPortAllocator) Allocate() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	instanceKey := rtpAllocatedPrefix + a.instanceID
	result, err := allocateLuaScript.Run(ctx, a.client, []string{rtpAvailableKey, instanceKey}).Int()
	if err != nil {
		return 0, fmt.Errorf("sipgoua: allocate RTP port: %w", err)
	}
	if result == -1 {
		inUse, _ := a.InUse()
		return 0, fmt.Errorf("sipgoua: no RTP ports available in range %d-%d (%d in use)", a.portStart, a.portEnd, inUse)
	}

	a.client.Expire(ctx, instanceKey, rtpAllocatedTTL)
	a.logger.Debugw("allocated RTP port", "port", result, "instance", a.instanceID)
	return result, nil
}

var releaseLuaScript = redis.NewScript(`
	redis.call('SREM', KEYS[2], ARGV[1])
	redis.call('SADD', KEYS[1], ARGV[1])
	return 1
`)

func (a *RedisPortAllocator) Release(port int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	instanceKey := rtpAllocatedPrefix + a.instanceID
	if _, err := releaseLuaScript.Run(ctx, a.client, []string{rtpAvailableKey, instanceKey}, port).Result(); err != nil {
		a.logger.Errorw("failed to release RTP port", "port", port, "error", err)
		return
	}
	a.logger.Debugw("released RTP port", "port", port, "instance", a.instanceID)
}

func (a *RedisPortAllocator) InUse() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := a.portStart
	if start%2 != 0 {
		start++
	}
	total := (a.portEnd - start) / 2

	available, err := a.client.SCard(ctx, rtpAvailableKey).Result()
	if err != nil {
		return 0, fmt.Errorf("sipgoua: get available port count: %w", err)
	}
	return total - int(available), nil
}

func (a *RedisPortAllocator) reclaimCrashedPorts(ctx context.Context) {
	instanceKey := rtpAllocatedPrefix + a.instanceID
	ports, err := a.client.SMembers(ctx, instanceKey).Result()
	if err != nil {
		a.logger.Warnw("failed to check crashed instance ports", "instance", a.instanceID, "error", err)
		return
	}
	if len(ports) == 0 {
		return
	}

	a.logger.Warnw("reclaiming ports from crashed instance", "instance", a.instanceID, "ports_count", len(ports))
	for _, portStr := range ports {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			continue
		}
		if _, err := releaseLuaScript.Run(ctx, a.client, []string{rtpAvailableKey, instanceKey}, port).Result(); err != nil {
			a.logger.Warnw("failed to reclaim port", "port", port, "error", err)
		}
	}
}

func (a *RedisPortAllocator) ReleaseAll(ctx context.Context) {
	instanceKey := rtpAllocatedPrefix + a.instanceID
	ports, err := a.client.SMembers(ctx, instanceKey).Result()
	if err != nil {
		a.logger.Errorw("failed to list allocated ports for release", "error", err)
		return
	}
	for _, portStr := range ports {
		if port, err := strconv.Atoi(portStr); err == nil {
			a.Release(port)
		}
	}
	a.client.Del(ctx, instanceKey)
	a.logger.Infow("released all RTP ports on shutdown", "instance", a.instanceID, "ports_released", len(ports))
}
