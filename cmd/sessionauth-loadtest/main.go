// Command sessionauth-loadtest seeds principals, logs each one in, and then
// drives concurrent validate and refresh phases against the Manager,
// reporting throughput and latency percentiles per phase.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sessionauth/sessionauth"
)

type principalState struct {
	id      string
	access  string
	refresh string
	mu      sync.Mutex
}

func main() {
	var (
		principals  = flag.Int("principals", 1000, "number of principals to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase (validate + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "sa", "refresh slot key prefix")
	)
	flag.Parse()

	if *principals <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "principals, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := sessionauth.DefaultConfig()
	cfg.Token.AccessKey = []byte("loadtest-access-signing-key-01")
	cfg.Token.RefreshKey = []byte("loadtest-refresh-signing-key-1")
	cfg.Session.RedisPrefix = *prefix
	cfg.Audit.Enabled = false
	// Low-cost hashing so the harness measures token and slot work, not
	// argon2 throughput.
	cfg.Password = sessionauth.PasswordConfig{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}

	store := newMemStore()
	manager, err := sessionauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithPrincipalStore(store).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "manager build failed: %v\n", err)
		os.Exit(1)
	}
	defer manager.Close()

	const secret = "loadtest-secret-123"

	fmt.Printf("seeding %d principals...\n", *principals)
	startSeed := time.Now()
	states := make([]principalState, *principals)
	for i := range states {
		p, err := manager.Register(ctx, sessionauth.RegisterInput{
			Username:    fmt.Sprintf("load-user-%d", i),
			Email:       fmt.Sprintf("load-user-%d@example.com", i),
			DisplayName: fmt.Sprintf("Load User %d", i),
			Secret:      secret,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "register failed: %v\n", err)
			os.Exit(1)
		}

		pair, err := manager.Login(ctx, p.Username, secret)
		if err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
		states[i].id = p.ID
		states[i].access = pair.AccessToken
		states[i].refresh = pair.RefreshToken
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runValidatePhase(ctx, manager, states, *ops, *concurrency)
	refreshStats := runRefreshPhase(ctx, manager, states, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)

	snap := manager.MetricsSnapshot()
	fmt.Printf("counters: refresh_success=%d refresh_failure=%d reuse_detected=%d\n",
		snap.Counters[sessionauth.MetricRefreshSuccess],
		snap.Counters[sessionauth.MetricRefreshFailure],
		snap.Counters[sessionauth.MetricRefreshReuseDetected],
	)
}

func runValidatePhase(ctx context.Context, manager *sessionauth.Manager, states []principalState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]

				state.mu.Lock()
				token := state.access
				state.mu.Unlock()

				t0 := time.Now()
				_, err := manager.ValidateAccess(ctx, token)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func runRefreshPhase(ctx context.Context, manager *sessionauth.Manager, states []principalState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]

				state.mu.Lock()
				t0 := time.Now()
				pair, err := manager.Refresh(ctx, state.refresh)
				d := time.Since(t0)
				if err == nil {
					state.access = pair.AccessToken
					state.refresh = pair.RefreshToken
				} else {
					atomic.AddInt64(&failures, 1)
				}
				state.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

type memStore struct {
	mu           sync.RWMutex
	byID         map[string]sessionauth.Principal
	byIdentifier map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		byID:         make(map[string]sessionauth.Principal),
		byIdentifier: make(map[string]string),
	}
}

func (s *memStore) FindByIdentifier(_ context.Context, identifier string) (*sessionauth.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byIdentifier[identifier]
	if !ok {
		return nil, sessionauth.ErrNotFound
	}
	p := s.byID[id]
	return &p, nil
}

func (s *memStore) FindByID(_ context.Context, id string) (*sessionauth.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[id]
	if !ok {
		return nil, sessionauth.ErrNotFound
	}
	return &p, nil
}

func (s *memStore) Create(_ context.Context, p *sessionauth.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byIdentifier[p.Username]; exists {
		return sessionauth.ErrConflict
	}
	s.byID[p.ID] = *p
	s.byIdentifier[p.Username] = p.ID
	s.byIdentifier[p.Email] = p.ID
	return nil
}

func (s *memStore) UpdateSecretDigest(_ context.Context, id, digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return sessionauth.ErrNotFound
	}
	p.SecretDigest = digest
	s.byID[id] = p
	return nil
}

func (s *memStore) UpdateProfile(_ context.Context, id, displayName, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return sessionauth.ErrNotFound
	}
	p.DisplayName = displayName
	p.Email = email
	s.byID[id] = p
	return nil
}
