// Command mfa-loadtest races concurrent workers over the same backup codes
// and checks that the store accepts every code exactly once.
//
// Run:
//
//	go run ./cmd/mfa-loadtest -users 1000 -attempts 4
//	REDIS_ADDR=localhost:6379 go run ./cmd/mfa-loadtest
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goMFA/store"
	"github.com/MrEthical07/goMFA/store/redisstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	var (
		users       = flag.Int("users", 1000, "number of users to seed")
		codes       = flag.Int("codes", 10, "backup codes per user")
		attempts    = flag.Int("attempts", 4, "concurrent consume attempts per code")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "mfa-loadtest", "key prefix")
		dev         = flag.Bool("dev", false, "human-readable development logging")
	)
	flag.Parse()

	logger := zap.Must(zap.NewProduction())
	if *dev {
		logger = zap.Must(zap.NewDevelopment())
	}
	defer func() { _ = logger.Sync() }()

	if *users <= 0 || *codes <= 0 || *attempts <= 0 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "users, codes, attempts and concurrency must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	client, cleanup, err := connect(addr)
	if err != nil {
		logger.Fatal("redis init", zap.Error(err))
	}
	defer cleanup()

	st := redisstore.New(client, *prefix)

	logger.Info("seeding backup codes", zap.Int("users", *users), zap.Int("codes_per_user", *codes))
	startSeed := time.Now()
	targets, err := seed(ctx, st, *users, *codes)
	if err != nil {
		logger.Fatal("seed failed", zap.Error(err))
	}
	logger.Info("seeded", zap.Duration("took", time.Since(startSeed).Round(time.Millisecond)))

	res := race(ctx, st, targets, *attempts, *concurrency)

	fmt.Println("---- results ----")
	printStats("consume", res.stats)
	fmt.Printf("codes=%d accepted=%d duplicates=%d never_accepted=%d errors=%d\n",
		len(targets), res.accepted, res.duplicates, res.missing, res.errors)

	if res.duplicates > 0 || res.missing > 0 || res.errors > 0 {
		logger.Error("single-use invariant violated",
			zap.Int64("duplicates", res.duplicates),
			zap.Int64("never_accepted", res.missing),
			zap.Int64("errors", res.errors),
		)
		os.Exit(1)
	}
	logger.Info("every backup code was accepted exactly once")
}

func connect(addr string) (redis.UniversalClient, func(), error) {
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}
	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

type backupStore interface {
	BackupCodes() store.BackupCodeRepository
}

type target struct {
	userID string
	hash   string
	wins   atomic.Int64
}

func seed(ctx context.Context, backup backupStore, users, perUser int) ([]*target, error) {
	out := make([]*target, 0, users*perUser)
	for u := 0; u < users; u++ {
		userID := fmt.Sprintf("user-%d", u)
		batch := make([]store.BackupCode, perUser)
		for c := 0; c < perUser; c++ {
			h := codeHash(userID, c)
			batch[c] = store.BackupCode{UserID: userID, CodeHash: h}
			out = append(out, &target{userID: userID, hash: h})
		}
		if err := backup.BackupCodes().Replace(ctx, userID, batch); err != nil {
			return nil, fmt.Errorf("replace codes for %s: %w", userID, err)
		}
	}
	return out, nil
}

type raceResult struct {
	stats      phaseStats
	accepted   int64
	duplicates int64
	missing    int64
	errors     int64
}

// race issues attempts consume calls per code, shuffled across workers so
// calls for the same code overlap.
func race(ctx context.Context, backup backupStore, targets []*target, attempts, concurrency int) raceResult {
	jobs := make([]int, 0, len(targets)*attempts)
	for i := range targets {
		for a := 0; a < attempts; a++ {
			jobs = append(jobs, i)
		}
	}
	rand.Shuffle(len(jobs), func(i, j int) { jobs[i], jobs[j] = jobs[j], jobs[i] })

	var (
		wg        sync.WaitGroup
		cursor    int64
		errs      int64
		latencies = make([]time.Duration, 0, len(jobs))
		mu        sync.Mutex
	)

	repo := backup.BackupCodes()
	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= len(jobs) {
					return
				}
				t := targets[jobs[i]]
				t0 := time.Now()
				ok, err := repo.Consume(ctx, t.userID, t.hash, t0)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&errs, 1)
				} else if ok {
					t.wins.Add(1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	res := raceResult{
		stats:  computeStats(time.Since(start), latencies),
		errors: errs,
	}
	for _, t := range targets {
		switch n := t.wins.Load(); {
		case n == 0:
			res.missing++
		case n > 1:
			res.duplicates += n - 1
			res.accepted++
		default:
			res.accepted++
		}
	}
	return res
}

func codeHash(userID string, i int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s/%08d", userID, i)))
	return hex.EncodeToString(sum[:])
}

type phaseStats struct {
	total   time.Duration
	ops     int
	p50     time.Duration
	p95     time.Duration
	p99     time.Duration
	opsPerS float64
}

func computeStats(total time.Duration, samples []time.Duration) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:   total,
		ops:     len(samples),
		p50:     percentile(samples, 50),
		p95:     percentile(samples, 95),
		p99:     percentile(samples, 99),
		opsPerS: float64(len(samples)) / total.Seconds(),
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
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
