//go:build ignore

// Run: go run ./build-tools/quotegen.go -brokers localhost:9092 -topic pool-quotes -rps 200 -duration 60s -tokens WETH,USDC,DAI,WBTC -edge 0.02

package main

import (
	"context"
	"crypto/rand"
	"dexarb/internal/ingest"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	mrand "math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
)

// reference prices in USD, unknown symbols get a random one
var refUSD = map[string]float64{
	"WETH": 3000,
	"WBTC": 60000,
	"USDC": 1,
	"USDT": 1,
	"DAI":  1,
}

type token struct {
	address string
	symbol  string
	usd     float64
}

func main() {
	var (
		brokers  = flag.String("brokers", "localhost:9092", "comma-separated list of brokers")
		topic    = flag.String("topic", "pool-quotes", "topic name")
		rps      = flag.Int("rps", 200, "pool messages per second target")
		duration = flag.Duration("duration", 30*time.Second, "how long to run")
		tokens   = flag.String("tokens", "WETH,USDC,DAI,WBTC", "comma-separated token symbols")
		chainID  = flag.Uint("chain", 1, "chain id")
		pools    = flag.Int("pools", 50, "distinct pool ids to cycle through")
		edge     = flag.Float64("edge", 0.01, "max relative mispricing injected per quote")
	)
	flag.Parse()

	universe := makeTokens(splitTrim(*tokens))
	if len(universe) < 2 {
		fmt.Println("at least two tokens are required")
		os.Exit(1)
	}
	poolIDs := make([]string, *pools)
	for i := range poolIDs {
		poolIDs[i] = "0x" + randHex(40)
	}

	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Return.Successes = false
	cfg.Producer.Return.Errors = true
	cfg.Producer.Flush.Frequency = 20 * time.Millisecond
	cfg.Producer.Flush.MaxMessages = 500
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	cfg.Version = sarama.V2_3_0_0

	cli, err := sarama.NewAsyncProducer(strings.Split(*brokers, ","), cfg)
	if err != nil {
		fmt.Printf("producer init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = cli.Close() }()

	go func() {
		for e := range cli.Errors() {
			fmt.Printf("produce error: %v\n", e.Err)
		}
	}()

	fmt.Printf("quotegen brokers=%s topic=%s rps=%d duration=%s pools=%d\n", *brokers, *topic, *rps, duration.String(), *pools)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	end := time.Now().Add(*duration)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	perTick := float64(*rps) / 10.0
	accum := 0.0
	var block uint64 = 20_000_000

loop:
	for {
		select {
		case <-ctx.Done():
			fmt.Println("signal received, stopping")
			break loop
		case now := <-tick.C:
			if now.After(end) {
				break loop
			}

			accum += perTick
			batch := int(math.Floor(accum))
			if batch <= 0 {
				continue
			}
			accum -= float64(batch)
			block++

			for i := 0; i < batch; i++ {
				pool := poolIDs[mrand.Intn(len(poolIDs))]
				msg := randomPool(pool, uint32(*chainID), block, universe, *edge, now)
				val, _ := json.Marshal(msg)
				cli.Input() <- &sarama.ProducerMessage{
					Topic: *topic,
					Key:   sarama.StringEncoder(pool),
					Value: sarama.ByteEncoder(val),
				}
			}
		}
	}

	fmt.Println("flushing")
	time.Sleep(500 * time.Millisecond)
	fmt.Println("done")
}

// randomPool quotes a two token pool near the reference cross rate, skewed by up to edge
func randomPool(id string, chainID uint32, block uint64, universe []token, edge float64, now time.Time) *ingest.PoolMessage {
	i := mrand.Intn(len(universe))
	j := mrand.Intn(len(universe) - 1)
	if j >= i {
		j++
	}
	t0, t1 := universe[i], universe[j]

	skew := 1 + (mrand.Float64()*2-1)*edge
	price := t0.usd / t1.usd * skew

	return &ingest.PoolMessage{
		ID:          id,
		Exchange:    "uniswap_v2",
		Protocol:    "uniswap_v2",
		ChainID:     chainID,
		BlockNumber: block,
		Timestamp:   now.Unix(),
		SwapFee:     0.003,
		Token0Price: price,
		Token1Price: 1 / price,
		Tokens: []ingest.TokenMessage{
			{Address: t0.address, Symbol: t0.symbol, Decimals: 18},
			{Address: t1.address, Symbol: t1.symbol, Decimals: 18},
		},
	}
}

func makeTokens(symbols []string) []token {
	out := make([]token, 0, len(symbols))
	for _, s := range symbols {
		usd, ok := refUSD[s]
		if !ok {
			usd = 0.1 + mrand.Float64()*100
		}
		out = append(out, token{address: "0x" + randHex(40), symbol: s, usd: usd})
	}
	return out
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func randHex(n int) string {
	b := make([]byte, n/2)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
