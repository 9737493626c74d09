package source

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
)

const (
	ClientTypeSynthetic = "synthetic"

	syntheticSource = "synthetic"

	// MaxSyntheticCount bounds one generated batch.
	MaxSyntheticCount = 10000
)

var syntheticTypes = []string{"adsb_icao", "mode_s", "tisb", "mlat"}

// SyntheticConfig is the per-job configuration of a synthetic client.
// Unset fields default to 10 to 50 aircraft within half a degree of San Francisco.
type SyntheticConfig struct {
	CountMin  *int     `json:"count_min"`
	CountMax  *int     `json:"count_max"`
	CenterLat *float64 `json:"center_lat"`
	CenterLon *float64 `json:"center_lon"`
	Spread    *float64 `json:"spread"`
	// Seed makes the generated traffic reproducible. Zero picks a random seed.
	Seed uint64 `json:"seed"`
}

// SyntheticClient generates plausible traffic in the feed's raw record shape.
type SyntheticClient struct {
	AircraftCodec
	DatasetWriter

	countMin, countMax   int
	centerLat, centerLon float64
	spread               float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSyntheticClient builds a synthetic client from a job configuration blob.
func NewSyntheticClient(raw map[string]any, env Env) (Client, error) {
	var cfg SyntheticConfig
	if err := DecodeConfig(raw, &cfg); err != nil {
		return nil, err
	}

	c := &SyntheticClient{
		AircraftCodec: AircraftCodec{Source: syntheticSource},
		DatasetWriter: DatasetWriter{Dataset: env.Store},
		countMin:      valueOr(cfg.CountMin, 10),
		countMax:      valueOr(cfg.CountMax, 50),
		centerLat:     valueOr(cfg.CenterLat, 37.7749),
		centerLon:     valueOr(cfg.CenterLon, -122.4194),
		spread:        valueOr(cfg.Spread, 0.5),
	}
	if c.countMin < 0 || c.countMax < c.countMin {
		return nil, fmt.Errorf("%w: need 0 <= count_min <= count_max, got %d and %d", ErrInvalidConfig, c.countMin, c.countMax)
	}
	if c.countMax > MaxSyntheticCount {
		return nil, fmt.Errorf("%w: count_max %d above %d", ErrInvalidConfig, c.countMax, MaxSyntheticCount)
	}
	if c.centerLat < -90 || c.centerLat > 90 || c.centerLon < -180 || c.centerLon > 180 || c.spread < 0 {
		return nil, fmt.Errorf("%w: center or spread out of range", ErrInvalidConfig)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	c.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return c, nil
}

// Fetch generates one batch. Hex addresses are unique within a batch.
func (c *SyntheticClient) Fetch(ctx context.Context) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.countMin + c.rng.IntN(c.countMax-c.countMin+1)
	out := make([]map[string]any, 0, n)
	used := make(map[string]struct{}, n)
	for len(out) < n {
		hex := fmt.Sprintf("%06x", c.rng.IntN(1<<24))
		if _, dup := used[hex]; dup {
			continue
		}
		used[hex] = struct{}{}
		out = append(out, c.aircraft(hex))
	}
	return out, nil
}

func (c *SyntheticClient) aircraft(hex string) map[string]any {
	r := c.rng
	rec := map[string]any{
		"hex":       hex,
		"type":      syntheticTypes[r.IntN(len(syntheticTypes))],
		"flight":    fmt.Sprintf("SYN%04d ", r.IntN(10000)),
		"squawk":    fmt.Sprintf("%04o", r.IntN(4096)),
		"emergency": "none",
		"category":  "A3",
		"lat":       clamp(c.centerLat+(r.Float64()*2-1)*c.spread, -90, 90),
		"lon":       clamp(c.centerLon+(r.Float64()*2-1)*c.spread, -180, 180),
		"track":     math.Floor(r.Float64()*3600) / 10,
		"messages":  float64(r.IntN(50000)),
		"seen":      math.Round(r.Float64()*50) / 10,
		"rssi":      -math.Round(r.Float64()*300) / 10,
	}
	if r.IntN(10) == 0 {
		rec["alt_baro"] = "ground"
		rec["gs"] = math.Round(r.Float64() * 20)
	} else {
		alt := float64(1000 + r.IntN(44000))
		rec["alt_baro"] = alt
		rec["alt_geom"] = alt + float64(r.IntN(400)-200)
		rec["gs"] = math.Round(150 + r.Float64()*350)
		rec["geom_rate"] = float64(r.IntN(4000) - 2000)
	}
	return rec
}

func valueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
