package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"fieldops/internal/model"
)

// External queries an OSRM-style routing service for road distances. Every
// failure path (timeout, non-200, bad payload, rate-limit wait cancelled)
// falls back to haversine; a routing outage degrades accuracy, never the run.
type External struct {
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	fallback Haversine
	log      zerolog.Logger
}

func NewExternal(baseURL string, timeout time.Duration, reqPerSec float64, log zerolog.Logger) *External {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if reqPerSec <= 0 {
		reqPerSec = 10
	}
	return &External{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(reqPerSec), 1),
		log:     log,
	}
}

type osrmRouteResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
	} `json:"routes"`
}

func (e *External) Distance(ctx context.Context, a, b *model.Coordinate) float64 {
	if a == nil || b == nil {
		return UnknownDistance
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return e.fallback.Distance(ctx, a, b)
	}
	// The road network is directed but the Provider contract promises
	// distance(a,b) == distance(b,a). Querying a canonical endpoint order
	// makes both call directions issue the identical request.
	if b.Lat < a.Lat || (b.Lat == a.Lat && b.Lng < a.Lng) {
		a, b = b, a
	}
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=false", e.baseURL, a.Lng, a.Lat, b.Lng, b.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return e.fallback.Distance(ctx, a, b)
	}
	resp, err := e.http.Do(req)
	if err != nil {
		e.log.Warn().Err(err).Msg("routing service unreachable, using haversine")
		return e.fallback.Distance(ctx, a, b)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		e.log.Warn().Int("status", resp.StatusCode).Msg("routing service error, using haversine")
		return e.fallback.Distance(ctx, a, b)
	}
	var out osrmRouteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Code != "Ok" || len(out.Routes) == 0 {
		e.log.Warn().Err(err).Str("code", out.Code).Msg("routing response unusable, using haversine")
		return e.fallback.Distance(ctx, a, b)
	}
	return out.Routes[0].Distance
}

type osrmTableResponse struct {
	Code      string      `json:"code"`
	Distances [][]float64 `json:"distances"`
}

// Matrix uses the table endpoint for one round trip. Points without a
// coordinate get sentinel rows/columns; a service failure degrades the whole
// matrix to haversine.
func (e *External) Matrix(ctx context.Context, points []*model.Coordinate) [][]float64 {
	located := make([]int, 0, len(points))
	coords := ""
	for i, p := range points {
		if p == nil {
			continue
		}
		if coords != "" {
			coords += ";"
		}
		coords += fmt.Sprintf("%.6f,%.6f", p.Lng, p.Lat)
		located = append(located, i)
	}
	if len(located) < 2 {
		return symmetricMatrix(ctx, e.fallback, points)
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return symmetricMatrix(ctx, e.fallback, points)
	}
	url := fmt.Sprintf("%s/table/v1/driving/%s?annotations=distance", e.baseURL, coords)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return symmetricMatrix(ctx, e.fallback, points)
	}
	resp, err := e.http.Do(req)
	if err != nil {
		e.log.Warn().Err(err).Msg("routing table unreachable, using haversine matrix")
		return symmetricMatrix(ctx, e.fallback, points)
	}
	defer resp.Body.Close()
	var out osrmTableResponse
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&out) != nil || out.Code != "Ok" || len(out.Distances) != len(located) {
		e.log.Warn().Int("status", resp.StatusCode).Msg("routing table unusable, using haversine matrix")
		return symmetricMatrix(ctx, e.fallback, points)
	}
	n := len(points)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		for j := range m[i] {
			if i != j {
				m[i][j] = UnknownDistance
			}
		}
	}
	// Table distances are directed; fold the two directions into the
	// shorter one so the matrix honors the symmetry contract.
	for li, i := range located {
		for lj, j := range located {
			if lj <= li {
				continue
			}
			d := math.Min(out.Distances[li][lj], out.Distances[lj][li])
			m[i][j] = d
			m[j][i] = d
		}
	}
	return m
}
