package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"recordkeeper-auth/internal/models"
	"recordkeeper-auth/internal/util"
)

// Resolver turns a caller IP into a coarse location. Lookups feed risk
// scoring directly, so a slow or failed lookup must degrade to
// "location unknown" instead of hanging the login flow.
type Resolver interface {
	Resolve(ctx context.Context, ip string) models.LocationInfo
}

// HTTPResolver queries an ipapi-compatible endpoint with a bounded
// timeout.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

func NewHTTPResolver(baseURL string, timeout time.Duration) *HTTPResolver {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type ipapiResponse struct {
	IP          string `json:"ip"`
	City        string `json:"city"`
	CountryName string `json:"country_name"`
}

func (r *HTTPResolver) Resolve(ctx context.Context, ip string) models.LocationInfo {
	fallback := models.LocationInfo{IP: ip}

	url := fmt.Sprintf("%s/%s/json/", r.baseURL, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fallback
	}

	resp, err := r.client.Do(req)
	if err != nil {
		util.Warn("IP lookup failed",
			zap.String("ip", ip),
			zap.Error(err))
		return fallback
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		util.Warn("IP lookup returned non-OK status",
			zap.String("ip", ip),
			zap.Int("status", resp.StatusCode))
		return fallback
	}

	var body ipapiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		util.Warn("IP lookup returned malformed body",
			zap.String("ip", ip),
			zap.Error(err))
		return fallback
	}

	return models.LocationInfo{
		IP:      ip,
		City:    body.City,
		Country: body.CountryName,
	}
}

// StaticResolver returns a fixed location for every IP. Used in tests
// and air-gapped deployments.
type StaticResolver struct {
	City    string
	Country string
}

func (r StaticResolver) Resolve(_ context.Context, ip string) models.LocationInfo {
	return models.LocationInfo{IP: ip, City: r.City, Country: r.Country}
}
