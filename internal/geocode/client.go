// Package geocode переводит координаты в адрес через Naver reverse geocoding.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/akriventsev/commerce/framework/core"
)

const reverseGeocodePath = "/map-reversegeocode/v2/gc"

// Config параметры клиента
type Config struct {
	BaseURL string
	KeyID   string
	Key     string
	Timeout time.Duration
}

// Validate проверяет конфигурацию
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("geocoder base url is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("geocoder timeout must be positive")
	}
	return nil
}

// Client клиент Naver Maps
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient создает клиент
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("geocode"),
	}, nil
}

type response struct {
	Status struct {
		Code    int    `json:"code"`
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"status"`
	Results []result `json:"results"`
}

type result struct {
	Name   string `json:"name"`
	Region struct {
		Area1 area `json:"area1"`
		Area2 area `json:"area2"`
		Area3 area `json:"area3"`
		Area4 area `json:"area4"`
	} `json:"region"`
	Land *struct {
		Name    string `json:"name"`
		Number1 string `json:"number1"`
		Number2 string `json:"number2"`
	} `json:"land"`
}

type area struct {
	Name string `json:"name"`
}

func (r result) address() string {
	parts := make([]string, 0, 6)
	for _, a := range []area{r.Region.Area1, r.Region.Area2, r.Region.Area3, r.Region.Area4} {
		if a.Name != "" {
			parts = append(parts, a.Name)
		}
	}
	if r.Land != nil {
		if r.Land.Name != "" {
			parts = append(parts, r.Land.Name)
		}
		number := r.Land.Number1
		if r.Land.Number2 != "" {
			number += "-" + r.Land.Number2
		}
		if number != "" {
			parts = append(parts, number)
		}
	}
	return strings.Join(parts, " ")
}

// GetReverseGeocode возвращает адрес по координатам. Пустой ответ
// и ошибки сервиса дают KindEnrichmentFailure.
func (c *Client) GetReverseGeocode(ctx context.Context, latitude, longitude string) (string, error) {
	q := url.Values{}
	q.Set("coords", longitude+","+latitude)
	q.Set("orders", "roadaddr,addr")
	q.Set("output", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+reverseGeocodePath+"?"+q.Encode(), nil)
	if err != nil {
		return "", core.Wrap(err, core.KindEnrichmentFailure, "failed to build geocode request")
	}
	req.Header.Set("X-NCP-APIGW-API-KEY-ID", c.cfg.KeyID)
	req.Header.Set("X-NCP-APIGW-API-KEY", c.cfg.Key)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", core.Wrap(err, core.KindEnrichmentFailure, "geocode request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", core.Wrap(err, core.KindEnrichmentFailure, "failed to read geocode response")
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("geocode returned non-200",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)))
		return "", core.Errorf(core.KindEnrichmentFailure, "geocode status %d", resp.StatusCode)
	}

	var parsed response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", core.Wrap(err, core.KindEnrichmentFailure, "failed to decode geocode response")
	}
	if parsed.Status.Code != 0 {
		return "", core.Errorf(core.KindEnrichmentFailure, "geocode error %d: %s", parsed.Status.Code, parsed.Status.Name)
	}
	for _, r := range parsed.Results {
		if addr := r.address(); addr != "" {
			return addr, nil
		}
	}
	return "", core.NewError(core.KindEnrichmentFailure, "no address for coordinates")
}
