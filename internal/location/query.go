package location

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/akriventsev/commerce/framework/metrics"
)

// Geocoder обратное геокодирование координат в адрес
type Geocoder interface {
	GetReverseGeocode(ctx context.Context, latitude, longitude string) (string, error)
}

// QueryService чтение представлений локаций
type QueryService struct {
	views       *ViewStore
	geocoder    Geocoder
	concurrency int
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// NewQueryService создает сервис запросов. concurrency ограничивает
// число одновременных обращений к геокодеру.
func NewQueryService(views *ViewStore, geocoder Geocoder, concurrency int, logger *zap.Logger, m *metrics.Metrics) *QueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = 8
	}
	return &QueryService{
		views:       views,
		geocoder:    geocoder,
		concurrency: concurrency,
		logger:      logger.Named("location-query"),
		metrics:     m,
	}
}

// FindCurrentLocation первая текущая согласованная локация пользователя или nil
func (s *QueryService) FindCurrentLocation(ctx context.Context, userID string) (*View, error) {
	list, err := s.views.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, v := range list {
		if v.IsCurrent && v.IsAgreed {
			found := v
			return &found, nil
		}
	}
	return nil, nil
}

// FindByUser все представления пользователя без адресов
func (s *QueryService) FindByUser(ctx context.Context, userID string) ([]View, error) {
	return s.views.ListByUser(ctx, userID)
}

// FindAllLocations представления пользователя с адресами. Ошибка геокодера
// для одной записи заменяет ее адрес на AddressNotFound и не влияет на остальные.
func (s *QueryService) FindAllLocations(ctx context.Context, userID string) ([]EnrichedView, error) {
	list, err := s.views.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]EnrichedView, len(list))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, v := range list {
		i, v := i, v
		g.Go(func() error {
			out[i] = EnrichedView{View: v, Address: s.resolve(ctx, v)}
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

func (s *QueryService) resolve(ctx context.Context, v View) string {
	if s.geocoder == nil {
		return AddressNotFound
	}
	address, err := s.geocoder.GetReverseGeocode(ctx, v.Latitude, v.Longitude)
	if err == nil && strings.TrimSpace(address) != "" {
		return address
	}
	s.metrics.RecordEnrichmentFailure(ctx, "geocode")
	s.logger.Warn("reverse geocode failed",
		zap.String("location_id", v.LocationID),
		zap.String("latitude", v.Latitude),
		zap.String("longitude", v.Longitude),
		zap.Error(err))
	return AddressNotFound
}
