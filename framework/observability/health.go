// Copyright 2024 Potter Framework Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck проверка одной зависимости
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthCheckFunc адаптер функции к HealthCheck
type HealthCheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context) error
}

func (h HealthCheckFunc) Name() string                    { return h.CheckName }
func (h HealthCheckFunc) Check(ctx context.Context) error { return h.Fn(ctx) }

// HealthCheckResult результат health check
type HealthCheckResult struct {
	Status    string                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp time.Time              `json:"timestamp"`
}

// CheckResult результат отдельной проверки
type CheckResult struct {
	Status   string        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// HealthHandler возвращает Gin handler, выполняющий все проверки
func HealthHandler(checks ...HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		result := HealthCheckResult{
			Status:    "healthy",
			Checks:    make(map[string]CheckResult, len(checks)),
			Timestamp: time.Now(),
		}

		for _, check := range checks {
			start := time.Now()
			err := check.Check(ctx)

			cr := CheckResult{Status: "healthy", Duration: time.Since(start)}
			if err != nil {
				cr.Status = "unhealthy"
				cr.Message = err.Error()
				result.Status = "unhealthy"
			}
			result.Checks[check.Name()] = cr
		}

		if result.Status != "healthy" {
			c.JSON(http.StatusServiceUnavailable, result)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
