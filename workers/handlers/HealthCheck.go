package handlers

import (
	"net/http"

	"gochainpay/redis"
)

// HealthCheck reports readiness. The service cannot make progress without
// Redis, so a failed ping is unhealthy.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := redis.Ping(); err != nil {
		logger.Warn("Health check Redis ping failed: " + err.Error())
		responseJSON(w, &APIResponse{
			Status:  "error",
			Message: "Redis unavailable",
		}, http.StatusServiceUnavailable)
		return
	}

	responseJSON(w, &APIResponse{
		Status: "ok",
	}, http.StatusOK)
}
