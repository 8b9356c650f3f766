package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpdateDatabaseConnections(t *testing.T) {
	assert.NotPanics(t, func() {
		UpdateDatabaseConnections(10, 3)
		UpdateDatabaseConnections(0, 0)
		UpdateDatabaseConnections(100, 50)
	})
}

func TestRecordAPIRequest(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		statusCode string
		durationMs float64
	}{
		{
			name:       "GET request success",
			method:     "GET",
			path:       "/api/trades",
			statusCode: "200",
			durationMs: 45.5,
		},
		{
			name:       "POST request created",
			method:     "POST",
			path:       "/api/orders",
			statusCode: "201",
			durationMs: 120.3,
		},
		{
			name:       "GET request not found",
			method:     "GET",
			path:       "/api/unknown",
			statusCode: "404",
			durationMs: 5.2,
		},
		{
			name:       "POST request error",
			method:     "POST",
			path:       "/api/orders",
			statusCode: "500",
			durationMs: 250.8,
		},
		{
			name:       "Zero duration",
			method:     "GET",
			path:       "/health",
			statusCode: "200",
			durationMs: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				RecordAPIRequest(tt.method, tt.path, tt.statusCode, tt.durationMs)
			})
		})
	}
}

func TestRecordRedisOperation(t *testing.T) {
	tests := []struct {
		name      string
		operation string
	}{
		{
			name:      "GET operation",
			operation: "get",
		},
		{
			name:      "SET operation",
			operation: "set",
		},
		{
			name:      "DEL operation",
			operation: "del",
		},
		{
			name:      "EXISTS operation",
			operation: "exists",
		},
		{
			name:      "EXPIRE operation",
			operation: "expire",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				RecordRedisOperation(tt.operation)
			})
		})
	}
}
