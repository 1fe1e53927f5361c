package api

import (
	"context"
	"errors"
	"net/http"
)

// HealthMetrics mirrors the node's /nodehealth response.
type HealthMetrics struct {
	Status  string `json:"status"`
	Metrics struct {
		UptimeSeconds  int64   `json:"uptime_seconds"`
		BlockHeight    uint64  `json:"block_height"`
		CPULoadPercent float64 `json:"cpu_load_percent"`
		MemoryMB       float64 `json:"memory_mb"`
		DiskFreeMB     float64 `json:"disk_free_mb"`
		IdleSeconds    int64   `json:"idle_seconds"`
		LastBlockTime  string  `json:"last_block_time"`
		LastBlockHash  string  `json:"last_block_hash"`
		Sealing        bool    `json:"sealing"`
	} `json:"metrics"`
}

// Status mirrors the node's /status response.
type Status struct {
	Status      string `json:"status"`
	Uptime      int64  `json:"uptime_seconds"`
	BlockHeight uint64 `json:"block_height"`
	Version     string `json:"version"`
	APIVersion  string `json:"api_version"`
	LastBlock   string `json:"last_block_time"`
}

func (c *Client) GetStatus(ctx context.Context) (Status, error) {
	var s Status
	err := c.do(ctx, http.MethodGet, "/status", nil, &s)
	return s, err
}

func (c *Client) GetHealthMetrics(ctx context.Context) (HealthMetrics, error) {
	var h HealthMetrics
	err := c.do(ctx, http.MethodGet, "/nodehealth", nil, &h)
	return h, err
}

func (c *Client) GetLiveness(ctx context.Context) (bool, error) {
	var result struct {
		Alive bool `json:"alive"`
	}
	err := c.do(ctx, http.MethodGet, "/health/liveness", nil, &result)
	return result.Alive, err
}

// GetReadiness reports readiness. A 503 from the node is a "not ready" answer, not an error.
func (c *Client) GetReadiness(ctx context.Context) (bool, error) {
	var result struct {
		Ready bool `json:"ready"`
	}
	err := c.do(ctx, http.MethodGet, "/health/readiness", nil, &result)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusServiceUnavailable {
		return false, nil
	}
	return result.Ready, err
}
