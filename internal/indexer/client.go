package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/seelix/docqa/internal/config"
)

const apiVersion = "2024-07-01"

// RunState is the externally reported state of one indexer execution.
type RunState string

const (
	RunInProgress       RunState = "inProgress"
	RunSuccess          RunState = "success"
	RunTransientFailure RunState = "transientFailure"
	RunFailed           RunState = "failed"
)

type RunStatus struct {
	State          RunState
	ErrorMessage   string
	ItemsProcessed int
}

// Client drives the external indexing job. The job is fire-and-forget from
// this service's perspective: there is no cancellation channel, only trigger
// and status.
type Client interface {
	TriggerRun(ctx context.Context) error
	Status(ctx context.Context) (*RunStatus, error)
}

type httpClient struct {
	endpoint string
	name     string
	apiKey   string
	client   *http.Client
}

func NewHTTPClient(cfg config.IndexerConfig) Client {
	return &httpClient{
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		name:     cfg.Name,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *httpClient) TriggerRun(ctx context.Context) error {
	url := fmt.Sprintf("%s/indexers/%s/run?api-version=%s", c.endpoint, c.name, apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("trigger indexer %s: status=%d body=%s", c.name, resp.StatusCode, string(data))
	}
	return nil
}

type statusResponse struct {
	Status     string `json:"status"`
	LastResult *struct {
		Status         string `json:"status"`
		ErrorMessage   string `json:"errorMessage"`
		ItemsProcessed int    `json:"itemsProcessed"`
	} `json:"lastResult"`
}

func (c *httpClient) Status(ctx context.Context) (*RunStatus, error) {
	url := fmt.Sprintf("%s/indexers/%s/status?api-version=%s", c.endpoint, c.name, apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("indexer status %s: status=%d body=%s", c.name, resp.StatusCode, string(data))
	}
	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	status := &RunStatus{State: RunInProgress}
	if body.LastResult != nil {
		switch body.LastResult.Status {
		case "success":
			status.State = RunSuccess
		case "transientFailure":
			status.State = RunTransientFailure
		case "failed":
			status.State = RunFailed
		default:
			status.State = RunInProgress
		}
		status.ErrorMessage = body.LastResult.ErrorMessage
		status.ItemsProcessed = body.LastResult.ItemsProcessed
	}
	return status, nil
}
