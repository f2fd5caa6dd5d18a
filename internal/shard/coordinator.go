package shard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Assignment is the coordinator's answer to a cluster registration.
type Assignment struct {
	ID          string `json:"id"`
	Shards      []int  `json:"shards"`
	TotalShards int    `json:"totalShards"`
}

// Coordinator talks to the external process that splits shards across clusters.
type Coordinator struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewCoordinator(baseURL, token string, client *http.Client) *Coordinator {
	if client == nil {
		client = http.DefaultClient
	}
	return &Coordinator{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

// Register asks the coordinator for this cluster's shards.
func (c *Coordinator) Register(ctx context.Context) (Assignment, error) {
	var a Assignment
	if err := c.do(ctx, http.MethodPost, "/clusters", &a); err != nil {
		return Assignment{}, err
	}
	return a, nil
}

// Login tells the coordinator the cluster is about to spawn its shards.
func (c *Coordinator) Login(ctx context.Context, clusterID string) error {
	return c.do(ctx, http.MethodPut, "/clusters/"+url.PathEscape(clusterID)+"/login", nil)
}

// Ready tells the coordinator every shard of the cluster is ready.
func (c *Coordinator) Ready(ctx context.Context, clusterID string) error {
	return c.do(ctx, http.MethodPut, "/clusters/"+url.PathEscape(clusterID)+"/ready", nil)
}

func (c *Coordinator) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build coordinator request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s returned %s: %s", method, path, resp.Status, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
