// Package shard decides which gateway shards this process runs and brings
// them up one at a time.
package shard

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// ErrNoShards is returned when a plan would leave this process with nothing to run.
var ErrNoShards = errors.New("no shards assigned")

const (
	// guildsPerRecommendedShard is the density Discord recommends shard counts for.
	guildsPerRecommendedShard = 1000
	// maxGuildsPerShard is the most guilds one shard may identify with.
	maxGuildsPerShard = 2500
)

// Plan is the set of shards this process runs out of Total.
type Plan struct {
	Shards []int
	Total  int
	// ClusterID is set when the plan came from a coordinator.
	ClusterID string
}

// Gateway fetches the recommended shard count for the bot token.
type Gateway interface {
	GatewayBot(options ...discordgo.RequestOption) (*discordgo.GatewayBotResponse, error)
}

// Registrar assigns shards to this process.
type Registrar interface {
	Register(ctx context.Context) (Assignment, error)
}

// Required returns the shard count needed for guildsPerShard guilds per shard.
func Required(gw Gateway, guildsPerShard int) (int, error) {
	resp, err := gw.GatewayBot()
	if err != nil {
		return 0, fmt.Errorf("fetch recommended shard count: %w", err)
	}
	if guildsPerShard <= 0 {
		guildsPerShard = guildsPerRecommendedShard
	}
	total := (resp.Shards*guildsPerRecommendedShard + guildsPerShard - 1) / guildsPerShard
	if total < 1 {
		total = 1
	}
	return total, nil
}

// Standalone plans every shard in this process.
func Standalone(gw Gateway, guildsPerShard int) (Plan, error) {
	total, err := Required(gw, guildsPerShard)
	if err != nil {
		return Plan{}, err
	}
	shards := make([]int, total)
	for i := range shards {
		shards[i] = i
	}
	return Plan{Shards: shards, Total: total}, nil
}

// Clustered registers with a coordinator and runs the shards it assigns. The
// total is raised only when the coordinator's total would put more than
// maxGuildsPerShard guilds on a shard.
func Clustered(ctx context.Context, reg Registrar, gw Gateway) (Plan, error) {
	assignment, err := reg.Register(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("register cluster: %w", err)
	}
	if len(assignment.Shards) == 0 {
		return Plan{}, fmt.Errorf("cluster %s: %w", assignment.ID, ErrNoShards)
	}
	required, err := Required(gw, maxGuildsPerShard)
	if err != nil {
		return Plan{}, err
	}
	return Plan{
		Shards:    assignment.Shards,
		Total:     max(assignment.TotalShards, required),
		ClusterID: assignment.ID,
	}, nil
}
