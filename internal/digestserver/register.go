// Package digestserver exposes the digest pipeline and its ledger over MCP,
// so the pipeline can be triggered and inspected from any MCP client.
package digestserver

import (
	"context"
	"errors"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_digest/internal/engine"
	"github.com/anatolykoptev/go_digest/internal/engine/ledger"
)

// Deps carries everything the tools need.
type Deps struct {
	Runner *engine.Runner
	Ledger ledger.Store
}

// RegisterTools registers all digest tools on the given MCP server:
// digest_run, digest_stats, digest_failed, digest_channel_history,
// digest_cleanup.
func RegisterTools(server *mcp.Server, deps Deps) {
	registerRun(server, deps)
	registerStats(server, deps)
	registerFailed(server, deps)
	registerChannelHistory(server, deps)
	registerCleanup(server, deps)
}

// --- digest_run ---

type runInput struct {
	Hours      int  `json:"hours,omitempty"`
	MinMinutes int  `json:"min_minutes,omitempty"`
	MaxMinutes int  `json:"max_minutes,omitempty"`
	DryRun     bool `json:"dry_run,omitempty"`
}

func registerRun(server *mcp.Server, deps Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "digest_run",
		Description: "Run the subscription digest pipeline: discover recent uploads from subscribed channels, summarize new videos, narrate them, and email the result. Set dry_run to process without sending email. Returns run statistics.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input runInput) (*mcp.CallToolResult, *engine.RunStats, error) {
		stats, err := deps.Runner.Run(ctx, engine.RunOptions{
			Hours:      input.Hours,
			MinMinutes: input.MinMinutes,
			MaxMinutes: input.MaxMinutes,
			DryRun:     input.DryRun,
			Timeout:    25 * time.Minute,
		})
		if err != nil {
			return nil, nil, err
		}
		return nil, stats, nil
	})
}

// --- digest_stats ---

type statsInput struct{}

func registerStats(server *mcp.Server, deps Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "digest_stats",
		Description: "Show ledger statistics: total processed videos, breakdown by status (completed/failed/skipped), and counts for today and the last 7 days (UTC).",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ statsInput) (*mcp.CallToolResult, *ledger.Stats, error) {
		stats, err := deps.Ledger.Stats(ctx)
		if err != nil {
			return nil, nil, err
		}
		return nil, stats, nil
	})
}

// --- digest_failed ---

type failedInput struct {
	Limit int `json:"limit,omitempty"`
}

type recordsResult struct {
	Records []ledger.VideoRecord `json:"records"`
	Count   int                  `json:"count"`
}

func registerFailed(server *mcp.Server, deps Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "digest_failed",
		Description: "List recently failed videos with their error messages, most recent first. Default limit: 10.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input failedInput) (*mcp.CallToolResult, *recordsResult, error) {
		records, err := deps.Ledger.Failed(ctx, input.Limit)
		if err != nil {
			return nil, nil, err
		}
		return nil, &recordsResult{Records: records, Count: len(records)}, nil
	})
}

// --- digest_channel_history ---

type channelHistoryInput struct {
	ChannelID string `json:"channel_id"`
	Limit     int    `json:"limit,omitempty"`
}

func registerChannelHistory(server *mcp.Server, deps Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "digest_channel_history",
		Description: "List processed videos for one channel, most recent first. Requires channel_id; default limit: 50.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input channelHistoryInput) (*mcp.CallToolResult, *recordsResult, error) {
		if input.ChannelID == "" {
			return nil, nil, errors.New("channel_id is required")
		}
		records, err := deps.Ledger.ByChannel(ctx, input.ChannelID, input.Limit)
		if err != nil {
			return nil, nil, err
		}
		return nil, &recordsResult{Records: records, Count: len(records)}, nil
	})
}

// --- digest_cleanup ---

type cleanupInput struct {
	RetentionDays int `json:"retention_days,omitempty"`
}

type cleanupResult struct {
	Deleted       int64 `json:"deleted"`
	RetentionDays int   `json:"retention_days"`
}

func registerCleanup(server *mcp.Server, deps Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "digest_cleanup",
		Description: "Delete ledger records older than retention_days (default 90). Records exactly retention_days old are kept.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input cleanupInput) (*mcp.CallToolResult, *cleanupResult, error) {
		days := input.RetentionDays
		if days <= 0 {
			days = 90
		}
		deleted, err := deps.Ledger.Cleanup(ctx, days)
		if err != nil {
			return nil, nil, err
		}
		return nil, &cleanupResult{Deleted: deleted, RetentionDays: days}, nil
	})
}
