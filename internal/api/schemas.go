package api

import (
	"github.com/forPelevin/nledit/internal/lineage"
	"github.com/forPelevin/nledit/internal/resolver"
	"github.com/forPelevin/nledit/internal/types"
	"github.com/forPelevin/nledit/internal/usecase"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	UptimeS int64  `json:"uptime_s"`
}

type CommandRequest struct {
	Command        string `json:"command"`
	UseLLM         *bool  `json:"use_llm,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type CommandResponse struct {
	Action   types.ActionJSON `json:"action"`
	Strategy string           `json:"strategy,omitempty"`
	Rule     string           `json:"rule,omitempty"`
	Video    types.Video      `json:"video"`
	Effect   types.Effect     `json:"effect"`
	Replayed bool             `json:"replayed,omitempty"`
}

type QueuedResponse struct {
	Status         string `json:"status"`
	IdempotencyKey string `json:"idempotency_key"`
}

type ResolveRequest struct {
	Command  string   `json:"command"`
	VideoID  string   `json:"video_id,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
	UseLLM   *bool    `json:"use_llm,omitempty"`
}

type ResolveResponse struct {
	Action     types.ActionJSON   `json:"action"`
	Strategy   string             `json:"strategy"`
	Rule       string             `json:"rule,omitempty"`
	Annotated  string             `json:"annotated,omitempty"`
	References map[string]float64 `json:"references,omitempty"`
}

type VideoResponse struct {
	Video    types.Video   `json:"video"`
	RootID   string        `json:"root_id"`
	Children []types.Video `json:"children"`
}

type HistoryResponse struct {
	Steps []lineage.Step `json:"steps"`
}

func EditToResponse(res usecase.EditResult) CommandResponse {
	return CommandResponse{
		Action:   types.ToJSON(res.Action),
		Strategy: string(res.Strategy),
		Rule:     res.Rule,
		Video:    res.Video,
		Effect:   res.Effect,
		Replayed: res.Replayed,
	}
}

func ResolveToResponse(res resolver.Result) ResolveResponse {
	out := ResolveResponse{
		Action:   types.ToJSON(res.Action),
		Strategy: string(res.Strategy),
		Rule:     res.Rule,
	}
	if res.Resolved != nil {
		out.Annotated = res.Resolved.Annotated
		if len(res.Resolved.References) > 0 {
			out.References = res.Resolved.References
		}
	}
	return out
}
