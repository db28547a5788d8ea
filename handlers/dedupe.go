// ABOUTME: Duplicate detection MCP tool handlers
// ABOUTME: Implements find_duplicates, list_duplicates, merge_duplicates and dismiss_duplicate
package handlers

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/harperreed/cadence/dedupe"
	"github.com/harperreed/cadence/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type DedupeHandlers struct {
	detector *dedupe.Detector
}

func NewDedupeHandlers(detector *dedupe.Detector) *DedupeHandlers {
	return &DedupeHandlers{detector: detector}
}

type FindDuplicatesInput struct{}

type FindDuplicatesOutput struct {
	RunID      string   `json:"run_id"`
	Scanned    int      `json:"scanned"`
	Candidates int      `json:"candidates"`
	Pending    int      `json:"pending"`
	AutoMerged int      `json:"auto_merged"`
	Errors     []string `json:"errors,omitempty"`
}

func (h *DedupeHandlers) FindDuplicates(ctx context.Context, _ *mcp.CallToolRequest, _ FindDuplicatesInput) (*mcp.CallToolResult, FindDuplicatesOutput, error) {
	summary, err := h.detector.Scan(ctx)
	if err != nil {
		return nil, FindDuplicatesOutput{}, fmt.Errorf("failed to scan for duplicates: %w", err)
	}
	out := FindDuplicatesOutput{
		RunID:      summary.RunID,
		Scanned:    summary.Scanned,
		Candidates: summary.Candidates,
		Pending:    summary.Pending,
		AutoMerged: summary.AutoMerged,
	}
	for _, e := range summary.Errors {
		out.Errors = append(out.Errors, e.Key+": "+e.Err)
	}
	return nil, out, nil
}

type DuplicatePairOutput struct {
	ID         string `json:"id"`
	ContactA   string `json:"contact_a_id"`
	ContactB   string `json:"contact_b_id"`
	MatchType  string `json:"match_type"`
	Confidence string `json:"confidence"`
	Status     string `json:"status"`
}

type ListDuplicatesInput struct{}

type ListDuplicatesOutput struct {
	Pairs []DuplicatePairOutput `json:"pairs"`
}

func (h *DedupeHandlers) ListDuplicates(ctx context.Context, _ *mcp.CallToolRequest, _ ListDuplicatesInput) (*mcp.CallToolResult, ListDuplicatesOutput, error) {
	pairs, err := h.detector.ListPending(ctx)
	if err != nil {
		return nil, ListDuplicatesOutput{}, fmt.Errorf("failed to list duplicates: %w", err)
	}
	out := ListDuplicatesOutput{Pairs: make([]DuplicatePairOutput, len(pairs))}
	for i, p := range pairs {
		out.Pairs[i] = pairToOutput(&p)
	}
	return nil, out, nil
}

func pairToOutput(p *models.DuplicatePair) DuplicatePairOutput {
	return DuplicatePairOutput{
		ID:         p.ID.String(),
		ContactA:   p.ContactAID.String(),
		ContactB:   p.ContactBID.String(),
		MatchType:  p.MatchType,
		Confidence: p.Confidence,
		Status:     p.Status,
	}
}

type MergeDuplicatesInput struct {
	PairID    string `json:"pair_id" jsonschema:"Pending duplicate pair ID (required)"`
	PrimaryID string `json:"primary_id,omitempty" jsonschema:"Contact to keep; defaults to the more complete record"`
}

type MergeDuplicatesOutput struct {
	Primary     ContactOutput `json:"primary"`
	SecondaryID string        `json:"secondary_id"`
}

func (h *DedupeHandlers) MergeDuplicates(ctx context.Context, _ *mcp.CallToolRequest, input MergeDuplicatesInput) (*mcp.CallToolResult, MergeDuplicatesOutput, error) {
	pairID, err := parseID("pair_id", input.PairID)
	if err != nil {
		return nil, MergeDuplicatesOutput{}, err
	}
	primaryID := uuid.Nil
	if input.PrimaryID != "" {
		if primaryID, err = parseID("primary_id", input.PrimaryID); err != nil {
			return nil, MergeDuplicatesOutput{}, err
		}
	}

	res, err := h.detector.MergePair(ctx, pairID, primaryID)
	if err != nil {
		return nil, MergeDuplicatesOutput{}, fmt.Errorf("failed to merge duplicates: %w", err)
	}
	return nil, MergeDuplicatesOutput{
		Primary:     contactToOutput(res.Primary),
		SecondaryID: res.SecondaryID.String(),
	}, nil
}

type DismissDuplicateInput struct {
	PairID string `json:"pair_id" jsonschema:"Pending duplicate pair ID (required)"`
}

type DismissDuplicateOutput struct {
	Success bool `json:"success"`
}

func (h *DedupeHandlers) DismissDuplicate(ctx context.Context, _ *mcp.CallToolRequest, input DismissDuplicateInput) (*mcp.CallToolResult, DismissDuplicateOutput, error) {
	pairID, err := parseID("pair_id", input.PairID)
	if err != nil {
		return nil, DismissDuplicateOutput{}, err
	}
	if err := h.detector.Dismiss(ctx, pairID); err != nil {
		return nil, DismissDuplicateOutput{}, fmt.Errorf("failed to dismiss duplicate: %w", err)
	}
	return nil, DismissDuplicateOutput{Success: true}, nil
}
