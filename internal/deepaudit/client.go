// Package deepaudit calls the external compliance-audit collaborator. Audits
// are best-effort: a launch proceeds whether or not the audit completes, and
// the lead's audit_status display trails the provider's progress.
package deepaudit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bridgeit/bridgeit/internal/db"
)

// auditResponse is the provider's verdict payload.
type auditResponse struct {
	Status     string         `json:"status"`
	Violations []db.Violation `json:"violations"`
}

type Client struct {
	baseURL string
	http    *http.Client
	store   *db.DB
}

func New(baseURL string, timeout time.Duration, store *db.DB) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		store:   store,
	}
}

// Run dispatches a deep audit for the lead and returns immediately. The
// result lands on the lead's audit_status/audit_violations asynchronously;
// failures are logged and leave the status at "failed".
func (c *Client) Run(ctx context.Context, lead *db.Lead) {
	if err := c.store.UpdateLeadAuditStatus(lead.ID, "processing", nil); err != nil {
		slog.Error("audit status not updated", "lead", lead.ID, "error", err)
		return
	}
	go func() {
		// Detached from the request context: the audit outlives the launch call.
		result, err := c.run(context.Background(), lead)
		if err != nil {
			slog.Warn("deep audit failed", "lead", lead.ID, "error", err)
			if uerr := c.store.UpdateLeadAuditStatus(lead.ID, "failed", nil); uerr != nil {
				slog.Error("audit status not updated", "lead", lead.ID, "error", uerr)
			}
			return
		}
		if err := c.store.UpdateLeadAuditStatus(lead.ID, "completed", result.Violations); err != nil {
			slog.Error("audit result not stored", "lead", lead.ID, "error", err)
		}
	}()
}

func (c *Client) run(ctx context.Context, lead *db.Lead) (*auditResponse, error) {
	payload, err := json.Marshal(map[string]any{
		"lead_id":       lead.ID,
		"business_name": lead.BusinessName,
		"category":      lead.Category,
		"postal_code":   lead.PostalCode,
		"website_url":   lead.WebsiteURL,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/audits", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("audit provider returned %d", resp.StatusCode)
	}

	var result auditResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding audit response: %w", err)
	}
	return &result, nil
}
