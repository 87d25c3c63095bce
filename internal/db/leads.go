package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Lead statuses. Transitions are scout-driven except where sprint events force
// one (launch → sprinting, finalize → live).
const (
	LeadQualified   = "qualified"
	LeadReady       = "ready"
	LeadEngaged     = "engaged"
	LeadNurture     = "nurture"
	LeadEvaluating  = "evaluating"
	LeadSprinting   = "sprinting"
	LeadLive        = "live"
	LeadUnqualified = "unqualified"
)

// ValidLeadStatuses mirrors the CHECK constraint on leads.status.
var ValidLeadStatuses = map[string]bool{
	LeadQualified: true, LeadReady: true, LeadEngaged: true, LeadNurture: true,
	LeadEvaluating: true, LeadSprinting: true, LeadLive: true, LeadUnqualified: true,
}

// FrictionCluster groups observed friction signals for a lead.
type FrictionCluster struct {
	Category    string   `json:"category"`
	TotalCount  int      `json:"total_count"`
	RecentCount int      `json:"recent_count"`
	Quotes      []string `json:"quotes,omitempty"`
}

// Violation is a single compliance-audit finding.
type Violation struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Critical    bool   `json:"critical"`
}

// RecencyBuckets counts friction signals by age in days.
type RecencyBuckets struct {
	Days0to30  int `json:"days_0_30"`
	Days31to90 int `json:"days_31_90"`
	Days90Plus int `json:"days_90_plus"`
}

// Lead is a prospective business opportunity.
type Lead struct {
	ID               string            `json:"id"`
	BusinessName     string            `json:"business_name"`
	Category         string            `json:"category"`
	Neighborhood     string            `json:"neighborhood"`
	Borough          string            `json:"borough"`
	PostalCode       string            `json:"postal_code"`
	HFI              int               `json:"hfi"`
	FrictionType     string            `json:"friction_type"`
	Status           string            `json:"status"`
	FrictionClusters []FrictionCluster `json:"friction_clusters"`
	Recency          RecencyBuckets    `json:"recency"`
	TimeBurden       string            `json:"time_burden"`
	WebsiteURL       *string           `json:"website_url,omitempty"`
	AuditStatus      string            `json:"audit_status"`
	AuditViolations  []Violation       `json:"audit_violations"`
	DiscoveredAt     time.Time         `json:"discovered_at"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

type CreateLeadInput struct {
	BusinessName     string
	Category         string
	Neighborhood     string
	Borough          string
	PostalCode       string
	HFI              int
	FrictionType     string
	FrictionClusters []FrictionCluster
	Recency          RecencyBuckets
	TimeBurden       string
	WebsiteURL       *string
}

const leadColumns = `id, business_name, category, neighborhood, borough, postal_code,
	hfi, friction_type, status, friction_clusters, recency_0_30, recency_31_90, recency_90_plus,
	time_burden, website_url, audit_status, audit_violations, discovered_at, created_at, updated_at`

func (db *DB) CreateLead(input CreateLeadInput) (*Lead, error) {
	id := NewID()
	clusters, err := json.Marshal(input.FrictionClusters)
	if err != nil {
		return nil, fmt.Errorf("encoding friction clusters: %w", err)
	}
	if input.FrictionClusters == nil {
		clusters = []byte("[]")
	}
	_, err = db.exec(`
		INSERT INTO leads (id, business_name, category, neighborhood, borough, postal_code,
			hfi, friction_type, friction_clusters, recency_0_30, recency_31_90, recency_90_plus,
			time_burden, website_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, input.BusinessName, input.Category, input.Neighborhood, input.Borough, input.PostalCode,
		input.HFI, input.FrictionType, string(clusters),
		input.Recency.Days0to30, input.Recency.Days31to90, input.Recency.Days90Plus,
		input.TimeBurden, input.WebsiteURL)
	if err != nil {
		return nil, fmt.Errorf("creating lead: %w", err)
	}
	return db.GetLead(id)
}

func (db *DB) GetLead(id string) (*Lead, error) {
	return scanLead(db.QueryRow(`SELECT `+leadColumns+` FROM leads WHERE id = ?`, id))
}

// ListLeadsFilter narrows ListLeads. Zero values mean no filtering.
type ListLeadsFilter struct {
	Status   string
	Borough  string
	Category string
	Limit    int
}

// ListLeads returns leads ordered by friction intensity, highest first.
func (db *DB) ListLeads(f ListLeadsFilter) ([]*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE 1=1`
	var args []any
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.Borough != "" {
		query += ` AND borough = ?`
		args = append(args, f.Borough)
	}
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	query += ` ORDER BY hfi DESC, created_at DESC`
	if f.Limit <= 0 {
		f.Limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, f.Limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leads []*Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// UpdateLeadStatus moves a lead to a new lifecycle status. Leads are never
// hard-deleted; retirement is the unqualified status.
func (db *DB) UpdateLeadStatus(id, status string) error {
	res, err := db.exec(`UPDATE leads SET status = ?, updated_at = datetime('now') WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateLeadAuditStatus records deep-audit progress for a lead.
func (db *DB) UpdateLeadAuditStatus(id, auditStatus string, violations []Violation) error {
	enc := []byte("[]")
	if violations != nil {
		var err error
		enc, err = json.Marshal(violations)
		if err != nil {
			return fmt.Errorf("encoding violations: %w", err)
		}
	}
	_, err := db.exec(`
		UPDATE leads SET audit_status = ?, audit_violations = ?, updated_at = datetime('now')
		WHERE id = ?`, auditStatus, string(enc), id)
	return err
}

func scanLead(s interface{ Scan(...any) error }) (*Lead, error) {
	l := &Lead{}
	var clusters, violations string
	var websiteURL sql.NullString
	err := s.Scan(
		&l.ID, &l.BusinessName, &l.Category, &l.Neighborhood, &l.Borough, &l.PostalCode,
		&l.HFI, &l.FrictionType, &l.Status, &clusters,
		&l.Recency.Days0to30, &l.Recency.Days31to90, &l.Recency.Days90Plus,
		&l.TimeBurden, &websiteURL, &l.AuditStatus, &violations,
		&l.DiscoveredAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if websiteURL.Valid {
		l.WebsiteURL = &websiteURL.String
	}
	if err := json.Unmarshal([]byte(clusters), &l.FrictionClusters); err != nil {
		return nil, fmt.Errorf("decoding friction clusters: %w", err)
	}
	if err := json.Unmarshal([]byte(violations), &l.AuditViolations); err != nil {
		return nil, fmt.Errorf("decoding audit violations: %w", err)
	}
	return l, nil
}
