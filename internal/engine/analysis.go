package engine

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bridgeit/bridgeit/internal/db"
)

// Build tiers classify how much has to be built. No web presence at all means
// a bigger, higher-tier build than automating around an existing site.
const (
	BuildTierFoundation = "foundation" // no web presence
	BuildTierAutomation = "automation" // existing site, friction workflow
)

// LeadAnalysis is the derived narrative served with a lead.
type LeadAnalysis struct {
	StrategicAnalysis string  `json:"strategic_analysis"`
	TimeBurdenHours   float64 `json:"time_burden_hours"`
	BuildTier         string  `json:"build_tier"`
}

// AnalyzeLead derives the strategic-analysis fields from a lead's raw record.
// Pure function: the API computes it on read so every viewer sees the same
// narrative.
func AnalyzeLead(lead *db.Lead) LeadAnalysis {
	return LeadAnalysis{
		StrategicAnalysis: strategicAnalysis(lead),
		TimeBurdenHours:   ParseTimeBurden(lead.TimeBurden),
		BuildTier:         buildTier(lead),
	}
}

func buildTier(lead *db.Lead) string {
	if lead.WebsiteURL == nil || *lead.WebsiteURL == "" {
		return BuildTierFoundation
	}
	return BuildTierAutomation
}

var hoursRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:-\s*(\d+(?:\.\d+)?))?\s*(hours?|hrs?|h)\b`)

// ParseTimeBurden extracts an hours-per-week estimate from free text like
// "about 10 hours a week" or "5-8 hrs/week". Ranges average; unparseable
// text yields zero.
func ParseTimeBurden(text string) float64 {
	m := hoursRe.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return 0
	}
	low, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	if m[2] == "" {
		return low
	}
	high, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return low
	}
	return (low + high) / 2
}

// strategicAnalysis summarizes the friction clusters into a short narrative:
// dominant cluster, recency trend, and intensity framing from the HFI.
func strategicAnalysis(lead *db.Lead) string {
	if len(lead.FrictionClusters) == 0 {
		return fmt.Sprintf("%s shows no clustered friction signals yet; HFI %d is driven by direct observation.",
			lead.BusinessName, lead.HFI)
	}

	clusters := make([]db.FrictionCluster, len(lead.FrictionClusters))
	copy(clusters, lead.FrictionClusters)
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].TotalCount > clusters[j].TotalCount })
	top := clusters[0]

	var b strings.Builder
	fmt.Fprintf(&b, "%s's dominant friction is %s (%d signals, %d recent).",
		lead.BusinessName, top.Category, top.TotalCount, top.RecentCount)

	recent := lead.Recency.Days0to30
	older := lead.Recency.Days31to90 + lead.Recency.Days90Plus
	switch {
	case recent > older:
		b.WriteString(" Signals are accelerating: most arrived in the last 30 days.")
	case recent == 0 && older > 0:
		b.WriteString(" Signals have gone quiet; the pain may be tolerated or worked around.")
	default:
		b.WriteString(" Signal volume is steady across the last quarter.")
	}

	switch {
	case lead.HFI >= 70:
		fmt.Fprintf(&b, " At HFI %d this is a high-priority build candidate.", lead.HFI)
	case lead.HFI >= 40:
		fmt.Fprintf(&b, " HFI %d puts it mid-pack; worth a scout conversation.", lead.HFI)
	default:
		fmt.Fprintf(&b, " HFI %d suggests nurture rather than an immediate sprint.", lead.HFI)
	}

	if len(top.Quotes) > 0 {
		fmt.Fprintf(&b, " Representative signal: %q", top.Quotes[0])
	}
	return b.String()
}
