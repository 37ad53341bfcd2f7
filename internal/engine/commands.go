package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sitebot/internal/domain"
)

var startTime = time.Now()

// version is set from the build via SetVersion.
var version = "0.1.0"

func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// handleCommand processes slash commands ahead of intent classification.
// Unrecognized commands fall through to the normal pipeline.
func (d *Dispatcher) handleCommand(ctx context.Context, user *domain.UserProfile, text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}

	name := strings.ToLower(strings.TrimPrefix(strings.Fields(text)[0], "/"))
	switch name {
	case "help", "start":
		return helpText, true

	case "status":
		return d.statusText(ctx, user), true

	case "version":
		return fmt.Sprintf("SiteBot v%s, up %s", version, time.Since(startTime).Round(time.Second)), true

	default:
		return "", false
	}
}

func (d *Dispatcher) statusText(ctx context.Context, user *domain.UserProfile) string {
	acct := d.loadContext(ctx, user.ID)

	var b strings.Builder
	fmt.Fprintf(&b, "SiteBot v%s\n", version)
	if acct.ProjectName != "" {
		fmt.Fprintf(&b, "Project: %s\n", acct.ProjectName)
	}
	if acct.BudgetAmount > 0 {
		fmt.Fprintf(&b, "Budget: %s\n", domain.FormatAmount(acct.BudgetAmount))
	}
	fmt.Fprintf(&b, "Total spent: %s", domain.FormatAmount(acct.TotalSpent))
	return b.String()
}
