package gateway

import (
	"github.com/serialagent/gateway/internal/approval"
	"github.com/serialagent/gateway/internal/config"
	"github.com/serialagent/gateway/internal/tools/policy"
)

// buildApprovalChecker builds an approval.ApprovalChecker from cfg, layering
// a named profile's allowlist (see internal/tools/policy's profile table)
// underneath the config's explicit allow/deny/safe-bin lists, the way the
// teacher's dispatch layer resolves a tool-access profile into a concrete
// policy before wiring it into the turn loop.
func buildApprovalChecker(cfg config.ApprovalConfig) *approval.ApprovalChecker {
	defaultPolicy := approval.DefaultApprovalPolicy()

	var allow []string
	if cfg.Profile != "" {
		if profile := policy.GetProfilePolicy(cfg.Profile); profile != nil {
			allow = append(allow, policy.ExpandGroups(profile.Allow)...)
		}
	}
	allow = append(allow, policy.ExpandGroups(cfg.Allowlist)...)
	if len(allow) > 0 {
		defaultPolicy.Allowlist = allow
	}
	if len(cfg.Denylist) > 0 {
		defaultPolicy.Denylist = policy.ExpandGroups(cfg.Denylist)
	}
	if len(cfg.SafeBins) > 0 {
		defaultPolicy.SafeBins = cfg.SafeBins
	}
	if cfg.AskFallback != nil {
		defaultPolicy.AskFallback = *cfg.AskFallback
	}
	if cfg.DefaultDecision != "" {
		defaultPolicy.DefaultDecision = approval.ApprovalDecision(cfg.DefaultDecision)
	}
	if cfg.RequestTTL > 0 {
		defaultPolicy.RequestTTL = cfg.RequestTTL
	}

	checker := approval.NewApprovalChecker(defaultPolicy)
	checker.SetStore(approval.NewMemoryApprovalStore())
	return checker
}
