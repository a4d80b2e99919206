package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/secureaudit/secureaudit/pkg/models/domain"
)

// RuleAnalyzer evaluates a fixed rule set against the resource inventory in
// the scan configuration. It backs tests and deployments without a model key,
// and serves as the fallback when the model's output cannot be parsed.
type RuleAnalyzer struct{}

func NewRuleAnalyzer() *RuleAnalyzer {
	return &RuleAnalyzer{}
}

func (a *RuleAnalyzer) Analyze(ctx context.Context, frameworks []string, scanConfig domain.ScanConfig) ([]domain.CandidateFinding, error) {
	resources, err := decodeResources(scanConfig)
	if err != nil {
		return nil, domain.NewPermanentAnalysisError(fmt.Errorf("decode scan config: %w", err))
	}

	var findings []domain.CandidateFinding
	for _, framework := range frameworks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, resource := range resources {
			findings = append(findings, evaluateResource(framework, resource)...)
		}
	}
	return findings, nil
}

func evaluateResource(framework string, r Resource) []domain.CandidateFinding {
	var findings []domain.CandidateFinding

	switch r.Type {
	case "S3_BUCKET":
		if boolConfig(r, "publicAccess") {
			findings = append(findings, domain.CandidateFinding{
				Title:        fmt.Sprintf("S3 Bucket Public Access (%s)", framework),
				Description:  fmt.Sprintf("S3 bucket %s has public access enabled", r.ID),
				Severity:     domain.SeverityHigh,
				ResourceType: r.Type,
				ResourceID:   r.ID,
				Frameworks:   []string{framework},
				RiskScore:    75,
				RemediationSteps: []string{
					"Disable public access on S3 bucket",
					"Review bucket policy for public permissions",
					"Enable S3 Block Public Access",
				},
			})
		}
		if !boolConfig(r, "encryption") {
			findings = append(findings, domain.CandidateFinding{
				Title:        fmt.Sprintf("S3 Bucket Encryption (%s)", framework),
				Description:  fmt.Sprintf("S3 bucket %s does not have encryption enabled", r.ID),
				Severity:     domain.SeverityMedium,
				ResourceType: r.Type,
				ResourceID:   r.ID,
				Frameworks:   []string{framework},
				RiskScore:    60,
				RemediationSteps: []string{
					"Enable S3 default encryption",
					"Use AES-256 or AWS-KMS encryption",
				},
			})
		}
	case "EC2_INSTANCE":
		if boolConfig(r, "publicIp") {
			findings = append(findings, domain.CandidateFinding{
				Title:        fmt.Sprintf("EC2 Public IP Exposure (%s)", framework),
				Description:  fmt.Sprintf("EC2 instance %s has a public IP address", r.ID),
				Severity:     domain.SeverityMedium,
				ResourceType: r.Type,
				ResourceID:   r.ID,
				Frameworks:   []string{framework},
				RiskScore:    50,
				RemediationSteps: []string{
					"Review security group configurations",
					"Consider using private subnets",
					"Implement proper network access controls",
				},
			})
		}
	case "IAM_ROLE":
		if hasWildcardPermission(r) {
			findings = append(findings, domain.CandidateFinding{
				Title:        fmt.Sprintf("Over-Privileged IAM Role (%s)", framework),
				Description:  fmt.Sprintf("IAM role %s has wildcard permissions", r.ID),
				Severity:     domain.SeverityCritical,
				ResourceType: r.Type,
				ResourceID:   r.ID,
				Frameworks:   []string{framework},
				RiskScore:    90,
				RemediationSteps: []string{
					"Remove wildcard permissions",
					"Apply principle of least privilege",
					"Use specific IAM actions only",
				},
			})
		}
	case "LAMBDA_FUNCTION":
		if hasSensitiveEnvVars(r) {
			findings = append(findings, domain.CandidateFinding{
				Title:        fmt.Sprintf("Sensitive Data in Lambda Environment (%s)", framework),
				Description:  fmt.Sprintf("Lambda function %s contains sensitive data in environment variables", r.ID),
				Severity:     domain.SeverityHigh,
				ResourceType: r.Type,
				ResourceID:   r.ID,
				Frameworks:   []string{framework},
				RiskScore:    70,
				RemediationSteps: []string{
					"Remove sensitive data from environment variables",
					"Use AWS Secrets Manager or Parameter Store",
					"Update function configuration",
				},
			})
		}
	}
	return findings
}

func boolConfig(r Resource, key string) bool {
	v, ok := r.Config[key].(bool)
	return ok && v
}

func hasWildcardPermission(r Resource) bool {
	permissions, ok := r.Config["permissions"].([]interface{})
	if !ok {
		return false
	}
	for _, p := range permissions {
		if s, ok := p.(string); ok && s == "*" {
			return true
		}
	}
	return false
}

var sensitiveEnvPatterns = []string{"password", "secret", "key", "token"}

func hasSensitiveEnvVars(r Resource) bool {
	envVars, ok := r.Config["environmentVariables"].(map[string]interface{})
	if !ok {
		return false
	}
	for name := range envVars {
		lower := strings.ToLower(name)
		for _, pattern := range sensitiveEnvPatterns {
			if strings.Contains(lower, pattern) {
				return true
			}
		}
	}
	return false
}
