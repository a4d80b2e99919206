package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"github.com/secureaudit/secureaudit/pkg/models/domain"
	"google.golang.org/api/option"
)

// Framework requirements injected into the analysis prompt.
var frameworkRequirements = map[string]map[string]string{
	"GDPR": {
		"data_protection":     "Personal data must be protected with encryption at rest and in transit",
		"access_control":      "Access to personal data must be restricted to authorized personnel only",
		"data_minimization":   "Only necessary personal data should be collected and retained",
		"breach_notification": "Data breaches must be reported within 72 hours",
	},
	"SOC2": {
		"security":        "Systems must protect against unauthorized access",
		"availability":    "Systems must be available for operation and use",
		"confidentiality": "Information designated as confidential must be protected",
		"privacy":         "Personal information must be collected, used, retained, and disclosed appropriately",
	},
	"PCI-DSS": {
		"network_security":         "Firewalls must protect cardholder data environment",
		"data_protection":          "Cardholder data must be encrypted in transit and at rest",
		"access_control":           "Access to system components must be restricted",
		"vulnerability_management": "Systems must be protected against malware and vulnerabilities",
	},
}

// GenAIAnalyzer asks a generative model to evaluate the scan configuration's
// resource inventory against the framework requirements. Model API failures
// surface as transient analysis errors; unparseable output falls back to the
// rule engine rather than failing the run.
type GenAIAnalyzer struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	fallback *RuleAnalyzer
}

func NewGenAIAnalyzer(ctx context.Context, apiKey, modelName string) (*GenAIAnalyzer, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)

	return &GenAIAnalyzer{
		client:   client,
		model:    model,
		fallback: NewRuleAnalyzer(),
	}, nil
}

func (a *GenAIAnalyzer) Close() {
	a.client.Close()
}

func (a *GenAIAnalyzer) Analyze(ctx context.Context, frameworks []string, scanConfig domain.ScanConfig) ([]domain.CandidateFinding, error) {
	logger := zerolog.Ctx(ctx)

	prompt := buildPrompt(frameworks, scanConfig)
	resp, err := a.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.NewTransientAnalysisError(fmt.Errorf("generate content: %w", err))
	}

	text := responseText(resp)
	findings, err := parseFindings(text)
	if err != nil {
		logger.Warn().Err(err).Msg("model output not parseable, falling back to rule analysis")
		return a.fallback.Analyze(ctx, frameworks, scanConfig)
	}
	return findings, nil
}

func buildPrompt(frameworks []string, scanConfig domain.ScanConfig) string {
	var b strings.Builder
	b.WriteString("You are a cybersecurity compliance expert analyzing cloud resources.\n\n")

	for _, fw := range frameworks {
		b.WriteString(fmt.Sprintf("COMPLIANCE FRAMEWORK: %s\nREQUIREMENTS TO CHECK:\n", fw))
		reqs, _ := json.MarshalIndent(frameworkRequirements[fw], "", "  ")
		b.Write(reqs)
		b.WriteString("\n\n")
	}

	b.WriteString("SCAN CONFIGURATION (includes the resource inventory to analyze):\n")
	if len(scanConfig) > 0 {
		b.Write(scanConfig)
	} else {
		b.WriteString("{}")
	}

	b.WriteString(`

Identify every compliance violation. Return ONLY a JSON array where each
element has this shape:
[
  {
    "title": "S3 Bucket Public Access Violation",
    "description": "S3 bucket has public read access enabled",
    "severity": "HIGH",
    "resourceType": "S3_BUCKET",
    "resourceId": "example-bucket",
    "complianceFrameworks": ["GDPR"],
    "riskScore": 75,
    "remediationSteps": ["Disable public access", "Review bucket policy"]
  }
]
Severity must be one of CRITICAL, HIGH, MEDIUM, LOW. riskScore is 0-100.
If no issues are found, return an empty array.`)

	return b.String()
}

func responseText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}
	return b.String()
}

type candidatePayload struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Severity         string   `json:"severity"`
	ResourceType     string   `json:"resourceType"`
	ResourceID       string   `json:"resourceId"`
	Frameworks       []string `json:"complianceFrameworks"`
	RiskScore        int      `json:"riskScore"`
	RemediationSteps []string `json:"remediationSteps"`
}

func parseFindings(text string) ([]domain.CandidateFinding, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array in model output")
	}

	var payloads []candidatePayload
	if err := json.Unmarshal([]byte(text[start:end+1]), &payloads); err != nil {
		return nil, fmt.Errorf("unmarshal model output: %w", err)
	}

	findings := make([]domain.CandidateFinding, 0, len(payloads))
	for _, p := range payloads {
		findings = append(findings, domain.CandidateFinding{
			Title:            p.Title,
			Description:      p.Description,
			Severity:         domain.Severity(strings.ToUpper(p.Severity)),
			ResourceType:     p.ResourceType,
			ResourceID:       p.ResourceID,
			Frameworks:       p.Frameworks,
			RiskScore:        p.RiskScore,
			RemediationSteps: p.RemediationSteps,
		})
	}
	return findings, nil
}
