package dispatching

import (
	"fmt"
	"strings"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/recommender"
)

// ScoringWeights are the fixed bonuses of each affinity signal. They sum to 1.
type ScoringWeights struct {
	Affinity float64
	Skill    float64
	Language float64
	Region   float64
}

// DefaultScoringWeights returns the product-tuned 40/30/20/10 split.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{Affinity: 0.4, Skill: 0.3, Language: 0.2, Region: 0.1}
}

// Prediction is a model output. Known is false for pairs the model has never seen.
type Prediction struct {
	Value float64
	Known bool
}

// AffinityScorer combines the model prediction with skill, language and region matches.
type AffinityScorer struct {
	weights ScoringWeights
}

// NewAffinityScorer creates a scorer.
func NewAffinityScorer(weights ScoringWeights) AffinityScorer {
	return AffinityScorer{weights: weights}
}

type scoreBreakdown struct {
	affinity float64
	skill    float64
	language float64
	region   float64
	reasons  []string
}

func (b scoreBreakdown) total() float64 {
	return clampUnit(b.affinity + b.skill + b.language + b.region)
}

func (b scoreBreakdown) explain() string {
	return fmt.Sprintf("affinity %.2f + skill %.2f + language %.2f + region %.2f = %.2f",
		b.affinity, b.skill, b.language, b.region, b.total())
}

// Evaluation is a score together with its reasons and per-signal explanation.
type Evaluation struct {
	Score       float64
	Reasons     []string
	Explanation string
}

// Evaluate derives the score, reasons and explanation from a single breakdown.
func (s AffinityScorer) Evaluate(pred Prediction, ticket *domain.Ticket, agent domain.Agent, customer *domain.Customer) Evaluation {
	b := s.breakdown(pred, ticket, agent, customer)
	return Evaluation{Score: b.total(), Reasons: b.reasons, Explanation: b.explain()}
}

// Score returns a value in [0,1] and the reasons behind it. It has no side effects.
func (s AffinityScorer) Score(pred Prediction, ticket *domain.Ticket, agent domain.Agent, customer *domain.Customer) (float64, []string) {
	b := s.breakdown(pred, ticket, agent, customer)
	return b.total(), b.reasons
}

// Explain renders the per-signal contribution of a score.
func (s AffinityScorer) Explain(pred Prediction, ticket *domain.Ticket, agent domain.Agent, customer *domain.Customer) string {
	return s.breakdown(pred, ticket, agent, customer).explain()
}

func (s AffinityScorer) breakdown(pred Prediction, ticket *domain.Ticket, agent domain.Agent, customer *domain.Customer) scoreBreakdown {
	var b scoreBreakdown

	if pred.Known {
		normalized := clampUnit((pred.Value - recommender.MinRating) / (recommender.MaxRating - recommender.MinRating))
		b.affinity = s.weights.Affinity * normalized
		b.reasons = append(b.reasons, fmt.Sprintf("affinity: %.2f/5", pred.Value))
	} else {
		b.reasons = append(b.reasons, "no interaction history")
	}

	if ticket != nil {
		var matched []string
		for _, skill := range requiredSkills(ticket.RequiredSkills, ticket.Description) {
			if containsFold(splitList(agent.Specializations), skill) {
				matched = append(matched, skill)
			}
		}
		if len(matched) > 0 {
			b.skill = s.weights.Skill
			for _, skill := range matched {
				b.reasons = append(b.reasons, "skill match: "+skill)
			}
		}
	}

	if customer != nil {
		if lang := strings.TrimSpace(customer.Language); lang != "" && containsFold(splitList(agent.Languages), lang) {
			b.language = s.weights.Language
			b.reasons = append(b.reasons, "language match: "+lang)
		}
		if region := strings.TrimSpace(customer.Region); region != "" && strings.EqualFold(strings.TrimSpace(agent.Region), region) {
			b.region = s.weights.Region
			b.reasons = append(b.reasons, "region match: "+region)
		}
	}
	return b
}

// splitList flattens comma separated entries such as "en,fr".
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func containsFold(values []string, target string) bool {
	target = strings.TrimSpace(target)
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return true
		}
	}
	return false
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
