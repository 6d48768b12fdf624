package reasoning

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyluth/parley/pkg/agent"
)

// TemplateService returns fixed texts per phase. It holds no state.
type TemplateService struct{}

// NewTemplateService returns the stock template service.
func NewTemplateService() *TemplateService {
	return &TemplateService{}
}

func (s *TemplateService) Generate(_ context.Context, req Request) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	build, ok := templates[req.Phase]
	if !ok {
		return Response{}, fmt.Errorf("%w: %s", ErrUnknownPhase, req.Phase)
	}
	return build(req), nil
}

var templates = map[Phase]func(Request) Response{
	PhaseFoundations: func(r Request) Response {
		return Response{
			Text: "1. Durable execution provides reliability for AI workflows:\n" +
				"   - Automatic retries for failed operations\n" +
				"   - State persistence across system failures\n" +
				"   - Versioning support for evolving AI models",
			Step: ThinkingStep{
				Content:   fmt.Sprintf("I need to understand the core technologies behind %s and how they fit together", r.Task),
				Reasoning: "To provide valuable research, I must first understand both technologies",
				Evidence: []string{
					"Workflow engines orchestrate long-running, failure-prone work",
					"AI systems often need robust workflow management",
				},
				Conclusion: "Research should focus on workflow orchestration for AI tasks",
			},
		}
	},
	PhaseBenefits: func(r Request) Response {
		return Response{
			Text: "2. Workflow orchestration enables complex AI pipelines:\n" +
				"   - Coordination of distributed training jobs\n" +
				"   - Management of data preprocessing pipelines\n" +
				"   - Scheduling of model evaluation and retraining",
			Step: ThinkingStep{
				Content:   "Identifying the key benefits orchestration provides specifically for AI workflows",
				Reasoning: "AI workflows have unique characteristics that benefit from durable orchestration",
				Evidence: []string{
					"AI tasks can be long-running",
					"Models may need to be retrained periodically",
					"Error handling is critical for AI pipelines",
				},
				Conclusion: "Durability, reliability, and error handling are key advantages",
			},
		}
	},
	PhaseUseCases: func(r Request) Response {
		return Response{
			Text: "3. Benefits for production AI systems:\n" +
				"   - Enhanced observability through workflow history\n" +
				"   - Simplified debugging of complex AI pipelines\n" +
				"   - Scalable architecture for growing AI workloads",
			Step: ThinkingStep{
				Content:   "Examining use cases where orchestration solves AI-specific challenges",
				Reasoning: "Concrete examples will make the research more applicable",
				Evidence: []string{
					"ML model training often requires complex orchestration",
					"AI inference pipelines need monitoring and observability",
					"Data preprocessing for AI can be complex and error-prone",
				},
				Conclusion: "Orchestration supports the entire AI lifecycle",
			},
		}
	},

	PhaseStructure: func(r Request) Response {
		return Response{
			Text: fmt.Sprintf("REPORT: %s\nPrepared by: %s\n\n", strings.ToUpper(r.Task), r.Agent.Name) +
				"EXECUTIVE SUMMARY\n" +
				fmt.Sprintf("This report outlines %s. ", strings.ToLower(r.Task)) +
				"Our analysis shows that organizations adopting durable orchestration for AI workflows can expect " +
				"improved development velocity, reduced operational failures, and better visibility into their AI systems.",
			Step: ThinkingStep{
				Content:   "Planning the structure of the report for maximum clarity",
				Reasoning: "A well-structured report helps readers understand complex technical topics",
				Evidence: []string{
					"Technical reports need clear sections",
					"Starting with an executive summary helps busy readers",
					"The audience may have varying levels of technical knowledge",
				},
				Conclusion: "Will use executive summary, findings, and recommendations structure",
			},
		}
	},
	PhaseAnalysis: func(r Request) Response {
		return Response{
			Text: "FINDINGS\nBased on our research:\n" + r.Context["findings"],
			Step: ThinkingStep{
				Content:   "Analyzing the research findings to extract key points",
				Reasoning: "Need to transform technical details into digestible insights",
				Evidence: []string{
					"The research highlights durability and reliability benefits",
					"Complex orchestration capabilities are emphasized",
					"Production benefits need to be contextualized for business value",
				},
				Conclusion: "Will focus on three main benefit categories with supporting details",
			},
		}
	},
	PhaseRecommendations: func(r Request) Response {
		return Response{
			Text: "IMPLEMENTATION RECOMMENDATIONS\n" +
				"1. Start with a pilot project: Choose a non-critical AI workflow to migrate first\n" +
				"2. Develop workflow patterns: Create reusable patterns for common AI tasks\n" +
				"3. Integrate monitoring: Use workflow visibility tools for operational insights\n" +
				"4. Scale gradually: Expand to more critical AI systems as your team gains experience",
			Step: ThinkingStep{
				Content:   "Formulating implementation recommendations based on findings",
				Reasoning: "Practical next steps add value beyond just information",
				Evidence: []string{
					"Research suggests orchestration works well for different AI workflows",
					"Implementation complexity varies by use case",
					"Organizations may need to start with smaller projects",
				},
				Conclusion: "Will provide a phased implementation approach with concrete steps",
			},
		}
	},
	PhaseConclusion: func(r Request) Response {
		return Response{
			Text: "CONCLUSION\n" +
				"Durable orchestration provides significant advantages for AI systems at scale. Organizations that adopt it " +
				"can expect more reliable AI operations, faster development cycles, and better visibility into complex " +
				"workflows. We recommend proceeding with implementation following the phased approach outlined in this report.",
			Step: ThinkingStep{
				Content:   "Planning the conclusion to emphasize long-term value",
				Reasoning: "Need to connect technical capabilities to business outcomes",
				Evidence: []string{
					"Reliability translates to cost savings",
					"Better orchestration means faster time to market",
					"Observability improves operational efficiency",
				},
				Conclusion: "Will emphasize ROI and competitive advantages in conclusion",
			},
		}
	},

	PhaseApproach: func(r Request) Response {
		var text string
		switch r.Agent.Kind {
		case agent.RoleResearcher:
			text = "I would start by identifying the key orchestration features relevant to AI workflows, " +
				"then research specific use cases and implementation patterns."
		case agent.RoleWriter:
			text = "I'd recommend an executive summary, detailed findings, implementation guide, and business impact " +
				"sections to make it accessible to different audiences."
		default:
			text = fmt.Sprintf("I would break %s into reviewable milestones and check each against the goal.", r.Task)
		}
		return Response{Text: text, Step: conversational(r, "Explaining how I would approach the task")}
	},
	PhaseAdvise: func(r Request) Response {
		var text string
		switch r.Agent.Kind {
		case agent.RoleCritic:
			text = "Prioritise evidence from production deployments and call out where the claims are unproven."
		case agent.RoleIntegrator:
			text = "Keep the scope aligned with the agreed plan: reliability first, then orchestration, then operations."
		case agent.RoleResearcher:
			text = "The reliability and observability findings matter most; lead with those."
		default:
			text = "Focus on what the audience needs to decide next."
		}
		return Response{Text: text, Step: conversational(r, "Advising a teammate on priorities")}
	},
	PhasePlanReview: func(r Request) Response {
		return Response{
			Text: "The timeline seems tight for thorough research. I suggest allocating 3 days for research " +
				"and reducing integration to half a day.",
			Step: conversational(r, "Reviewing the proposed project plan"),
		}
	},
	PhaseDraftReview: func(r Request) Response {
		return Response{
			Text: "The outline is solid, but it is missing a discussion of limitations. " +
				"Please add a section on the challenges and limitations of this approach.",
			Step: conversational(r, "Reviewing the draft outline"),
		}
	},
	PhaseFinalReview: func(r Request) Response {
		return Response{
			Text: "The report is comprehensive but could use more specific implementation examples " +
				"in the recommendations section.",
			Step: conversational(r, "Reviewing the finished report"),
		}
	},
}

func conversational(r Request, content string) ThinkingStep {
	return ThinkingStep{
		Content:   content,
		Reasoning: fmt.Sprintf("%s contributes as %s", r.Agent.Name, r.Agent.Role),
		Evidence:  []string{r.Agent.Goal},
	}
}
