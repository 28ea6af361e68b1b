package registry

var builtins = []Worker{
	{
		ID:            "researcher",
		Label:         "Researcher",
		Category:      CategoryResearch,
		DefaultPrompt: "Gather the facts, sources and open questions relevant to the task. Report findings as a structured list with the confidence of each item.",
	},
	{
		ID:            "fact_checker",
		Label:         "Fact Checker",
		Category:      CategoryResearch,
		DefaultPrompt: "Verify every factual claim in the context so far. Flag claims that are unsupported or contradicted and suggest corrections.",
	},
	{
		ID:            "analyst",
		Label:         "Analyst",
		Category:      CategoryAnalysis,
		DefaultPrompt: "Analyse the material gathered so far. Identify patterns, trade-offs and risks, and state the conclusions they support.",
	},
	{
		ID:            "strategist",
		Label:         "Strategist",
		Category:      CategoryPlanning,
		DefaultPrompt: "Turn the analysis into a prioritised plan of action with clear owners, sequencing and success criteria.",
	},
	{
		ID:            "planner",
		Label:         "Planner",
		Category:      CategoryPlanning,
		DefaultPrompt: "Break the task into concrete, ordered steps. Note dependencies between steps and the inputs each one needs.",
	},
	{
		ID:            "writer",
		Label:         "Writer",
		Category:      CategoryWriting,
		DefaultPrompt: "Write a clear, well-organised draft that addresses the task using the context provided. Prefer plain language.",
	},
	{
		ID:            "editor",
		Label:         "Editor",
		Category:      CategoryWriting,
		DefaultPrompt: "Edit the latest draft for clarity, structure and tone. Return the full revised text, not a list of changes.",
	},
	{
		ID:            "summarizer",
		Label:         "Summarizer",
		Category:      CategoryWriting,
		DefaultPrompt: "Summarise the context so far in at most ten bullet points, keeping every decision and open question.",
	},
	{
		ID:            "critic",
		Label:         "Critic",
		Category:      CategoryReview,
		DefaultPrompt: "Critique the work so far. List the weakest arguments, missing perspectives and anything a sceptical reader would reject.",
	},
	{
		ID:            "reviewer",
		Label:         "Reviewer",
		Category:      CategoryReview,
		DefaultPrompt: "Review the deliverable against the original task. State whether it is complete, and list required changes before sign-off.",
	},
}
