package decompose

// goalAnalysisPrompt asks the manager model to break a goal down before
// decomposition proper.
const goalAnalysisPrompt = `Analyze this goal before breaking it into tasks.

Goal:
%s

Return ONLY a JSON object with this exact structure (no other text):
{
  "core_objective": "One-sentence distillation of what the goal requires",
  "subtasks": ["high-level piece of work 1", "high-level piece of work 2"],
  "required_specializations": ["researcher", "coder", "reviewer", "tester", "writer"],
  "estimated_timeline_hours": 4.5,
  "potential_blockers": ["risk or unknown that could stall progress"],
  "success_criteria": ["observable outcome that proves the goal is met"]
}

Guidelines:
- required_specializations must be drawn from: researcher, coder, reviewer, tester, writer
- subtasks are coarse work areas, not individual tasks
- success_criteria should be verifiable, not aspirational`

// decompositionPrompt asks the manager model to produce the task tree for
// an analyzed goal.
const decompositionPrompt = `Break this goal into a tree of tasks. Each task should be
completable by a single worker.

Goal:
%s

Core objective:
%s

Return ONLY a JSON array of tasks with this exact structure (no other text):
[
  {
    "title": "Short task title",
    "description": "Detailed task description",
    "parent": "title of the parent task, or empty string for a root task",
    "required_skills": {"research": 0.6, "writing": 0.4},
    "required_tags": ["search", "summarize"],
    "acceptance_criteria": "Criteria to verify this task is complete",
    "acceptance_threshold": 0.75
  }
]

Guidelines:
- Root tasks have "parent": ""; subtasks name their parent's exact title
- required_skills maps skill names to minimum proficiency in (0, 1]
- required_tags name the tool capabilities the task needs
- acceptance_threshold is the review score in (0, 1] required for approval;
  use 0.75 unless the task is unusually strict or lenient
- Titles must be unique
- Prefer a shallow tree: subtasks only where the parent genuinely splits`
