package prompt

// Template names.
const (
	Branch            = "branch"
	Commit            = "commit"
	ReviewTitle       = "review_title"
	ReviewDescription = "review_description"
	DirectMessage     = "direct_message"
	SolutionSystem    = "solution_system"
	Solution          = "solution"
	FixSystem         = "fix_system"
	FixSnippet        = "fix_snippet"
	FixFile           = "fix_file"
)

// builtinTemplates maps template name to content.
var builtinTemplates = map[string]string{
	Branch:            branchTemplate,
	Commit:            commitTemplate,
	ReviewTitle:       reviewTitleTemplate,
	ReviewDescription: reviewDescriptionTemplate,
	DirectMessage:     directMessageTemplate,
	SolutionSystem:    solutionSystemTemplate,
	Solution:          solutionTemplate,
	FixSystem:         fixSystemTemplate,
	FixSnippet:        fixSnippetTemplate,
	FixFile:           fixFileTemplate,
}

const branchTemplate = `fix-sonar-{{smell_key}}-{{timestamp}}`

const commitTemplate = `fix: resolve SonarQube issue {{smell_key}} - {{summary}}`

const reviewTitleTemplate = `fix: resolve SonarQube issue {{smell_key}}`

const reviewDescriptionTemplate = `## SonarQube issue fix

**Issue key:** {{smell_key}}
**Rule:** {{rule}}
**Fix:** {{description}}
**File:** {{file_path}}
{{#if work_item_id}}
### Related
- Work item: {{work_item_id}}
{{/if}}
Generated by the automated remediation pipeline.

### Checklist
- [x] Fix applied
- [x] Fix logic reviewed by the generator
- [ ] Human review approved`

const directMessageTemplate = `You have a new automated SonarQube fix to review:
{{link}}
{{#if smell_key}}Issue key: {{smell_key}}
{{/if}}{{#if description}}Fix: {{description}}
{{/if}}`

const solutionSystemTemplate = `You are a code remediation expert. You analyse SonarQube findings and propose concrete, minimal fixes.`

const solutionTemplate = `Produce a concrete fix for the following SonarQube finding.

## Finding
- Key: {{smell_key}}
- Rule: {{rule}}
- File: {{component}}
- Line: {{line}}
- Message: {{message}}
- Type: {{type}}

Analyse the problem and propose a specific change.
Reply with JSON only, using these fields:
- filePath: path of the file relative to the repository root
- codeDiff: the concrete code change
- description: a one-sentence explanation of the fix`

const fixSystemTemplate = `You are a senior software engineer who applies SonarQube fix suggestions safely, changing only what the fix requires.`

const fixSnippetTemplate = `Update the target file according to the fix plan, touching only the snippet below.
Reply with JSON only, no other text. Fields:
- updatedSnippet: the complete replacement for the snippet
- summary: a short description of the change
- warnings: optional notes
If the fix cannot be confined to the snippet, also return newContent with the full updated file.

### Target
- File: {{file_path}}
- Issue key: {{smell_key}}
- Fix description: {{description}}

### Suggested change
{{code_diff}}

### Current snippet (lines {{start_line}} to {{end_line}} of {{total_lines}})
` + "```" + `{{language}}
{{snippet}}
` + "```" + `

Keep every line outside the snippet unchanged. Return valid JSON.`

const fixFileTemplate = `Update the target file according to the fix plan.
Reply with JSON only, no other text. Fields:
- newContent: the complete updated file content
- summary: a short description of the change
If the plan is incomplete, fill the gaps from context without breaking existing behaviour.

### Target
- File: {{file_path}}
- Issue key: {{smell_key}}
- Fix description: {{description}}

### Suggested change
{{code_diff}}

### Current file content
` + "```" + `{{language}}
{{content}}
` + "```" + `

Return valid JSON.`
