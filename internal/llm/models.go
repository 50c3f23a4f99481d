package llm

// SummaryPrompt is sent after the meeting log document
const SummaryPrompt = `
    Give me the key discussion points and action items in this document as a bullet list.
    Do not add an introduction to your response.
    Use markdown formatting.
`
