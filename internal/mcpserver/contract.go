package mcpserver

// GuidelinesURI is the resource URI of the submission guidelines.
const GuidelinesURI = "ideaboard://submission-guidelines"

// SubmissionGuidelines describes what a good idea submission looks like.
// Agents should read it before calling submit_idea.
const SubmissionGuidelines = `# Idea Submission Guidelines

An idea is a suggestion for a future video. Submit one with the submit_idea tool.

## Fields

- title: required, 1 to 100 characters. Leading and trailing whitespace is trimmed.
- description: optional, up to 500 characters. An omitted or blank description is stored as null.

## Moderation

Profane words in the title and description are replaced with asterisks
before the idea is stored. Submissions are never rejected for wording.

## Tags

Tags are generated automatically after submission and attached a few
seconds later. Do not put tags in the title. Tags are lowercase, at most
32 characters, and an idea carries at most 10 of them.

## Duplicates

Search with list_ideas first. If a similar idea exists, suggest upvoting it
instead of submitting a new one.
`
