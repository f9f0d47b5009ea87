package common

// DefaultExamMarker is the substring that marks a template id as an exam id.
const DefaultExamMarker = "exam"

// DefaultTemplatePages is the page count assumed when a template payload
// does not declare its pages.
const DefaultTemplatePages = 2
