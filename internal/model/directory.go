package model

// Assistant is a specialised assistant a turn can hand off to.
type Assistant struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
}

// KnowledgeBaseScope is the ownership tier of a knowledge base.
type KnowledgeBaseScope string

const (
	ScopeEnterprise KnowledgeBaseScope = "enterprise"
	ScopeDepartment KnowledgeBaseScope = "department"
	ScopePersonal   KnowledgeBaseScope = "personal"
)

// KnowledgeBase is a simulated retrieval source.
type KnowledgeBase struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Scope         KnowledgeBaseScope `json:"scope"`
	DocumentCount int                `json:"document_count"`
	LastUpdated   string             `json:"last_updated"`
	Favorite      bool               `json:"favorite,omitempty"`
}

// SuggestedQuestion is a starter prompt shown on an empty session.
type SuggestedQuestion struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Category string `json:"category"`
}

// CitationPreview is the detail view of a citation.
type CitationPreview struct {
	Citation Citation `json:"citation"`
	Content  string   `json:"content"`
}
