package catalog

import (
	"fmt"
	"strings"

	"github.com/capitalize-ai/presales-assistant/internal/model"
)

// Assistant IDs referenced by answer suggestions.
const (
	AssistantDocument = "assistant-doc"
	AssistantVerify   = "assistant-verify"
	AssistantMaterial = "assistant-material"
	AssistantBid      = "assistant-bid"
)

// DefaultKnowledgeBaseLabels are scanned when a turn names no knowledge bases.
var DefaultKnowledgeBaseLabels = []string{"企业产品库", "部门技术库", "历史项目库", "竞品分析库"}

var assistants = []model.Assistant{
	{
		ID:          AssistantDocument,
		Name:        "项目文档助手",
		Icon:        "FileText",
		Description: "项目文档生成、文档模板选择、篇章阅读、文档润色、多文档合稿",
	},
	{
		ID:          AssistantVerify,
		Name:        "项目校验助手",
		Icon:        "CheckCircle",
		Description: "项目清单校验、内容一致性检查、清单查重比较、参数报价核对",
	},
	{
		ID:          AssistantMaterial,
		Name:        "项目资料助手",
		Icon:        "FolderOpen",
		Description: "资料上传分类归档、智能分类规则、资料检索下载、档案范围选择",
	},
	{
		ID:          AssistantBid,
		Name:        "招投标助手",
		Icon:        "Gavel",
		Description: "招标文件解读、智能深化清单、智能询价报价、清单对照分析、标围图纸分析",
	},
}

var knowledgeBases = []model.KnowledgeBase{
	{ID: "kb-enterprise-1", Name: "产品资料库", Scope: model.ScopeEnterprise, DocumentCount: 1256, LastUpdated: "2026-01-12", Favorite: true},
	{ID: "kb-enterprise-2", Name: "政策法规库", Scope: model.ScopeEnterprise, DocumentCount: 892, LastUpdated: "2026-01-11"},
	{ID: "kb-enterprise-3", Name: "品牌选型库", Scope: model.ScopeEnterprise, DocumentCount: 567, LastUpdated: "2026-01-10"},
	{ID: "kb-enterprise-4", Name: "历史项目合同库", Scope: model.ScopeEnterprise, DocumentCount: 2341, LastUpdated: "2026-01-09"},
	{ID: "kb-enterprise-5", Name: "方法论库", Scope: model.ScopeEnterprise, DocumentCount: 156, LastUpdated: "2026-01-08"},
	{ID: "kb-dept-1", Name: "区域项目资料库", Scope: model.ScopeDepartment, DocumentCount: 456, LastUpdated: "2026-01-12", Favorite: true},
	{ID: "kb-dept-2", Name: "技术方案模板库", Scope: model.ScopeDepartment, DocumentCount: 189, LastUpdated: "2026-01-11"},
	{ID: "kb-dept-3", Name: "报价参考库", Scope: model.ScopeDepartment, DocumentCount: 234, LastUpdated: "2026-01-10"},
	{ID: "kb-dept-4", Name: "竞品分析库", Scope: model.ScopeDepartment, DocumentCount: 78, LastUpdated: "2026-01-09"},
	{ID: "kb-personal-1", Name: "我的项目笔记", Scope: model.ScopePersonal, DocumentCount: 45, LastUpdated: "2026-01-12", Favorite: true},
	{ID: "kb-personal-2", Name: "客户沟通记录", Scope: model.ScopePersonal, DocumentCount: 67, LastUpdated: "2026-01-10"},
	{ID: "kb-personal-3", Name: "学习资料收藏", Scope: model.ScopePersonal, DocumentCount: 23, LastUpdated: "2026-01-08"},
}

var suggestedQuestions = []model.SuggestedQuestion{
	{ID: "sq-1", Text: "XX项目的招标要求有哪些？", Category: "招标解读"},
	{ID: "sq-2", Text: "我们的核心产品和竞品有什么区别？", Category: "竞品对比"},
	{ID: "sq-3", Text: "帮我找一下去年类似项目的中标方案作为参考", Category: "历史案例"},
}

// Assistants returns the assistant directory.
func Assistants() []model.Assistant {
	return append([]model.Assistant(nil), assistants...)
}

// FindAssistant looks up an assistant by ID.
func FindAssistant(id string) (model.Assistant, bool) {
	for _, a := range assistants {
		if a.ID == id {
			return a, true
		}
	}
	return model.Assistant{}, false
}

// KnowledgeBases returns the knowledge-base directory, optionally filtered by scope.
func KnowledgeBases(scope model.KnowledgeBaseScope) []model.KnowledgeBase {
	out := make([]model.KnowledgeBase, 0, len(knowledgeBases))
	for _, kb := range knowledgeBases {
		if scope == "" || kb.Scope == scope {
			out = append(out, kb)
		}
	}
	return out
}

// SuggestedQuestions returns the starter prompts.
func SuggestedQuestions() []model.SuggestedQuestion {
	return append([]model.SuggestedQuestion(nil), suggestedQuestions...)
}

// CitationPreview renders the Markdown detail page of a citation.
func CitationPreview(c model.Citation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n**来源**: %s", c.Title, c.Source)
	if c.PageNumber != nil {
		fmt.Fprintf(&b, " · 第 %d 页", *c.PageNumber)
	}
	b.WriteString("\n\n---\n\n")
	b.WriteString(c.Snippet)
	b.WriteString("\n\n### 相关内容摘要\n\n")
	b.WriteString("本文档详细阐述了相关技术规范和产品参数，涵盖系统架构设计、性能指标要求、接口规范定义等核心内容。")
	b.WriteString("文档中对技术实现细节进行了充分说明，可作为方案编写的重要参考资料。")
	b.WriteString("\n\n**关键词**: 技术规范、产品参数、系统架构、性能指标")
	b.WriteString("\n\n**更新时间**: 2026-01-10")
	return b.String()
}
