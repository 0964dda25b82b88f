package mcp

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"groundrag/internal/document"
	"groundrag/internal/domain"
)

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"the question to answer from the indexed corpus"`
}

// AskDocumentInput is the input schema for the ask_document tool.
type AskDocumentInput struct {
	Question     string `json:"question" jsonschema:"the question to answer from the document"`
	DocumentText string `json:"document_text,omitempty" jsonschema:"the full document text"`
	DocumentPath string `json:"document_path,omitempty" jsonschema:"path to a .txt, .md or .pdf file, used when document_text is empty"`
}

// AnswerOutput is the output schema shared by both tools.
type AnswerOutput struct {
	Answer   string   `json:"answer"`
	Sources  []string `json:"sources"`
	Context  string   `json:"context"`
	Passages []string `json:"passages,omitempty"`
}

var errNoDocument = errors.New("either document_text or document_path is required")

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question using only passages retrieved from the indexed corpus",
	}, s.handleAsk)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask_document",
		Description: "Answer a question using only the supplied document",
	}, s.handleAskDocument)
}

func (s *Server) handleAsk(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (*mcp.CallToolResult, AnswerOutput, error) {
	res, err := s.queries.RunRetrievalQuery(ctx, input.Question)
	if err != nil {
		return nil, AnswerOutput{}, s.toolError("ask", err)
	}
	return nil, toOutput(res), nil
}

func (s *Server) handleAskDocument(ctx context.Context, _ *mcp.CallToolRequest, input AskDocumentInput) (*mcp.CallToolResult, AnswerOutput, error) {
	text := input.DocumentText
	if text == "" {
		if input.DocumentPath == "" {
			return nil, AnswerOutput{}, errNoDocument
		}
		doc, err := document.Load(input.DocumentPath)
		if err != nil {
			return nil, AnswerOutput{}, s.toolError("ask_document", err)
		}
		text = doc.Text
	}

	res, err := s.queries.RunDirectQuery(ctx, text, input.Question)
	if err != nil {
		return nil, AnswerOutput{}, s.toolError("ask_document", err)
	}
	return nil, toOutput(res), nil
}

// toolError keeps the pipeline's kind in the message the client sees.
func (s *Server) toolError(tool string, err error) error {
	if e, ok := domain.AsError(err); ok {
		s.log.Info("tool call failed", zap.String("tool", tool), zap.String("kind", string(e.Kind)), zap.String("sub_kind", string(e.SubKind)))
		return e
	}
	s.log.Warn("tool call failed", zap.String("tool", tool), zap.Error(err))
	return err
}

func toOutput(res domain.QueryResult) AnswerOutput {
	sources := res.Sources
	if sources == nil {
		sources = []string{}
	}
	return AnswerOutput{Answer: res.Answer, Sources: sources, Context: res.Context, Passages: res.Passages}
}
