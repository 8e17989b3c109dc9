package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/seenimoa/marketpulse/internal/dictionary"
	"github.com/seenimoa/marketpulse/internal/llm"
	"github.com/seenimoa/marketpulse/pkg/models"
)

const systemPrompt = `You are an expert in structured data extraction.
# Task
Analyse the news article using the two dictionaries provided (in CSV form). Output one object following the given schema.
# Input format
A CSV file with the columns id, title, content: the id, headline and body of the article.
# Rules
- Name the sector the article is mainly about. It must be one of the sectors listed in Dictionary 2, spelled exactly as there.
- Find the companies of that sector mentioned in the article that also appear in Dictionary 1.
- A sector may contain several companies. Return an empty list when none are mentioned.
# Output format
A single JSON object:
{
  "id": the id of the input row,
  "article": the article title,
  "sector": the sector name,
  "companies": [
    {"company_name": official company name, "company_stock_id": stock code}
  ]
}`

// responseFormat is the schema every provider is asked to honour.
var responseFormat = &llm.ResponseFormat{
	Name: "sector_extraction",
	Schema: llm.ObjectSchema("Sector and companies mentioned in one article", map[string]*llm.JSONSchema{
		"id":      llm.StringProp("id of the input row"),
		"article": llm.StringProp("article title"),
		"sector":  llm.StringProp("main sector, taken from Dictionary 2"),
		"companies": llm.ArrayProp("companies of that sector found in Dictionary 1",
			llm.ObjectSchema("", map[string]*llm.JSONSchema{
				"company_name":     llm.StringProp("official company name"),
				"company_stock_id": llm.StringProp("stock code"),
			}, "company_name", "company_stock_id"),
		),
	}, "id", "article", "sector", "companies"),
}

// buildMessages assembles the system instruction and the user message that
// embeds both dictionaries and the article as a one-row CSV table.
func buildMessages(dict *dictionary.Set, article models.Article) ([]llm.Message, error) {
	block, err := articleCSV(article)
	if err != nil {
		return nil, err
	}
	user := fmt.Sprintf("# Dictionary 1 (No., stock code, official name, sector, keywords)\n%s\n"+
		"# Dictionary 2 (No., sector)\n%s\n"+
		"# Article\n%s",
		dict.Companies, dict.Sectors, block)

	return []llm.Message{llm.SystemMessage(systemPrompt), llm.UserMessage(user)}, nil
}

// articleCSV renders the header and a single quoted row so commas and line
// breaks in the body cannot shift columns.
func articleCSV(article models.Article) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"id", "title", "content"}); err != nil {
		return "", err
	}
	if err := w.Write([]string{article.ID, article.Title, article.Content}); err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("extract: encode article: %w", err)
	}
	return buf.String(), nil
}
