// Package advice turns raw model output into structured recycling advice and
// builds the prompts that request it.
package advice

import (
	"strings"
	"unicode/utf8"

	"tadwir/internal/domain"
)

const (
	contractLines = 7
	minToDoRunes  = 5

	nameMarker     = "الاسم:"
	categoryMarker = "الصنف:"
)

var categoryWords = map[string]domain.Category{
	"بلاستيك": domain.CategoryPlastic,
	"ورق":     domain.CategoryPaper,
	"زجاج":    domain.CategoryGlass,
	"معدن":    domain.CategoryMetal,
}

// Parse validates raw against the 7-line response contract. It never returns
// a partial record: any failure is a *domain.ContractViolation.
func Parse(raw string) (domain.AdviceRecord, error) {
	lines := usableLines(raw)
	if len(lines) < contractLines {
		return domain.AdviceRecord{}, &domain.ContractViolation{
			Reason: domain.ViolationIncomplete,
			Lines:  len(lines),
		}
	}

	record := domain.AdviceRecord{
		ItemName:     labeledValue(lines[0], nameMarker),
		NotToDo:      lines[1],
		ToDo:         lines[2],
		Alternatives: lines[3],
		WhereToBuy:   lines[4],
		Motivation:   lines[5],
		Category:     parseCategory(lines[6]),
	}

	if utf8.RuneCountInString(record.ToDo) < minToDoRunes {
		return domain.AdviceRecord{}, &domain.ContractViolation{
			Reason: domain.ViolationDegenerate,
			Lines:  len(lines),
		}
	}
	return record, nil
}

func usableLines(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	parts := strings.Split(raw, "\n")
	lines := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		lines = append(lines, trimmed)
	}
	return lines
}

// labeledValue returns the text after the first colon when the line carries
// marker, otherwise the whole line.
func labeledValue(line, marker string) string {
	if !strings.Contains(line, marker) {
		return line
	}
	_, after, _ := strings.Cut(line, ":")
	if value := strings.TrimSpace(after); value != "" {
		return value
	}
	return line
}

func parseCategory(line string) domain.Category {
	if !strings.Contains(line, categoryMarker) {
		return domain.CategoryGeneral
	}
	_, after, _ := strings.Cut(line, ":")
	word := strings.Trim(strings.TrimSpace(after), ".،")
	if category, ok := categoryWords[word]; ok {
		return category
	}
	return domain.CategoryGeneral
}
