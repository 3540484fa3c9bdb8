package domain

// Category is the recycling stream an item belongs to.
type Category string

const (
	CategoryPlastic Category = "plastic"
	CategoryPaper   Category = "paper"
	CategoryGlass   Category = "glass"
	CategoryMetal   Category = "metal"
	CategoryGeneral Category = "general"
)

// AdviceRecord is the validated, structured form of a model response.
type AdviceRecord struct {
	ItemName     string   `json:"itemName"`
	NotToDo      string   `json:"notToDo"`
	ToDo         string   `json:"toDo"`
	Alternatives string   `json:"alternatives"`
	WhereToBuy   string   `json:"whereToBuy"`
	Motivation   string   `json:"motivation"`
	Category     Category `json:"category"`
}
