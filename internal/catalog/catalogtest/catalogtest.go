// Package catalogtest provides a small in-code workflow catalog for tests.
package catalogtest

import (
	"github.com/akhaire21/marktools/internal/catalog"
	"github.com/akhaire21/marktools/pkg/models"
)

// Workflows returns fresh copies of the sample workflows, in catalog order.
func Workflows() []*models.Workflow {
	return []*models.Workflow{
		{
			WorkflowID:  "ohio_w2_itemized_2024",
			NodeType:    models.NodeTypeWorkflow,
			Title:       "Ohio 2024 State Tax Filing with W2 and Itemized Deductions",
			Description: "File an Ohio IT-1040 state return for tax year 2024 using W2 wage income and itemized deductions.",
			TaskType:    "tax_filing",
			State:       "OH",
			Year:        2024,
			Tags:        []string{"ohio", "state_tax", "w2", "itemized"},
			Steps: []models.Step{
				{Step: 1, Thought: "Collect W2 forms and confirm Ohio residency status"},
				{Step: 2, Thought: "Itemize deductions on federal Schedule A"},
				{Step: 3, Thought: "File IT-1040 through Ohio eFile"},
			},
			Rating:          4.8,
			DownloadCost:    200,
			ExecutionCost:   800,
			TokenComparison: &models.TokenComparison{WithWorkflow: 2000, FromScratch: 9000},
		},
		{
			WorkflowID:  "federal_1040_2024",
			NodeType:    models.NodeTypeWorkflow,
			Title:       "Federal 1040 Filing 2024",
			Description: "Prepare and file a federal Form 1040 for 2024 with standard or itemized deductions.",
			TaskType:    "tax_filing",
			Year:        2024,
			Tags:        []string{"federal", "1040", "irs"},
			Steps: []models.Step{
				{Step: 1, Thought: "Gather income documents"},
				{Step: 2, Thought: "Choose standard or itemized deduction"},
			},
			Rating:        4.5,
			DownloadCost:  300,
			ExecutionCost: 1200,
		},
		{
			WorkflowID:  "tokyo_trip_7day",
			NodeType:    models.NodeTypeWorkflow,
			Title:       "Seven Day Tokyo Trip Planner",
			Description: "Plan a week in Tokyo with flights, hotels, rail pass and daily itinerary.",
			TaskType:    "travel_planning",
			Location:    "Tokyo, Japan",
			Tags:        []string{"travel", "japan", "itinerary"},
			Steps: []models.Step{
				{Step: 1, Thought: "Search round trip flights"},
				{Step: 2, Thought: "Book hotels near major rail lines"},
			},
			Rating:        4.2,
			DownloadCost:  150,
			ExecutionCost: 600,
		},
		{
			WorkflowID:    "csv_to_json_parser",
			NodeType:      models.NodeTypeWorkflow,
			Title:         "CSV to JSON Parser",
			Description:   "Parse messy CSV exports into validated JSON records.",
			TaskType:      "data_parsing",
			Tags:          []string{"csv", "json", "etl"},
			Steps:         []models.Step{{Step: 1, Thought: "Detect delimiter and header row"}},
			Rating:        4.0,
			DownloadCost:  80,
			ExecutionCost: 300,
		},
	}
}

// New returns a catalog of the sample workflows. It panics on error, which
// cannot happen for the fixed sample set.
func New() *catalog.Catalog {
	c, err := catalog.New(Workflows())
	if err != nil {
		panic(err)
	}
	return c
}
