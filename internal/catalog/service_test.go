package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/victornm/olympiad/internal/catalog"
	"github.com/victornm/olympiad/internal/domain"
)

func TestValid(t *testing.T) {
	good := domain.Question{
		QuestionID:    "q1",
		QuestionText:  "2 + 2 = ?",
		CorrectOption: "B",
		Options: []domain.Option{
			{Label: "A", Text: "3"}, {Label: "B", Text: "4"}, {Label: "C", Text: "5"}, {Label: "D", Text: "22"},
		},
	}

	noText := good
	noText.QuestionID = "q2"
	noText.QuestionText = ""

	badKey := good
	badKey.QuestionID = "q3"
	badKey.CorrectOption = "E"

	emptyOption := good
	emptyOption.QuestionID = "q4"
	emptyOption.Options = []domain.Option{
		{Label: "A", Text: "3"}, {Label: "B", Text: "4"}, {Label: "C", Text: ""}, {Label: "D", Text: "22"},
	}

	got := catalog.Valid([]domain.Question{good, noText, badKey, emptyOption})
	require.Equal(t, []domain.Question{good}, got)
	require.Empty(t, catalog.Valid(nil))
}
