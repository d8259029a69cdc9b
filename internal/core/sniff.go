package core

// Column synonyms are tried in order; the first one present in a file's
// header (case-insensitive) supplies the field for every row of that file.
var (
	colCompany          = []string{"company"}
	colCompanySentiment = []string{"sentiment_score"}
	colEnvironmental    = []string{"environmental_score", "environmental", "env_score"}
	colSocial           = []string{"social_score", "social", "soc_score"}
	colGovernance       = []string{"governance_score", "governance", "gov_score"}
	colESG              = []string{"esg_score", "esg"}

	colTitle         = []string{"title"}
	colSummary       = []string{"summary", "description", "body"}
	colNewsSentiment = []string{"sentiment_score", "sentiment"}
	colLabel         = []string{"sentiment_label", "label"}
)

// shapeSignatures are checked in order; a header matching the company
// signature is never classified as news.
var shapeSignatures = []struct {
	shape    Shape
	required []string
}{
	{ShapeCompanyESG, []string{"company", "sentiment_score"}},
	{ShapeNews, []string{"title", "sentiment_score"}},
}

// Sniff classifies a header row into a known record shape.
func Sniff(idx HeaderIndex) Shape {
	for _, sig := range shapeSignatures {
		if idx.Has(sig.required...) {
			return sig.shape
		}
	}
	return ShapeUnknown
}
