// Package products is the static product catalog. Pricing identifiers
// live in configuration, not here; the catalog only says which product
// ids exist and how they present.
package products

type Status string

const (
	StatusProduction Status = "production"
	StatusBeta       Status = "beta"
	StatusComingSoon Status = "coming-soon"
)

type Product struct {
	ID        string
	Name      string
	Tagline   string
	ToolCount int
	Status    Status
}

var catalog = map[string]Product{
	"github": {
		ID:        "github",
		Name:      "GitHub MCP Server",
		Tagline:   "Complete GitHub automation with code-first execution",
		ToolCount: 42,
		Status:    StatusProduction,
	},
}

// DefaultProductID is assumed when a checkout event carries no product
// metadata.
const DefaultProductID = "github"

func Get(id string) (Product, bool) {
	p, ok := catalog[id]
	return p, ok
}

func Exists(id string) bool {
	_, ok := catalog[id]
	return ok
}
