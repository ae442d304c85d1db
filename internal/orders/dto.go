package orders

const (
	defaultListLimit = 20
	maxListLimit     = 100
	topStatsProducts = 5
)

// DrainResult counts the outcomes of one reconciliation batch.
type DrainResult struct {
	Fetched int `json:"fetched"`
	Done    int `json:"done"`
	Failed  int `json:"failed"`
	Dead    int `json:"dead"`
}

// Empty reports whether the batch found no work.
func (r DrainResult) Empty() bool {
	return r.Fetched == 0
}

type cartLine struct {
	ProductID string
	Quantity  int
}
