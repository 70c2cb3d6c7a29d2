package externalmodel

// JupiterPriceResponse is the body of GET /price/v2?ids=...
type JupiterPriceResponse struct {
	Data      map[string]*JupiterPrice `json:"data"`
	TimeTaken float64                  `json:"timeTaken"`
}

type JupiterPrice struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Price string `json:"price"`
}
