package auth

// Gate answers whether a Telegram user may talk to the bot. An empty
// allow-list means open access; this mirrors the original configuration
// default and is deliberate.
type Gate struct {
	allowed map[int64]bool
}

func NewGate(allowedUserIDs []int64) *Gate {
	allowed := make(map[int64]bool, len(allowedUserIDs))
	for _, id := range allowedUserIDs {
		if id == 0 {
			continue
		}
		allowed[id] = true
	}
	return &Gate{allowed: allowed}
}

func (g *Gate) Allowed(userID int64) bool {
	if len(g.allowed) == 0 {
		return true
	}
	return g.allowed[userID]
}
