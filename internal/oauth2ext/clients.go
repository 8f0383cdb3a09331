package oauth2ext

// RegulatedClients is the set of OAuth2 clients bound to the consent flow.
// Every other client bypasses it.
type RegulatedClients map[string]struct{}

func NewRegulatedClients(ids ...string) RegulatedClients {
	set := make(RegulatedClients, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

// Contains is false for a nil set.
func (c RegulatedClients) Contains(clientID string) bool {
	_, ok := c[clientID]
	return ok
}
