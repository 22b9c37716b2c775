// ABOUTME: Ordered resolver chains for taxonomy lookups
// ABOUTME: Each step is named so the winning fallback can be logged and tested
package payment

import "github.com/harperreed/crmsync/models"

type step struct {
	name    string
	resolve func() models.RemoteID
}

// chain tries steps in order and returns the first non-empty id.
type chain []step

func (c chain) resolve() (models.RemoteID, string) {
	for _, s := range c {
		if id := s.resolve(); !id.IsZero() {
			return id, s.name
		}
	}
	return "", ""
}
