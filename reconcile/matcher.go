// ABOUTME: Verified constituent matching against the loose remote search index
// ABOUTME: Email-first search with exact confirmation, then name search cross-checked against every candidate email
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harperreed/crmsync/models"
)

// Match methods.
const (
	MethodEmail          = "email"
	MethodName           = "name"
	MethodNameUnverified = "name_unverified"
)

// DefaultMaxVerify bounds how many search results are verified per email.
const DefaultMaxVerify = 10

// Searcher is the slice of the remote client the matcher needs.
type Searcher interface {
	SearchByEmail(ctx context.Context, email string) ([]models.Constituent, error)
	SearchByName(ctx context.Context, name string) ([]models.Constituent, error)
	ListContacts(ctx context.Context, id models.RemoteID, kind models.ContactKind, useCache bool) ([]models.ContactRecord, error)
}

// Match is a confirmed remote constituent.
type Match struct {
	ID           models.RemoteID
	MatchedEmail string
	Method       string
}

// AmbiguousMatchError is returned in strict mode when a name search without
// email candidates yields more than one constituent.
type AmbiguousMatchError struct {
	Name string
	IDs  []models.RemoteID
}

func (e *AmbiguousMatchError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = id.String()
	}
	return fmt.Sprintf("ambiguous match for %q: constituents %s", e.Name, strings.Join(ids, ", "))
}

type Matcher struct {
	source    Searcher
	logger    *slog.Logger
	MaxVerify int

	// StrictNames refuses to pick the first of several unverifiable name results.
	StrictNames bool
}

func NewMatcher(source Searcher, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		source:    source,
		logger:    logger.With("component", "matcher"),
		MaxVerify: DefaultMaxVerify,
	}
}

// FindConstituent returns the confirmed remote constituent for name and emails,
// or nil when nothing is confirmed. A nil match means "create", never "update".
// Remote failures are returned unchanged.
func (m *Matcher) FindConstituent(ctx context.Context, name string, emails []string) (*Match, error) {
	candidates := EmailCandidates(emails)
	known := make(map[models.RemoteID][]string)

	for _, candidate := range candidates {
		results, err := m.source.SearchByEmail(ctx, candidate)
		if err != nil {
			return nil, err
		}

		for i, c := range results {
			if i >= m.MaxVerify {
				break
			}
			remoteEmails, err := m.emailsOf(ctx, c, known)
			if err != nil {
				return nil, err
			}
			if containsMatch(remoteEmails, candidate) {
				m.logger.Info("match confirmed", "constituent", c.ID, "email", candidate, "method", MethodEmail)
				return &Match{ID: c.ID, MatchedEmail: candidate, Method: MethodEmail}, nil
			}
			m.logger.Debug("match rejected", "constituent", c.ID, "email", candidate)
		}
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	results, err := m.source.SearchByName(ctx, name)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		if len(results) == 0 {
			return nil, nil
		}
		if m.StrictNames && len(results) > 1 {
			ids := make([]models.RemoteID, len(results))
			for i, c := range results {
				ids[i] = c.ID
			}
			return nil, &AmbiguousMatchError{Name: name, IDs: ids}
		}
		m.logger.Info("match accepted without verification", "constituent", results[0].ID, "name", name)
		return &Match{ID: results[0].ID, Method: MethodNameUnverified}, nil
	}

	for _, c := range results {
		remoteEmails, err := m.emailsOf(ctx, c, known)
		if err != nil {
			return nil, err
		}
		for _, candidate := range candidates {
			if containsMatch(remoteEmails, candidate) {
				m.logger.Info("match confirmed", "constituent", c.ID, "email", candidate, "method", MethodName)
				return &Match{ID: c.ID, MatchedEmail: candidate, Method: MethodName}, nil
			}
		}
		m.logger.Debug("match rejected", "constituent", c.ID, "name", name)
	}

	return nil, nil
}

// emailsOf returns the constituent's addresses, from the search result when it
// embeds them, else from a follow-up call. Results are memoized per lookup.
func (m *Matcher) emailsOf(ctx context.Context, c models.Constituent, known map[models.RemoteID][]string) ([]string, error) {
	if emails, ok := known[c.ID]; ok {
		return emails, nil
	}

	records := c.EmailAddresses
	if records == nil {
		var err error
		records, err = m.source.ListContacts(ctx, c.ID, models.KindEmail, true)
		if err != nil {
			return nil, err
		}
	}

	emails := make([]string, 0, len(records))
	for _, r := range records {
		emails = append(emails, r.Value)
	}
	known[c.ID] = emails
	return emails, nil
}

func containsMatch(remoteEmails []string, candidate string) bool {
	for _, e := range remoteEmails {
		if EmailMatches(e, candidate) {
			return true
		}
	}
	return false
}
