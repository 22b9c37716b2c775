// ABOUTME: Typed helpers for constituent search, fetch, create and update
// ABOUTME: Create and update send flat scalar payloads; sub-records are separate calls
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/harperreed/crmsync/models"
)

const constituentsEndpoint = "/constituents"

// ErrNoID is returned when a create response carries no record id.
var ErrNoID = errors.New("response did not include a record id")

// ConstituentFields are the scalar fields accepted by create and update.
type ConstituentFields struct {
	FirstName string
	LastName  string
	OrgName   string
	IsOrg     bool
}

func (f ConstituentFields) params() Params {
	p := Params{}
	if f.FirstName != "" {
		p["first_name"] = f.FirstName
	}
	if f.LastName != "" {
		p["last_name"] = f.LastName
	}
	if f.OrgName != "" {
		p["org_name"] = f.OrgName
	}
	if f.IsOrg {
		p["is_org"] = true
	}
	return p
}

func constituentPath(id models.RemoteID) string {
	return fmt.Sprintf("%s/%s", constituentsEndpoint, id)
}

// fetch issues a request and surfaces failures as errors.
func (c *Client) fetch(ctx context.Context, endpoint, method string, params Params, useCache bool) (*Response, error) {
	resp, err := c.Request(ctx, endpoint, method, params, useCache)
	if err != nil {
		return nil, err
	}
	if err := resp.Error(); err != nil {
		return nil, err
	}
	return resp, nil
}

func decodeConstituents(resp *Response) ([]models.Constituent, error) {
	wires, err := DecodeRecords[constituentWire](resp)
	if err != nil {
		return nil, err
	}
	out := make([]models.Constituent, 0, len(wires))
	for _, w := range wires {
		out = append(out, w.toConstituent())
	}
	return out, nil
}

func createdID(resp *Response) (models.RemoteID, error) {
	ids, err := DecodeRecords[idWire](resp)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 || ids[0].ID.IsZero() {
		return "", ErrNoID
	}
	return ids[0].ID, nil
}

// SearchByEmail runs the remote email search. The remote index is loose, so
// results must be verified by the caller.
func (c *Client) SearchByEmail(ctx context.Context, email string) ([]models.Constituent, error) {
	resp, err := c.fetch(ctx, constituentsEndpoint, http.MethodGet, Params{"email": email}, true)
	if err != nil {
		return nil, err
	}
	return decodeConstituents(resp)
}

// SearchByName runs the remote free-text name search.
func (c *Client) SearchByName(ctx context.Context, name string) ([]models.Constituent, error) {
	resp, err := c.fetch(ctx, constituentsEndpoint, http.MethodGet, Params{"search": name}, true)
	if err != nil {
		return nil, err
	}
	return decodeConstituents(resp)
}

func (c *Client) GetConstituent(ctx context.Context, id models.RemoteID) (*models.Constituent, error) {
	resp, err := c.fetch(ctx, constituentPath(id), http.MethodGet, nil, true)
	if err != nil {
		return nil, err
	}
	found, err := decodeConstituents(resp)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("constituent %s: empty response", id)
	}
	return &found[0], nil
}

// CreateConstituent posts a new constituent and returns its id.
func (c *Client) CreateConstituent(ctx context.Context, fields ConstituentFields) (models.RemoteID, error) {
	resp, err := c.fetch(ctx, constituentsEndpoint, http.MethodPost, fields.params(), false)
	if err != nil {
		return "", err
	}
	c.invalidate(ctx, constituentsEndpoint)
	return createdID(resp)
}

// UpdateConstituent sends changed scalar fields only.
func (c *Client) UpdateConstituent(ctx context.Context, id models.RemoteID, fields Params) error {
	if _, err := c.fetch(ctx, constituentPath(id), http.MethodPut, fields, false); err != nil {
		return err
	}
	c.invalidate(ctx, constituentsEndpoint, constituentPath(id))
	return nil
}
