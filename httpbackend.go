package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// HTTPBackend implements Backend against the store-console REST API
// using JSON over HTTP. The remote contract wraps every response in a
// success envelope; success=false and non-2xx statuses are both
// surfaced as errors so the engine's degradation policy can take over.
type HTTPBackend struct {
	baseURL string
	http    *http.Client
}

// NewHTTPBackend creates an HTTPBackend rooted at baseURL. A nil
// httpClient falls back to http.DefaultClient; timeouts are the
// transport layer's concern.
func NewHTTPBackend(baseURL string, httpClient *http.Client) *HTTPBackend {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPBackend{baseURL: baseURL, http: httpClient}
}

type customerPayload struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Address  string `json:"address"`
	City     string `json:"city"`
	State    string `json:"state"`
	Pincode  string `json:"pincode"`
}

type transportPayload struct {
	ID          string `json:"id"`
	TravelsName string `json:"travelsName"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	City        string `json:"city"`
	State       string `json:"state"`
	Pincode     string `json:"pincode"`
}

type productPayload struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type searchEnvelope struct {
	Success   bool              `json:"success"`
	Customers []customerPayload `json:"customers"`
}

type productsEnvelope struct {
	Success  bool             `json:"success"`
	Products []productPayload `json:"products"`
}

type matchEnvelope struct {
	Success    bool               `json:"success"`
	Transports []transportPayload `json:"transports"`
}

type createEnvelope struct {
	Success bool `json:"success"`
}

// SearchCustomers implements Backend.
func (b *HTTPBackend) SearchCustomers(ctx context.Context, fragment string) ([]CustomerSummary, error) {
	q := url.Values{}
	q.Set("q", fragment)
	endpoint := fmt.Sprintf("%s/api/customers/search?%s", b.baseURL, q.Encode())

	var env searchEnvelope
	if err := b.getJSON(ctx, endpoint, &env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fmt.Errorf("customer search rejected for %q", fragment)
	}
	customers := make([]CustomerSummary, len(env.Customers))
	for i, c := range env.Customers {
		customers[i] = CustomerSummary{
			ID:       c.ID,
			FullName: c.FullName,
			Phone:    c.Phone,
			Email:    c.Email,
			Address:  c.Address,
			City:     c.City,
			State:    c.State,
			Pincode:  c.Pincode,
		}
	}
	return customers, nil
}

// GetCustomerProducts implements Backend.
func (b *HTTPBackend) GetCustomerProducts(ctx context.Context, customerName string) ([]ProductRef, error) {
	endpoint := fmt.Sprintf("%s/api/customers/%s/products", b.baseURL, url.PathEscape(customerName))

	var env productsEnvelope
	if err := b.getJSON(ctx, endpoint, &env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fmt.Errorf("product lookup rejected for %q", customerName)
	}
	products := make([]ProductRef, len(env.Products))
	for i, p := range env.Products {
		products[i] = ProductRef{Code: p.Code, Name: p.Name}
	}
	return products, nil
}

// MatchTransportsByAddress implements Backend.
func (b *HTTPBackend) MatchTransportsByAddress(ctx context.Context, query AddressQuery) ([]TransportCandidate, error) {
	q := url.Values{}
	if query.City != "" {
		q.Set("city", query.City)
	}
	if query.State != "" {
		q.Set("state", query.State)
	}
	if query.Pincode != "" {
		q.Set("pincode", query.Pincode)
	}
	endpoint := fmt.Sprintf("%s/api/transports/match?%s", b.baseURL, q.Encode())

	var env matchEnvelope
	if err := b.getJSON(ctx, endpoint, &env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fmt.Errorf("transport match rejected")
	}
	transports := make([]TransportCandidate, len(env.Transports))
	for i, t := range env.Transports {
		transports[i] = TransportCandidate{
			ID:          t.ID,
			TravelsName: t.TravelsName,
			Name:        t.Name,
			Address:     t.Address,
			City:        t.City,
			State:       t.State,
			Pincode:     t.Pincode,
		}
	}
	return transports, nil
}

// CreateDispatchRecord implements Backend.
func (b *HTTPBackend) CreateDispatchRecord(ctx context.Context, record DispatchRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/api/dispatch", b.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("dispatch create %d: %s", resp.StatusCode, string(b))
	}
	var env createEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return err
	}
	if !env.Success {
		return fmt.Errorf("dispatch create rejected for item %q", record.ItemName)
	}
	return nil
}

func (b *HTTPBackend) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("backend %d: %s", resp.StatusCode, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
