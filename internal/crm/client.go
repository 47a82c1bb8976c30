// Package crm provides the REST client for the downstream CRM. Contacts are
// looked up and created here, qualification results are written back as tags
// and notes, and outbound conversation messages are delivered through it.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"leadqual_backend/platform/config"
	"leadqual_backend/platform/logger"
	"leadqual_backend/platform/phone"
)

const apiVersion = "2021-07-28"

// Contact is the CRM's contact representation, reduced to the fields this
// service reads and writes.
type Contact struct {
	ID    string   `json:"id"`
	Name  string   `json:"name,omitempty"`
	Email string   `json:"email,omitempty"`
	Phone string   `json:"phone,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

// ContactParams carries the writable contact fields.
type ContactParams struct {
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Source string `json:"source,omitempty"`
}

type Client struct {
	baseURL    string
	apiKey     string
	locationID string
	http       *http.Client
	log        *logger.Logger
}

// NewClient creates a CRM client. Returns nil when no API key is configured;
// all methods tolerate a nil receiver so callers need no feature checks.
func NewClient(cfg config.CRMConfig, log *logger.Logger) *Client {
	if !cfg.IsCRMEnabled() {
		return nil
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.GetCRMBaseURL(), "/"),
		apiKey:     cfg.GetCRMAPIKey(),
		locationID: cfg.GetCRMLocationID(),
		http:       &http.Client{Timeout: 15 * time.Second},
		log:        log,
	}
}

// SearchContacts finds contacts matching the query, typically a phone number
// or email.
func (c *Client) SearchContacts(ctx context.Context, query string) ([]Contact, error) {
	if c == nil {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/contacts/?locationId=%s&query=%s",
		c.baseURL, url.QueryEscape(c.locationID), url.QueryEscape(query))

	var out struct {
		Contacts []Contact `json:"contacts"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return out.Contacts, nil
}

// GetContact fetches one contact by id.
func (c *Client) GetContact(ctx context.Context, contactID string) (*Contact, error) {
	if c == nil {
		return nil, nil
	}

	var out struct {
		Contact Contact `json:"contact"`
	}
	endpoint := fmt.Sprintf("%s/contacts/%s", c.baseURL, url.PathEscape(contactID))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return &out.Contact, nil
}

// CreateContact creates a contact, normalizing the phone number first.
func (c *Client) CreateContact(ctx context.Context, params ContactParams) (*Contact, error) {
	if c == nil {
		return nil, nil
	}

	params.Phone = phone.NormalizeE164(params.Phone)
	payload := struct {
		ContactParams
		LocationID string `json:"locationId"`
	}{ContactParams: params, LocationID: c.locationID}

	var out struct {
		Contact Contact `json:"contact"`
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/contacts/", payload, &out); err != nil {
		return nil, err
	}
	c.log.Info("crm contact created", "contact_id", out.Contact.ID)
	return &out.Contact, nil
}

// UpdateContact updates writable fields on an existing contact.
func (c *Client) UpdateContact(ctx context.Context, contactID string, params ContactParams) error {
	if c == nil {
		return nil
	}

	if params.Phone != "" {
		params.Phone = phone.NormalizeE164(params.Phone)
	}
	endpoint := fmt.Sprintf("%s/contacts/%s", c.baseURL, url.PathEscape(contactID))
	return c.do(ctx, http.MethodPut, endpoint, params, nil)
}

// AddTag appends a tag to the contact.
func (c *Client) AddTag(ctx context.Context, contactID, tag string) error {
	if c == nil {
		return nil
	}

	endpoint := fmt.Sprintf("%s/contacts/%s/tags", c.baseURL, url.PathEscape(contactID))
	payload := map[string][]string{"tags": {tag}}
	return c.do(ctx, http.MethodPost, endpoint, payload, nil)
}

// CreateNote attaches a free-text note to the contact.
func (c *Client) CreateNote(ctx context.Context, contactID, body string) error {
	if c == nil {
		return nil
	}

	endpoint := fmt.Sprintf("%s/contacts/%s/notes", c.baseURL, url.PathEscape(contactID))
	payload := map[string]string{"body": body}
	return c.do(ctx, http.MethodPost, endpoint, payload, nil)
}

// SendMessage delivers an outbound conversation message to the contact over
// the given channel ("SMS", "WhatsApp", "Email").
func (c *Client) SendMessage(ctx context.Context, contactID, channel, message string) error {
	if c == nil {
		return nil
	}

	payload := map[string]string{
		"type":      channel,
		"contactId": contactID,
		"message":   message,
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/conversations/messages", payload, nil); err != nil {
		return err
	}
	c.log.Info("crm message sent", "contact_id", contactID, "channel", channel)
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal crm payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Version", apiVersion)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("crm request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("crm returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode crm response: %w", err)
		}
	}
	return nil
}
