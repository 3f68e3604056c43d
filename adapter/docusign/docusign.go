// Package docusign implements the e-signature capability against the DocuSign
// eSignature REST API (v2.1). Only the envelope and template surfaces used by
// docuflow are covered; this is not a full API client.
package docusign

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/docuflow/docuflow/adapter"
	"github.com/docuflow/docuflow/internal/runtime/jsoncodec"
)

// AdapterType is the registry name of this adapter.
const AdapterType = "docusign"

// HTTPClientFactory allows overriding the HTTP client for testing.
var HTTPClientFactory = func() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}

func init() {
	adapter.MustRegister(adapter.DocuSignDescriptor, Build)
}

// Build creates the DocuSign adapter from its configuration properties.
func Build(_ context.Context, props adapter.Properties, logger *slog.Logger) (adapter.Provider, error) {
	baseURL := strings.TrimSuffix(props.Get("base_url"), "/")
	accountID := props.Get("account_id")
	accessToken := props.Get("access_token")
	if baseURL == "" || accountID == "" || accessToken == "" {
		return adapter.Provider{}, errors.New("docusign: base_url, account_id and access_token are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &client{
		http:        HTTPClientFactory(),
		baseURL:     baseURL,
		accountID:   accountID,
		accessToken: accessToken,
		log:         logger,
	}
	return adapter.Provider{
		Envelopes: c,
		Templates: c,
	}, nil
}

type client struct {
	http        *http.Client
	baseURL     string
	accountID   string
	accessToken string
	log         *slog.Logger
}

var (
	_ adapter.EnvelopeService = (*client)(nil)
	_ adapter.TemplateService = (*client)(nil)
)

// Wire types, named after the DocuSign API fields.

type envelopeDefinition struct {
	EmailSubject  string         `json:"emailSubject,omitempty"`
	EmailBlurb    string         `json:"emailBlurb,omitempty"`
	Status        string         `json:"status"`
	Documents     []wireDocument `json:"documents,omitempty"`
	Recipients    *recipients    `json:"recipients,omitempty"`
	TemplateID    string         `json:"templateId,omitempty"`
	TemplateRoles []templateRole `json:"templateRoles,omitempty"`
}

type wireDocument struct {
	DocumentBase64 string `json:"documentBase64"`
	Name           string `json:"name"`
	FileExtension  string `json:"fileExtension,omitempty"`
	DocumentID     string `json:"documentId"`
}

type recipients struct {
	Signers []signer `json:"signers"`
}

type signer struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	RecipientID  string `json:"recipientId"`
	RoutingOrder string `json:"routingOrder,omitempty"`
}

type templateRole struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	RoleName string `json:"roleName,omitempty"`
}

type envelopeSummary struct {
	EnvelopeID string `json:"envelopeId"`
	Status     string `json:"status"`
}

type envelopeUpdate struct {
	Status       string `json:"status"`
	VoidedReason string `json:"voidedReason,omitempty"`
}

type templateList struct {
	EnvelopeTemplates []struct {
		TemplateID   string `json:"templateId"`
		Name         string `json:"name"`
		EmailSubject string `json:"emailSubject"`
	} `json:"envelopeTemplates"`
}

func (c *client) CreateEnvelope(ctx context.Context, draft adapter.EnvelopeDraft) (string, error) {
	def := envelopeDefinition{
		EmailSubject: draft.Subject,
		EmailBlurb:   draft.Message,
		Status:       "created",
	}
	for i, doc := range draft.Documents {
		def.Documents = append(def.Documents, wireDocument{
			DocumentBase64: base64.StdEncoding.EncodeToString(doc.Content),
			Name:           doc.Key,
			FileExtension:  fileExtension(doc.Key),
			DocumentID:     strconv.Itoa(i + 1),
		})
	}
	if len(draft.Recipients) > 0 {
		def.Recipients = &recipients{}
		for i, r := range draft.Recipients {
			def.Recipients.Signers = append(def.Recipients.Signers, signer{
				Email:        r.Email,
				Name:         r.Name,
				RecipientID:  strconv.Itoa(i + 1),
				RoutingOrder: routingOrder(r.Order),
			})
		}
	}

	var summary envelopeSummary
	if err := c.do(ctx, http.MethodPost, c.envelopesPath(""), def, &summary); err != nil {
		return "", err
	}
	if summary.EnvelopeID == "" {
		return "", errors.New("docusign: create envelope returned no envelope id")
	}
	return summary.EnvelopeID, nil
}

func (c *client) SendEnvelope(ctx context.Context, externalID string) error {
	return c.do(ctx, http.MethodPut, c.envelopesPath(externalID), envelopeUpdate{Status: "sent"}, nil)
}

func (c *client) VoidEnvelope(ctx context.Context, externalID, reason string) error {
	if reason == "" {
		reason = "voided"
	}
	return c.do(ctx, http.MethodPut, c.envelopesPath(externalID), envelopeUpdate{Status: "voided", VoidedReason: reason}, nil)
}

func (c *client) GetEnvelopeStatus(ctx context.Context, externalID string) (adapter.EnvelopeStatus, error) {
	var summary envelopeSummary
	if err := c.do(ctx, http.MethodGet, c.envelopesPath(externalID), nil, &summary); err != nil {
		return "", err
	}
	return mapStatus(summary.Status)
}

func (c *client) ListTemplates(ctx context.Context) ([]adapter.Template, error) {
	var list templateList
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v2.1/accounts/%s/templates", c.accountID), nil, &list); err != nil {
		return nil, err
	}
	templates := make([]adapter.Template, 0, len(list.EnvelopeTemplates))
	for _, t := range list.EnvelopeTemplates {
		templates = append(templates, adapter.Template{
			ID:      t.TemplateID,
			Name:    t.Name,
			Subject: t.EmailSubject,
		})
	}
	return templates, nil
}

func (c *client) CreateEnvelopeFromTemplate(ctx context.Context, templateID string, recips []adapter.Recipient) (string, error) {
	if templateID == "" {
		return "", errors.New("docusign: template id is required")
	}
	def := envelopeDefinition{
		Status:     "created",
		TemplateID: templateID,
	}
	for _, r := range recips {
		def.TemplateRoles = append(def.TemplateRoles, templateRole{
			Email:    r.Email,
			Name:     r.Name,
			RoleName: r.Role,
		})
	}

	var summary envelopeSummary
	if err := c.do(ctx, http.MethodPost, c.envelopesPath(""), def, &summary); err != nil {
		return "", err
	}
	if summary.EnvelopeID == "" {
		return "", errors.New("docusign: create envelope returned no envelope id")
	}
	return summary.EnvelopeID, nil
}

func (c *client) envelopesPath(envelopeID string) string {
	p := fmt.Sprintf("/v2.1/accounts/%s/envelopes", c.accountID)
	if envelopeID != "" {
		p += "/" + envelopeID
	}
	return p
}

// do performs one API call: marshal the body, stamp the bearer token, decode
// into out when non-nil. HTTP 5xx and 429 are marked transient.
func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := jsoncodec.Marshal(body)
		if err != nil {
			return fmt.Errorf("docusign: marshaling request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("docusign: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classify(fmt.Errorf("docusign: %s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("docusign: %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(detail)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return adapter.MarkTransient(err)
		}
		return err
	}

	if out != nil {
		if err := jsoncodec.Decode(resp.Body, out); err != nil {
			return fmt.Errorf("docusign: decoding response: %w", err)
		}
	}
	return nil
}

// classify marks network-level failures transient.
func classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return adapter.MarkTransient(err)
	}
	return err
}

func mapStatus(status string) (adapter.EnvelopeStatus, error) {
	switch strings.ToLower(status) {
	case "created":
		return adapter.EnvelopeStatusDraft, nil
	case "sent", "delivered":
		return adapter.EnvelopeStatusSent, nil
	case "completed", "signed":
		return adapter.EnvelopeStatusCompleted, nil
	case "declined":
		return adapter.EnvelopeStatusDeclined, nil
	case "voided":
		return adapter.EnvelopeStatusVoided, nil
	default:
		return "", fmt.Errorf("docusign: unknown envelope status %q", status)
	}
}

func fileExtension(key string) string {
	if i := strings.LastIndex(key, "."); i >= 0 && i < len(key)-1 {
		return key[i+1:]
	}
	return ""
}

func routingOrder(order int) string {
	if order <= 0 {
		return ""
	}
	return strconv.Itoa(order)
}
