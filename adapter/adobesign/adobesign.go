// Package adobesign implements the e-signature capability against the Adobe
// Acrobat Sign REST API (v6). Agreements are created as drafts via transient
// document upload, then moved through the agreement state machine.
package adobesign

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/docuflow/docuflow/adapter"
	"github.com/docuflow/docuflow/internal/runtime/jsoncodec"
)

// AdapterType is the registry name of this adapter.
const AdapterType = "adobesign"

// HTTPClientFactory allows overriding the HTTP client for testing.
var HTTPClientFactory = func() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}

func init() {
	adapter.MustRegister(adapter.AdobeSignDescriptor, Build)
}

// Build creates the Adobe Sign adapter from its configuration properties.
func Build(_ context.Context, props adapter.Properties, logger *slog.Logger) (adapter.Provider, error) {
	baseURL := strings.TrimSuffix(props.Get("base_url"), "/")
	integrationKey := props.Get("integration_key")
	if baseURL == "" || integrationKey == "" {
		return adapter.Provider{}, errors.New("adobesign: base_url and integration_key are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return adapter.Provider{
		Envelopes: &client{
			http:           HTTPClientFactory(),
			baseURL:        baseURL,
			integrationKey: integrationKey,
			log:            logger,
		},
	}, nil
}

type client struct {
	http           *http.Client
	baseURL        string
	integrationKey string
	log            *slog.Logger
}

var _ adapter.EnvelopeService = (*client)(nil)

// Wire types, named after the Adobe Sign API fields.

type transientDocumentResponse struct {
	TransientDocumentID string `json:"transientDocumentId"`
}

type agreementCreation struct {
	FileInfos       []fileInfo       `json:"fileInfos"`
	Name            string           `json:"name"`
	Message         string           `json:"message,omitempty"`
	ParticipantSets []participantSet `json:"participantSetsInfo"`
	SignatureType   string           `json:"signatureType"`
	State           string           `json:"state"`
}

type fileInfo struct {
	TransientDocumentID string `json:"transientDocumentId"`
}

type participantSet struct {
	MemberInfos []memberInfo `json:"memberInfos"`
	Order       int          `json:"order"`
	Role        string       `json:"role"`
}

type memberInfo struct {
	Email string `json:"email"`
}

type agreementCreationResponse struct {
	ID string `json:"id"`
}

type agreementInfo struct {
	Status string `json:"status"`
}

type stateUpdate struct {
	State string `json:"state"`
	Note  string `json:"note,omitempty"`
}

func (c *client) CreateEnvelope(ctx context.Context, draft adapter.EnvelopeDraft) (string, error) {
	creation := agreementCreation{
		Name:          draft.Subject,
		Message:       draft.Message,
		SignatureType: "ESIGN",
		State:         "DRAFT",
	}

	for _, doc := range draft.Documents {
		transientID, err := c.uploadTransientDocument(ctx, doc)
		if err != nil {
			return "", err
		}
		creation.FileInfos = append(creation.FileInfos, fileInfo{TransientDocumentID: transientID})
	}

	for i, r := range draft.Recipients {
		order := r.Order
		if order <= 0 {
			order = i + 1
		}
		creation.ParticipantSets = append(creation.ParticipantSets, participantSet{
			MemberInfos: []memberInfo{{Email: r.Email}},
			Order:       order,
			Role:        participantRole(r.Role),
		})
	}

	var resp agreementCreationResponse
	if err := c.do(ctx, http.MethodPost, "/api/rest/v6/agreements", creation, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", errors.New("adobesign: create agreement returned no id")
	}
	return resp.ID, nil
}

func (c *client) SendEnvelope(ctx context.Context, externalID string) error {
	return c.do(ctx, http.MethodPut, "/api/rest/v6/agreements/"+externalID+"/state",
		stateUpdate{State: "IN_PROCESS"}, nil)
}

func (c *client) VoidEnvelope(ctx context.Context, externalID, reason string) error {
	return c.do(ctx, http.MethodPut, "/api/rest/v6/agreements/"+externalID+"/state",
		stateUpdate{State: "CANCELLED", Note: reason}, nil)
}

func (c *client) GetEnvelopeStatus(ctx context.Context, externalID string) (adapter.EnvelopeStatus, error) {
	var info agreementInfo
	if err := c.do(ctx, http.MethodGet, "/api/rest/v6/agreements/"+externalID, nil, &info); err != nil {
		return "", err
	}
	return mapStatus(info.Status)
}

// uploadTransientDocument posts the document content as multipart form data
// and returns the transient document id to reference from the agreement.
func (c *client) uploadTransientDocument(ctx context.Context, doc adapter.Document) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("File", doc.Key)
	if err != nil {
		return "", fmt.Errorf("adobesign: %w", err)
	}
	if _, err := part.Write(doc.Content); err != nil {
		return "", fmt.Errorf("adobesign: %w", err)
	}
	if err := writer.WriteField("File-Name", doc.Key); err != nil {
		return "", fmt.Errorf("adobesign: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("adobesign: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/rest/v6/transientDocuments", &buf)
	if err != nil {
		return "", fmt.Errorf("adobesign: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.integrationKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", classify(fmt.Errorf("adobesign: uploading transient document: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", statusError("POST", "/api/rest/v6/transientDocuments", resp)
	}

	var uploaded transientDocumentResponse
	if err := jsoncodec.Decode(resp.Body, &uploaded); err != nil {
		return "", fmt.Errorf("adobesign: decoding response: %w", err)
	}
	if uploaded.TransientDocumentID == "" {
		return "", errors.New("adobesign: upload returned no transient document id")
	}
	return uploaded.TransientDocumentID, nil
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := jsoncodec.Marshal(body)
		if err != nil {
			return fmt.Errorf("adobesign: marshaling request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("adobesign: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.integrationKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classify(fmt.Errorf("adobesign: %s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(method, path, resp)
	}

	if out != nil {
		if err := jsoncodec.Decode(resp.Body, out); err != nil {
			return fmt.Errorf("adobesign: decoding response: %w", err)
		}
	}
	return nil
}

func statusError(method, path string, resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err := fmt.Errorf("adobesign: %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(detail)))
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return adapter.MarkTransient(err)
	}
	return err
}

func classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return adapter.MarkTransient(err)
	}
	return err
}

func mapStatus(status string) (adapter.EnvelopeStatus, error) {
	switch strings.ToUpper(status) {
	case "DRAFT", "AUTHORING":
		return adapter.EnvelopeStatusDraft, nil
	case "IN_PROCESS", "OUT_FOR_SIGNATURE", "OUT_FOR_DELIVERY", "OUT_FOR_ACCEPTANCE", "OUT_FOR_APPROVAL":
		return adapter.EnvelopeStatusSent, nil
	case "SIGNED", "APPROVED", "ACCEPTED", "DELIVERED", "COMPLETED":
		return adapter.EnvelopeStatusCompleted, nil
	case "DECLINED", "REJECTED":
		return adapter.EnvelopeStatusDeclined, nil
	case "CANCELLED", "EXPIRED", "ARCHIVED":
		return adapter.EnvelopeStatusVoided, nil
	default:
		return "", fmt.Errorf("adobesign: unknown agreement status %q", status)
	}
}

func participantRole(role string) string {
	switch strings.ToLower(role) {
	case "", "signer":
		return "SIGNER"
	case "approver":
		return "APPROVER"
	case "viewer", "cc":
		return "CERTIFIED_RECIPIENT"
	default:
		return strings.ToUpper(role)
	}
}
