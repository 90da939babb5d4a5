package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/expresswash/jobsync/pkg/core"
	"github.com/expresswash/jobsync/pkg/security"
)

// Accepted status sets.
var (
	acceptedDefault = []int{http.StatusOK, http.StatusCreated, http.StatusAccepted}
	acceptedAssign  = []int{http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNonAuthoritativeInfo}
)

// HeaderRequestID carries the per-request correlation id.
const HeaderRequestID = "X-Request-ID"

// StaticToken is a fixed credential.
type StaticToken string

// Token returns the credential unchanged.
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// Client talks to the remote job service. It holds no local store state and
// is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	tokens     core.TokenSource
	logger     *slog.Logger
}

// NewClient creates a client for the service rooted at baseURL.
func NewClient(baseURL string, tokens core.TokenSource, opts ...Option) (*Client, error) {
	u, err := security.ValidateBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		tokens = StaticToken("")
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt.apply(c)
	}
	return c, nil
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// CreateRepresentation posts rep and returns the service's representation of the new job.
func (c *Client) CreateRepresentation(ctx context.Context, rep core.Representation) (core.Representation, error) {
	body, err := c.do(ctx, "create", http.MethodPost, rep, acceptedDefault, "jobs")
	if err != nil {
		return core.Representation{}, err
	}
	return decodeOne("create", body)
}

// Create posts rep and returns a non-persisted Job built from the response.
func (c *Client) Create(ctx context.Context, rep core.Representation) (*core.Job, error) {
	created, err := c.CreateRepresentation(ctx, rep)
	if err != nil {
		return nil, err
	}
	return core.NewJob(created), nil
}

// FetchRepresentation retrieves one job by id.
func (c *Client) FetchRepresentation(ctx context.Context, jobID int) (core.Representation, error) {
	if err := security.ValidateJobID(jobID); err != nil {
		return core.Representation{}, err
	}
	body, err := c.do(ctx, "fetch", http.MethodGet, nil, acceptedDefault, "jobs", strconv.Itoa(jobID))
	if err != nil {
		return core.Representation{}, err
	}
	return decodeOne("fetch", body)
}

// FetchOne retrieves one job by id as a non-persisted Job.
func (c *Client) FetchOne(ctx context.Context, jobID int) (*core.Job, error) {
	rep, err := c.FetchRepresentation(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return core.NewJob(rep), nil
}

// FetchForUser retrieves every job requested by a user.
func (c *Client) FetchForUser(ctx context.Context, userID int) ([]core.Representation, error) {
	body, err := c.do(ctx, "fetch user jobs", http.MethodGet, nil, acceptedDefault, "jobs", "client", strconv.Itoa(userID))
	if err != nil {
		return nil, err
	}
	return decodeMany("fetch user jobs", body)
}

// FetchForWasher retrieves every job assigned to a washer.
func (c *Client) FetchForWasher(ctx context.Context, washerID int) ([]core.Representation, error) {
	body, err := c.do(ctx, "fetch washer jobs", http.MethodGet, nil, acceptedDefault, "jobs", "washer", strconv.Itoa(washerID))
	if err != nil {
		return nil, err
	}
	return decodeMany("fetch washer jobs", body)
}

type assignRequest struct {
	WasherID int `json:"washerID"`
}

// AssignWasher asks the service to assign a washer and returns the updated representation.
func (c *Client) AssignWasher(ctx context.Context, jobID, washerID int) (core.Representation, error) {
	if err := security.ValidateJobID(jobID); err != nil {
		return core.Representation{}, err
	}
	if err := security.ValidateWasherID(washerID); err != nil {
		return core.Representation{}, err
	}
	body, err := c.do(ctx, "assign washer", http.MethodPut, assignRequest{WasherID: washerID}, acceptedAssign,
		"jobs", "select", strconv.Itoa(jobID))
	if err != nil {
		return core.Representation{}, err
	}
	return decodeOne("assign washer", body)
}

// Revise submits rep as the new version of its job. The service answers with
// a sequence whose first element is the revised job.
func (c *Client) Revise(ctx context.Context, rep core.Representation) ([]core.Representation, error) {
	if err := security.ValidateJobID(rep.JobID); err != nil {
		return nil, err
	}
	body, err := c.do(ctx, "revise", http.MethodPut, rep, acceptedDefault, "jobs", "revise", strconv.Itoa(rep.JobID))
	if err != nil {
		return nil, err
	}
	return decodeMany("revise", body)
}

// Delete asks the service to delete a job and returns its confirmation message.
// The body is an object of string values; the value under the
// lexicographically first key is returned.
func (c *Client) Delete(ctx context.Context, jobID int) (string, error) {
	if err := security.ValidateJobID(jobID); err != nil {
		return "", err
	}
	body, err := c.do(ctx, "delete", http.MethodDelete, nil, acceptedDefault, "jobs", "revise", strconv.Itoa(jobID))
	if err != nil {
		return "", err
	}

	confirmation, err := decode[map[string]string]("delete", body)
	if err != nil {
		return "", err
	}
	if len(confirmation) == 0 {
		return "", &core.DecodeError{Op: "delete", Err: fmt.Errorf("empty confirmation object")}
	}
	keys := make([]string, 0, len(confirmation))
	for k := range confirmation {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return confirmation[keys[0]], nil
}

// do sends one request and returns the response body when the status is accepted.
func (c *Client) do(ctx context.Context, op, method string, payload any, accepted []int, segments ...string) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, &core.DecodeError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		reqBody = bytes.NewReader(encoded)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, &core.NetworkError{Op: op, Err: fmt.Errorf("credential: %w", err)}
	}

	target := c.baseURL.JoinPath(segments...)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reqBody)
	if err != nil {
		return nil, &core.NetworkError{Op: op, Err: err}
	}
	requestID := uuid.New().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", token)
	req.Header.Set(HeaderRequestID, requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("remote request failed", "op", op, "method", method, "path", target.Path,
			"request_id", requestID, "error", security.SanitizeErrorMessage(err.Error()))
		return nil, &core.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, security.MaxResponseBodySize+1))
	if err != nil {
		return nil, &core.NetworkError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	c.logger.Debug("remote request",
		"op", op,
		"method", method,
		"path", target.Path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", time.Since(start),
	)

	if !statusAccepted(resp.StatusCode, accepted) {
		c.logger.Debug("remote rejected request", "op", op, "status", resp.StatusCode,
			"request_id", requestID, "body", security.SanitizeBody(body))
		return nil, &core.RemoteRejectedError{Op: op, StatusCode: resp.StatusCode}
	}
	if len(body) > security.MaxResponseBodySize {
		return nil, &core.DecodeError{Op: op, Err: core.ErrResponseTooLarge}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &core.EmptyResponseError{Op: op}
	}
	return body, nil
}

func statusAccepted(code int, accepted []int) bool {
	for _, a := range accepted {
		if code == a {
			return true
		}
	}
	return false
}

func decode[T any](op string, body []byte) (T, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return v, &core.DecodeError{Op: op, Err: err}
	}
	return v, nil
}

func decodeOne(op string, body []byte) (core.Representation, error) {
	rep, err := decode[core.Representation](op, body)
	if err != nil {
		return core.Representation{}, err
	}
	if err := security.ValidateJobID(rep.JobID); err != nil {
		return core.Representation{}, &core.DecodeError{Op: op, Err: err}
	}
	return rep, nil
}

func decodeMany(op string, body []byte) ([]core.Representation, error) {
	reps, err := decode[[]core.Representation](op, body)
	if err != nil {
		return nil, err
	}
	for _, rep := range reps {
		if err := security.ValidateJobID(rep.JobID); err != nil {
			return nil, &core.DecodeError{Op: op, Err: err}
		}
	}
	if reps == nil {
		reps = []core.Representation{}
	}
	return reps, nil
}
