package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type client struct {
	baseURL string
	token   string
	tenant  string
	http    *http.Client
}

func newClient(baseURL, token string) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type envelope struct {
	Success      bool            `json:"success"`
	Message      string          `json:"message"`
	AttemptsLeft *int            `json:"attemptsLeft"`
	MinutesLeft  *int            `json:"minutesLeft"`
	Data         json.RawMessage `json:"data"`
}

type account struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	IsActive bool   `json:"isActive"`
}

type session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      account   `json:"user"`
}

type historyEntry struct {
	Status    string    `json:"status"`
	ChangedBy string    `json:"changedBy"`
	Timestamp time.Time `json:"timestamp"`
}

type candidate struct {
	ID                string         `json:"id"`
	FullName          string         `json:"fullName"`
	ApplicationNumber string         `json:"applicationNumber"`
	Country           string         `json:"country"`
	VisaType          string         `json:"visaType"`
	Status            string         `json:"status"`
	VisaNumber        string         `json:"visaNumber"`
	VisaIssueDate     string         `json:"visaIssueDate"`
	HasArtifact       bool           `json:"hasArtifact"`
	History           []historyEntry `json:"statusHistory"`
}

type candidatePage struct {
	Candidates []candidate `json:"candidates"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Pages      int         `json:"pages"`
}

type publicView struct {
	CandidateID string `json:"candidateId"`
	FullName    string `json:"fullName"`
	VisaType    string `json:"visaType"`
	Country     string `json:"country"`
	Status      string `json:"status"`
	CanDownload bool   `json:"canDownload"`
}

// do sends body as JSON and decodes the data field of the response into out.
func (c *client) do(method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.tenant != "" {
		req.Header.Set("X-Tenant-ID", c.tenant)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: unexpected response (%d)", method, path, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		msg := env.Message
		if env.AttemptsLeft != nil {
			msg = fmt.Sprintf("%s (%d attempt(s) left)", msg, *env.AttemptsLeft)
		}
		if env.MinutesLeft != nil {
			msg = fmt.Sprintf("%s (retry in %d minute(s))", msg, *env.MinutesLeft)
		}
		return fmt.Errorf("%s (%d)", msg, resp.StatusCode)
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func apiURL() string {
	if u := os.Getenv("VISA_API"); u != "" {
		return u
	}
	return "http://localhost:8080/api"
}

func tokenFile() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".visactl", "token")
}

func saveToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(tokenFile()), 0o700); err != nil {
		return err
	}
	return os.WriteFile(tokenFile(), []byte(token), 0o600)
}

func loadToken() string {
	data, _ := os.ReadFile(tokenFile())
	return strings.TrimSpace(string(data))
}
