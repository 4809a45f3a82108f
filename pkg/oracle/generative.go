package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Prompt is prepended to every query so answers stay list shaped.
const Prompt = "List the results for the following, one per line, in 50 words or fewer: "

// Generative asks a generateContent style endpoint and counts the
// non-empty lines of the first candidate's text.
type Generative struct {
	Endpoint string
	APIKey   string
	// Max caps the count; values below 1 mean SimulatedMax.
	Max    int
	Client *http.Client
	Log    *slog.Logger
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

func (g *Generative) Results(ctx context.Context, query string) (int, error) {
	text, err := g.generate(ctx, Prompt+query)
	if err != nil {
		return 0, err
	}
	n := CountLines(text)
	if n == 0 {
		return 0, ErrNoResults
	}
	limit := g.Max
	if limit < 1 {
		limit = SimulatedMax
	}
	g.logger().Debug("oracle: results", "query", query, "lines", n, "max", limit)
	return min(n, limit), nil
}

func (g *Generative) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Contents: []content{{Parts: []part{{Text: prompt}}}}})
	if err != nil {
		return "", fmt.Errorf("oracle: %w", err)
	}
	u, err := url.Parse(g.Endpoint)
	if err != nil {
		return "", fmt.Errorf("oracle: endpoint: %w", err)
	}
	if g.APIKey != "" {
		q := u.Query()
		q.Set("key", g.APIKey)
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("oracle: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("oracle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("oracle: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("oracle: decode response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", ErrNoResults
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

func (g *Generative) logger() *slog.Logger {
	if g.Log != nil {
		return g.Log
	}
	return slog.Default()
}

// CountLines returns the number of non-blank lines in text.
func CountLines(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}
